package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_DeterministicAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := map[string]any{"a": 1, "b": 2}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestHash_BinaryAndTextWrappersDiffer(t *testing.T) {
	hBytes, err := Hash([]byte("same"))
	require.NoError(t, err)
	hText, err := Hash("same")
	require.NoError(t, err)
	require.NotEqual(t, hBytes, hText)
}

func TestFileStore_StoreGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := map[string]any{"operation": "graph.load", "payload": map[string]any{"mode": "sync"}}

	id, err := store.Store(ctx, content)
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content["operation"], got.(map[string]any)["operation"])

	ok, err = store.Verify(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFileStore_StoreIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := map[string]any{"k": "v"}

	id1, err := store.Store(ctx, content)
	require.NoError(t, err)
	id2, err := store.Store(ctx, content)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestFileStore_GetMissingReturnsNotOk(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get(context.Background(), Id("deadbeef"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestComputePayloadManifest_SortedByPath(t *testing.T) {
	manifest := ComputePayloadManifest(map[string][]byte{
		"z.md": []byte("z"),
		"a.md": []byte("a"),
	})
	require.Len(t, manifest, 2)
	require.Equal(t, "a.md", manifest[0].Path)
	require.Equal(t, "z.md", manifest[1].Path)
}
