package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irrev-systems/irrev/pkg/content"
)

func TestWasmHandler_MetadataPassesThrough(t *testing.T) {
	store, err := content.NewFileStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	meta := HandlerMetadata{Name: "lint_vault_wasm", Operation: "lint", Surface: "pack"}
	h := NewWasmHandler(meta, store, content.Id("deadbeef"), time.Second, 16*1024*1024)
	require.Equal(t, meta, h.Metadata())
}

func TestWasmHandler_ResolveModuleErrorsWhenContentMissing(t *testing.T) {
	store, err := content.NewFileStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	h := NewWasmHandler(HandlerMetadata{Name: "missing"}, store, content.Id("not-a-real-hash"), time.Second, 0)
	_, err = h.resolveModule(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
