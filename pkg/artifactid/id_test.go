package artifactid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_HasFixedLength(t *testing.T) {
	id, err := New()
	require.NoError(t, err)
	require.Len(t, id, Length)
}

func TestNew_OnlyUsesAlphabet(t *testing.T) {
	id, err := New()
	require.NoError(t, err)
	for _, c := range id {
		require.Contains(t, alphabet, string(c))
	}
}

func TestNewAt_SortsLexicallyWithTime(t *testing.T) {
	earlier := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	idEarlier, err := NewAt(earlier)
	require.NoError(t, err)
	idLater, err := NewAt(later)
	require.NoError(t, err)

	require.Less(t, idEarlier, idLater)
}

func TestNewAt_RejectsNegativeTimestamp(t *testing.T) {
	_, err := NewAt(time.Unix(-1, 0))
	require.Error(t, err)
}

func TestNewAt_RejectsTimestampBeyond48Bits(t *testing.T) {
	tooFar := time.UnixMilli(maxTimestamp + 1)
	_, err := NewAt(tooFar)
	require.Error(t, err)
}

func TestTimestamp_RoundTripsThroughNewAt(t *testing.T) {
	want := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	id, err := NewAt(want)
	require.NoError(t, err)

	got, err := Timestamp(id)
	require.NoError(t, err)
	require.Equal(t, want.UnixMilli(), got.UnixMilli())
}

func TestTimestamp_RejectsShortId(t *testing.T) {
	_, err := Timestamp("short")
	require.Error(t, err)
}

func TestTimestamp_RejectsInvalidCharacter(t *testing.T) {
	id, err := New()
	require.NoError(t, err)
	bad := "!" + id[1:]
	_, err = Timestamp(bad)
	require.Error(t, err)
}

func TestNew_IsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := New()
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
	}
}
