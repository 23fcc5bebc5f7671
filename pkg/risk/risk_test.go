package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompute_KnownReadOnly(t *testing.T) {
	c, _ := Compute("lint", nil)
	require.Equal(t, ReadOnly, c)
}

func TestCompute_UnknownDefaultsExternal(t *testing.T) {
	c, reasons := Compute("frobnicate.widgets", nil)
	require.Equal(t, ExternalSideEffect, c)
	require.NotEmpty(t, reasons)
}

func TestCompute_Neo4jLoadSync(t *testing.T) {
	c, _ := Compute("neo4j.load", map[string]any{"mode": "sync"})
	require.Equal(t, ExternalSideEffect, c)
}

func TestCompute_Neo4jLoadRebuildEscalatesToDestructive(t *testing.T) {
	c, _ := Compute("neo4j.load", map[string]any{"mode": "rebuild"})
	require.Equal(t, MutationDestructive, c)
}

func TestCompute_ExplicitEffectTypeAuthoritative(t *testing.T) {
	c, _ := Compute("lint", map[string]any{"effect_type": "mutation_destructive"})
	require.Equal(t, MutationDestructive, c)
}

func TestRequiresApproval(t *testing.T) {
	require.True(t, RequiresApproval(MutationDestructive))
	require.True(t, RequiresApproval(ExternalSideEffect))
	require.False(t, RequiresApproval(AppendOnly))
}

func TestRequiresForceAck_OnlyDestructive(t *testing.T) {
	require.True(t, RequiresForceAck(MutationDestructive))
	require.False(t, RequiresForceAck(ExternalSideEffect))
}
