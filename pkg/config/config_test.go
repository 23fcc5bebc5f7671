package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irrev-systems/irrev/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: the harness must boot with safe defaults with no env set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("IRREV_DIR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("VAULT_PATH", "")
	t.Setenv("APPROVAL_REQUIRE_FORCE_ACK_DESTRUCTIVE", "")

	cfg := config.Load()

	assert.Equal(t, ".irrev", cfg.IrrevDir)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, ".", cfg.VaultPath)
	assert.True(t, cfg.ApprovalRequireForceAckDestructive)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("IRREV_DIR", "/var/lib/irrev")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("VAULT_PATH", "/home/user/vault")
	t.Setenv("APPROVAL_REQUIRE_FORCE_ACK_DESTRUCTIVE", "false")

	cfg := config.Load()

	assert.Equal(t, "/var/lib/irrev", cfg.IrrevDir)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/home/user/vault", cfg.VaultPath)
	assert.False(t, cfg.ApprovalRequireForceAckDestructive)
}
