// Package config loads process configuration from environment variables
// with hard-coded defaults, in the reference codebase's own no-viper,
// no-YAML style.
package config

import "os"

// Config holds the harness process's environment-derived configuration.
type Config struct {
	// IrrevDir is where the ledger, content store, and snapshot cache live
	// on disk (a ".irrev" directory alongside the vault by default).
	IrrevDir string
	// LogLevel is the slog level name consulted by every package's logger.
	LogLevel string
	// VaultPath is the markdown vault root the harness reasons about; the
	// vault loader itself is an external collaborator, not part of this
	// core.
	VaultPath string
	// ApprovalRequireForceAckDestructive records whether destructive
	// approvals are configured to require force_ack. No package in this
	// module reads it: PlanManager.Approve enforces risk.RequiresForceAck
	// unconditionally, whatever this flag says.
	ApprovalRequireForceAckDestructive bool
}

// Load reads Config from the environment, defaulting to a vault-relative
// ".irrev" directory, INFO logging, the current directory as vault root,
// and force-ack required for destructive approvals.
func Load() *Config {
	irrevDir := os.Getenv("IRREV_DIR")
	if irrevDir == "" {
		irrevDir = ".irrev"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	vaultPath := os.Getenv("VAULT_PATH")
	if vaultPath == "" {
		vaultPath = "."
	}

	requireForceAck := true
	if v := os.Getenv("APPROVAL_REQUIRE_FORCE_ACK_DESTRUCTIVE"); v != "" {
		requireForceAck = v == "true"
	}

	return &Config{
		IrrevDir:                           irrevDir,
		LogLevel:                           logLevel,
		VaultPath:                          vaultPath,
		ApprovalRequireForceAckDestructive: requireForceAck,
	}
}
