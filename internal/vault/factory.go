package vault

import (
	"context"
	"fmt"

	"docverify/internal/config"
	"docverify/internal/docverify"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (docverify.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// NewVaultsFromConfig creates every configured vault.
func NewVaultsFromConfig(ctx context.Context, cfgs []config.VaultConfig) ([]docverify.Vault, error) {
	vaults := make([]docverify.Vault, 0, len(cfgs))
	for _, cfg := range cfgs {
		v, err := NewVaultFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("vault %q: %w", cfg.Name, err)
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}
