package database

import (
	"fmt"
	"os"
	"path/filepath"

	"docverify/internal/config"
	"docverify/internal/ledger"
)

// NewStateStoreFromConfig creates the ledger state backend named by cfg.Type.
func NewStateStoreFromConfig(cfg config.LedgerConfig, instanceID string) (ledger.StateStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite ledger")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger data dir: %w", err)
		}
		state, err := NewSQLiteState(filepath.Join(cfg.DataDir, instanceID+".db"))
		if err != nil {
			return nil, err
		}
		return state, nil
	case "memory":
		return ledger.NewMemoryState(), nil
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
}
