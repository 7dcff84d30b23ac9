package encryption

import (
	"fmt"

	"docverify/internal/config"
	"docverify/internal/docverify"
)

// NewEncryptorFromConfig returns the snapshot encryptor selected by cfg.Type.
// The age encryptor needs both key paths even before keys exist, since
// `keys init` writes to them.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (docverify.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
