package testutil

import (
	"docverify/internal/encryption"
	"docverify/internal/vault"
)

// NewTestVault creates an in-memory snapshot vault.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// NewTestEncryptor creates a reversible, non-cryptographic encryptor.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}
