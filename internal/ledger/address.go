package ledger

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"docverify/internal/docverify"
)

// NormalizeAddress validates a hex account address and returns its checksummed
// form.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", docverify.ErrInvalidAddressFormat, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// NewAccountAddress derives a deterministic account address from seed.
func NewAccountAddress(seed string) string {
	sum := sha256.Sum256([]byte("account:" + seed))
	return common.BytesToAddress(sum[:]).Hex()
}

// contractAddress derives the address a contract deployed by deployer with
// the given nonce lives at.
func contractAddress(deployer, nonce string) string {
	sum := sha256.Sum256([]byte("contract:" + deployer + ":" + nonce))
	return common.BytesToAddress(sum[:]).Hex()
}
