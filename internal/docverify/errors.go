package docverify

import (
	"errors"
	"fmt"
)

// Error kinds. Stores and ledger clients return these (usually wrapped) so
// callers can classify failures with errors.Is.
var (
	// ErrNotFound: the hash is absent on the ledger (or from the local store).
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable: the local persistence layer cannot be written.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrValidation: malformed input or a malformed record.
	ErrValidation = errors.New("validation error")
	// ErrContractUninitialized: a ledger call before Initialize, or no code at the address.
	ErrContractUninitialized = errors.New("contract not initialized")
	// ErrTransactionFailure: a submitted transaction was reverted or never included.
	ErrTransactionFailure = errors.New("transaction failed")
	// ErrInvalidAddressFormat: an account or institution address is not a valid address.
	ErrInvalidAddressFormat = errors.New("invalid address format")
)

// LedgerError is returned by ledger clients for authoritative failures. Reason
// is the human-readable revert reason reported by the ledger.
type LedgerError struct {
	Op     string
	Reason string
	Kind   error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *LedgerError) Unwrap() error {
	return e.Kind
}

// Revert builds a LedgerError of kind ErrTransactionFailure.
func Revert(op, reason string) error {
	return &LedgerError{Op: op, Reason: reason, Kind: ErrTransactionFailure}
}
