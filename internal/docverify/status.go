package docverify

import "time"

// DocumentStatus is the lifecycle status derived from ledger fields.
type DocumentStatus string

const (
	StatusNotFound DocumentStatus = "not_found"
	StatusRevoked  DocumentStatus = "revoked"
	StatusExpired  DocumentStatus = "expired"
	StatusPending  DocumentStatus = "pending"
	StatusValid    DocumentStatus = "valid"
)

// LedgerFields are the ledger values status derivation depends on.
type LedgerFields struct {
	Found          bool
	IsActive       bool
	IsVerified     bool
	ExpirationDate *time.Time
}

// FieldsOf extracts LedgerFields from a document read from the ledger.
// A nil document yields Found=false.
func FieldsOf(doc *LedgerDocument) LedgerFields {
	if doc == nil {
		return LedgerFields{}
	}
	return LedgerFields{
		Found:          true,
		IsActive:       doc.IsActive,
		IsVerified:     doc.IsVerified,
		ExpirationDate: doc.ExpirationDate,
	}
}

// DeriveStatus turns ledger fields into a single status. When several
// conditions hold the first of NotFound, Revoked, Expired, Pending wins;
// Valid is what remains. An inactive document counts as revoked. Expiry is
// compared in whole seconds, the ledger's own resolution.
func DeriveStatus(f LedgerFields, now time.Time) DocumentStatus {
	switch {
	case !f.Found:
		return StatusNotFound
	case !f.IsActive:
		return StatusRevoked
	case f.ExpirationDate != nil && now.Unix() > f.ExpirationDate.Unix():
		return StatusExpired
	case !f.IsVerified:
		return StatusPending
	default:
		return StatusValid
	}
}
