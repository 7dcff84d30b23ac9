package docverify

import (
	"context"
	"time"
)

// Ledger event names emitted by the document registry contract.
const (
	EventDocumentIssued        = "DocumentIssued"
	EventDocumentVerified      = "DocumentVerified"
	EventDocumentRevoked       = "DocumentRevoked"
	EventInstitutionRegistered = "InstitutionRegistered"
	EventInstitutionVerified   = "InstitutionVerified"
)

// Receipt describes a mutating ledger call. Clients only return a Receipt once
// the transaction is observably included.
type Receipt struct {
	Success        bool
	TransactionID  string
	BlockReference uint64
	Cost           uint64
}

// IssueRequest carries the arguments of issueDocument.
type IssueRequest struct {
	DocumentHash   string
	DocumentType   string
	Title          string
	RecipientName  string
	RecipientID    string
	ExpirationDate *time.Time
	MetadataURI    string
	Signature      string
}

// LedgerRecord is the raw tuple returned by queryDocument. Dates are unix
// seconds; a zero ExpirationDate means the document does not expire. IsValid is
// the ledger's own validity flag.
type LedgerRecord struct {
	DocumentHash    string
	Issuer          string
	IssuerName      string
	DocumentType    string
	Title           string
	RecipientName   string
	RecipientID     string
	IssuanceDate    int64
	ExpirationDate  int64
	MetadataURI     string
	IsActive        bool
	IsVerified      bool
	IssuerSignature string
	IsValid         bool
}

// LedgerDocument is a document as read from the ledger.
type LedgerDocument struct {
	DocumentHash    string     `json:"documentHash"`
	Issuer          string     `json:"issuer"`
	IssuerName      string     `json:"issuerName"`
	DocumentType    string     `json:"documentType"`
	Title           string     `json:"title"`
	RecipientName   string     `json:"recipientName"`
	RecipientID     string     `json:"recipientId"`
	IssuanceDate    time.Time  `json:"issuanceDate"`
	ExpirationDate  *time.Time `json:"expirationDate,omitempty"`
	MetadataURI     string     `json:"metadataURI"`
	IsActive        bool       `json:"isActive"`
	IsVerified      bool       `json:"isVerified"`
	IssuerSignature string     `json:"issuerSignature"`
}

// NewLedgerDocument converts a raw ledger tuple into a LedgerDocument.
func NewLedgerDocument(raw *LedgerRecord) *LedgerDocument {
	doc := &LedgerDocument{
		DocumentHash:    raw.DocumentHash,
		Issuer:          raw.Issuer,
		IssuerName:      raw.IssuerName,
		DocumentType:    raw.DocumentType,
		Title:           raw.Title,
		RecipientName:   raw.RecipientName,
		RecipientID:     raw.RecipientID,
		IssuanceDate:    time.Unix(raw.IssuanceDate, 0).UTC(),
		MetadataURI:     raw.MetadataURI,
		IsActive:        raw.IsActive,
		IsVerified:      raw.IsVerified,
		IssuerSignature: raw.IssuerSignature,
	}
	if raw.ExpirationDate > 0 {
		exp := time.Unix(raw.ExpirationDate, 0).UTC()
		doc.ExpirationDate = &exp
	}
	return doc
}

// LedgerReader is the read-only part of the ledger used for verification.
type LedgerReader interface {
	// QueryDocument returns the raw tuple for hash, or an error wrapping
	// ErrNotFound when the ledger has no such document.
	QueryDocument(ctx context.Context, hash string) (*LedgerRecord, error)
}

// LedgerClient is the contract surface consumed from the ledger. All mutating
// calls block until the transaction is included and fail with a *LedgerError
// (or an error wrapping one of the kinds in errors.go) otherwise.
type LedgerClient interface {
	LedgerReader

	// Initialize binds the client to the contract at address. It fails with
	// ErrContractUninitialized if no code exists there.
	Initialize(ctx context.Context, address string) error

	RegisterInstitution(ctx context.Context, name, registrationNumber, contact string) (*Receipt, error)
	VerifyInstitution(ctx context.Context, address string) (*Receipt, error)
	IsInstitutionVerified(ctx context.Context, address string) (bool, error)

	IssueDocument(ctx context.Context, req IssueRequest) (*Receipt, error)
	ConfirmVerification(ctx context.Context, hash string) (*Receipt, error)
	RevokeDocument(ctx context.Context, hash string) (*Receipt, error)
}
