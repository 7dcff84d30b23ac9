package docverify

import (
	"context"
	"fmt"
	"time"

	"docverify/internal/hashing"
)

// Issuer drives a document from local upload to the ledger and keeps the
// local record in step. Ledger failures are returned to the caller with the
// ledger's reason; local bookkeeping failures are only logged.
type Issuer struct {
	ledger  LedgerClient
	records *RecordStore
	logger  Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(ledger LedgerClient, records *RecordStore, logger Logger) *Issuer {
	return &Issuer{ledger: ledger, records: records, logger: logger}
}

// Upload stores the document as a local pending record.
func (i *Issuer) Upload(ctx context.Context, content []byte, fileName string, metadata map[string]any) StoreResult {
	return i.records.StoreAsPending(ctx, content, fileName, metadata)
}

// Issue submits req for hash and waits for inclusion. On failure the local
// record is marked failed and retryable.
func (i *Issuer) Issue(ctx context.Context, hash string, req IssueRequest) (*Receipt, error) {
	norm, err := canonical(hash)
	if err != nil {
		return nil, err
	}
	req.DocumentHash = hashing.ToLedger(norm)

	receipt, err := i.ledger.IssueDocument(ctx, req)
	if err != nil {
		i.records.MarkFailed(ctx, norm, err.Error())
		return nil, fmt.Errorf("issuing document %s: %w", norm, err)
	}

	i.logger.Info("document issued", "hash", norm, "tx", receipt.TransactionID, "block", receipt.BlockReference)
	i.records.MarkIssued(ctx, norm, receipt.TransactionID)
	return receipt, nil
}

// Confirm records the issuer's explicit confirmation on the ledger, then
// marks the local record verified. A missing local record is not created.
func (i *Issuer) Confirm(ctx context.Context, hash string) (*Receipt, error) {
	norm, err := canonical(hash)
	if err != nil {
		return nil, err
	}

	receipt, err := i.ledger.ConfirmVerification(ctx, hashing.ToLedger(norm))
	if err != nil {
		return nil, fmt.Errorf("confirming document %s: %w", norm, err)
	}

	i.logger.Info("document confirmed", "hash", norm, "tx", receipt.TransactionID)
	i.records.MarkVerified(ctx, norm, map[string]any{
		"transactionHash": receipt.TransactionID,
		"blockNumber":     receipt.BlockReference,
		"source":          "issuer",
	})
	return receipt, nil
}

// Revoke invalidates an issued document. The local record is kept.
func (i *Issuer) Revoke(ctx context.Context, hash string) (*Receipt, error) {
	norm, err := canonical(hash)
	if err != nil {
		return nil, err
	}

	receipt, err := i.ledger.RevokeDocument(ctx, hashing.ToLedger(norm))
	if err != nil {
		return nil, fmt.Errorf("revoking document %s: %w", norm, err)
	}

	i.logger.Info("document revoked", "hash", norm, "tx", receipt.TransactionID)
	return receipt, nil
}

func canonical(hash string) (string, error) {
	norm := hashing.Normalize(hash)
	if !hashing.IsCanonical(norm) {
		return "", fmt.Errorf("%w: malformed hash %q", ErrValidation, hash)
	}
	return norm, nil
}

// IssueRequestFromRecord fills an IssueRequest from the metadata the document
// was uploaded with. Recognized keys are recipientName, recipientId,
// documentType, title, metadataURI, signature and expirationDate (RFC 3339 or
// YYYY-MM-DD). The title defaults to the file name.
func IssueRequestFromRecord(rec *DocumentRecord) (IssueRequest, error) {
	str := func(key string) string {
		if s, ok := rec.Metadata[key].(string); ok {
			return s
		}
		return ""
	}

	req := IssueRequest{
		DocumentHash:  rec.Hash,
		DocumentType:  str("documentType"),
		Title:         str("title"),
		RecipientName: str("recipientName"),
		RecipientID:   str("recipientId"),
		MetadataURI:   str("metadataURI"),
		Signature:     str("signature"),
	}
	if req.Title == "" {
		req.Title = rec.FileName
	}

	if raw := str("expirationDate"); raw != "" {
		exp, err := parseDate(raw)
		if err != nil {
			return IssueRequest{}, fmt.Errorf("%w: expirationDate: %v", ErrValidation, err)
		}
		req.ExpirationDate = &exp
	}
	return req, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
