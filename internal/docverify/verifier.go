package docverify

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"docverify/internal/hashing"
)

// Messages reported in VerificationResult.
const (
	MsgNotFound    = "Document not found on the blockchain."
	MsgRevoked     = "This document has been revoked by the issuer."
	MsgInactive    = "Document is marked inactive on the blockchain."
	MsgUnconfirmed = "Document is issued on the blockchain but has not been confirmed by the issuer."
	MsgLedgerFlag  = "The blockchain reports this document as invalid."
)

// DefaultConcurrency bounds the number of ledger queries VerifyMany runs at once.
const DefaultConcurrency = 4

// VerificationRecorder is notified of every verification outcome.
type VerificationRecorder interface {
	ObserveVerification(status DocumentStatus)
}

// Verifier answers "is this document valid" from the ledger alone. It never
// returns an error: ledger failures become a result with IsValid=false and a
// populated Errors list. When a RecordStore is attached, local records are
// brought in line with what the ledger reports, but they never influence the
// answer.
type Verifier struct {
	ledger      LedgerReader
	records     *RecordStore
	logger      Logger
	clock       Clock
	recorder    VerificationRecorder
	concurrency int
}

// NewVerifier creates a Verifier. records may be nil.
func NewVerifier(ledger LedgerReader, records *RecordStore, logger Logger, clock Clock) *Verifier {
	return &Verifier{
		ledger:      ledger,
		records:     records,
		logger:      logger,
		clock:       clock,
		concurrency: DefaultConcurrency,
	}
}

// WithRecorder attaches a recorder for verification outcomes.
func (v *Verifier) WithRecorder(r VerificationRecorder) *Verifier {
	v.recorder = r
	return v
}

// WithConcurrency sets the VerifyMany fan-out. Values below 1 are ignored.
func (v *Verifier) WithConcurrency(n int) *Verifier {
	if n > 0 {
		v.concurrency = n
	}
	return v
}

// VerifyByHash verifies a document hash given in any textual form.
func (v *Verifier) VerifyByHash(ctx context.Context, hash string) *VerificationResult {
	res := v.verify(ctx, hash)
	if v.recorder != nil {
		v.recorder.ObserveVerification(res.Status)
	}
	v.logger.Info("document verified", "hash", res.Hash, "status", string(res.Status), "valid", res.IsValid)
	return res
}

func (v *Verifier) verify(ctx context.Context, hash string) *VerificationResult {
	norm := hashing.Normalize(hash)
	res := &VerificationResult{
		Hash:     norm,
		Status:   StatusNotFound,
		Errors:   []string{},
		Warnings: []string{},
	}
	if !hashing.IsCanonical(norm) {
		res.Errors = append(res.Errors, fmt.Sprintf("Invalid document hash %q.", hash))
		return res
	}

	raw, err := v.ledger.QueryDocument(ctx, hashing.ToLedger(norm))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			res.Errors = append(res.Errors, MsgNotFound)
		} else {
			v.logger.Warn("ledger query failed", "hash", norm, "error", err)
			res.Errors = append(res.Errors, "Failed to query the blockchain: "+err.Error())
		}
		return res
	}

	doc := NewLedgerDocument(raw)
	doc.DocumentHash = hashing.Normalize(raw.DocumentHash)
	res.Document = doc
	res.BlockchainConfirmed = true
	res.IsValid = raw.IsValid
	res.Status = DeriveStatus(FieldsOf(doc), v.clock.Now())

	var errs, warns []string
	switch res.Status {
	case StatusRevoked:
		errs = append(errs, MsgRevoked)
		warns = append(warns, MsgInactive)
	case StatusExpired:
		errs = append(errs, fmt.Sprintf("This document expired on %s.", doc.ExpirationDate.Format("2006-01-02")))
	case StatusPending:
		warns = append(warns, MsgUnconfirmed)
	}

	// The ledger flag decides validity; derived findings only annotate it.
	if res.IsValid {
		warns = append(warns, errs...)
		errs = nil
		if res.Status == StatusRevoked || res.Status == StatusExpired {
			res.Status = StatusValid
			if !doc.IsVerified {
				res.Status = StatusPending
			}
		}
	} else if len(errs) == 0 {
		errs = append(errs, MsgLedgerFlag)
	}
	res.Errors = append(res.Errors, errs...)
	res.Warnings = append(res.Warnings, warns...)

	v.reconcile(ctx, norm, doc)
	return res
}

// reconcile updates the local record, if any, to reflect the ledger.
func (v *Verifier) reconcile(ctx context.Context, hash string, doc *LedgerDocument) {
	if v.records == nil {
		return
	}
	local := v.records.GetStatus(ctx, hash)
	if !local.Exists {
		return
	}

	switch {
	case doc.IsVerified && local.Status != RecordVerified:
		v.records.MarkVerified(ctx, hash, map[string]any{
			"issuer":     doc.Issuer,
			"issuerName": doc.IssuerName,
			"source":     "ledger",
		})
	case !local.Record.BlockchainStored || local.Record.LocalOnly:
		v.records.MarkIssued(ctx, hash, "")
	}
}

// VerifyByFile hashes content with metadata, which must match what the issuer
// used byte for byte, and verifies the resulting hash.
func (v *Verifier) VerifyByFile(ctx context.Context, content []byte, fileName string, metadata map[string]any) *VerificationResult {
	hash, err := hashing.ComputeHash(content, metadata)
	if err != nil {
		v.logger.Warn("hashing file for verification failed", "file", fileName, "error", err)
		return &VerificationResult{
			Status:   StatusNotFound,
			Errors:   []string{"Could not compute the document hash: " + err.Error()},
			Warnings: []string{},
		}
	}
	v.logger.Debug("verifying file", "file", fileName, "hash", hash)
	return v.VerifyByHash(ctx, hash)
}

// VerifyMany verifies hashes concurrently. Results are in input order.
func (v *Verifier) VerifyMany(ctx context.Context, hashes []string) []*VerificationResult {
	results := make([]*VerificationResult, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, h := range hashes {
		g.Go(func() error {
			results[i] = v.VerifyByHash(gctx, h)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Diagnose tries every hashing variant on content and metadata and reports
// which ones reproduce expected.
func (v *Verifier) Diagnose(content []byte, metadata map[string]any, expected string) *DiagnosticReport {
	report := Diagnose(content, metadata, expected)
	if label, ok := report.Match(); ok {
		v.logger.Info("hash mismatch diagnosed", "expected", report.Expected, "variant", label)
	} else {
		v.logger.Info("no hashing variant matched", "expected", report.Expected)
	}
	return report
}
