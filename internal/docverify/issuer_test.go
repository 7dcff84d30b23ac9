package docverify_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"docverify/internal/docverify"
	"docverify/internal/hashing"
	"docverify/internal/ledger"
	"docverify/internal/testutil"
)

type issuance struct {
	ledger   *testutil.TestLedger
	store    *docverify.RecordStore
	issuer   *docverify.Issuer
	verifier *docverify.Verifier
}

func newIssuance(t *testing.T) *issuance {
	t.Helper()
	clock := testutil.FixedClock()
	tl := testutil.NewTestLedger(t, clock)
	store, _ := testutil.NewTestRecordStore(clock)
	return &issuance{
		ledger:   tl,
		store:    store,
		issuer:   docverify.NewIssuer(tl.Issuer, store, docverify.NewNopLogger()),
		verifier: docverify.NewVerifier(tl.Admin, store, docverify.NewNopLogger(), clock),
	}
}

func (s *issuance) uploadAndIssue(t *testing.T, metadata map[string]any) string {
	t.Helper()
	ctx := context.Background()

	up := s.issuer.Upload(ctx, diploma, "diploma.pdf", metadata)
	if !up.OK {
		t.Fatalf("Upload() error = %v", up.Err)
	}
	req, err := docverify.IssueRequestFromRecord(up.Record)
	if err != nil {
		t.Fatalf("IssueRequestFromRecord() error = %v", err)
	}
	if _, err := s.issuer.Issue(ctx, up.Hash, req); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return up.Hash
}

func TestScenario_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	s := newIssuance(t)
	h1 := s.uploadAndIssue(t, metaM)

	rec := s.store.GetStatus(ctx, h1).Record
	if !rec.BlockchainStored || rec.LocalOnly || rec.HasPlaceholderTx() {
		t.Errorf("record after issue = %+v, want ledger-stored with a real transaction", rec)
	}

	res := s.verifier.VerifyByHash(ctx, h1)
	if !res.IsValid || res.Status != docverify.StatusPending {
		t.Fatalf("VerifyByHash() before confirmation = %+v, want valid and pending", res)
	}
	if !slices.Contains(res.Warnings, docverify.MsgUnconfirmed) {
		t.Errorf("Warnings = %q, want unconfirmed warning", res.Warnings)
	}

	if _, err := s.issuer.Confirm(ctx, h1); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	res = s.verifier.VerifyByHash(ctx, h1)
	if !res.IsValid || res.Status != docverify.StatusValid {
		t.Fatalf("VerifyByHash() = %+v, want valid", res)
	}
	if res.Document.RecipientName != metaM["recipientName"] {
		t.Errorf("RecipientName = %q, want %q", res.Document.RecipientName, metaM["recipientName"])
	}
	if res.Document.IssuerName != "Test University" {
		t.Errorf("IssuerName = %q", res.Document.IssuerName)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Errorf("Errors = %q, Warnings = %q, want none", res.Errors, res.Warnings)
	}
	if got := s.store.GetStatus(ctx, h1).Status; got != docverify.RecordVerified {
		t.Errorf("local status = %q, want verified", got)
	}
}

func TestScenario_DifferentMetadataIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newIssuance(t)
	h1 := s.uploadAndIssue(t, metaM)

	h2, err := hashing.ComputeHash(diploma, metaM2)
	if err != nil {
		t.Fatalf("ComputeHash() error = %v", err)
	}
	if h2 == h1 {
		t.Fatal("different metadata produced the same hash")
	}

	res := s.verifier.VerifyByHash(ctx, h2)
	if res.IsValid || res.Status != docverify.StatusNotFound {
		t.Errorf("VerifyByHash(h2) = %+v, want not found", res)
	}

	report := s.verifier.Diagnose(diploma, metaM2, h1)
	if _, ok := report.Match(); ok {
		t.Errorf("Diagnose() matched %v, want no variant", report.Matched)
	}
}

func TestScenario_RevokedDocument(t *testing.T) {
	ctx := context.Background()
	s := newIssuance(t)
	h1 := s.uploadAndIssue(t, metaM)
	if _, err := s.issuer.Confirm(ctx, h1); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if _, err := s.issuer.Revoke(ctx, h1); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	res := s.verifier.VerifyByHash(ctx, h1)
	if res.IsValid || res.Status != docverify.StatusRevoked {
		t.Fatalf("VerifyByHash() = %+v, want revoked", res)
	}
	if !slices.Contains(res.Errors, docverify.MsgRevoked) {
		t.Errorf("Errors = %q, want revocation", res.Errors)
	}
	if !s.store.GetStatus(ctx, h1).Exists {
		t.Error("revocation removed the local record")
	}
}

func TestIssuer_IssueFailure(t *testing.T) {
	ctx := context.Background()
	s := newIssuance(t)

	stranger, err := ledger.NewClient(s.ledger.Chain, ledger.NewAccountAddress("unverified"), docverify.NewNopLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := stranger.Initialize(ctx, s.ledger.Contract); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	issuer := docverify.NewIssuer(stranger, s.store, docverify.NewNopLogger())

	up := issuer.Upload(ctx, diploma, "diploma.pdf", metaM)
	_, err = issuer.Issue(ctx, up.Hash, docverify.IssueRequest{})
	if !errors.Is(err, docverify.ErrTransactionFailure) {
		t.Fatalf("Issue() error = %v, want transaction failure", err)
	}
	if !strings.Contains(err.Error(), ledger.ReasonOnlyVerified) {
		t.Errorf("Issue() error = %q, want ledger reason", err)
	}

	rec := s.store.GetStatus(ctx, up.Hash).Record
	if rec.Status != docverify.RecordFailed || !rec.Retryable {
		t.Errorf("record = %+v, want failed and retryable", rec)
	}
	if !strings.Contains(rec.FailureReason, ledger.ReasonOnlyVerified) {
		t.Errorf("FailureReason = %q", rec.FailureReason)
	}

	if _, err := s.issuer.Issue(ctx, "xyz", docverify.IssueRequest{}); !errors.Is(err, docverify.ErrValidation) {
		t.Errorf("Issue(malformed) error = %v, want ErrValidation", err)
	}

	t.Run("retry succeeds from a verified institution", func(t *testing.T) {
		if _, err := s.issuer.Issue(ctx, up.Hash, docverify.IssueRequest{Title: "Diploma"}); err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		rec := s.store.GetStatus(ctx, up.Hash).Record
		if rec.Status != docverify.RecordPending || !rec.BlockchainStored || rec.Retryable {
			t.Errorf("record = %+v, want pending on ledger", rec)
		}
	})
}

func TestIssueRequestFromRecord(t *testing.T) {
	rec := &docverify.DocumentRecord{
		Hash:     hashing.SHA256Hex([]byte("x")),
		FileName: "permit.pdf",
		Metadata: map[string]any{
			"recipientName":  "Grace Hopper",
			"recipientId":    "GH-1906",
			"documentType":   "permit",
			"expirationDate": "2030-06-30",
			"description":    "ignored",
		},
	}

	req, err := docverify.IssueRequestFromRecord(rec)
	if err != nil {
		t.Fatalf("IssueRequestFromRecord() error = %v", err)
	}
	if req.Title != "permit.pdf" || req.RecipientName != "Grace Hopper" || req.RecipientID != "GH-1906" || req.DocumentType != "permit" {
		t.Errorf("IssueRequestFromRecord() = %+v", req)
	}
	want := time.Date(2030, 6, 30, 0, 0, 0, 0, time.UTC)
	if req.ExpirationDate == nil || !req.ExpirationDate.Equal(want) {
		t.Errorf("ExpirationDate = %v, want %v", req.ExpirationDate, want)
	}

	rec.Metadata["expirationDate"] = "next year"
	if _, err := docverify.IssueRequestFromRecord(rec); !errors.Is(err, docverify.ErrValidation) {
		t.Errorf("IssueRequestFromRecord() error = %v, want ErrValidation", err)
	}
}

func TestVerifier_AgreesWithLedgerAtExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	tl := testutil.NewTestLedger(t, clock)
	store, _ := testutil.NewTestRecordStore(clock)
	verifier := docverify.NewVerifier(tl.Admin, store, docverify.NewNopLogger(), clock)

	hash := hashing.SHA256Hex([]byte("expiring certificate"))
	exp := clock.Now().Add(24 * time.Hour).Truncate(time.Second)
	if _, err := tl.Issuer.IssueDocument(ctx, docverify.IssueRequest{DocumentHash: hash, RecipientName: "Ada", ExpirationDate: &exp}); err != nil {
		t.Fatalf("IssueDocument() error = %v", err)
	}
	if _, err := tl.Issuer.ConfirmVerification(ctx, hash); err != nil {
		t.Fatalf("ConfirmVerification() error = %v", err)
	}

	clock.Set(exp.Add(500 * time.Millisecond))
	res := verifier.VerifyByHash(ctx, hash)
	if !res.IsValid || res.Status != docverify.StatusValid || len(res.Warnings) != 0 {
		t.Errorf("VerifyByHash() within the expiry second = valid %v, status %q, warnings %v; want valid with no warnings",
			res.IsValid, res.Status, res.Warnings)
	}

	clock.Set(exp.Add(time.Second))
	res = verifier.VerifyByHash(ctx, hash)
	if res.IsValid || res.Status != docverify.StatusExpired || len(res.Errors) != 1 {
		t.Errorf("VerifyByHash() after expiry = valid %v, status %q, errors %v; want expired", res.IsValid, res.Status, res.Errors)
	}
}
