package docverify_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"docverify/internal/docverify"
	"docverify/internal/hashing"
	"docverify/internal/testutil"
)

type statusCounter struct {
	seen []docverify.DocumentStatus
}

func (c *statusCounter) ObserveVerification(s docverify.DocumentStatus) {
	c.seen = append(c.seen, s)
}

func ledgerTuple(hash string, active, verified, valid bool) *docverify.LedgerRecord {
	return &docverify.LedgerRecord{
		DocumentHash:  hashing.ToLedger(hash),
		Issuer:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		IssuerName:    "Test University",
		DocumentType:  "diploma",
		Title:         "Bachelor of Science",
		RecipientName: "Ada Lovelace",
		IssuanceDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		IsActive:      active,
		IsVerified:    verified,
		IsValid:       valid,
	}
}

func newVerifier(fake *testutil.FakeLedger, store *docverify.RecordStore, clock docverify.Clock) *docverify.Verifier {
	return docverify.NewVerifier(fake, store, docverify.NewNopLogger(), clock)
}

func TestVerifier_VerifyByHash(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	h := hashing.SHA256Hex([]byte("document"))
	expired := clock.Now().Add(-5 * 24 * time.Hour)

	withExpiry := func(rec *docverify.LedgerRecord, exp time.Time) *docverify.LedgerRecord {
		rec.ExpirationDate = exp.Unix()
		return rec
	}

	tests := []struct {
		name         string
		record       *docverify.LedgerRecord
		queryErr     error
		wantValid    bool
		wantStatus   docverify.DocumentStatus
		wantErrors   []string
		wantWarnings []string
		wantOnLedger bool
	}{
		{
			name:       "not found",
			wantStatus: docverify.StatusNotFound,
			wantErrors: []string{docverify.MsgNotFound},
		},
		{
			name:       "ledger unreachable",
			queryErr:   errors.New("connection refused"),
			wantStatus: docverify.StatusNotFound,
			wantErrors: []string{"Failed to query the blockchain: connection refused"},
		},
		{
			name:         "valid",
			record:       ledgerTuple(h, true, true, true),
			wantValid:    true,
			wantStatus:   docverify.StatusValid,
			wantOnLedger: true,
		},
		{
			name:         "issued but unconfirmed",
			record:       ledgerTuple(h, true, false, true),
			wantValid:    true,
			wantStatus:   docverify.StatusPending,
			wantWarnings: []string{docverify.MsgUnconfirmed},
			wantOnLedger: true,
		},
		{
			name:         "revoked",
			record:       ledgerTuple(h, false, true, false),
			wantStatus:   docverify.StatusRevoked,
			wantErrors:   []string{docverify.MsgRevoked},
			wantWarnings: []string{docverify.MsgInactive},
			wantOnLedger: true,
		},
		{
			name:         "revoked and expired reports revocation",
			record:       withExpiry(ledgerTuple(h, false, true, false), expired),
			wantStatus:   docverify.StatusRevoked,
			wantErrors:   []string{docverify.MsgRevoked},
			wantWarnings: []string{docverify.MsgInactive},
			wantOnLedger: true,
		},
		{
			name:         "expired",
			record:       withExpiry(ledgerTuple(h, true, true, false), expired),
			wantStatus:   docverify.StatusExpired,
			wantErrors:   []string{"This document expired on 2024-01-10."},
			wantOnLedger: true,
		},
		{
			name:         "ledger flag valid overrides derived expiry",
			record:       withExpiry(ledgerTuple(h, true, true, true), expired),
			wantValid:    true,
			wantStatus:   docverify.StatusValid,
			wantWarnings: []string{"This document expired on 2024-01-10."},
			wantOnLedger: true,
		},
		{
			name:         "ledger flag invalid without derived reason",
			record:       ledgerTuple(h, true, true, false),
			wantStatus:   docverify.StatusValid,
			wantErrors:   []string{docverify.MsgLedgerFlag},
			wantOnLedger: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeLedger()
			fake.Err = tt.queryErr
			if tt.record != nil {
				fake.Records[h] = tt.record
			}
			counter := &statusCounter{}
			v := newVerifier(fake, nil, clock).WithRecorder(counter)

			res := v.VerifyByHash(ctx, h)

			if res.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", res.IsValid, tt.wantValid)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", res.Status, tt.wantStatus)
			}
			if !slices.Equal(res.Errors, nonNil(tt.wantErrors)) {
				t.Errorf("Errors = %q, want %q", res.Errors, tt.wantErrors)
			}
			if !slices.Equal(res.Warnings, nonNil(tt.wantWarnings)) {
				t.Errorf("Warnings = %q, want %q", res.Warnings, tt.wantWarnings)
			}
			if res.BlockchainConfirmed != tt.wantOnLedger {
				t.Errorf("BlockchainConfirmed = %v, want %v", res.BlockchainConfirmed, tt.wantOnLedger)
			}
			if (res.Document != nil) != tt.wantOnLedger {
				t.Errorf("Document = %+v, want present=%v", res.Document, tt.wantOnLedger)
			}
			if !slices.Equal(counter.seen, []docverify.DocumentStatus{tt.wantStatus}) {
				t.Errorf("recorded statuses = %v", counter.seen)
			}
		})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func TestVerifier_VerifyByHash_Normalization(t *testing.T) {
	ctx := context.Background()
	h := hashing.SHA256Hex([]byte("document"))
	fake := testutil.NewFakeLedger()
	fake.Records[h] = ledgerTuple(h, true, true, true)
	v := newVerifier(fake, nil, testutil.FixedClock())

	res := v.VerifyByHash(ctx, "  "+hashing.ToLedger(h)+"\n")
	if !res.IsValid || res.Hash != h {
		t.Fatalf("VerifyByHash() = %+v", res)
	}
	if res.Document.DocumentHash != h {
		t.Errorf("Document.DocumentHash = %q, want %q", res.Document.DocumentHash, h)
	}
	if q := fake.Queries(); len(q) != 1 || q[0] != hashing.ToLedger(h) {
		t.Errorf("ledger queried with %v, want ledger form", q)
	}

	bad := v.VerifyByHash(ctx, "0xnothex")
	if bad.IsValid || len(bad.Errors) != 1 || bad.BlockchainConfirmed {
		t.Errorf("VerifyByHash(malformed) = %+v", bad)
	}
	if len(fake.Queries()) != 1 {
		t.Error("malformed hash reached the ledger")
	}
}

func TestVerifier_ReconcilesLocalRecord(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()

	t.Run("confirmed on ledger marks local verified", func(t *testing.T) {
		store, _ := testutil.NewTestRecordStore(clock)
		stored := store.StoreAsPending(ctx, diploma, "diploma.pdf", metaM)
		fake := testutil.NewFakeLedger()
		fake.Records[stored.Hash] = ledgerTuple(stored.Hash, true, true, true)

		newVerifier(fake, store, clock).VerifyByHash(ctx, stored.Hash)

		status := store.GetStatus(ctx, stored.Hash)
		if status.Status != docverify.RecordVerified || status.Record.VerificationData["source"] != "ledger" {
			t.Errorf("local record = %+v, want verified from ledger", status.Record)
		}
	})

	t.Run("unconfirmed on ledger marks local issued", func(t *testing.T) {
		store, _ := testutil.NewTestRecordStore(clock)
		stored := store.StoreAsPending(ctx, diploma, "diploma.pdf", metaM)
		fake := testutil.NewFakeLedger()
		fake.Records[stored.Hash] = ledgerTuple(stored.Hash, true, false, true)

		newVerifier(fake, store, clock).VerifyByHash(ctx, stored.Hash)

		rec := store.GetStatus(ctx, stored.Hash).Record
		if rec.Status != docverify.RecordPending || !rec.BlockchainStored || rec.LocalOnly {
			t.Errorf("local record = %+v, want pending and ledger-stored", rec)
		}
	})

	t.Run("local record never affects validity", func(t *testing.T) {
		store, _ := testutil.NewTestRecordStore(clock)
		stored := store.StoreAsPending(ctx, diploma, "diploma.pdf", metaM)
		store.MarkVerified(ctx, stored.Hash, nil)

		res := newVerifier(testutil.NewFakeLedger(), store, clock).VerifyByHash(ctx, stored.Hash)
		if res.IsValid || res.Status != docverify.StatusNotFound {
			t.Errorf("VerifyByHash() = %+v, want not found despite verified local record", res)
		}
	})

	t.Run("no record is created for ledger-only documents", func(t *testing.T) {
		store, _ := testutil.NewTestRecordStore(clock)
		h := hashing.SHA256Hex([]byte("ledger only"))
		fake := testutil.NewFakeLedger()
		fake.Records[h] = ledgerTuple(h, true, true, true)

		newVerifier(fake, store, clock).VerifyByHash(ctx, h)

		if got := len(store.GetAll(ctx)); got != 0 {
			t.Errorf("GetAll() returned %d records, want 0", got)
		}
	})
}

func TestVerifier_VerifyByFile(t *testing.T) {
	ctx := context.Background()
	h, err := hashing.ComputeHash(diploma, metaM)
	if err != nil {
		t.Fatalf("ComputeHash() error = %v", err)
	}
	fake := testutil.NewFakeLedger()
	fake.Records[h] = ledgerTuple(h, true, true, true)
	v := newVerifier(fake, nil, testutil.FixedClock())

	if res := v.VerifyByFile(ctx, diploma, "diploma.pdf", metaM); !res.IsValid {
		t.Errorf("VerifyByFile() with issuer metadata = %+v, want valid", res)
	}
	res := v.VerifyByFile(ctx, diploma, "diploma.pdf", metaM2)
	if res.IsValid || !slices.Equal(res.Errors, []string{docverify.MsgNotFound}) {
		t.Errorf("VerifyByFile() with other metadata = %+v, want not found", res)
	}

	bad := v.VerifyByFile(ctx, diploma, "diploma.pdf", map[string]any{"c": make(chan int)})
	if bad.IsValid || len(bad.Errors) != 1 {
		t.Errorf("VerifyByFile() with bad metadata = %+v", bad)
	}
}

func TestVerifier_VerifyMany(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeLedger()
	var hashes []string
	for i := range 10 {
		h := hashing.SHA256Hex([]byte{byte(i)})
		hashes = append(hashes, h)
		if i%2 == 0 {
			fake.Records[h] = ledgerTuple(h, true, true, true)
		}
	}

	results := newVerifier(fake, nil, testutil.FixedClock()).WithConcurrency(3).VerifyMany(ctx, hashes)

	if len(results) != len(hashes) {
		t.Fatalf("VerifyMany() returned %d results, want %d", len(results), len(hashes))
	}
	for i, res := range results {
		if res.Hash != hashes[i] {
			t.Errorf("results[%d].Hash = %s, want %s", i, res.Hash, hashes[i])
		}
		if res.IsValid != (i%2 == 0) {
			t.Errorf("results[%d].IsValid = %v", i, res.IsValid)
		}
	}
}

func TestDiagnose(t *testing.T) {
	content := []byte("Transcript\r\n")
	meta := map[string]any{"title": "Transcript", "uploadedAt": "2024-01-15T10:30:00Z"}

	t.Run("canonical match", func(t *testing.T) {
		expected, _ := hashing.ComputeHash(content, meta)
		report := docverify.Diagnose(content, meta, hashing.ToLedger(expected))
		if label, ok := report.Match(); !ok || label != "canonical" {
			t.Errorf("Match() = %q, %v, want canonical", label, ok)
		}
		if len(report.Attempts) != len(hashing.Variants()) {
			t.Errorf("len(Attempts) = %d, want every variant", len(report.Attempts))
		}
	})

	t.Run("issuer hashed without volatile keys", func(t *testing.T) {
		expected, _ := hashing.ComputeHash(content, map[string]any{"title": "Transcript"})
		v := docverify.NewVerifier(testutil.NewFakeLedger(), nil, docverify.NewNopLogger(), testutil.FixedClock())
		report := v.Diagnose(content, meta, expected)
		if label, ok := report.Match(); !ok || label != "without-volatile-keys" {
			t.Errorf("Match() = %q, %v, want without-volatile-keys", label, ok)
		}
	})

	t.Run("no match", func(t *testing.T) {
		report := docverify.Diagnose(content, meta, hashing.SHA256Hex([]byte("other")))
		if _, ok := report.Match(); ok {
			t.Errorf("Match() found %v, want none", report.Matched)
		}
		for _, a := range report.Attempts {
			if a.Match {
				t.Errorf("attempt %s marked as match", a.Label)
			}
		}
	})
}
