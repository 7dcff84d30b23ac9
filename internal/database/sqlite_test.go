package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"docverify/internal/database"
	"docverify/internal/docverify"
	"docverify/internal/hashing"
	"docverify/internal/ledger"
	"docverify/internal/testutil"
)

func newTestState(t *testing.T) *database.SQLiteState {
	t.Helper()
	state, err := database.NewSQLiteState(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteState() error = %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return state
}

func TestSQLiteState_Lookups(t *testing.T) {
	ctx := context.Background()
	state := newTestState(t)

	t.Run("missing entries are nil", func(t *testing.T) {
		if c, err := state.Contract(ctx, "0xnone"); err != nil || c != nil {
			t.Errorf("Contract() = %v, %v, want nil, nil", c, err)
		}
		if inst, err := state.Institution(ctx, "0xnone", "0xa"); err != nil || inst != nil {
			t.Errorf("Institution() = %v, %v, want nil, nil", inst, err)
		}
		if doc, err := state.Document(ctx, "0xnone", "0xH"); err != nil || doc != nil {
			t.Errorf("Document() = %v, %v, want nil, nil", doc, err)
		}
		if tx, err := state.Transaction(ctx, "tx"); err != nil || tx != nil {
			t.Errorf("Transaction() = %v, %v, want nil, nil", tx, err)
		}
	})

	t.Run("commit assigns consecutive blocks", func(t *testing.T) {
		contract := &ledger.Contract{Address: "0xC", Admin: "0xA", DeployedAt: 100}
		c1 := &ledger.Commit{
			Tx:       ledger.Transaction{ID: "tx-1", Contract: "0xC", From: "0xA", Method: "deploy", Cost: 10, At: 100},
			Contract: contract,
		}
		b1, err := state.Commit(ctx, c1)
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if b1 != 1 || c1.Tx.Block != 1 {
			t.Errorf("Commit() block = %d (tx %d), want 1", b1, c1.Tx.Block)
		}

		doc := &docverify.LedgerRecord{DocumentHash: "0xH", Issuer: "0xI", IssuanceDate: 100, IsActive: true}
		c2 := &ledger.Commit{
			Tx:          ledger.Transaction{ID: "tx-2", Contract: "0xC", From: "0xI", Method: "issueDocument", Cost: 20, At: 101},
			Institution: &ledger.Institution{Contract: "0xC", Address: "0xI", Name: "Uni", Verified: true, RegisteredAt: 99},
			Document:    doc,
			Events:      []ledger.Event{{Name: docverify.EventDocumentIssued, Subject: "0xH"}},
		}
		b2, err := state.Commit(ctx, c2)
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if b2 != 2 {
			t.Errorf("Commit() block = %d, want 2", b2)
		}

		gotContract, err := state.Contract(ctx, "0xC")
		if err != nil || *gotContract != *contract {
			t.Errorf("Contract() = %+v, %v, want %+v", gotContract, err, contract)
		}
		inst, err := state.Institution(ctx, "0xC", "0xI")
		if err != nil || !inst.Verified || inst.Name != "Uni" {
			t.Errorf("Institution() = %+v, %v", inst, err)
		}
		gotDoc, err := state.Document(ctx, "0xC", "0xH")
		if err != nil || *gotDoc != *doc {
			t.Errorf("Document() = %+v, %v, want %+v", gotDoc, err, doc)
		}
		tx, err := state.Transaction(ctx, "tx-2")
		if err != nil || tx.Block != 2 || tx.Method != "issueDocument" || tx.Cost != 20 {
			t.Errorf("Transaction() = %+v, %v", tx, err)
		}
		events, err := state.Events(ctx, "0xC", "")
		if err != nil || len(events) != 1 || events[0].Block != 2 || events[0].TxID != "tx-2" {
			t.Errorf("Events() = %+v, %v", events, err)
		}
	})

	t.Run("failed commit leaves no trace", func(t *testing.T) {
		bad := &ledger.Commit{
			Tx:          ledger.Transaction{ID: "tx-3", Contract: "0xmissing", From: "0xI", Method: "registerInstitution"},
			Institution: &ledger.Institution{Contract: "0xmissing", Address: "0xI", Name: "Ghost"},
		}
		if _, err := state.Commit(ctx, bad); err == nil {
			t.Fatal("Commit() for an unknown contract succeeded")
		}
		if tx, _ := state.Transaction(ctx, "tx-3"); tx != nil {
			t.Errorf("rolled back transaction is visible: %+v", tx)
		}
	})
}

func TestSQLiteState_DrivesChain(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	clock := testutil.FixedClock()
	admin := ledger.NewAccountAddress("admin")
	issuerAccount := ledger.NewAccountAddress("university")
	hash := hashing.SHA256Hex([]byte("diploma"))

	state, err := database.NewSQLiteState(path)
	if err != nil {
		t.Fatalf("NewSQLiteState() error = %v", err)
	}
	chain := ledger.NewChain(state, clock, testutil.NewStubIDGenerator(), docverify.NewNopLogger())
	contract, _, err := chain.Deploy(ctx, admin)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	client := func(chain *ledger.Chain, account string) *ledger.Client {
		t.Helper()
		c, err := ledger.NewClient(chain, account, docverify.NewNopLogger())
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if err := c.Initialize(ctx, contract); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		return c
	}

	issuer := client(chain, issuerAccount)
	if _, err := issuer.RegisterInstitution(ctx, "State University", "SU-1", ""); err != nil {
		t.Fatalf("RegisterInstitution() error = %v", err)
	}
	if _, err := client(chain, admin).VerifyInstitution(ctx, issuerAccount); err != nil {
		t.Fatalf("VerifyInstitution() error = %v", err)
	}
	if _, err := issuer.IssueDocument(ctx, docverify.IssueRequest{DocumentHash: hash, RecipientName: "Ada"}); err != nil {
		t.Fatalf("IssueDocument() error = %v", err)
	}
	if _, err := issuer.ConfirmVerification(ctx, hash); err != nil {
		t.Fatalf("ConfirmVerification() error = %v", err)
	}
	if err := state.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := database.NewSQLiteState(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()
	reader := client(ledger.NewChain(reopened, clock, testutil.NewStubIDGenerator(), docverify.NewNopLogger()), ledger.NewAccountAddress("anyone"))

	doc, err := reader.QueryDocument(ctx, hash)
	if err != nil {
		t.Fatalf("QueryDocument() error = %v", err)
	}
	if !doc.IsActive || !doc.IsVerified || !doc.IsValid || doc.RecipientName != "Ada" || doc.IssuerName != "State University" {
		t.Errorf("QueryDocument() after reopen = %+v", doc)
	}

	events, err := reader.Events(ctx, "")
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 4 {
		t.Errorf("len(Events()) = %d, want 4", len(events))
	}
}
