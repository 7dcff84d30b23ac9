package testutil

import (
	"context"
	"sync"
	"testing"

	"docverify/internal/docverify"
	"docverify/internal/hashing"
	"docverify/internal/ledger"
)

// TestLedger is an in-memory ledger with a deployed contract and one
// verified institution.
type TestLedger struct {
	Chain    *ledger.Chain
	Contract string
	Admin    *ledger.Client
	Issuer   *ledger.Client
}

// NewTestLedger deploys a contract, registers "Test University" as an
// institution and verifies it.
func NewTestLedger(t *testing.T, clock docverify.Clock) *TestLedger {
	t.Helper()
	ctx := context.Background()
	logger := docverify.NewNopLogger()

	chain := ledger.NewChain(ledger.NewMemoryState(), clock, NewStubIDGenerator(), logger)
	admin := ledger.NewAccountAddress("test-admin")
	contract, _, err := chain.Deploy(ctx, admin)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	client := func(account string) *ledger.Client {
		c, err := ledger.NewClient(chain, account, logger)
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if err := c.Initialize(ctx, contract); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		return c
	}

	tl := &TestLedger{
		Chain:    chain,
		Contract: contract,
		Admin:    client(admin),
		Issuer:   client(ledger.NewAccountAddress("test-university")),
	}
	if _, err := tl.Issuer.RegisterInstitution(ctx, "Test University", "TU-001", "registrar@test.edu"); err != nil {
		t.Fatalf("RegisterInstitution() error = %v", err)
	}
	if _, err := tl.Admin.VerifyInstitution(ctx, tl.Issuer.Account()); err != nil {
		t.Fatalf("VerifyInstitution() error = %v", err)
	}
	return tl
}

// FakeLedger is a LedgerReader returning canned tuples keyed by normalized
// hash. Err, when set, is returned for every query.
type FakeLedger struct {
	Records map[string]*docverify.LedgerRecord
	Err     error

	mu      sync.Mutex
	queries []string
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{Records: make(map[string]*docverify.LedgerRecord)}
}

func (f *FakeLedger) QueryDocument(_ context.Context, hash string) (*docverify.LedgerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, hash)
	if f.Err != nil {
		return nil, f.Err
	}
	rec, ok := f.Records[hashing.Normalize(hash)]
	if !ok {
		return nil, docverify.ErrNotFound
	}
	c := *rec
	return &c, nil
}

// Queries returns the hashes queried so far, as sent.
func (f *FakeLedger) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
