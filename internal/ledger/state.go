// Package ledger is a single-process development ledger: a document registry
// contract with institutions, issuance, confirmation and revocation, and a
// client that implements docverify.LedgerClient against it.
//
// State lives behind StateStore. Every state change is applied through one
// Commit, which assigns the next block number and records the transaction and
// its events atomically.
package ledger

import (
	"context"

	"docverify/internal/docverify"
)

// Contract is a deployed registry contract.
type Contract struct {
	Address    string
	Admin      string
	DeployedAt int64
}

// Institution is an issuer account known to a contract.
type Institution struct {
	Contract           string
	Address            string
	Name               string
	RegistrationNumber string
	Contact            string
	Verified           bool
	RegisteredAt       int64
}

// Transaction is an included transaction.
type Transaction struct {
	ID       string
	Contract string
	Block    uint64
	From     string
	Method   string
	Cost     uint64
	At       int64
}

// Event is a log entry emitted by a transaction.
type Event struct {
	Block    uint64
	TxID     string
	Contract string
	Name     string
	// Subject is the document hash or institution address the event is about.
	Subject string
}

// Commit is one atomic state transition. Nil members are left unchanged.
type Commit struct {
	Tx          Transaction
	Contract    *Contract
	Institution *Institution
	// Document is stored under (Tx.Contract, Document.DocumentHash).
	Document *docverify.LedgerRecord
	Events   []Event
}

// StateStore persists ledger state. Lookups return nil, nil when nothing is
// stored under the key.
type StateStore interface {
	Contract(ctx context.Context, address string) (*Contract, error)
	Institution(ctx context.Context, contract, address string) (*Institution, error)
	Document(ctx context.Context, contract, hash string) (*docverify.LedgerRecord, error)
	Transaction(ctx context.Context, id string) (*Transaction, error)

	// Events returns the events of a contract in block order. An empty name
	// matches every event.
	Events(ctx context.Context, contract, name string) ([]Event, error)

	// Commit applies c, assigning Tx.Block (and the block of every event) as
	// the last block plus one. It returns the assigned block.
	Commit(ctx context.Context, c *Commit) (uint64, error)

	Close() error
}
