package ledger

import (
	"context"
	"sync"

	"docverify/internal/docverify"
)

// MemoryState is an in-memory StateStore. Safe for concurrent use.
type MemoryState struct {
	mu           sync.RWMutex
	block        uint64
	contracts    map[string]Contract
	institutions map[string]Institution            // contract/address
	documents    map[string]docverify.LedgerRecord // contract/hash
	transactions map[string]Transaction
	events       []Event
}

var _ StateStore = (*MemoryState)(nil)

// NewMemoryState creates an empty in-memory ledger state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		contracts:    make(map[string]Contract),
		institutions: make(map[string]Institution),
		documents:    make(map[string]docverify.LedgerRecord),
		transactions: make(map[string]Transaction),
	}
}

func scoped(contract, key string) string {
	return contract + "/" + key
}

func (m *MemoryState) Contract(_ context.Context, address string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[address]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryState) Institution(_ context.Context, contract, address string) (*Institution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.institutions[scoped(contract, address)]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

func (m *MemoryState) Document(_ context.Context, contract, hash string) (*docverify.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[scoped(contract, hash)]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m *MemoryState) Transaction(_ context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *MemoryState) Events(_ context.Context, contract, name string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Contract == contract && (name == "" || e.Name == name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryState) Commit(_ context.Context, c *Commit) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.block++
	c.Tx.Block = m.block
	m.transactions[c.Tx.ID] = c.Tx

	if c.Contract != nil {
		m.contracts[c.Contract.Address] = *c.Contract
	}
	if c.Institution != nil {
		m.institutions[scoped(c.Institution.Contract, c.Institution.Address)] = *c.Institution
	}
	if c.Document != nil {
		m.documents[scoped(c.Tx.Contract, c.Document.DocumentHash)] = *c.Document
	}
	for _, e := range c.Events {
		e.Block = m.block
		e.TxID = c.Tx.ID
		e.Contract = c.Tx.Contract
		m.events = append(m.events, e)
	}
	return m.block, nil
}

func (m *MemoryState) Close() error { return nil }
