package testutil

import (
	"sync"

	"docverify/internal/docverify"
	"docverify/internal/records"
)

// NewTestRecordStore creates a RecordStore over a fresh in-memory repository.
// The repository is returned so tests can seed legacy records or simulate
// storage failure.
func NewTestRecordStore(clock docverify.Clock) (*docverify.RecordStore, *records.MemoryRepository) {
	repo := records.NewMemoryRepository()
	store := docverify.NewRecordStore(repo, clock, NewStubIDGenerator(), docverify.NewNopLogger())
	return store, repo
}

// ChangeRecorder is an Observer that keeps every change it receives.
type ChangeRecorder struct {
	mu      sync.Mutex
	changes []docverify.Change
}

func (r *ChangeRecorder) RecordChanged(c docverify.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// Changes returns the changes received so far.
func (r *ChangeRecorder) Changes() []docverify.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]docverify.Change(nil), r.changes...)
}

// Actions returns just the action of each change received so far.
func (r *ChangeRecorder) Actions() []docverify.ChangeAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]docverify.ChangeAction, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Action
	}
	return out
}
