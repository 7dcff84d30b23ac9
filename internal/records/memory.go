package records

import (
	"context"
	"sync"

	"docverify/internal/docverify"
)

// MemoryRepository keeps records in process memory. Read and Write copy, so
// callers never share state with the repository.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*docverify.DocumentRecord
	// unavailable makes Check fail, to exercise storage failure paths.
	unavailable bool
}

var _ docverify.RecordRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*docverify.DocumentRecord)}
}

func (r *MemoryRepository) Read(_ context.Context) (map[string]*docverify.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return docverify.CloneRecords(r.records), nil
}

func (r *MemoryRepository) Write(_ context.Context, records map[string]*docverify.DocumentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return docverify.ErrStorageUnavailable
	}
	r.records = docverify.CloneRecords(records)
	return nil
}

// Mutate holds the repository lock for the whole read-modify-write.
func (r *MemoryRepository) Mutate(_ context.Context, fn docverify.MutateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return docverify.ErrStorageUnavailable
	}

	working := docverify.CloneRecords(r.records)
	changed, err := fn(working)
	if err != nil {
		return err
	}
	if changed {
		r.records = working
	}
	return nil
}

func (r *MemoryRepository) Check(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return docverify.ErrStorageUnavailable
	}
	return nil
}

// SetUnavailable toggles simulated storage failure.
func (r *MemoryRepository) SetUnavailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = v
}

// Put stores rec under key verbatim, bypassing normalization. Used to seed
// legacy or malformed records.
func (r *MemoryRepository) Put(key string, rec *docverify.DocumentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = rec.Clone()
}
