package docverify

import "context"

// MutateFunc edits a record mapping in place and reports whether anything
// changed. Returning changed=false skips the write.
type MutateFunc func(records map[string]*DocumentRecord) (changed bool, err error)

// RecordRepository persists the whole hash -> record mapping. Keys are stored
// exactly as written, so legacy keys survive until the store migrates them.
//
// Implementations return snapshots: callers may modify what Read returns
// without affecting stored state.
type RecordRepository interface {
	// Read returns a snapshot of all records. A missing store reads as empty.
	Read(ctx context.Context) (map[string]*DocumentRecord, error)

	// Write replaces the stored mapping.
	Write(ctx context.Context, records map[string]*DocumentRecord) error

	// Mutate reads, applies fn and writes the result back if fn reports a change.
	// Read-modify-write is not guaranteed to be atomic across processes.
	Mutate(ctx context.Context, fn MutateFunc) error

	// Check verifies the store can be written. It returns an error wrapping
	// ErrStorageUnavailable otherwise.
	Check(ctx context.Context) error
}
