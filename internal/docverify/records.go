package docverify

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"docverify/internal/hashing"
)

// UnknownFileName is written by Repair when a record has no file name.
const UnknownFileName = "unknown-document"

// RecordStore is the local cache of uploaded documents, keyed by normalized
// hash. It owns legacy-key migration and record repair, and broadcasts a
// Change after every mutation.
//
// Mutating operations never return errors: failures are logged and reported
// through StoreResult / BatchResult. The whole-mapping read-modify-write is not
// locked, so every operation is written to be safe to re-run.
type RecordStore struct {
	repo   RecordRepository
	clock  Clock
	idgen  IDGenerator
	logger Logger

	subs             observers
	migrationChecked atomic.Bool
}

// NewRecordStore creates a RecordStore over repo.
func NewRecordStore(repo RecordRepository, clock Clock, idgen IDGenerator, logger Logger) *RecordStore {
	return &RecordStore{
		repo:   repo,
		clock:  clock,
		idgen:  idgen,
		logger: logger,
	}
}

// Subscribe registers obs for change notifications and returns a function
// that removes it again.
func (s *RecordStore) Subscribe(obs Observer) func() {
	return s.subs.add(obs)
}

func (s *RecordStore) notify(action ChangeAction, hash string) {
	s.subs.notify(Change{Action: action, Hash: hash, At: s.clock.Now()})
}

// GetAll returns a snapshot of every record. The first call migrates legacy
// keys if any are present. A read failure is logged and yields an empty map.
func (s *RecordStore) GetAll(ctx context.Context) map[string]*DocumentRecord {
	records, err := s.repo.Read(ctx)
	if err != nil {
		s.logger.Error("reading records failed", "error", err)
		return map[string]*DocumentRecord{}
	}

	if s.migrationChecked.CompareAndSwap(false, true) && needsMigration(records) {
		s.logger.Info("legacy record keys found, migrating")
		if res := s.Migrate(ctx); !res.OK {
			return records
		}
		records, err = s.repo.Read(ctx)
		if err != nil {
			s.logger.Error("reading records failed", "error", err)
			return map[string]*DocumentRecord{}
		}
	}
	return records
}

// Export returns every record as stored, legacy keys included. Unlike GetAll
// it reports read failures.
func (s *RecordStore) Export(ctx context.Context) (map[string]*DocumentRecord, error) {
	records, err := s.repo.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return records, nil
}

// Stats counts the current records by status.
func (s *RecordStore) Stats(ctx context.Context) Stats {
	return ComputeStats(s.GetAll(ctx))
}

// GetStatus looks hash up in any textual form. Records stored under legacy
// keys are found by scanning.
func (s *RecordStore) GetStatus(ctx context.Context, hash string) StatusResult {
	_, rec := lookup(s.GetAll(ctx), hash)
	if rec == nil {
		return StatusResult{}
	}
	return StatusResult{Exists: true, Status: rec.Status, Record: rec}
}

// StoreAsPending hashes content with metadata and records it as a local,
// pending upload with a placeholder transaction id. A record that is already
// verified or on the ledger is left alone and returned.
func (s *RecordStore) StoreAsPending(ctx context.Context, content []byte, fileName string, metadata map[string]any) StoreResult {
	hash, err := hashing.ComputeHash(content, metadata)
	if err != nil {
		s.logger.Warn("hashing upload failed", "file", fileName, "error", err)
		return failed("", fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if err := s.repo.Check(ctx); err != nil {
		s.logger.Error("record storage unavailable", "hash", hash, "error", err)
		return failed(hash, err)
	}

	var stored *DocumentRecord
	var changed bool
	err = s.repo.Mutate(ctx, func(records map[string]*DocumentRecord) (bool, error) {
		changed = false
		key, existing := lookup(records, hash)
		if existing != nil && (existing.Status == RecordVerified || existing.BlockchainStored) {
			stored = existing
			return false, nil
		}
		if key != "" && key != hash {
			delete(records, key)
		}

		rec := &DocumentRecord{
			Hash:            hash,
			FileName:        fileName,
			Timestamp:       s.clock.Now(),
			Metadata:        maps.Clone(metadata),
			TransactionHash: PlaceholderTxPrefix + s.idgen.New(),
			Status:          RecordPending,
			LocalOnly:       true,
			Retryable:       true,
		}
		records[hash] = rec
		stored = rec
		changed = true
		return true, nil
	})
	if err != nil {
		s.logger.Error("storing pending record failed", "hash", hash, "error", err)
		return failed(hash, err)
	}

	if changed {
		s.logger.Info("document stored as pending", "hash", hash, "file", fileName)
		s.notify(ActionStore, hash)
	}
	return StoreResult{OK: true, Hash: hash, Record: stored.Clone()}
}

// MarkVerified records an explicit confirmation for an existing record and
// merges data into its verification data. It never creates a record: an
// unknown hash fails with ErrNotFound. A record found under a legacy key is
// moved to the normalized key.
func (s *RecordStore) MarkVerified(ctx context.Context, hash string, data map[string]any) StoreResult {
	return s.update(ctx, "mark verified", hash, ActionVerify, func(rec *DocumentRecord) bool {
		now := s.clock.Now()
		rec.Status = RecordVerified
		rec.VerifiedAt = &now
		if rec.VerificationData == nil {
			rec.VerificationData = make(map[string]any, len(data))
		}
		maps.Copy(rec.VerificationData, data)
		rec.BlockchainStored = true
		rec.LocalOnly = false
		rec.Retryable = false
		rec.FailureReason = ""
		return true
	})
}

// MarkIssued records that the document reached the ledger under txID. An
// empty txID keeps the current transaction hash.
func (s *RecordStore) MarkIssued(ctx context.Context, hash, txID string) StoreResult {
	return s.update(ctx, "mark issued", hash, ActionStore, func(rec *DocumentRecord) bool {
		if rec.BlockchainStored && !rec.LocalOnly && (txID == "" || rec.TransactionHash == txID) {
			return false
		}
		if txID != "" {
			rec.TransactionHash = txID
		}
		if rec.Status == RecordFailed {
			rec.Status = RecordPending
		}
		rec.BlockchainStored = true
		rec.LocalOnly = false
		rec.Retryable = false
		rec.FailureReason = ""
		return true
	})
}

// MarkFailed records a failed ledger submission. Records already on the
// ledger are not downgraded.
func (s *RecordStore) MarkFailed(ctx context.Context, hash, reason string) StoreResult {
	return s.update(ctx, "mark failed", hash, ActionStore, func(rec *DocumentRecord) bool {
		if rec.BlockchainStored || rec.Status == RecordVerified {
			return false
		}
		rec.Status = RecordFailed
		rec.Retryable = true
		rec.FailureReason = reason
		return true
	})
}

// update locates an existing record, applies fn and writes it back under the
// normalized key. fn reports whether it changed anything.
func (s *RecordStore) update(ctx context.Context, op, hash string, action ChangeAction, fn func(*DocumentRecord) bool) StoreResult {
	norm := hashing.Normalize(hash)
	if !hashing.IsCanonical(norm) {
		return failed(norm, fmt.Errorf("%w: malformed hash %q", ErrValidation, hash))
	}
	if err := s.repo.Check(ctx); err != nil {
		s.logger.Error("record storage unavailable", "op", op, "hash", norm, "error", err)
		return failed(norm, err)
	}

	var updated *DocumentRecord
	var changed bool
	err := s.repo.Mutate(ctx, func(records map[string]*DocumentRecord) (bool, error) {
		changed = false
		key, rec := lookup(records, norm)
		if rec == nil {
			return false, fmt.Errorf("%w: no local record for %s", ErrNotFound, norm)
		}
		if key != norm {
			delete(records, key)
			rec.Migrated = true
			rec.OriginalKey = key
			changed = true
		}
		if rec.Hash != norm {
			rec.Hash = norm
			changed = true
		}
		if fn(rec) {
			changed = true
		}
		records[norm] = rec
		updated = rec
		return changed, nil
	})
	if err != nil {
		s.logger.Warn(op+" failed", "hash", norm, "error", err)
		return failed(norm, err)
	}

	if changed {
		s.logger.Debug(op, "hash", norm, "status", string(updated.Status))
		s.notify(action, norm)
	}
	return StoreResult{OK: true, Hash: norm, Record: updated.Clone()}
}

// Migrate moves records stored under legacy keys (prefixed or mixed case) to
// their normalized key, tagging them Migrated and keeping the old key in
// OriginalKey. When both forms exist the record with the later timestamp wins.
// A second run finds nothing to do and writes nothing.
func (s *RecordStore) Migrate(ctx context.Context) BatchResult {
	var moved int
	err := s.repo.Mutate(ctx, func(records map[string]*DocumentRecord) (bool, error) {
		moved = migrateRecords(records)
		return moved > 0, nil
	})
	if err != nil {
		s.logger.Error("migrating records failed", "error", err)
		return BatchResult{Err: err}
	}
	if moved > 0 {
		s.logger.Info("records migrated", "count", moved)
		s.notify(ActionMigrate, "")
	}
	return BatchResult{OK: true, Changed: moved}
}

func migrateRecords(records map[string]*DocumentRecord) int {
	var changed int
	for _, key := range slices.Sorted(maps.Keys(records)) {
		rec := records[key]
		if rec == nil {
			continue
		}
		norm := hashing.Normalize(key)
		if !hashing.IsCanonical(norm) {
			continue
		}
		if norm == key {
			if rec.Hash != key {
				rec.Hash = key
				changed++
			}
			continue
		}

		delete(records, key)
		rec.Hash = norm
		rec.Migrated = true
		rec.OriginalKey = key
		if existing := records[norm]; existing == nil || rec.Timestamp.After(existing.Timestamp) {
			records[norm] = rec
		}
		changed++
	}
	return changed
}

func needsMigration(records map[string]*DocumentRecord) bool {
	for key := range records {
		if norm := hashing.Normalize(key); norm != key && hashing.IsCanonical(norm) {
			return true
		}
	}
	return false
}

// Repair backfills recoverable fields of malformed records (hash from the
// key, a placeholder file name, the current time, pending status) and
// deletes records that cannot be recovered, including ones missing hash,
// file name and timestamp altogether. A valid record stored under a key that
// is not a hash moves to its own hash unless a newer record holds it.
func (s *RecordStore) Repair(ctx context.Context) BatchResult {
	if err := s.repo.Check(ctx); err != nil {
		s.logger.Error("record storage unavailable", "op", "repair", "error", err)
		return BatchResult{Err: err}
	}

	now := s.clock.Now()
	var repaired, deleted int
	err := s.repo.Mutate(ctx, func(records map[string]*DocumentRecord) (bool, error) {
		repaired, deleted = 0, 0
		for _, key := range slices.Sorted(maps.Keys(records)) {
			rec := records[key]
			if rec == nil || (rec.Hash == "" && rec.FileName == "" && rec.Timestamp.IsZero()) {
				delete(records, key)
				deleted++
				s.logger.Warn("deleted empty record", "key", key)
				continue
			}

			fixed := backfill(rec, key, now)
			if err := validateRecord(rec); err != nil {
				delete(records, key)
				deleted++
				s.logger.Warn("deleted unrecoverable record", "key", key, "error", err)
				continue
			}
			if key != rec.Hash && !hashing.IsCanonical(hashing.Normalize(key)) {
				delete(records, key)
				if existing := records[rec.Hash]; existing != nil && !rec.Timestamp.After(existing.Timestamp) {
					deleted++
					s.logger.Warn("dropped record under unusable key", "key", key, "hash", rec.Hash)
					continue
				}
				rec.OriginalKey = key
				records[rec.Hash] = rec
				fixed = true
			}
			if fixed {
				repaired++
			}
		}
		return repaired+deleted > 0, nil
	})
	if err != nil {
		s.logger.Error("repairing records failed", "error", err)
		return BatchResult{Err: err}
	}

	if repaired+deleted > 0 {
		s.logger.Info("records repaired", "repaired", repaired, "deleted", deleted)
		s.notify(ActionRepair, "")
	}
	return BatchResult{OK: true, Changed: repaired + deleted}
}

func backfill(rec *DocumentRecord, key string, now time.Time) bool {
	var fixed bool
	norm := hashing.Normalize(key)

	if h := hashing.Normalize(rec.Hash); !hashing.IsCanonical(h) {
		if hashing.IsCanonical(norm) {
			rec.Hash = norm
			fixed = true
		}
	} else if h != rec.Hash {
		rec.Hash = h
		fixed = true
	}
	if norm == key && hashing.IsCanonical(key) && rec.Hash != key {
		rec.Hash = key
		fixed = true
	}
	if rec.FileName == "" {
		rec.FileName = UnknownFileName
		fixed = true
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
		fixed = true
	}
	if !rec.Status.Valid() {
		rec.Status = RecordPending
		fixed = true
	}
	return fixed
}

func validateRecord(rec *DocumentRecord) error {
	switch {
	case !hashing.IsCanonical(rec.Hash):
		return fmt.Errorf("%w: malformed hash %q", ErrValidation, rec.Hash)
	case rec.FileName == "":
		return fmt.Errorf("%w: missing file name", ErrValidation)
	case rec.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrValidation)
	case !rec.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrValidation, rec.Status)
	}
	return nil
}

// Cleanup removes failed records and local-only pending records created
// before the cutoff. Verified and ledger-stored records are never removed.
func (s *RecordStore) Cleanup(ctx context.Context, before time.Time) BatchResult {
	if err := s.repo.Check(ctx); err != nil {
		s.logger.Error("record storage unavailable", "op", "cleanup", "error", err)
		return BatchResult{Err: err}
	}

	var removed int
	err := s.repo.Mutate(ctx, func(records map[string]*DocumentRecord) (bool, error) {
		removed = 0
		for key, rec := range records {
			if rec == nil || rec.BlockchainStored || rec.Status == RecordVerified {
				continue
			}
			stale := rec.Status == RecordFailed || (rec.Status == RecordPending && rec.LocalOnly)
			if stale && rec.Timestamp.Before(before) {
				delete(records, key)
				removed++
			}
		}
		return removed > 0, nil
	})
	if err != nil {
		s.logger.Error("cleaning up records failed", "error", err)
		return BatchResult{Err: err}
	}

	if removed > 0 {
		s.logger.Info("records cleaned up", "count", removed, "before", before.Format(time.RFC3339))
		s.notify(ActionCleanup, "")
	}
	return BatchResult{OK: true, Changed: removed}
}

// Clear removes every record.
func (s *RecordStore) Clear(ctx context.Context) BatchResult {
	if err := s.repo.Check(ctx); err != nil {
		s.logger.Error("record storage unavailable", "op", "clear", "error", err)
		return BatchResult{Err: err}
	}

	var removed int
	err := s.repo.Mutate(ctx, func(records map[string]*DocumentRecord) (bool, error) {
		removed = len(records)
		clear(records)
		return true, nil
	})
	if err != nil {
		s.logger.Error("clearing records failed", "error", err)
		return BatchResult{Err: err}
	}

	s.logger.Info("records cleared", "count", removed)
	s.notify(ActionClear, "")
	return BatchResult{OK: true, Changed: removed}
}

// Import replaces the whole mapping, as when restoring a snapshot. Legacy keys
// are kept as-is; the next GetAll migrates them.
func (s *RecordStore) Import(ctx context.Context, records map[string]*DocumentRecord) BatchResult {
	if err := s.repo.Check(ctx); err != nil {
		s.logger.Error("record storage unavailable", "op", "import", "error", err)
		return BatchResult{Err: err}
	}
	if err := s.repo.Write(ctx, CloneRecords(records)); err != nil {
		s.logger.Error("importing records failed", "error", err)
		return BatchResult{Err: err}
	}

	s.migrationChecked.Store(false)
	s.logger.Info("records imported", "count", len(records))
	s.notify(ActionStore, "")
	return BatchResult{OK: true, Changed: len(records)}
}

// lookup finds the record for hash: first under its normalized key, then by
// normalizing every stored key. It returns the key the record lives under.
func lookup(records map[string]*DocumentRecord, hash string) (string, *DocumentRecord) {
	norm := hashing.Normalize(hash)
	if norm == "" {
		return "", nil
	}
	if rec := records[norm]; rec != nil {
		return norm, rec
	}
	for _, key := range slices.Sorted(maps.Keys(records)) {
		if rec := records[key]; rec != nil && hashing.Normalize(key) == norm {
			return key, rec
		}
	}
	return "", nil
}
