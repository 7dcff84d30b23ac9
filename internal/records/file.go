package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"docverify/internal/docverify"
)

// FileRepository stores the mapping as a single JSON object on disk:
// normalized hash keys, DocumentRecord values. Writes are atomic (temp file +
// rename). A missing file reads as an empty mapping.
type FileRepository struct {
	path   string
	logger docverify.Logger

	// mu serializes Mutate within one process only.
	mu sync.Mutex
}

var _ docverify.RecordRepository = (*FileRepository)(nil)

// NewFileRepository creates a repository backed by the file at path. The
// parent directory is created if needed.
func NewFileRepository(path string, logger docverify.Logger) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	return &FileRepository{path: path, logger: logger}, nil
}

// Path returns the records file location.
func (r *FileRepository) Path() string {
	return r.path
}

func (r *FileRepository) Read(_ context.Context) (map[string]*docverify.DocumentRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*docverify.DocumentRecord{}, nil
		}
		return nil, fmt.Errorf("reading records file: %w", err)
	}
	return decodeRecords(data, r.logger)
}

func (r *FileRepository) Write(_ context.Context, records map[string]*docverify.DocumentRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	return r.writeAtomic(data)
}

func (r *FileRepository) Mutate(ctx context.Context, fn docverify.MutateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.Read(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.Write(ctx, records)
}

// Check verifies the records directory accepts new files.
func (r *FileRepository) Check(_ context.Context) error {
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".check-*")
	if err != nil {
		return fmt.Errorf("%w: %v", docverify.ErrStorageUnavailable, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}

func (r *FileRepository) writeAtomic(data []byte) error {
	dir := filepath.Dir(r.path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", docverify.ErrStorageUnavailable, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync records: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// decodeRecords parses the on-disk mapping. Fields that do not decode are
// left empty so Repair can backfill or drop the record.
func decodeRecords(data []byte, logger docverify.Logger) (map[string]*docverify.DocumentRecord, error) {
	records := make(map[string]*docverify.DocumentRecord)
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	for key, msg := range raw {
		rec, err := docverify.DecodeRecord(msg)
		if err != nil {
			logger.Warn("undecodable record fields", "key", key, "error", err)
		}
		records[key] = rec
	}
	return records, nil
}
