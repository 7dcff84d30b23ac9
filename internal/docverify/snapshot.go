package docverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SnapshotService seals the record mapping and keeps a copy in every
// configured vault. Snapshot versions increase by one per push across all
// vaults.
type SnapshotService struct {
	records    *RecordStore
	vaults     []Vault
	encryptor  Encryptor
	instanceID string
	logger     Logger
}

// PullResult summarizes a restored snapshot.
type PullResult struct {
	Version  int64
	Imported int
	Migrated int
	Repaired int
}

// NewSnapshotService creates a SnapshotService. At least one vault is required.
func NewSnapshotService(records *RecordStore, vaults []Vault, encryptor Encryptor, instanceID string, logger Logger) (*SnapshotService, error) {
	if len(vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	return &SnapshotService{
		records:    records,
		vaults:     vaults,
		encryptor:  encryptor,
		instanceID: instanceID,
		logger:     logger,
	}, nil
}

// LatestVersion returns the highest snapshot version held by any vault and
// the index of that vault.
func (s *SnapshotService) LatestVersion(ctx context.Context) (int64, int, error) {
	var latest int64
	idx := 0
	for i, v := range s.vaults {
		version, err := v.SnapshotVersion(ctx, s.instanceID)
		if err != nil {
			return 0, 0, fmt.Errorf("reading snapshot version: %w", err)
		}
		if version > latest {
			latest, idx = version, i
		}
	}
	return latest, idx, nil
}

// Push seals the current records and uploads them to every vault under the
// next version.
func (s *SnapshotService) Push(ctx context.Context) (int64, error) {
	records, err := s.records.Export(ctx)
	if err != nil {
		return 0, err
	}
	plain, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding records: %w", err)
	}

	var sealed bytes.Buffer
	if err := s.encryptor.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
		return 0, fmt.Errorf("sealing snapshot: %w", err)
	}

	latest, _, err := s.LatestVersion(ctx)
	if err != nil {
		return 0, err
	}
	version := latest + 1
	data := sealed.Bytes()

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range s.vaults {
		g.Go(func() error {
			return v.PutSnapshot(gctx, s.instanceID, bytes.NewReader(data), int64(len(data)), version)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("uploading snapshot: %w", err)
	}

	s.logger.Info("snapshot pushed", "version", version, "records", len(records), "vaults", len(s.vaults))
	return version, nil
}

// Pull downloads the newest snapshot, opens it with dc and replaces the local
// records with it. The imported mapping is migrated and repaired.
func (s *SnapshotService) Pull(ctx context.Context, dc DecryptionContext) (*PullResult, error) {
	version, idx, err := s.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: no snapshot for instance %s", ErrNotFound, s.instanceID)
	}

	var sealed bytes.Buffer
	if err := s.vaults[idx].GetSnapshot(ctx, s.instanceID, &sealed); err != nil {
		return nil, fmt.Errorf("downloading snapshot: %w", err)
	}
	var plain bytes.Buffer
	if err := dc.Decrypt(&sealed, &plain); err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(plain.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %v", ErrValidation, err)
	}
	records := make(map[string]*DocumentRecord, len(raw))
	for key, msg := range raw {
		rec, err := DecodeRecord(msg)
		if err != nil {
			s.logger.Warn("undecodable snapshot record fields", "key", key, "error", err)
		}
		records[key] = rec
	}

	imported := s.records.Import(ctx, records)
	if !imported.OK {
		return nil, imported.Err
	}
	res := &PullResult{Version: version, Imported: imported.Changed}
	if m := s.records.Migrate(ctx); m.OK {
		res.Migrated = m.Changed
	}
	if r := s.records.Repair(ctx); r.OK {
		res.Repaired = r.Changed
	}

	s.logger.Info("snapshot pulled", "version", version, "records", res.Imported, "migrated", res.Migrated, "repaired", res.Repaired)
	return res, nil
}
