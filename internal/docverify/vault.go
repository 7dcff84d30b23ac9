package docverify

import (
	"context"
	"io"
)

// Vault stores sealed record snapshots, one current snapshot per instance.
type Vault interface {
	// PutSnapshot replaces the snapshot of instanceID. size is the number of
	// bytes that will be read from r; version is stored alongside it.
	PutSnapshot(ctx context.Context, instanceID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the snapshot of instanceID to w. It returns an error
	// wrapping ErrNotFound when none has been stored.
	GetSnapshot(ctx context.Context, instanceID string, w io.Writer) error

	// SnapshotVersion returns the stored version, or 0 if there is none.
	SnapshotVersion(ctx context.Context, instanceID string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
