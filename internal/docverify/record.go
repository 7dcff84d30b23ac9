// Package docverify holds the document verification core: the local record
// store, status derivation from ledger fields, and the verifier that combines
// them. Persistence and the ledger itself are reached through interfaces.
package docverify

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// RecordStatus is the local lifecycle state of a DocumentRecord.
type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordVerified RecordStatus = "verified"
	RecordFailed   RecordStatus = "failed"
)

// Valid reports whether s is one of the enumerated record states.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordPending, RecordVerified, RecordFailed:
		return true
	}
	return false
}

// PlaceholderTxPrefix marks transaction ids generated locally before a
// document reaches the ledger.
const PlaceholderTxPrefix = "local-"

// DocumentRecord is the locally cached view of an uploaded document. It is
// never consulted to decide validity; the ledger is.
type DocumentRecord struct {
	Hash             string         `json:"hash"`
	FileName         string         `json:"fileName"`
	Timestamp        time.Time      `json:"timestamp"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	TransactionHash  string         `json:"transactionHash"`
	Status           RecordStatus   `json:"status"`
	BlockchainStored bool           `json:"blockchainStored"`
	LocalOnly        bool           `json:"localOnly"`
	Retryable        bool           `json:"retryable"`
	VerifiedAt       *time.Time     `json:"verifiedAt,omitempty"`
	VerificationData map[string]any `json:"verificationData,omitempty"`

	// Set when the record was relocated from a legacy (prefixed or mixed-case) key.
	Migrated    bool   `json:"migrated,omitempty"`
	OriginalKey string `json:"originalKey,omitempty"`

	FailureReason string `json:"failureReason,omitempty"`
}

// Clone returns a copy that shares no maps or pointers with r.
func (r *DocumentRecord) Clone() *DocumentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Metadata = maps.Clone(r.Metadata)
	c.VerificationData = maps.Clone(r.VerificationData)
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}

// HasPlaceholderTx reports whether the transaction hash was generated locally.
func (r *DocumentRecord) HasPlaceholderTx() bool {
	return strings.HasPrefix(r.TransactionHash, PlaceholderTxPrefix)
}

// DecodeRecord parses one stored record field by field. A field that does not
// decode is left at its zero value and reported in the returned error, so
// Repair can backfill it instead of losing the whole record. The returned
// record is never nil.
func DecodeRecord(data []byte) (*DocumentRecord, error) {
	rec := &DocumentRecord{}
	if err := json.Unmarshal(data, rec); err == nil {
		return rec, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return &DocumentRecord{}, fmt.Errorf("record is not an object: %w", err)
	}
	rec = &DocumentRecord{}
	var errs []error
	for name, value := range fields {
		one, err := json.Marshal(map[string]json.RawMessage{name: value})
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
			continue
		}
		next := rec.Clone()
		if err := json.Unmarshal(one, next); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
			continue
		}
		rec = next
	}
	return rec, errors.Join(errs...)
}

// CloneRecords deep-copies a record mapping.
func CloneRecords(records map[string]*DocumentRecord) map[string]*DocumentRecord {
	out := make(map[string]*DocumentRecord, len(records))
	for k, r := range records {
		out[k] = r.Clone()
	}
	return out
}
