package app

import "time"

// Operation tracks the CLI command being run. Its ID tags every log line the
// command writes. Mutating operations change local records and trigger a
// snapshot push on Close when auto_push is enabled.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "success" or "error"
	StartedAt  time.Time
	mutating   bool
}

// NewOperation creates an operation that has not touched any records yet.
func NewOperation(name, parameters string, startedAt time.Time) *Operation {
	return &Operation{
		ID:         startedAt.UTC().Format("20060102T150405Z"),
		Name:       name,
		Parameters: parameters,
		Status:     "success",
		StartedAt:  startedAt,
	}
}

// MarkMutating records that the operation changed local records.
func (op *Operation) MarkMutating() { op.mutating = true }

// Mutating reports whether the operation changed local records.
func (op *Operation) Mutating() bool { return op.mutating }

// Fail marks the operation as failed when err is non-nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}
