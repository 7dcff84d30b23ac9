// Package metrics exposes Prometheus counters for verifications, record
// changes and ledger calls.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docverify/internal/docverify"
)

// Ledger call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeReverted = "reverted"
	OutcomeError    = "error"
)

// Metrics holds every docverify collector on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Verification outcomes by derived status
	Verifications *prometheus.CounterVec

	// Record store mutations by action
	RecordChanges *prometheus.CounterVec

	// Ledger calls by operation and outcome
	LedgerCalls *prometheus.CounterVec

	LedgerLatency *prometheus.HistogramVec
}

var (
	_ docverify.VerificationRecorder = (*Metrics)(nil)
	_ docverify.Observer             = (*Metrics)(nil)
)

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_verifications_total",
			Help: "Document verifications by derived status",
		}, []string{"status"}),

		RecordChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_record_changes_total",
			Help: "Local record store changes by action",
		}, []string{"action"}),

		LedgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_ledger_calls_total",
			Help: "Ledger calls by operation and outcome",
		}, []string{"op", "outcome"}),

		LedgerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docverify_ledger_call_duration_seconds",
			Help:    "Duration of ledger calls including receipt polling",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
	}
}

// ObserveVerification records one verification outcome.
func (m *Metrics) ObserveVerification(status docverify.DocumentStatus) {
	if m != nil {
		m.Verifications.WithLabelValues(string(status)).Inc()
	}
}

// RecordChanged counts a record store change.
func (m *Metrics) RecordChanged(c docverify.Change) {
	if m != nil {
		m.RecordChanges.WithLabelValues(string(c.Action)).Inc()
	}
}

// ObserveLedgerCall records the outcome and duration of one ledger call.
func (m *Metrics) ObserveLedgerCall(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.LedgerCalls.WithLabelValues(op, outcome(err)).Inc()
	m.LedgerLatency.WithLabelValues(op).Observe(d.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, docverify.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, docverify.ErrTransactionFailure):
		return OutcomeReverted
	default:
		return OutcomeError
	}
}

// WriteTextfile writes the current values in the node_exporter textfile
// format. It is a no-op when path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

// InstrumentedLedger wraps a LedgerClient and counts every call.
type InstrumentedLedger struct {
	next    docverify.LedgerClient
	metrics *Metrics
}

var _ docverify.LedgerClient = (*InstrumentedLedger)(nil)

// InstrumentLedger returns next wrapped with call counters.
func InstrumentLedger(next docverify.LedgerClient, m *Metrics) *InstrumentedLedger {
	return &InstrumentedLedger{next: next, metrics: m}
}

func (l *InstrumentedLedger) observe(op string, start time.Time, err error) {
	l.metrics.ObserveLedgerCall(op, err, time.Since(start))
}

func (l *InstrumentedLedger) Initialize(ctx context.Context, address string) (err error) {
	defer func(start time.Time) { l.observe("initialize", start, err) }(time.Now())
	return l.next.Initialize(ctx, address)
}

func (l *InstrumentedLedger) QueryDocument(ctx context.Context, hash string) (rec *docverify.LedgerRecord, err error) {
	defer func(start time.Time) { l.observe("queryDocument", start, err) }(time.Now())
	return l.next.QueryDocument(ctx, hash)
}

func (l *InstrumentedLedger) RegisterInstitution(ctx context.Context, name, registrationNumber, contact string) (r *docverify.Receipt, err error) {
	defer func(start time.Time) { l.observe("registerInstitution", start, err) }(time.Now())
	return l.next.RegisterInstitution(ctx, name, registrationNumber, contact)
}

func (l *InstrumentedLedger) VerifyInstitution(ctx context.Context, address string) (r *docverify.Receipt, err error) {
	defer func(start time.Time) { l.observe("verifyInstitution", start, err) }(time.Now())
	return l.next.VerifyInstitution(ctx, address)
}

func (l *InstrumentedLedger) IsInstitutionVerified(ctx context.Context, address string) (ok bool, err error) {
	defer func(start time.Time) { l.observe("isVerifiedInstitution", start, err) }(time.Now())
	return l.next.IsInstitutionVerified(ctx, address)
}

func (l *InstrumentedLedger) IssueDocument(ctx context.Context, req docverify.IssueRequest) (r *docverify.Receipt, err error) {
	defer func(start time.Time) { l.observe("issueDocument", start, err) }(time.Now())
	return l.next.IssueDocument(ctx, req)
}

func (l *InstrumentedLedger) ConfirmVerification(ctx context.Context, hash string) (r *docverify.Receipt, err error) {
	defer func(start time.Time) { l.observe("verifyDocument", start, err) }(time.Now())
	return l.next.ConfirmVerification(ctx, hash)
}

func (l *InstrumentedLedger) RevokeDocument(ctx context.Context, hash string) (r *docverify.Receipt, err error) {
	defer func(start time.Time) { l.observe("revokeDocument", start, err) }(time.Now())
	return l.next.RevokeDocument(ctx, hash)
}
