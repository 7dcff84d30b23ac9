package docverify

import "docverify/internal/hashing"

// DiagnosticAttempt is one hashing variant tried against an expected hash.
type DiagnosticAttempt struct {
	Label string
	Hash  string
	Match bool
	Err   error
}

// DiagnosticReport lists every attempted variant in table order.
type DiagnosticReport struct {
	Expected string
	Attempts []DiagnosticAttempt
	Matched  []string
}

// Match returns the first matching variant label.
func (r *DiagnosticReport) Match() (string, bool) {
	if len(r.Matched) == 0 {
		return "", false
	}
	return r.Matched[0], true
}

// Diagnose evaluates hashing.Variants uniformly against expected.
func Diagnose(content []byte, metadata map[string]any, expected string) *DiagnosticReport {
	report := &DiagnosticReport{Expected: hashing.Normalize(expected)}
	for _, variant := range hashing.Variants() {
		attempt := DiagnosticAttempt{Label: variant.Label}
		attempt.Hash, attempt.Err = variant.Hash(content, metadata)
		if attempt.Err == nil && hashing.Equal(attempt.Hash, report.Expected) {
			attempt.Match = true
			report.Matched = append(report.Matched, variant.Label)
		}
		report.Attempts = append(report.Attempts, attempt)
	}
	return report
}
