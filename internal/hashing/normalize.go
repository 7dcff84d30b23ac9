// Package hashing computes document identity digests and owns the conversion
// between the ledger's hash text (0x-prefixed, upper case) and the bare lower-case
// form used as the local record key.
//
// No other package converts hash text by hand; everything goes through
// Normalize and ToLedger.
package hashing

import "strings"

// DigestLength is the length of a normalized SHA-256 digest in hex characters.
const DigestLength = 64

// Normalize returns the canonical form of a hash string: surrounding whitespace
// and an optional "0x"/"0X" prefix are removed and the remainder is lower-cased.
// Normalize is idempotent. It does not validate; use IsCanonical for that.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return strings.ToLower(s)
}

// IsCanonical reports whether s is already a normalized digest:
// exactly 64 lower-case hex characters with no prefix.
func IsCanonical(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Equal reports whether a and b name the same digest regardless of prefix or case.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ToLedger renders a hash in the ledger's native text form ("0x" + upper-case hex).
func ToLedger(h string) string {
	return "0x" + strings.ToUpper(Normalize(h))
}
