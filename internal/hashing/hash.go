package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeHash returns the document identity digest for content issued with the
// given metadata: SHA-256 over the raw content followed by the canonical JSON
// serialization of metadata, as a normalized hex string.
//
// The digest is metadata-sensitive: the same bytes declared with different
// metadata produce different digests. A nil map hashes like an empty one.
func ComputeHash(content []byte, metadata map[string]any) (string, error) {
	meta, err := CanonicalMetadata(metadata)
	if err != nil {
		return "", err
	}
	return digest(content, meta), nil
}

// CanonicalMetadata serializes metadata with object keys sorted at every depth,
// no HTML escaping and no trailing newline. Values are round-tripped through a
// generic representation first so nested structs are ordered too.
func CanonicalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("serializing metadata: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encoding canonical metadata: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SHA256Hex returns the normalized SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	return digest(data)
}

func digest(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
