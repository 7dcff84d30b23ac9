package hashing

import (
	"bytes"
	"maps"
)

// Variant is one labelled way of hashing a (content, metadata) pair. Variants
// are used to explain why a recomputed hash does not match an issued one.
type Variant struct {
	Label string
	Hash  func(content []byte, metadata map[string]any) (string, error)
}

// VolatileMetadataKeys are metadata keys that callers commonly fill with the
// time of upload, so a verifier rarely reproduces them.
var VolatileMetadataKeys = []string{"timestamp", "uploadedAt", "uploadTime", "fileSize"}

// Variants returns the diagnostic strategy table. The first entry is always
// the canonical ComputeHash.
func Variants() []Variant {
	return []Variant{
		{Label: "canonical", Hash: ComputeHash},
		{Label: "metadata-first", Hash: metadataFirst},
		{Label: "content-only", Hash: contentOnly},
		{Label: "empty-metadata", Hash: emptyMetadata},
		{Label: "trimmed-content", Hash: trimmedContent},
		{Label: "unix-line-endings", Hash: unixLineEndings},
		{Label: "without-volatile-keys", Hash: withoutVolatileKeys},
	}
}

func metadataFirst(content []byte, metadata map[string]any) (string, error) {
	meta, err := CanonicalMetadata(metadata)
	if err != nil {
		return "", err
	}
	return digest(meta, content), nil
}

func contentOnly(content []byte, _ map[string]any) (string, error) {
	return digest(content), nil
}

func emptyMetadata(content []byte, _ map[string]any) (string, error) {
	return ComputeHash(content, nil)
}

func trimmedContent(content []byte, metadata map[string]any) (string, error) {
	return ComputeHash(bytes.TrimSpace(content), metadata)
}

func unixLineEndings(content []byte, metadata map[string]any) (string, error) {
	return ComputeHash(bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n")), metadata)
}

func withoutVolatileKeys(content []byte, metadata map[string]any) (string, error) {
	stripped := maps.Clone(metadata)
	for _, k := range VolatileMetadataKeys {
		delete(stripped, k)
	}
	return ComputeHash(content, stripped)
}
