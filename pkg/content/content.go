// Package content implements content-addressed storage (CAS) for artifact
// payloads: canonical serialization, hashing, and pluggable blob backends.
package content

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// Id is the hex-encoded SHA-256 digest of a value's canonical serialization.
type Id string

// Canonicalize renders v into RFC 8785 canonical JSON bytes. Mapping content
// is serialized with sorted keys and compact separators; byte and text
// payloads are first wrapped per the rules in Wrap so the canonicalizer only
// ever sees JSON-native values.
func Canonicalize(v any) ([]byte, error) {
	wrapped := Wrap(v)

	raw, err := json.Marshal(wrapped)
	if err != nil {
		return nil, fmt.Errorf("content: marshal: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("content: canonicalize: %w", err)
	}
	return canonical, nil
}

// Wrap converts Go content values into the JSON-native shapes the
// canonicalizer expects: raw bytes become a {_type: binary} envelope, plain
// strings become a {_type: text} envelope, and maps/slices/other JSON-native
// values pass through unchanged for direct canonicalization.
func Wrap(v any) any {
	switch t := v.(type) {
	case []byte:
		return map[string]any{
			"_type":     "binary",
			"_encoding": "base64",
			"data":      base64.StdEncoding.EncodeToString(t),
		}
	case string:
		return map[string]any{
			"_type": "text",
			"data":  t,
		}
	default:
		return v
	}
}

// Hash computes the ContentId of v: canonicalize then SHA-256, hex-encoded.
func Hash(v any) (Id, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return Id(hex.EncodeToString(sum[:])), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of raw bytes, bypassing
// canonicalization. Used for the per-file digests of ComputePayloadManifest.
func HashBytes(raw []byte) Id {
	sum := sha256.Sum256(raw)
	return Id(hex.EncodeToString(sum[:]))
}

// decodeBase64 decodes s, returning nil on malformed input rather than an
// error — a corrupt binary envelope is treated as absent content by callers.
func decodeBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Prefix returns the two-character directory-fanout prefix for an id.
func (id Id) Prefix() string {
	s := string(id)
	if len(s) < 2 {
		return s
	}
	return s[:2]
}

// ManifestEntry describes one file within a plan's payload manifest.
type ManifestEntry struct {
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// ComputePayloadManifest builds a deterministic, path-sorted manifest of the
// named byte blobs in a plan payload's "files" map.
func ComputePayloadManifest(files map[string][]byte) []ManifestEntry {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]ManifestEntry, 0, len(paths))
	for _, p := range paths {
		b := files[p]
		entries = append(entries, ManifestEntry{
			Path:   p,
			Bytes:  len(b),
			SHA256: string(HashBytes(b)),
		})
	}
	return entries
}
