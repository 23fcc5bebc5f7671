//go:build property
// +build property

package content_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/irrev-systems/irrev/pkg/content"
)

// TestCanonicalizeDeterminism verifies canonical serialization is
// deterministic regardless of the input map's key insertion order.
// Property: Canonicalize(m) == Canonicalize(shuffled(m))
func TestCanonicalizeDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalization is independent of map construction order", prop.ForAll(
		func(keys []string, values []string) bool {
			m1 := make(map[string]any)
			m2 := make(map[string]any)
			n := len(keys)
			if len(values) < n {
				n = len(values)
			}
			for i := 0; i < n; i++ {
				if keys[i] == "" {
					continue
				}
				m1[keys[i]] = values[i]
			}
			// Build m2 by iterating m1 (different in-memory insertion order
			// than the construction loop above, since Go map iteration order
			// is randomized per run).
			for k, v := range m1 {
				m2[k] = v
			}
			if len(m1) == 0 {
				return true
			}

			a, err1 := content.Canonicalize(m1)
			b, err2 := content.Canonicalize(m2)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestHashDeterminism verifies Hash(v) is stable across repeated calls.
// Property: Hash(v) == Hash(v)
func TestHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hashing the same value twice yields the same id", prop.ForAll(
		func(a, b, c string) bool {
			v := map[string]any{"a": a, "b": b, "c": c}
			id1, err1 := content.Hash(v)
			id2, err2 := content.Hash(v)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return id1 == id2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestHashBytesDistinct verifies that distinct byte slices get distinct
// HashBytes digests (raw SHA-256, no binary envelope involved).
func TestHashBytesDistinct(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct byte payloads hash to distinct ids", prop.ForAll(
		func(a, b []byte) bool {
			if string(a) == string(b) {
				return true
			}
			return content.HashBytes(a) != content.HashBytes(b)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
