// Package risk computes the governance risk classification of a proposed
// operation from its declared effects. It is pure and fail-closed: an
// operation this package does not recognize is always classified as
// external_side_effect rather than defaulted to something safer.
package risk

// Class is the five-valued, totally-ordered risk classification.
type Class string

const (
	ReadOnly            Class = "read_only"
	AppendOnly          Class = "append_only"
	MutationReversible  Class = "mutation_reversible"
	MutationDestructive Class = "mutation_destructive"
	ExternalSideEffect  Class = "external_side_effect"
)

// rank gives Class a total order for comparisons; ExternalSideEffect sits
// alongside MutationDestructive (both gate on approval) but is ranked one
// below it since only destructive additionally requires force-ack.
var rank = map[Class]int{
	ReadOnly:            0,
	AppendOnly:          1,
	MutationReversible:  2,
	ExternalSideEffect:  3,
	MutationDestructive: 4,
}

// Less reports whether a is strictly less risky than b.
func Less(a, b Class) bool { return rank[a] < rank[b] }

// RequiresApproval reports whether a risk class gates execution on an
// explicit approval artifact.
func RequiresApproval(c Class) bool {
	return c == MutationDestructive || c == ExternalSideEffect
}

// RequiresForceAck reports whether a risk class additionally requires an
// explicit force-ack flag on approval.
func RequiresForceAck(c Class) bool {
	return c == MutationDestructive
}

// knownOperations is the fixed, additive table of operation name → risk
// class for operations whose risk does not depend on payload inspection.
var knownOperations = map[string]Class{
	"lint":            ReadOnly,
	"registry.diff":   ReadOnly,
	"pack":            ReadOnly,
	"artifact.approve": AppendOnly,
	"artifact.created": AppendOnly,
	"artifact.append":  AppendOnly,
}

// prefixOperations is consulted when an exact match is absent; the first
// matching prefix wins.
var prefixOperations = []struct {
	prefix string
	class  Class
}{
	{"registry.build", MutationReversible},
	{"neo4j.load", ExternalSideEffect},
}

// Compute derives (risk class, reasons) from an operation name and its
// payload. An explicit effect_type of read_only ends classification at
// once. Otherwise the most risky applicable class wins: an explicit
// effects.destructive flag or a "rebuild" mode escalates neo4j.load* to
// destructive; any other explicit effect_type, the operation table and the
// effects flags each contribute a class and the highest ranked one is
// returned; unknown operations with no declared effect_type default to
// external_side_effect (fail-closed).
func Compute(operation string, payload map[string]any) (Class, []string) {
	var declared Class
	var reasons []string
	if et, ok := stringField(payload, "effect_type"); ok {
		if Class(et) == ReadOnly {
			return ReadOnly, []string{"explicit effect_type: read_only"}
		}
		declared = Class(et)
		reasons = append(reasons, "explicit effect_type: "+et)
	}

	class, known := knownOperations[operation]
	if !known {
		for _, p := range prefixOperations {
			if hasPrefix(operation, p.prefix) {
				class, known = p.class, true
				reasons = append(reasons, "operation prefix match: "+p.prefix)
				break
			}
		}
	} else {
		reasons = append(reasons, "operation table match: "+operation)
	}
	if declared != "" && (!known || Less(class, declared)) {
		class, known = declared, true
	}

	if operation == "neo4j.load" || hasPrefix(operation, "neo4j.load") {
		if mode, _ := stringField(payload, "mode"); mode == "rebuild" {
			return MutationDestructive, append(reasons, "mode=rebuild escalates to destructive")
		}
	}

	if effects, ok := payload["effects"].(map[string]any); ok {
		if b, _ := effects["destructive"].(bool); b {
			return MutationDestructive, append(reasons, "effects.destructive=true")
		}
		if b, _ := effects["network"].(bool); b {
			if !known || Less(class, ExternalSideEffect) {
				return ExternalSideEffect, append(reasons, "effects.network=true")
			}
		}
		if b, _ := effects["writes"].(bool); b {
			if !known || Less(class, MutationReversible) {
				return MutationReversible, append(reasons, "effects.writes=true")
			}
		}
		if b, _ := effects["append_only"].(bool); b {
			if !known || Less(class, AppendOnly) {
				return AppendOnly, append(reasons, "effects.append_only=true")
			}
		}
	}

	if known {
		return class, reasons
	}

	return ExternalSideEffect, append(reasons, "unknown operation: defaulting to external_side_effect (fail-closed)")
}

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
