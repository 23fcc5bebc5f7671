// Package constraints implements the declarative constraint engine: rules
// are data, predicates are code. A Ruleset selects items by scope, applies
// a named or CEL predicate to each, and (optionally) emits
// constraint.evaluated / invariant.checked events to a target artifact.
package constraints

// Scope names the kind of item a rule's selector chooses from.
type Scope string

const (
	ScopeConcept  Scope = "concept"
	ScopeGraph    Scope = "graph"
	ScopeArtifact Scope = "artifact"
	ScopeRuleset  Scope = "ruleset"
	ScopeVault    Scope = "vault"
)

// Severity is a rule's finding level when no more specific level is given
// by the predicate itself.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Selector names how a rule narrows its scope's candidate items, plus its
// parameters (e.g. concept scope's canonical_only, exclude_tags).
type Selector struct {
	Kind   string         `json:"kind" yaml:"kind"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Predicate names the evaluation function for a rule: either a fixed
// named-function (the PREDICATES table) or "cel" for an inline CEL
// expression held in Params["expr"].
type Predicate struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Rule is one declarative governance rule.
type Rule struct {
	Id          string   `json:"id" yaml:"id"`
	Scope       Scope    `json:"scope" yaml:"scope"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Invariant   string   `json:"invariant,omitempty" yaml:"invariant,omitempty"`
	Selector    Selector `json:"selector" yaml:"selector"`
	Predicate   Predicate `json:"predicate" yaml:"predicate"`
	Message     string   `json:"message,omitempty" yaml:"message,omitempty"`
	Rationale   string   `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Boundary    string   `json:"boundary,omitempty" yaml:"boundary,omitempty"`
	RepairClass string   `json:"repair_class,omitempty" yaml:"repair_class,omitempty"`
}

// Ruleset is a versioned, named collection of rules.
type Ruleset struct {
	RulesetId   string `json:"ruleset_id" yaml:"ruleset_id"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []Rule `json:"rules" yaml:"rules"`
}

// Finding is one predicate violation (or informational hit).
type Finding struct {
	Level     Severity
	RuleId    string
	ItemId    string
	ItemType  string
	Message   string
	Line      int
	Invariant string
}
