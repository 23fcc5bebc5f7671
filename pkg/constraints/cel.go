package constraints

import (
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/irrev-systems/irrev/pkg/snapshot"
)

// snapshotLike names the Snapshot shape explicitly so toCelValue's type
// switch reads as a deliberate mapping, not an incidental alias.
type snapshotLike = snapshot.Snapshot

// CELPredicates compiles and caches operator-authored CEL expressions
// declared inline on a rule (predicate.name == "cel", predicate.params.expr
// holding the CEL source). Each compiled program is guarded by a cost
// limit and an interrupt check frequency so a misbehaving expression
// cannot run unbounded.
type CELPredicates struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELPredicates builds the CEL environment shared by every compiled
// predicate: a single dynamic "item" variable, the rule's own params, and
// the rule's id as the string variable "rule_id".
func NewCELPredicates() *CELPredicates {
	env, err := cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("rule_id", cel.StringType),
		cel.Variable("params", cel.DynType),
	)
	if err != nil {
		panic("constraints: failed to build CEL environment: " + err.Error())
	}
	return &CELPredicates{env: env, programs: make(map[string]cel.Program)}
}

// Compile returns a PredicateFn evaluating expr against each item. The
// expression must return a bool; true means the item passes and no
// finding is produced, false produces exactly one finding at the rule's
// declared severity.
func (c *CELPredicates) Compile(expr string) PredicateFn {
	return func(item any, rule Rule, ctx Context) []Finding {
		prg, err := c.program(expr)
		if err != nil {
			return []Finding{{
				Level: SeverityError, RuleId: rule.Id,
				Message:   "cel predicate failed to compile: " + err.Error(),
				Invariant: rule.Invariant,
			}}
		}

		out, _, err := prg.Eval(map[string]any{
			"item":    toCelValue(item),
			"rule_id": rule.Id,
			"params":  rule.Predicate.Params,
		})
		if err != nil {
			return []Finding{{
				Level: SeverityError, RuleId: rule.Id,
				Message:   "cel predicate evaluation error: " + err.Error(),
				Invariant: rule.Invariant,
			}}
		}

		passed, ok := out.Value().(bool)
		if !ok {
			return []Finding{{
				Level: SeverityError, RuleId: rule.Id,
				Message:   "cel predicate must evaluate to a bool",
				Invariant: rule.Invariant,
			}}
		}
		if passed {
			return nil
		}

		msg := orDefault(rule.Message, "cel predicate failed: "+expr)
		itemId := itemIdentifier(item)
		return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: itemId, Message: msg, Invariant: rule.Invariant}}
	}
}

func (c *CELPredicates) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, hit := c.programs[expr]
	c.mu.RUnlock()
	if hit {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, hit := c.programs[expr]; hit {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	p, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, err
	}
	c.programs[expr] = p
	return p, nil
}

func itemIdentifier(item any) string {
	switch t := item.(type) {
	case Concept:
		return t.Id()
	case interface{ Id() string }:
		return t.Id()
	default:
		return ""
	}
}

// toCelValue converts an engine item into the map/primitive shapes CEL can
// natively evaluate (field access, not Go method calls). Types the engine
// does not know how to flatten pass through unchanged, which lets cel-go's
// own reflection-based adapter fall back as best it can.
func toCelValue(item any) any {
	switch t := item.(type) {
	case Concept:
		return map[string]any{
			"id":          t.Id(),
			"path":        t.Path(),
			"content":     t.Content(),
			"role":        t.Role(),
			"canonical":   t.Canonical(),
			"frontmatter": t.Frontmatter(),
			"links":       t.Links(),
		}
	case snapshotLike:
		return map[string]any{
			"artifact_id":         t.ArtifactId,
			"status":              string(t.Status),
			"risk_class":          t.RiskClass,
			"computed_risk_class": t.ComputedRiskClass,
			"force_ack":           t.ForceAck,
		}
	default:
		return item
	}
}
