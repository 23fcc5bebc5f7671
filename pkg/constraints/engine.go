package constraints

import (
	"strings"

	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/ledger"
)

// Context carries the collaborators a rule's predicate may need: the
// concept/graph sources, the ledger (for artifact-scope selection and
// event emission), and the artifact_id events are attributed to.
type Context struct {
	Concepts ConceptSource
	Graph    GraphSource
	Ledger   *ledger.Ledger

	ArtifactId string
	EmitEvents bool
}

// PredicateFn evaluates one rule against one selected item.
type PredicateFn func(item any, rule Rule, ctx Context) []Finding

// Engine evaluates rulesets against a Context, using the fixed named
// predicate registry plus any CEL predicates compiled on demand.
type Engine struct {
	cel *CELPredicates
}

// NewEngine returns an Engine with a fresh CEL predicate compiler.
func NewEngine() *Engine {
	return &Engine{cel: NewCELPredicates()}
}

// Run evaluates every rule in ruleset against ctx, selecting items per
// rule's scope, applying the resolved predicate, and (if ctx.EmitEvents is
// set) appending constraint.evaluated and invariant.checked events.
func (e *Engine) Run(ruleset Ruleset, ctx Context) ([]Finding, error) {
	var all []Finding

	for _, rule := range ruleset.Rules {
		fn, ok := e.resolve(rule)
		if !ok {
			continue
		}

		items := selectItems(rule, ctx, ruleset)
		var ruleFindings []Finding
		for _, item := range items {
			ruleFindings = append(ruleFindings, fn(item, rule, ctx)...)
		}
		all = append(all, ruleFindings...)

		if ctx.EmitEvents && ctx.ArtifactId != "" {
			if err := emitConstraintEvents(ctx, ruleset, rule, ruleFindings); err != nil {
				return nil, err
			}
		}
	}

	if ctx.EmitEvents && ctx.ArtifactId != "" {
		if err := emitInvariantEvents(ctx, ruleset, all); err != nil {
			return nil, err
		}
	}

	return all, nil
}

func (e *Engine) resolve(rule Rule) (PredicateFn, bool) {
	if rule.Predicate.Name == "cel" {
		expr, _ := rule.Predicate.Params["expr"].(string)
		if expr == "" {
			return nil, false
		}
		return e.cel.Compile(expr), true
	}
	fn, ok := namedPredicates[rule.Predicate.Name]
	return fn, ok
}

// selectItems implements the scope-based item selection described for each
// Scope: concept (filtered by canonical_only/exclude_tags/exclude_roles),
// graph (the singleton graph source), artifact (snapshots filtered by
// status/type), ruleset (the ruleset itself, for meta-rules), and
// vault/other (a single nil context-only item).
func selectItems(rule Rule, ctx Context, ruleset Ruleset) []any {
	switch rule.Scope {
	case ScopeConcept:
		return selectConcepts(rule, ctx)
	case ScopeGraph:
		if ctx.Graph == nil {
			return nil
		}
		return []any{ctx.Graph}
	case ScopeArtifact:
		return selectArtifacts(rule, ctx)
	case ScopeRuleset:
		return []any{ruleset}
	default:
		return []any{nil}
	}
}

func selectConcepts(rule Rule, ctx Context) []any {
	if ctx.Concepts == nil {
		return nil
	}
	concepts := ctx.Concepts.Concepts()

	canonicalOnly, _ := rule.Selector.Params["canonical_only"].(bool)
	if canonicalOnly {
		filtered := concepts[:0:0]
		for _, c := range concepts {
			if c.Canonical() {
				filtered = append(filtered, c)
			}
		}
		concepts = filtered
	}

	excludeRoles := stringSet(rule.Selector.Params["exclude_roles"])
	if len(excludeRoles) > 0 {
		filtered := concepts[:0:0]
		for _, c := range concepts {
			if !excludeRoles[strings.ToLower(strings.TrimSpace(c.Role()))] {
				filtered = append(filtered, c)
			}
		}
		concepts = filtered
	}

	excludeTags := stringSet(rule.Selector.Params["exclude_tags"])
	if len(excludeTags) > 0 {
		filtered := concepts[:0:0]
		for _, c := range concepts {
			if !hasAnyTag(c, excludeTags) {
				filtered = append(filtered, c)
			}
		}
		concepts = filtered
	}

	out := make([]any, 0, len(concepts))
	for _, c := range concepts {
		out = append(out, c)
	}
	return out
}

func hasAnyTag(c Concept, excluded map[string]bool) bool {
	raw, ok := c.Frontmatter()["tags"]
	if !ok {
		return false
	}
	var tags []string
	switch t := raw.(type) {
	case string:
		tags = []string{t}
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	for _, tag := range tags {
		if excluded[strings.ToLower(strings.TrimSpace(tag))] {
			return true
		}
	}
	return false
}

func selectArtifacts(rule Rule, ctx Context) []any {
	if ctx.Ledger == nil {
		return nil
	}
	snaps, err := ctx.Ledger.AllSnapshots()
	if err != nil {
		return nil
	}

	status, _ := rule.Selector.Params["status"].(string)
	artifactType, _ := rule.Selector.Params["type"].(string)

	out := make([]any, 0, len(snaps))
	for _, s := range snaps {
		if status != "" && string(s.Status) != status {
			continue
		}
		if artifactType != "" && string(s.ArtifactType) != artifactType {
			continue
		}
		out = append(out, s)
	}
	return out
}

func stringSet(v any) map[string]bool {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				out[s] = true
			}
		}
	}
	return out
}

func emitConstraintEvents(ctx Context, ruleset Ruleset, rule Rule, findings []Finding) error {
	if len(findings) == 0 {
		e, err := events.New(events.ConstraintEvaluated, ctx.ArtifactId, "system:constraint_engine", map[string]any{
			"ruleset_id":      ruleset.RulesetId,
			"ruleset_version": ruleset.Version,
			"rule_id":         rule.Id,
			"rule_scope":      string(rule.Scope),
			"invariant":       orDefault(rule.Invariant, "unclassified"),
			"result":          "pass",
			"evidence":        map[string]any{},
		})
		if err != nil {
			return err
		}
		return ctx.Ledger.Append(e)
	}

	for _, f := range findings {
		result := "warning"
		if f.Level == SeverityError {
			result = "fail"
		}
		e, err := events.New(events.ConstraintEvaluated, ctx.ArtifactId, "system:constraint_engine", map[string]any{
			"ruleset_id":      ruleset.RulesetId,
			"ruleset_version": ruleset.Version,
			"rule_id":         rule.Id,
			"rule_scope":      string(rule.Scope),
			"invariant":       orDefault(rule.Invariant, "unclassified"),
			"result":          result,
			"evidence": map[string]any{
				"item_id":   f.ItemId,
				"item_type": f.ItemType,
				"message":   f.Message,
				"line":      f.Line,
			},
		})
		if err != nil {
			return err
		}
		if err := ctx.Ledger.Append(e); err != nil {
			return err
		}
	}
	return nil
}

func emitInvariantEvents(ctx Context, ruleset Ruleset, all []Finding) error {
	rulesByInvariant := map[string]int{}
	for _, r := range ruleset.Rules {
		rulesByInvariant[orDefault(r.Invariant, "unclassified")]++
	}

	violations := map[string]int{}
	affected := map[string]map[string]bool{}
	for _, f := range all {
		inv := orDefault(f.Invariant, "unclassified")
		if f.Level == SeverityError {
			violations[inv]++
		}
		if affected[inv] == nil {
			affected[inv] = map[string]bool{}
		}
		if f.ItemId != "" {
			affected[inv][f.ItemId] = true
		}
	}

	for inv, rulesChecked := range rulesByInvariant {
		status := "pass"
		if violations[inv] > 0 {
			status = "fail"
		}
		items := make([]string, 0, len(affected[inv]))
		for id := range affected[inv] {
			items = append(items, id)
		}
		e, err := events.New(events.InvariantChecked, ctx.ArtifactId, "system:constraint_engine", map[string]any{
			"invariant_id":   inv,
			"status":         status,
			"rules_checked":  rulesChecked,
			"violations":     violations[inv],
			"affected_items": items,
		})
		if err != nil {
			return err
		}
		if err := ctx.Ledger.Append(e); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
