package constraints

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/irrev-systems/irrev/pkg/snapshot"
)

// namedPredicates mirrors the original PREDICATES table: a fixed set of
// named, pure functions over (item, rule, context).
var namedPredicates = map[string]PredicateFn{
	"has_headings":                    predicateHasHeadings,
	"no_outlinks_to_roles":            predicateNoOutlinksToRoles,
	"no_cycles":                       predicateNoCycles,
	"executed_has_required_approval":  predicateExecutedHasRequiredApproval,
	"no_prescriptive_tokens":          predicateNoPrescriptiveTokens,
	"frontmatter_has_keys":            predicateFrontmatterHasKeys,
	"approval_requires_force_ack":     predicateApprovalRequiresForceAck,
	"ruleset_messages_non_prescriptive": predicateRulesetMessagesNonPrescriptive,
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func predicateHasHeadings(item any, rule Rule, ctx Context) []Finding {
	c, ok := item.(Concept)
	if !ok {
		return nil
	}
	headings := stringList(rule.Predicate.Params["headings"])
	if len(headings) == 0 {
		return nil
	}

	present := map[string]bool{}
	for _, line := range strings.Split(c.Content(), "\n") {
		if strings.HasPrefix(line, "## ") {
			present[strings.TrimSpace(line[3:])] = true
		}
	}

	var missing []string
	for _, h := range headings {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	msg := orDefault(rule.Message, "missing headings") + ": " + strings.Join(missing, ", ")
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: c.Id(), ItemType: "concept", Message: msg, Invariant: rule.Invariant}}
}

func predicateNoOutlinksToRoles(item any, rule Rule, ctx Context) []Finding {
	c, ok := item.(Concept)
	if !ok {
		return nil
	}
	roleList := stringList(rule.Predicate.Params["roles"])
	targetRoles := map[string]bool{}
	for _, r := range roleList {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			targetRoles[r] = true
		}
	}
	if len(targetRoles) == 0 || ctx.Concepts == nil {
		return nil
	}

	offenderSet := map[string]bool{}
	for _, link := range c.Links() {
		note, ok := ctx.Concepts.Resolve(link)
		if !ok {
			continue
		}
		if targetRoles[strings.ToLower(strings.TrimSpace(note.Role()))] {
			offenderSet[note.Id()] = true
		}
	}
	if len(offenderSet) == 0 {
		return nil
	}

	offenders := make([]string, 0, len(offenderSet))
	for o := range offenderSet {
		offenders = append(offenders, o)
	}
	sort.Strings(offenders)

	msg := orDefault(rule.Message, "outlinks to forbidden roles") + " (" + strings.Join(offenders, ", ") + ")"
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: c.Id(), ItemType: "concept", Message: msg, Invariant: rule.Invariant}}
}

func predicateNoPrescriptiveTokens(item any, rule Rule, ctx Context) []Finding {
	c, ok := item.(Concept)
	if !ok {
		return nil
	}
	tokens := stringList(rule.Predicate.Params["tokens"])
	if len(tokens) == 0 {
		return nil
	}
	// NFC-normalize before lowercasing so visually-identical tokens built
	// from combining characters can't slip past a byte-level Contains check.
	lowered := strings.ToLower(norm.NFC.String(c.Content()))

	var hits []string
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		normTok := strings.ToLower(norm.NFC.String(tok))
		if strings.Contains(lowered, normTok) {
			hits = append(hits, tok)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Strings(hits)

	msg := orDefault(rule.Message, "prescriptive tokens detected") + " (" + strings.Join(hits, ", ") + ")"
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: c.Id(), ItemType: "concept", Message: msg, Invariant: rule.Invariant}}
}

func predicateFrontmatterHasKeys(item any, rule Rule, ctx Context) []Finding {
	c, ok := item.(Concept)
	if !ok {
		return nil
	}
	keys := stringList(rule.Predicate.Params["keys"])
	if len(keys) == 0 {
		return nil
	}
	fm := c.Frontmatter()

	var missing []string
	for _, k := range keys {
		if v, ok := fm[k]; !ok || isZeroish(v) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	msg := orDefault(rule.Message, "missing frontmatter keys") + ": " + strings.Join(missing, ", ")
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: c.Id(), ItemType: "concept", Message: msg, Invariant: rule.Invariant}}
}

func isZeroish(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case nil:
		return true
	default:
		return false
	}
}

func predicateNoCycles(item any, rule Rule, ctx Context) []Finding {
	g, ok := item.(GraphSource)
	if !ok {
		return nil
	}
	cycles := g.FindSimpleCycles()
	if len(cycles) == 0 {
		return nil
	}
	msg := orDefault(rule.Message, "dependency cycle detected") + " (" + strings.Join(cycles[0], " -> ") + ")"
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemType: "graph", Message: msg, Invariant: rule.Invariant}}
}

func predicateExecutedHasRequiredApproval(item any, rule Rule, ctx Context) []Finding {
	s, ok := item.(snapshot.Snapshot)
	if !ok {
		return nil
	}
	requiredList := stringList(rule.Predicate.Params["risk_requires_approval"])
	required := map[string]bool{}
	for _, r := range requiredList {
		required[strings.ToLower(strings.TrimSpace(r))] = true
	}

	riskClass := s.ComputedRiskClass
	if riskClass == "" {
		riskClass = s.RiskClass
	}
	if riskClass == "" {
		return nil
	}
	if len(required) > 0 && !required[riskClass] {
		return nil
	}

	if s.RequiresApproval() && s.ApprovalArtifactId == "" {
		msg := orDefault(rule.Message, "missing approval artifact")
		return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: s.ArtifactId, ItemType: "artifact", Message: msg, Invariant: rule.Invariant}}
	}
	return nil
}

func predicateApprovalRequiresForceAck(item any, rule Rule, ctx Context) []Finding {
	s, ok := item.(snapshot.Snapshot)
	if !ok {
		return nil
	}
	wantRisk := strings.ToLower(strings.TrimSpace(stringParam(rule.Predicate.Params, "risk")))
	if wantRisk == "" {
		return nil
	}
	riskClass := s.ComputedRiskClass
	if riskClass == "" {
		riskClass = s.RiskClass
	}
	if riskClass != wantRisk {
		return nil
	}
	if s.ForceAck {
		return nil
	}
	msg := orDefault(rule.Message, "destructive approval missing force acknowledgement")
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemId: s.ArtifactId, ItemType: "artifact", Message: msg, Invariant: rule.Invariant}}
}

func predicateRulesetMessagesNonPrescriptive(item any, rule Rule, ctx Context) []Finding {
	rs, ok := item.(Ruleset)
	if !ok {
		return nil
	}
	var hits []string
	for _, r := range rs.Rules {
		for _, field := range []string{r.Message, r.Rationale, r.Boundary} {
			if field == "" {
				continue
			}
			if containsPrescriptiveWord(field) {
				hits = append(hits, r.Id)
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	msg := orDefault(rule.Message, "ruleset messages contain prescriptive language") + " (" + strings.Join(hits, ", ") + ")"
	return []Finding{{Level: rule.Severity, RuleId: rule.Id, ItemType: "ruleset", Message: msg, Invariant: rule.Invariant}}
}

var prescriptiveWords = []string{"must", "should", "fix:", "todo:"}

func containsPrescriptiveWord(s string) bool {
	lowered := strings.ToLower(s)
	for _, w := range prescriptiveWords {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
