package constraints

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/ledger"
)

type fakeConcept struct {
	id, path, content, role string
	canonical               bool
	frontmatter             map[string]any
	links                   []string
}

func (c fakeConcept) Id() string                     { return c.id }
func (c fakeConcept) Path() string                   { return c.path }
func (c fakeConcept) Content() string                { return c.content }
func (c fakeConcept) Role() string                   { return c.role }
func (c fakeConcept) Canonical() bool                { return c.canonical }
func (c fakeConcept) Frontmatter() map[string]any    { return c.frontmatter }
func (c fakeConcept) Links() []string                { return c.links }

type fakeConceptSource struct {
	concepts []Concept
	byId     map[string]Concept
}

func (s fakeConceptSource) Concepts() []Concept { return s.concepts }
func (s fakeConceptSource) Resolve(id string) (Concept, bool) {
	c, ok := s.byId[id]
	return c, ok
}

func TestEngine_HasHeadingsFindsMissing(t *testing.T) {
	concept := fakeConcept{id: "c1", path: "c1.md", content: "## Intro\n"}
	src := fakeConceptSource{concepts: []Concept{concept}, byId: map[string]Concept{"c1": concept}}

	led := ledger.New(filepath.Join(t.TempDir(), "ledger.jsonl"))
	e := NewEngine()
	ruleset := Ruleset{
		RulesetId: "core",
		Version:   "1.0.0",
		Rules: []Rule{
			{
				Id:        "r1",
				Scope:     ScopeConcept,
				Severity:  SeverityError,
				Predicate: Predicate{Name: "has_headings", Params: map[string]any{"headings": []any{"Intro", "Residuals"}}},
			},
		},
	}

	findings, err := e.Run(ruleset, Context{Concepts: src, Ledger: led})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, "Residuals")
}

func TestEngine_EmitsConstraintAndInvariantEvents(t *testing.T) {
	concept := fakeConcept{id: "c1", path: "c1.md", content: "## Intro\n## Residuals\n"}
	src := fakeConceptSource{concepts: []Concept{concept}, byId: map[string]Concept{"c1": concept}}

	led := ledger.New(filepath.Join(t.TempDir(), "ledger.jsonl"))
	created, err := events.New(events.ArtifactCreated, "a1", "agent", map[string]any{"operation": "lint", "risk_class": "read_only"},
		events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	require.NoError(t, err)
	require.NoError(t, led.Append(created))

	e := NewEngine()
	ruleset := Ruleset{
		RulesetId: "core",
		Version:   "1.0.0",
		Rules: []Rule{
			{
				Id:        "r1",
				Scope:     ScopeConcept,
				Severity:  SeverityError,
				Invariant: "I-HEAD",
				Predicate: Predicate{Name: "has_headings", Params: map[string]any{"headings": []any{"Intro"}}},
			},
		},
	}

	_, err = e.Run(ruleset, Context{Concepts: src, Ledger: led, ArtifactId: "a1", EmitEvents: true})
	require.NoError(t, err)

	evs, err := led.EventsFor("a1")
	require.NoError(t, err)

	var sawConstraint, sawInvariant bool
	for _, ev := range evs {
		if ev.EventType == events.ConstraintEvaluated {
			sawConstraint = true
			require.Equal(t, "pass", ev.Payload["result"])
		}
		if ev.EventType == events.InvariantChecked {
			sawInvariant = true
			require.Equal(t, "pass", ev.Payload["status"])
		}
	}
	require.True(t, sawConstraint)
	require.True(t, sawInvariant)
}

func TestEngine_NoOutlinksToRoles(t *testing.T) {
	forbidden := fakeConcept{id: "f1", role: "scratch"}
	source := fakeConcept{id: "c1", links: []string{"f1"}}
	src := fakeConceptSource{
		concepts: []Concept{source},
		byId:     map[string]Concept{"f1": forbidden, "c1": source},
	}

	led := ledger.New(filepath.Join(t.TempDir(), "ledger.jsonl"))
	e := NewEngine()
	ruleset := Ruleset{
		Rules: []Rule{
			{
				Id:        "r1",
				Scope:     ScopeConcept,
				Severity:  SeverityError,
				Predicate: Predicate{Name: "no_outlinks_to_roles", Params: map[string]any{"roles": []any{"scratch"}}},
			},
		},
	}

	findings, err := e.Run(ruleset, Context{Concepts: src, Ledger: led})
	require.NoError(t, err)
	require.Len(t, findings, 1)
}

func TestEngine_NoPrescriptiveTokensCatchesNFCLookalike(t *testing.T) {
	// "café" built from combining characters (e + U+0301) rather than the
	// precomposed é; only NFC normalization before matching catches it.
	decomposed := "this café must be visited"
	concept := fakeConcept{id: "c1", content: decomposed}
	src := fakeConceptSource{concepts: []Concept{concept}, byId: map[string]Concept{"c1": concept}}

	led := ledger.New(filepath.Join(t.TempDir(), "ledger.jsonl"))
	e := NewEngine()
	ruleset := Ruleset{
		Rules: []Rule{
			{
				Id:        "r1",
				Scope:     ScopeConcept,
				Severity:  SeverityWarning,
				Predicate: Predicate{Name: "no_prescriptive_tokens", Params: map[string]any{"tokens": []any{"café"}}},
			},
		},
	}

	findings, err := e.Run(ruleset, Context{Concepts: src, Ledger: led})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, "café")
}

type fakeGraph struct{ cycles [][]string }

func (g fakeGraph) FindSimpleCycles() [][]string { return g.cycles }

func TestEngine_NoCycles(t *testing.T) {
	led := ledger.New(filepath.Join(t.TempDir(), "ledger.jsonl"))
	e := NewEngine()
	ruleset := Ruleset{
		Rules: []Rule{
			{Id: "r1", Scope: ScopeGraph, Severity: SeverityError, Predicate: Predicate{Name: "no_cycles"}},
		},
	}

	findings, err := e.Run(ruleset, Context{Graph: fakeGraph{cycles: [][]string{{"a", "b", "a"}}}, Ledger: led})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, "a -> b -> a")
}

func TestEngine_CELPredicate(t *testing.T) {
	concept := fakeConcept{id: "c1", content: "hello"}
	src := fakeConceptSource{concepts: []Concept{concept}}
	led := ledger.New(filepath.Join(t.TempDir(), "ledger.jsonl"))
	e := NewEngine()
	ruleset := Ruleset{
		Rules: []Rule{
			{
				Id:       "r1",
				Scope:    ScopeConcept,
				Severity: SeverityWarning,
				Predicate: Predicate{
					Name:   "cel",
					Params: map[string]any{"expr": `size(item.content) > 0`},
				},
			},
		},
	}

	findings, err := e.Run(ruleset, Context{Concepts: src, Ledger: led})
	require.NoError(t, err)
	require.Empty(t, findings)
}
