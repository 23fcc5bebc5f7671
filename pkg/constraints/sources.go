package constraints

// Concept is the narrow view of a vault concept a predicate needs: its
// identity, its markdown body, its frontmatter, and its outbound links.
// The vault loader that produces these is out of scope for this module;
// callers adapt their own concept representation to this interface.
type Concept interface {
	Id() string
	Path() string
	Content() string
	Role() string
	Canonical() bool
	Frontmatter() map[string]any
	Links() []string
}

// ConceptSource exposes a vault's concept list to the constraint engine.
type ConceptSource interface {
	Concepts() []Concept
	// Resolve looks up a concept by the link identifier used in Links().
	Resolve(id string) (Concept, bool)
}

// GraphSource exposes cycle detection over the vault's dependency graph.
type GraphSource interface {
	FindSimpleCycles() [][]string
}
