package constraints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// PolicyLoader reads a directory of JSON or YAML ruleset bundle files, each
// describing one Ruleset, and selects the active version per ruleset_id
// via a configured semver constraint.
type PolicyLoader struct {
	mu       sync.RWMutex
	bundles  map[string][]loadedRuleset // ruleset_id -> all versions seen
	bundleDir string
}

type loadedRuleset struct {
	ruleset Ruleset
	version *semver.Version
	path    string
}

// NewPolicyLoader returns a loader rooted at bundleDir.
func NewPolicyLoader(bundleDir string) *PolicyLoader {
	return &PolicyLoader{bundles: make(map[string][]loadedRuleset), bundleDir: bundleDir}
}

// LoadAll loads every .json and .yaml/.yml ruleset bundle file in the
// configured directory.
func (l *PolicyLoader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("constraints: read bundle dir %s: %w", l.bundleDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := l.LoadFile(filepath.Join(l.bundleDir, entry.Name())); err != nil {
			return fmt.Errorf("constraints: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile loads a single ruleset bundle file, JSON or YAML by extension.
func (l *PolicyLoader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var rs Ruleset
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rs); err != nil {
			return fmt.Errorf("parse yaml ruleset: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &rs); err != nil {
			return fmt.Errorf("parse json ruleset: %w", err)
		}
	}

	if rs.RulesetId == "" {
		return fmt.Errorf("ruleset_id is required")
	}

	ver, err := semver.NewVersion(rs.Version)
	if err != nil {
		return fmt.Errorf("ruleset %s: invalid version %q: %w", rs.RulesetId, rs.Version, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.bundles[rs.RulesetId] = append(l.bundles[rs.RulesetId], loadedRuleset{ruleset: rs, version: ver, path: path})
	return nil
}

// Active returns the highest version of ruleset_id satisfying constraint
// (a semver constraint expression, e.g. ">= 1.0.0, < 2.0.0"; empty string
// matches any version).
func (l *PolicyLoader) Active(rulesetId, constraint string) (Ruleset, string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	versions := l.bundles[rulesetId]
	if len(versions) == 0 {
		return Ruleset{}, "", false, nil
	}

	var c *semver.Constraints
	if constraint != "" {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return Ruleset{}, "", false, fmt.Errorf("constraints: invalid version constraint %q: %w", constraint, err)
		}
		c = parsed
	}

	var best *loadedRuleset
	for i := range versions {
		v := versions[i]
		if c != nil && !c.Check(v.version) {
			continue
		}
		if best == nil || v.version.GreaterThan(best.version) {
			best = &v
		}
	}
	if best == nil {
		return Ruleset{}, "", false, nil
	}
	return best.ruleset, best.path, true, nil
}

// AllRulesetIds returns every ruleset_id seen by the loader.
func (l *PolicyLoader) AllRulesetIds() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.bundles))
	for id := range l.bundles {
		ids = append(ids, id)
	}
	return ids
}
