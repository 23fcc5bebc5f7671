// Package typepacks implements the per-artifact-type content contracts:
// structural JSON Schema validation plus hand-written semantic checks,
// input extraction, and payload manifest computation.
package typepacks

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/irrev-systems/irrev/pkg/content"
	"github.com/irrev-systems/irrev/pkg/events"
)

// Pack is the pure content contract for one artifact type.
type Pack interface {
	// Validate returns a list of human-readable errors; an empty slice means
	// the content is well-formed for this artifact type.
	Validate(c map[string]any) []string
	// ExtractInputs reads the content's declared input references.
	ExtractInputs(c map[string]any) []events.InputRef
	// ComputePayloadManifest computes a manifest over the content's file
	// list, if any.
	ComputePayloadManifest(c map[string]any) []events.ManifestRef
}

func compile(name, schemaSrc string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://irrev.schemas.local/typepacks/%s.schema.json", name)
	if err := compiler.AddResource(url, strings.NewReader(schemaSrc)); err != nil {
		panic(fmt.Sprintf("typepacks: schema %q failed to load: %v", name, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("typepacks: schema %q failed to compile: %v", name, err))
	}
	return schema
}

var (
	planJSONSchema     = compile("plan", planSchema)
	approvalJSONSchema = compile("approval", approvalSchema)
	bundleJSONSchema   = compile("bundle", bundleSchema)
)

// For returns the pack registered for artifact type t, or reports ok=false
// if t is unregistered.
func For(t events.ArtifactType) (Pack, bool) {
	p, ok := registry[t]
	return p, ok
}

var registry = map[events.ArtifactType]Pack{
	events.TypePlan:     PlanPack{},
	events.TypeApproval: ApprovalPack{},
	events.TypeBundle:   BundlePack{},
}

// Register installs or overrides the pack for artifact type t. Intended for
// extension by callers defining new artifact types; the core never
// introspects content shapes outside registered packs.
func Register(t events.ArtifactType, p Pack) {
	registry[t] = p
}

func extractInputsFromField(c map[string]any) []events.InputRef {
	raw, ok := c["inputs"].([]any)
	if !ok {
		return nil
	}
	out := make([]events.InputRef, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		aid, _ := m["artifact_id"].(string)
		cid, _ := m["content_id"].(string)
		out = append(out, events.InputRef{ArtifactId: aid, ContentId: cid})
	}
	return out
}

func manifestOverFiles(files any) []events.ManifestRef {
	m, ok := files.(map[string]any)
	if !ok {
		return nil
	}
	blobs := make(map[string][]byte, len(m))
	for path, v := range m {
		switch t := v.(type) {
		case string:
			blobs[path] = []byte(t)
		case []byte:
			blobs[path] = t
		}
	}
	computed := content.ComputePayloadManifest(blobs)
	out := make([]events.ManifestRef, 0, len(computed))
	for _, e := range computed {
		out = append(out, events.ManifestRef{Path: e.Path, Bytes: e.Bytes, SHA256: e.SHA256})
	}
	return out
}

func schemaErrors(schema *jsonschema.Schema, c map[string]any) []string {
	if err := schema.Validate(c); err != nil {
		return []string{fmt.Sprintf("schema validation failed: %v", err)}
	}
	return nil
}
