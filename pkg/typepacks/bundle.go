package typepacks

import (
	"github.com/irrev-systems/irrev/pkg/events"
)

// BundlePack is the content contract for bundle artifacts: the closing
// record of an execution, referencing its plan, optional approval, and
// result, plus a reproducibility header.
type BundlePack struct{}

const bundleVersion = "bundle@v1"

func (BundlePack) Validate(c map[string]any) []string {
	var errs []string
	errs = append(errs, schemaErrors(bundleJSONSchema, c)...)

	if v, _ := c["version"].(string); v != bundleVersion {
		errs = append(errs, "bundle: version must be \""+bundleVersion+"\"")
	}
	if op, _ := c["operation"].(string); op == "" {
		errs = append(errs, "bundle: operation must be a non-empty string")
	}
	if ts, _ := c["timestamp"].(string); ts == "" {
		errs = append(errs, "bundle: timestamp must be a non-empty ISO string")
	}

	artifacts, ok := c["artifacts"].(map[string]any)
	if !ok {
		errs = append(errs, "bundle: artifacts must be a mapping")
	} else {
		if plan, _ := artifacts["plan"].(string); plan == "" {
			errs = append(errs, "bundle: artifacts.plan is required")
		}
		if result, _ := artifacts["result"].(string); result == "" {
			errs = append(errs, "bundle: artifacts.result is required")
		}
	}

	repro, ok := c["repro"].(map[string]any)
	if !ok {
		errs = append(errs, "bundle: repro must be a mapping")
	} else {
		if _, ok := repro["surface"]; !ok {
			errs = append(errs, "bundle: repro.surface is required")
		}
		if _, ok := repro["engine_version"]; !ok {
			errs = append(errs, "bundle: repro.engine_version is required")
		}
	}
	return errs
}

func (BundlePack) ExtractInputs(c map[string]any) []events.InputRef {
	artifacts, ok := c["artifacts"].(map[string]any)
	if !ok {
		return nil
	}
	var out []events.InputRef
	if plan, _ := artifacts["plan"].(string); plan != "" {
		out = append(out, events.InputRef{ArtifactId: plan})
	}
	if approval, _ := artifacts["approval"].(string); approval != "" {
		out = append(out, events.InputRef{ArtifactId: approval})
	}
	if result, _ := artifacts["result"].(string); result != "" {
		out = append(out, events.InputRef{ArtifactId: result})
	}
	return out
}

func (BundlePack) ComputePayloadManifest(c map[string]any) []events.ManifestRef {
	return nil
}
