package typepacks

import (
	"fmt"

	"github.com/irrev-systems/irrev/pkg/events"
)

// PlanPack is the content contract for plan artifacts: an operation name,
// an open payload map, and optional input references and file manifest.
type PlanPack struct{}

func (PlanPack) Validate(c map[string]any) []string {
	var errs []string
	errs = append(errs, schemaErrors(planJSONSchema, c)...)

	op, _ := c["operation"].(string)
	if op == "" {
		errs = append(errs, "plan: operation must be a non-empty string")
	}
	if _, ok := c["payload"].(map[string]any); !ok {
		errs = append(errs, "plan: payload must be a mapping")
	}

	if raw, ok := c["inputs"].([]any); ok {
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("plan: inputs[%d] must be a mapping", i))
				continue
			}
			aid, _ := m["artifact_id"].(string)
			cid, _ := m["content_id"].(string)
			if aid == "" || cid == "" {
				errs = append(errs, fmt.Sprintf("plan: inputs[%d] must have both artifact_id and content_id", i))
			}
		}
	}
	return errs
}

func (PlanPack) ExtractInputs(c map[string]any) []events.InputRef {
	return extractInputsFromField(c)
}

func (PlanPack) ComputePayloadManifest(c map[string]any) []events.ManifestRef {
	payload, ok := c["payload"].(map[string]any)
	if !ok {
		return nil
	}
	files, ok := payload["files"]
	if !ok {
		return nil
	}
	return manifestOverFiles(files)
}
