package typepacks

import (
	"github.com/irrev-systems/irrev/pkg/events"
)

// ApprovalPack is the content contract for approval artifacts: a target
// artifact, the content ids it approves, a scope, an approver, and an
// optional force-ack flag.
type ApprovalPack struct{}

func (ApprovalPack) Validate(c map[string]any) []string {
	var errs []string
	errs = append(errs, schemaErrors(approvalJSONSchema, c)...)

	if target, _ := c["target_artifact_id"].(string); target == "" {
		errs = append(errs, "approval: target_artifact_id must be a non-empty string")
	}
	approved, ok := c["approved_content_ids"].([]any)
	if !ok || len(approved) == 0 {
		errs = append(errs, "approval: approved_content_ids must be a non-empty list")
	}
	if _, ok := c["scope"]; !ok {
		errs = append(errs, "approval: scope is required")
	}
	if approver, _ := c["approver"].(string); approver == "" {
		errs = append(errs, "approval: approver must be a non-empty string")
	}
	if v, ok := c["force_ack"]; ok {
		if _, ok := v.(bool); !ok {
			errs = append(errs, "approval: force_ack must be a boolean")
		}
	}
	return errs
}

func (ApprovalPack) ExtractInputs(c map[string]any) []events.InputRef {
	target, _ := c["target_artifact_id"].(string)
	if target == "" {
		return nil
	}
	return []events.InputRef{{ArtifactId: target, ContentId: ""}}
}

func (ApprovalPack) ComputePayloadManifest(c map[string]any) []events.ManifestRef {
	return nil
}
