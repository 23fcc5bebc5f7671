package typepacks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irrev-systems/irrev/pkg/events"
)

func TestPlanPack_ValidRequiresOperationAndPayload(t *testing.T) {
	p := PlanPack{}
	errs := p.Validate(map[string]any{
		"operation": "lint",
		"payload":   map[string]any{},
	})
	require.Empty(t, errs)
}

func TestPlanPack_RejectsMissingOperation(t *testing.T) {
	p := PlanPack{}
	errs := p.Validate(map[string]any{
		"payload": map[string]any{},
	})
	require.NotEmpty(t, errs)
}

func TestPlanPack_ValidateRequiresBothInputIdsAndExtractInputsReadsThem(t *testing.T) {
	p := PlanPack{}
	errs := p.Validate(map[string]any{
		"operation": "lint",
		"payload":   map[string]any{},
		"inputs": []any{
			map[string]any{"artifact_id": "a1"},
		},
	})
	require.NotEmpty(t, errs)

	inputs := p.ExtractInputs(map[string]any{
		"inputs": []any{
			map[string]any{"artifact_id": "a1", "content_id": "c1"},
		},
	})
	require.Equal(t, []events.InputRef{{ArtifactId: "a1", ContentId: "c1"}}, inputs)
}

func TestPlanPack_ComputesManifestOverFiles(t *testing.T) {
	p := PlanPack{}
	manifest := p.ComputePayloadManifest(map[string]any{
		"payload": map[string]any{
			"files": map[string]any{
				"a.txt": "hello",
			},
		},
	})
	require.Len(t, manifest, 1)
	require.Equal(t, "a.txt", manifest[0].Path)
	require.Equal(t, 5, manifest[0].Bytes)
}

func TestApprovalPack_RequiresFields(t *testing.T) {
	p := ApprovalPack{}
	errs := p.Validate(map[string]any{
		"target_artifact_id":  "a1",
		"approved_content_ids": []any{"c1"},
		"scope":                "lint",
		"approver":             "operator",
	})
	require.Empty(t, errs)
}

func TestApprovalPack_RejectsEmptyApprovedContentIds(t *testing.T) {
	p := ApprovalPack{}
	errs := p.Validate(map[string]any{
		"target_artifact_id":  "a1",
		"approved_content_ids": []any{},
		"scope":                "lint",
		"approver":             "operator",
	})
	require.NotEmpty(t, errs)
}

func TestApprovalPack_RejectsNonBoolForceAck(t *testing.T) {
	p := ApprovalPack{}
	errs := p.Validate(map[string]any{
		"target_artifact_id":  "a1",
		"approved_content_ids": []any{"c1"},
		"scope":                "lint",
		"approver":             "operator",
		"force_ack":            "yes",
	})
	require.NotEmpty(t, errs)
}

func TestBundlePack_RequiresExactVersion(t *testing.T) {
	p := BundlePack{}
	errs := p.Validate(map[string]any{
		"version":   "bundle@v2",
		"operation": "lint",
		"timestamp": "2026-07-31T00:00:00Z",
		"artifacts": map[string]any{"plan": "p1", "result": "r1"},
		"repro":     map[string]any{"surface": "cli", "engine_version": "1.0"},
	})
	require.NotEmpty(t, errs)
}

func TestBundlePack_ValidComplete(t *testing.T) {
	p := BundlePack{}
	errs := p.Validate(map[string]any{
		"version":   "bundle@v1",
		"operation": "lint",
		"timestamp": "2026-07-31T00:00:00Z",
		"artifacts": map[string]any{"plan": "p1", "result": "r1"},
		"repro":     map[string]any{"surface": "cli", "engine_version": "1.0"},
	})
	require.Empty(t, errs)
}

func TestFor_ReturnsRegisteredPack(t *testing.T) {
	_, ok := For(events.TypePlan)
	require.True(t, ok)
	_, ok = For(events.ArtifactType("unknown"))
	require.False(t, ok)
}
