// Package planmanager implements the plan-protocol state machine:
// propose, validate, approve, execute, each a thin orchestration over
// ContentStore, the Ledger, RiskEngine, and TypePacks.
package planmanager

import (
	"context"
	"fmt"

	"github.com/irrev-systems/irrev/pkg/artifactid"
	"github.com/irrev-systems/irrev/pkg/content"
	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/ledger"
	"github.com/irrev-systems/irrev/pkg/ledgererr"
	"github.com/irrev-systems/irrev/pkg/risk"
	"github.com/irrev-systems/irrev/pkg/snapshot"
	"github.com/irrev-systems/irrev/pkg/typepacks"
)

// Manager drives the plan lifecycle over a content store and ledger.
type Manager struct {
	Store  content.Store
	Ledger *ledger.Ledger
}

// New returns a Manager backed by store and led.
func New(store content.Store, led *ledger.Ledger) *Manager {
	return &Manager{Store: store, Ledger: led}
}

// ConstraintResult is the subset of a constraint-engine finding that
// Validate attaches to artifact.validated for audit purposes.
type ConstraintResult struct {
	RuleId string `json:"rule_id"`
	Result string `json:"result"`
}

// Propose builds a plan's content object, stores it, allocates a new
// artifact id, computes declared risk, extracts inputs/manifest via the
// plan TypePack, and appends artifact.created.
func (m *Manager) Propose(ctx context.Context, operation string, payload map[string]any, actor string, delegateTo string, inputs []events.InputRef, surface string) (string, error) {
	if operation == "" {
		return "", ledgererr.New(ledgererr.CodeTypePackValidationFailed, ledgererr.ClassificationNonRetryable, "operation must be non-empty")
	}

	c := map[string]any{
		"operation": operation,
		"payload":   payload,
	}
	if len(inputs) > 0 {
		rawInputs := make([]any, 0, len(inputs))
		for _, in := range inputs {
			rawInputs = append(rawInputs, map[string]any{
				"artifact_id": in.ArtifactId,
				"content_id":  in.ContentId,
			})
		}
		c["inputs"] = rawInputs
	}
	if delegateTo != "" {
		c["delegate_to"] = delegateTo
	}

	contentId, err := m.Store.Store(ctx, c)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "store plan content", err)
	}

	artifactId, err := artifactid.New()
	if err != nil {
		return "", fmt.Errorf("planmanager: generate artifact id: %w", err)
	}

	riskClass, reasons := risk.Compute(operation, payload)

	pack, _ := typepacks.For(events.TypePlan)
	extractedInputs := pack.ExtractInputs(c)
	manifest := pack.ComputePayloadManifest(c)

	eventPayload := map[string]any{
		"risk_class":      string(riskClass),
		"risk_reasons":    reasons,
		"operation":       operation,
		"payload_manifest": manifestToAny(manifest),
	}
	if len(extractedInputs) > 0 {
		eventPayload["inputs"] = inputsToAny(extractedInputs)
	}
	if delegateTo != "" {
		eventPayload["delegate_to"] = delegateTo
	}
	if surface != "" {
		eventPayload["surface"] = surface
	}

	e, err := events.New(events.ArtifactCreated, artifactId, actor, eventPayload,
		events.WithContentId(string(contentId)), events.WithArtifactType(events.TypePlan))
	if err != nil {
		return "", fmt.Errorf("planmanager: build created event: %w", err)
	}
	if err := m.Ledger.Append(e); err != nil {
		return "", fmt.Errorf("planmanager: append created event: %w", err)
	}
	return artifactId, nil
}

// Validate loads the plan's content, runs its TypePack, recomputes risk
// authoritatively, and appends artifact.validated (plus artifact.rejected
// if validation failed or content is missing).
func (m *Manager) Validate(ctx context.Context, artifactId string, validator string, constraintResults []ConstraintResult) (bool, error) {
	snap, err := m.Ledger.Snapshot(artifactId)
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.CodeArtifactNotFound, ledgererr.ClassificationNonRetryable, artifactId, err)
	}
	if snap.Status != snapshot.StatusCreated {
		return false, ledgererr.New(ledgererr.CodeStateMachineViolation, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("artifact %s must be in created state to validate, is %s", artifactId, snap.Status))
	}

	c, ok, err := m.Store.Get(ctx, content.Id(snap.ContentId))
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "load plan content", err)
	}
	if !ok {
		return false, m.appendMissingContent(artifactId, validator)
	}

	cm, ok := c.(map[string]any)
	if !ok {
		return false, m.appendMissingContent(artifactId, validator)
	}

	pack, _ := typepacks.For(events.TypePlan)
	errs := pack.Validate(cm)

	operation, _ := cm["operation"].(string)
	payload, _ := cm["payload"].(map[string]any)
	computedRisk, reasons := risk.Compute(operation, payload)

	eventPayload := map[string]any{
		"validator":           validator,
		"errors":              stringsToAny(errs),
		"computed_risk_class": string(computedRisk),
		"risk_reasons":        reasons,
	}
	if len(constraintResults) > 0 {
		eventPayload["constraint_results"] = constraintResultsToAny(constraintResults)
	}

	e, err := events.New(events.ArtifactValidated, artifactId, validator, eventPayload)
	if err != nil {
		return false, fmt.Errorf("planmanager: build validated event: %w", err)
	}
	if err := m.Ledger.Append(e); err != nil {
		return false, fmt.Errorf("planmanager: append validated event: %w", err)
	}

	if len(errs) > 0 {
		rejected, err := events.New(events.ArtifactRejected, artifactId, validator, map[string]any{
			"reason": "validation failed",
			"stage":  "validation",
		})
		if err != nil {
			return false, fmt.Errorf("planmanager: build rejected event: %w", err)
		}
		if err := m.Ledger.Append(rejected); err != nil {
			return false, fmt.Errorf("planmanager: append rejected event: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (m *Manager) appendMissingContent(artifactId, validator string) error {
	validated, err := events.New(events.ArtifactValidated, artifactId, validator, map[string]any{
		"validator": validator,
		"errors":    []any{"missing content"},
	})
	if err != nil {
		return err
	}
	if err := m.Ledger.Append(validated); err != nil {
		return err
	}
	rejected, err := events.New(events.ArtifactRejected, artifactId, validator, map[string]any{
		"reason": "missing content",
		"stage":  "validation",
	})
	if err != nil {
		return err
	}
	return m.Ledger.Append(rejected)
}

// Approve requires the target to be validated with no errors, enforces
// force-ack on destructive risk, stores and appends a new approval
// artifact, and atomically appends artifact.approved on the target.
func (m *Manager) Approve(ctx context.Context, artifactId, approver, scope string, forceAck bool) (string, error) {
	snap, err := m.Ledger.Snapshot(artifactId)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeArtifactNotFound, ledgererr.ClassificationNonRetryable, artifactId, err)
	}
	if snap.Status != snapshot.StatusValidated {
		return "", ledgererr.New(ledgererr.CodeStateMachineViolation, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("artifact %s must be validated to approve, is %s", artifactId, snap.Status))
	}
	if len(snap.ValidationErrors) > 0 {
		return "", ledgererr.New(ledgererr.CodeStateMachineViolation, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("artifact %s has outstanding validation errors", artifactId))
	}

	riskClass := risk.Class(snap.ComputedRiskClass)
	if riskClass == "" {
		riskClass = risk.Class(snap.RiskClass)
	}
	if riskClass == "" {
		riskClass = risk.ExternalSideEffect
	}
	if risk.RequiresForceAck(riskClass) && !forceAck {
		return "", ledgererr.New(ledgererr.CodeForceAckRequired, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("artifact %s has destructive risk and requires force_ack", artifactId))
	}

	effectiveScope := scope
	if effectiveScope == "" {
		if op, ok := snap.Producer["operation"].(string); ok {
			effectiveScope = op
		}
	}

	approvalContent := map[string]any{
		"target_artifact_id":  artifactId,
		"approved_content_ids": []any{snap.ContentId},
		"scope":                effectiveScope,
		"approver":             approver,
		"force_ack":            forceAck,
	}
	approvalContentId, err := m.Store.Store(ctx, approvalContent)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "store approval content", err)
	}

	approvalArtifactId, err := artifactid.New()
	if err != nil {
		return "", fmt.Errorf("planmanager: generate approval artifact id: %w", err)
	}

	approvalCreated, err := events.New(events.ArtifactCreated, approvalArtifactId, approver, map[string]any{
		"operation":           "artifact.approve",
		"target_artifact_id":  artifactId,
		"risk_class":          string(risk.AppendOnly),
	}, events.WithContentId(string(approvalContentId)), events.WithArtifactType(events.TypeApproval))
	if err != nil {
		return "", fmt.Errorf("planmanager: build approval created event: %w", err)
	}

	targetApproved, err := events.New(events.ArtifactApproved, artifactId, approver, map[string]any{
		"approval_artifact_id": approvalArtifactId,
		"force_ack":            forceAck,
		"scope":                effectiveScope,
	})
	if err != nil {
		return "", fmt.Errorf("planmanager: build approved event: %w", err)
	}

	if err := m.Ledger.AppendMany([]events.Event{approvalCreated, targetApproved}); err != nil {
		return "", fmt.Errorf("planmanager: append approval events: %w", err)
	}
	return approvalArtifactId, nil
}

// HandlerFn executes a plan's content and returns a result payload, an
// erasure cost record, and a creation summary.
type HandlerFn func(ctx context.Context, planContent map[string]any) (result map[string]any, erasureCost map[string]any, creationSummary map[string]any, err error)

// Execute requires the target to be approved (and the approval verified
// against the content it targets, when approval is risk-required),
// enforces a delegate_to match, runs handlerFn, stores the result, and
// atomically appends artifact.created for the result plus artifact.executed
// on the target.
func (m *Manager) Execute(ctx context.Context, artifactId, executor string, delegateTo string, handlerFn HandlerFn) (string, error) {
	snap, err := m.Ledger.Snapshot(artifactId)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeArtifactNotFound, ledgererr.ClassificationNonRetryable, artifactId, err)
	}
	if snap.Status != snapshot.StatusApproved {
		return "", ledgererr.New(ledgererr.CodeStateMachineViolation, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("artifact %s must be approved to execute, is %s", artifactId, snap.Status))
	}

	if snap.RequiresApproval() {
		if snap.ApprovalArtifactId == "" {
			return "", ledgererr.New(ledgererr.CodeApprovalRequired, ledgererr.ClassificationNonRetryable,
				fmt.Sprintf("artifact %s requires approval but none is recorded", artifactId))
		}
		approvalContent, ok, err := m.Store.Get(ctx, content.Id(mustSnapshotContentId(m, snap.ApprovalArtifactId)))
		if err != nil {
			return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "load approval content", err)
		}
		if !ok {
			return "", ledgererr.New(ledgererr.CodeContentNotFound, ledgererr.ClassificationNonRetryable, "approval content missing")
		}
		am, _ := approvalContent.(map[string]any)
		target, _ := am["target_artifact_id"].(string)
		approvedIds, _ := am["approved_content_ids"].([]any)
		if target != artifactId || !containsString(approvedIds, snap.ContentId) {
			return "", ledgererr.New(ledgererr.CodeStateMachineViolation, ledgererr.ClassificationNonRetryable,
				"approval does not target this artifact's content")
		}
	}

	if snap.DelegateTo != "" && delegateTo != "" && snap.DelegateTo != delegateTo {
		return "", ledgererr.New(ledgererr.CodeDelegateMismatch, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("execute called with delegate_to %q, plan requires %q", delegateTo, snap.DelegateTo))
	}

	planContent, ok, err := m.Store.Get(ctx, content.Id(snap.ContentId))
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "load plan content", err)
	}
	if !ok {
		return "", ledgererr.New(ledgererr.CodeContentNotFound, ledgererr.ClassificationNonRetryable, "plan content missing")
	}
	cm, _ := planContent.(map[string]any)

	result, erasureCost, creationSummary, err := handlerFn(ctx, cm)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeHandlerFailed, ledgererr.ClassificationCompensationRequired, "handler execution failed", err)
	}

	resultContentId, err := m.Store.Store(ctx, result)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "store result content", err)
	}
	resultArtifactId, err := artifactid.New()
	if err != nil {
		return "", fmt.Errorf("planmanager: generate result artifact id: %w", err)
	}

	resultCreated, err := events.New(events.ArtifactCreated, resultArtifactId, executor, map[string]any{
		"operation": "artifact.execute.result",
	}, events.WithContentId(string(resultContentId)), events.WithArtifactType(events.TypeExecutionSummary))
	if err != nil {
		return "", fmt.Errorf("planmanager: build result created event: %w", err)
	}

	targetExecuted, err := events.New(events.ArtifactExecuted, artifactId, executor, map[string]any{
		"result_artifact_id": resultArtifactId,
		"erasure_cost":        erasureCost,
		"creation_summary":    creationSummary,
		"executor":            executor,
	})
	if err != nil {
		return "", fmt.Errorf("planmanager: build executed event: %w", err)
	}

	if err := m.Ledger.AppendMany([]events.Event{resultCreated, targetExecuted}); err != nil {
		return "", fmt.Errorf("planmanager: append execution events: %w", err)
	}
	return resultArtifactId, nil
}

func mustSnapshotContentId(m *Manager, artifactId string) string {
	snap, err := m.Ledger.Snapshot(artifactId)
	if err != nil {
		return ""
	}
	return snap.ContentId
}

func containsString(list []any, s string) bool {
	for _, v := range list {
		if str, ok := v.(string); ok && str == s {
			return true
		}
	}
	return false
}

func manifestToAny(manifest []events.ManifestRef) []any {
	out := make([]any, 0, len(manifest))
	for _, m := range manifest {
		out = append(out, map[string]any{"path": m.Path, "bytes": m.Bytes, "sha256": m.SHA256})
	}
	return out
}

func inputsToAny(inputs []events.InputRef) []any {
	out := make([]any, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, map[string]any{"artifact_id": in.ArtifactId, "content_id": in.ContentId})
	}
	return out
}

func stringsToAny(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

func constraintResultsToAny(rs []ConstraintResult) []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, map[string]any{"rule_id": r.RuleId, "result": r.Result})
	}
	return out
}
