package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/irrev-systems/irrev/pkg/artifactid"
	"github.com/irrev-systems/irrev/pkg/budget"
	"github.com/irrev-systems/irrev/pkg/constraints"
	"github.com/irrev-systems/irrev/pkg/content"
	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/ledger"
	"github.com/irrev-systems/irrev/pkg/ledgererr"
	"github.com/irrev-systems/irrev/pkg/observability"
	"github.com/irrev-systems/irrev/pkg/planmanager"
	"github.com/irrev-systems/irrev/pkg/risk"
	"github.com/irrev-systems/irrev/pkg/snapshot"
)

// RulesetInfo identifies one active ruleset consulted during a Propose's
// constraint validation pass and recorded in the plan's captured context.
type RulesetInfo struct {
	Id        string
	Version   string
	ContentId string
	Path      string
}

// VaultState is the harness's snapshot of vault identity at propose time:
// a content hash standing in for the full vault tree, plus note counts.
type VaultState struct {
	ContentHash string         `json:"content_hash"`
	NoteCounts  map[string]int `json:"note_counts"`
	Timestamp   time.Time      `json:"timestamp"`
}

// VaultStateFn captures the vault's current identity for a plan's context.
type VaultStateFn func(ctx context.Context) (VaultState, error)

// ActiveRuleset pairs a RulesetInfo with its parsed body so Propose can
// both run it and cite it in the captured context.
type ActiveRuleset struct {
	Info    RulesetInfo
	Ruleset constraints.Ruleset
}

// ActiveRulesetsFn returns the rulesets the harness should validate a plan
// against, and run the constraint engine over, at propose time.
type ActiveRulesetsFn func() ([]ActiveRuleset, error)

// Harness orchestrates Propose/Execute/Run over a Manager, content store,
// ledger, and constraint engine, adding risk-derived approval gating,
// phased execution logging, rate-limited side effects, and bundle emission.
type Harness struct {
	Manager     *planmanager.Manager
	Store       content.Store
	Ledger      *ledger.Ledger
	Constraints *constraints.Engine
	Obs         *observability.Provider
	Secrets     SecretsProvider

	// Budget, when set, gates every proposed plan on a per-delegate_to
	// risk-weighted budget in addition to the unconditional approval gate
	// risk.Compute already derives. Nil disables the layer entirely.
	Budget *budget.RiskEnforcer

	EngineVersion string
	Environment   string
	VaultPath     string

	VaultState     VaultStateFn
	ActiveRulesets ActiveRulesetsFn

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	limiterRPS rate.Limit
	limiterBurst int
}

// New returns a Harness whose per-delegate_to execute-phase rate limiter
// allows 5 RPS with a burst of 10; WithRateLimit overrides that (0 RPS
// disables limiting).
func New(mgr *planmanager.Manager, store content.Store, led *ledger.Ledger, engine *constraints.Engine, obs *observability.Provider, engineVersion, environment string) *Harness {
	return &Harness{
		Manager:       mgr,
		Store:         store,
		Ledger:        led,
		Constraints:   engine,
		Obs:           obs,
		Secrets:       NewCompositeSecretsProvider(),
		EngineVersion: engineVersion,
		Environment:   environment,
		limiters:      make(map[string]*rate.Limiter),
		limiterRPS:    5,
		limiterBurst:  10,
	}
}

// WithRateLimit overrides the per-delegate_to execute-phase limiter.
func (h *Harness) WithRateLimit(rps rate.Limit, burst int) *Harness {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()
	h.limiterRPS, h.limiterBurst = rps, burst
	h.limiters = make(map[string]*rate.Limiter)
	return h
}

// WithBudget attaches a RiskEnforcer so Propose and Run additionally gate on
// a per-delegate_to risk-weighted budget.
func (h *Harness) WithBudget(b *budget.RiskEnforcer) *Harness {
	h.Budget = b
	return h
}

func (h *Harness) limiterFor(delegateTo string) *rate.Limiter {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()
	l, ok := h.limiters[delegateTo]
	if !ok {
		limit := h.limiterRPS
		if limit == 0 {
			limit = rate.Inf
		}
		l = rate.NewLimiter(limit, h.limiterBurst)
		h.limiters[delegateTo] = l
	}
	return l
}

// ProposeResult is what Harness.Propose returns to the caller.
type ProposeResult struct {
	PlanArtifactId   string
	RiskClass        string
	RequiresApproval bool
	RequiresForceAck bool
	PlanSummary      string
	ValidationErrors []string
}

// Propose validates params, computes and validates a plan via handler,
// derives risk from the plan's effect summary, captures vault/ruleset
// context, proposes the plan, runs constraint validation against active
// rulesets, and validates the plan.
func (h *Harness) Propose(ctx context.Context, handler Handler, params map[string]any, actor, surface string) (ProposeResult, error) {
	meta := handler.Metadata()

	if err := handler.ValidateParams(ctx, params); err != nil {
		return ProposeResult{}, ledgererr.Wrap(ledgererr.CodeTypePackValidationFailed, ledgererr.ClassificationNonRetryable, "validate_params failed", err)
	}

	plan, err := handler.ComputePlan(ctx, params)
	if err != nil {
		return ProposeResult{}, fmt.Errorf("harness: compute_plan: %w", err)
	}
	if err := handler.ValidatePlan(ctx, plan); err != nil {
		return ProposeResult{}, ledgererr.Wrap(ledgererr.CodeTypePackValidationFailed, ledgererr.ClassificationNonRetryable, "validate_plan failed", err)
	}

	effects := plan.EffectSummary()
	payload := map[string]any{"effects": effects.Map()}
	if effects.EffectType != "" {
		payload["effect_type"] = effects.EffectType
	}
	riskClass, riskReasons := risk.Compute(meta.Operation, payload)

	if err := h.checkRiskBudget(meta.DelegateTo, riskClass, effects); err != nil {
		return ProposeResult{}, err
	}

	rulesetCtxs, err := h.loadActiveRulesets()
	if err != nil {
		return ProposeResult{}, fmt.Errorf("harness: load active rulesets: %w", err)
	}

	vaultState, err := h.captureVaultState(ctx)
	if err != nil {
		return ProposeResult{}, fmt.Errorf("harness: capture vault_state: %w", err)
	}

	capturedContext := map[string]any{
		"vault_state":     vaultState,
		"active_rulesets": rulesetInfosToAny(rulesetCtxs),
		"surface":         surface,
		"engine_version":  h.EngineVersion,
		"environment":     h.Environment,
	}

	planMetadata := map[string]any{
		"predicted_erasure": nil,
		"predicted_outputs": nil,
		"effect_reasons":    riskReasons,
	}

	// "effects"/"effect_type" are duplicated at the top level (alongside the
	// richer "effect_summary") because risk.Compute recomputes risk from
	// exactly these keys whenever planmanager.Validate reloads the stored
	// payload; declared and recomputed risk must agree on the same effects.
	proposePayload := mergePayloads(params, payload)
	proposePayload = mergePayloads(proposePayload, map[string]any{
		"plan_summary":   plan.Summary(),
		"effect_summary": effects.Map(),
		"context":        capturedContext,
		"plan_metadata":  planMetadata,
	})

	planArtifactId, err := h.Manager.Propose(ctx, meta.Operation, proposePayload, actor, meta.DelegateTo, nil, surface)
	if err != nil {
		return ProposeResult{}, fmt.Errorf("harness: propose: %w", err)
	}

	constraintResults, err := h.runConstraints(rulesetCtxs, planArtifactId)
	if err != nil {
		return ProposeResult{}, fmt.Errorf("harness: run constraints: %w", err)
	}

	if _, err := h.Manager.Validate(ctx, planArtifactId, "system:harness", constraintResults); err != nil {
		return ProposeResult{}, fmt.Errorf("harness: validate: %w", err)
	}

	snap, err := h.Ledger.Snapshot(planArtifactId)
	if err != nil {
		return ProposeResult{}, fmt.Errorf("harness: load snapshot after validate: %w", err)
	}

	return ProposeResult{
		PlanArtifactId:   planArtifactId,
		RiskClass:        string(riskClass),
		RequiresApproval: snap.RequiresApproval(),
		RequiresForceAck: risk.RequiresForceAck(riskClass),
		PlanSummary:      plan.Summary(),
		ValidationErrors: snap.ValidationErrors,
	}, nil
}

func (h *Harness) loadActiveRulesets() ([]ActiveRuleset, error) {
	if h.ActiveRulesets == nil {
		return nil, nil
	}
	return h.ActiveRulesets()
}

func (h *Harness) captureVaultState(ctx context.Context) (VaultState, error) {
	if h.VaultState == nil {
		return VaultState{Timestamp: time.Now().UTC()}, nil
	}
	return h.VaultState(ctx)
}

func (h *Harness) runConstraints(rulesets []ActiveRuleset, planArtifactId string) ([]planmanager.ConstraintResult, error) {
	if h.Constraints == nil || len(rulesets) == 0 {
		return nil, nil
	}

	var out []planmanager.ConstraintResult
	for _, ar := range rulesets {
		findings, err := h.Constraints.Run(ar.Ruleset, constraints.Context{
			Ledger:     h.Ledger,
			ArtifactId: planArtifactId,
			EmitEvents: true,
		})
		if err != nil {
			return nil, err
		}
		if len(findings) == 0 {
			out = append(out, planmanager.ConstraintResult{RuleId: ar.Ruleset.RulesetId, Result: "pass"})
			continue
		}
		for _, f := range findings {
			result := "warning"
			if f.Level == constraints.SeverityError {
				result = "fail"
			}
			out = append(out, planmanager.ConstraintResult{RuleId: f.RuleId, Result: result})
		}
	}
	return out, nil
}

// Execute loads the plan's snapshot, enforces the approval gate, rebuilds
// the plan via the handler's compute_plan, and (unless dry_run) runs the
// prepare/execute/commit phases before emitting a closing bundle artifact.
// It returns the bundle's artifact id.
func (h *Harness) Execute(ctx context.Context, planArtifactId string, handler Handler, executor, secretsRef string, dryRun bool) (string, error) {
	snap, err := h.Ledger.Snapshot(planArtifactId)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeArtifactNotFound, ledgererr.ClassificationNonRetryable, planArtifactId, err)
	}

	if snap.Status == snapshot.StatusValidated && snap.RequiresApproval() {
		rejected, err := events.New(events.ArtifactRejected, planArtifactId, executor, map[string]any{
			"reason": "approval_required",
			"stage":  "execution_gate",
		})
		if err == nil {
			_ = h.Ledger.Append(rejected)
		}
		return "", ledgererr.New(ledgererr.CodeApprovalRequired, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("plan %s requires approval before execution", planArtifactId))
	}
	if snap.Status != snapshot.StatusApproved {
		return "", ledgererr.New(ledgererr.CodeStateMachineViolation, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("plan %s must be approved to execute, is %s", planArtifactId, snap.Status))
	}

	planContentAny, ok, err := h.Store.Get(ctx, content.Id(snap.ContentId))
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "load plan content", err)
	}
	if !ok {
		return "", ledgererr.New(ledgererr.CodeContentNotFound, ledgererr.ClassificationNonRetryable, "plan content missing")
	}
	planContent, _ := planContentAny.(map[string]any)
	params, _ := planContent["payload"].(map[string]any)

	plan, err := handler.ComputePlan(ctx, params)
	if err != nil {
		return "", fmt.Errorf("harness: reconstruct plan: %w", err)
	}

	meta := handler.Metadata()
	execCtx := ExecutionContext{
		VaultPath:          h.VaultPath,
		Executor:           executor,
		PlanArtifactId:     planArtifactId,
		ApprovalArtifactId: snap.ApprovalArtifactId,
		DryRun:             dryRun,
		SecretsRef:         secretsRef,
	}
	if dryRun {
		return "", nil
	}

	executionId := uuid.NewSHA1(uuid.NameSpaceOID, []byte(planArtifactId+time.Now().UTC().Format(time.RFC3339Nano))).String()

	if err := h.runPhase(ctx, planArtifactId, executionId, "prepare", func(ctx context.Context) error {
		return nil
	}); err != nil {
		return "", err
	}

	if err := h.limiterFor(meta.DelegateTo).Wait(ctx); err != nil {
		return "", fmt.Errorf("harness: rate limiter: %w", err)
	}

	var resultArtifactId string
	if err := h.runPhase(ctx, planArtifactId, executionId, "execute", func(ctx context.Context) error {
		rid, err := h.Manager.Execute(ctx, planArtifactId, executor, meta.DelegateTo, func(ctx context.Context, _ map[string]any) (map[string]any, map[string]any, map[string]any, error) {
			res, err := handler.Execute(ctx, plan, execCtx)
			if err != nil {
				return nil, nil, nil, err
			}
			return map[string]any{}, map[string]any(res.Erased()), map[string]any(res.Created()), nil
		})
		if err != nil {
			return err
		}
		resultArtifactId = rid
		return nil
	}); err != nil {
		return "", err
	}

	if err := h.runPhase(ctx, planArtifactId, executionId, "commit", func(ctx context.Context) error {
		return nil
	}); err != nil {
		return "", err
	}

	bundleArtifactId, err := h.emitBundle(ctx, planArtifactId, snap, resultArtifactId, executor, executionId)
	if err != nil {
		return "", fmt.Errorf("harness: emit bundle: %w", err)
	}
	return bundleArtifactId, nil
}

// runPhase appends execution.logged started/completed/failed events around
// fn and wraps it in an OTel span, mirroring the harness's phased lifecycle
// logging contract.
func (h *Harness) runPhase(ctx context.Context, planArtifactId, executionId, phase string, fn func(ctx context.Context) error) error {
	attrs := []attribute.KeyValue{
		attribute.String("irrev.execution_id", executionId),
		attribute.String("irrev.phase", phase),
		attribute.String("irrev.plan_artifact_id", planArtifactId),
	}

	var spanCtx context.Context
	var endSpan func(error)
	if h.Obs != nil {
		spanCtx, endSpan = h.Obs.TrackPhase(ctx, phase, attrs...)
	} else {
		spanCtx, endSpan = ctx, func(error) {}
	}

	start := time.Now()
	h.appendExecutionLog(planArtifactId, executionId, phase, "started", start, 0, nil, nil)

	err := fn(spanCtx)
	duration := time.Since(start)
	endSpan(err)

	if err != nil {
		h.appendExecutionLog(planArtifactId, executionId, phase, "failed", start, duration, nil, err)
		return err
	}
	h.appendExecutionLog(planArtifactId, executionId, phase, "completed", start, duration, nil, nil)
	return nil
}

func (h *Harness) appendExecutionLog(artifactId, executionId, phase, status string, start time.Time, duration time.Duration, resources map[string]any, cause error) {
	payload := map[string]any{
		"execution_id": executionId,
		"phase":        phase,
		"status":       status,
		"started_at":   start.UTC(),
	}
	if status != "started" {
		payload["duration_ms"] = duration.Milliseconds()
	}
	if resources != nil {
		payload["resources"] = resources
	}
	if cause != nil {
		payload["error_type"] = errorType(cause)
		payload["error"] = truncateError(cause)
	}

	e, err := events.New(events.ExecutionLogged, artifactId, "system:harness", payload)
	if err != nil {
		return
	}
	_ = h.Ledger.Append(e)
}

func truncateError(err error) string {
	s := err.Error()
	const max = 500
	if len(s) > max {
		return s[:max]
	}
	return s
}

// errorType names the Go type of the innermost error in err's wrap chain,
// e.g. "*errors.errorString", so a wrapped handler error keeps its own type.
func errorType(err error) string {
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(err) {
		err = next
	}
	return fmt.Sprintf("%T", err)
}

func (h *Harness) emitBundle(ctx context.Context, planArtifactId string, planSnap snapshot.Snapshot, resultArtifactId, actor, executionId string) (string, error) {
	rulesets, _ := h.loadActiveRulesets()
	vaultState, _ := h.captureVaultState(ctx)

	bundleContent := map[string]any{
		"version":   "bundle@v1",
		"operation": "harness.execute",
		"timestamp": time.Now().UTC(),
		"artifacts": map[string]any{
			"plan":     planArtifactId,
			"approval": planSnap.ApprovalArtifactId,
			"result":   resultArtifactId,
		},
		"repro": map[string]any{
			"active_rulesets": rulesetInfosToAny(rulesets),
			"vault_state":     vaultState,
			"surface":         planSnap.Producer["surface"],
			"engine_version":  h.EngineVersion,
			"environment":     h.Environment,
			"execution_id":    executionId,
		},
	}

	contentId, err := h.Store.Store(ctx, bundleContent)
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.CodeContentNotFound, ledgererr.ClassificationRetryable, "store bundle content", err)
	}

	bundleArtifactId, err := newBundleArtifactId()
	if err != nil {
		return "", err
	}

	bundleCreated, err := events.New(events.ArtifactCreated, bundleArtifactId, actor, map[string]any{
		"operation":   "harness.bundle",
		"risk_class":  string(risk.ReadOnly),
		"plan_artifact_id": planArtifactId,
	}, events.WithContentId(string(contentId)), events.WithArtifactType(events.TypeBundle))
	if err != nil {
		return "", err
	}
	if err := h.Ledger.Append(bundleCreated); err != nil {
		return "", err
	}
	return bundleArtifactId, nil
}

// Run proposes, auto-approves when (and only when) requires_approval is
// false, and executes. If approval is required, it returns an error
// instructing the caller to approve explicitly rather than silently
// executing a risky plan.
func (h *Harness) Run(ctx context.Context, handler Handler, params map[string]any, actor, surface, executor string) (string, error) {
	proposed, err := h.Propose(ctx, handler, params, actor, surface)
	if err != nil {
		return "", err
	}
	if len(proposed.ValidationErrors) > 0 {
		return "", ledgererr.New(ledgererr.CodeTypePackValidationFailed, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("plan %s failed validation: %v", proposed.PlanArtifactId, proposed.ValidationErrors))
	}
	if proposed.RequiresApproval {
		return "", ledgererr.New(ledgererr.CodeApprovalRequired, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("plan %s requires explicit approval before Run can execute it", proposed.PlanArtifactId))
	}
	if !h.autonomousAllowed(handler.Metadata().DelegateTo, risk.Class(proposed.RiskClass)) {
		return "", ledgererr.New(ledgererr.CodeApprovalRequired, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("plan %s risk class %s exceeds delegate_to's current autonomy level", proposed.PlanArtifactId, proposed.RiskClass))
	}

	if _, err := h.Manager.Approve(ctx, proposed.PlanArtifactId, "system:harness", "", false); err != nil {
		return "", fmt.Errorf("harness: auto-approve: %w", err)
	}

	return h.Execute(ctx, proposed.PlanArtifactId, handler, executor, "", false)
}

func mergePayloads(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func rulesetInfosToAny(rulesets []ActiveRuleset) []any {
	out := make([]any, 0, len(rulesets))
	for _, r := range rulesets {
		out = append(out, map[string]any{
			"id": r.Info.Id, "version": r.Info.Version,
			"content_id": r.Info.ContentId, "path": r.Info.Path,
		})
	}
	return out
}

func newBundleArtifactId() (string, error) {
	id, err := artifactid.New()
	if err != nil {
		return "", fmt.Errorf("harness: generate bundle artifact id: %w", err)
	}
	return id, nil
}
