// Package harness orchestrates the propose/validate/approve/execute plan
// lifecycle end to end: it derives risk from a handler's declared plan,
// drives PlanManager and the constraint engine, phases execution with
// lifecycle logging, and emits the closing bundle artifact.
package harness

import "context"

// EffectSummary is a handler's own prediction of what its plan will do,
// consumed by risk.Compute as the payload's "effects" dict.
type EffectSummary struct {
	EffectType  string
	Destructive bool
	Writes      bool
	Network     bool
	AppendOnly  bool
}

// Map renders the summary into the effects dict shape risk.Compute expects.
func (s EffectSummary) Map() map[string]any {
	m := map[string]any{
		"destructive": s.Destructive,
		"writes":      s.Writes,
		"network":     s.Network,
		"append_only": s.AppendOnly,
	}
	if s.EffectType != "" {
		m["effect_type"] = s.EffectType
	}
	return m
}

// ErasureCost records what an execution destroyed or invalidated, attached
// to artifact.executed for audit purposes.
type ErasureCost map[string]any

// CreationSummary records what an execution produced, attached to
// artifact.executed alongside ErasureCost.
type CreationSummary map[string]any

// HarnessPlan is the capability a Handler's computed plan must expose to
// the harness: enough to derive risk and produce a human summary, without
// the harness ever knowing the plan's concrete type.
type HarnessPlan interface {
	EffectSummary() EffectSummary
	Summary() string
}

// HandlerResult is the capability a Handler's execution result must expose.
type HandlerResult interface {
	Erased() ErasureCost
	Created() CreationSummary
}

// ExecutionContext is handed to Handler.Execute; it never carries resolved
// secret values, only a reference string a SecretsProvider can resolve.
type ExecutionContext struct {
	VaultPath          string
	Executor           string
	PlanArtifactId     string
	ApprovalArtifactId string
	DryRun             bool
	SecretsRef         string
}

// HandlerMetadata describes a handler for logging and bundle repro headers.
type HandlerMetadata struct {
	Name       string
	Operation  string
	Surface    string
	DelegateTo string
}

// Handler is variant over the capability set {validate_params, compute_plan,
// validate_plan, execute}. Implementations type-assert their own concrete
// plan/result types internally; the harness is deliberately not generic
// over them.
type Handler interface {
	Metadata() HandlerMetadata
	ValidateParams(ctx context.Context, params map[string]any) error
	ComputePlan(ctx context.Context, params map[string]any) (HarnessPlan, error)
	ValidatePlan(ctx context.Context, plan HarnessPlan) error
	Execute(ctx context.Context, plan HarnessPlan, execCtx ExecutionContext) (HandlerResult, error)
}
