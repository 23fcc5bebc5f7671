package events

// Typed payload shapes, one per event type, with a ToMap conversion to the
// open wire-level payload. Handler-defined portions of a plan's own content
// (the "payload" field nested under a plan, or rule selector/predicate
// params) remain open maps by design — only the ledger event envelope
// itself is typed here.

// CreatedPayload is attached to every artifact.created event.
type CreatedPayload struct {
	Operation      string         `json:"operation"`
	RiskClass      string         `json:"risk_class"`
	RiskReasons    []string       `json:"risk_reasons,omitempty"`
	Inputs         []InputRef     `json:"inputs,omitempty"`
	PayloadManifest []ManifestRef `json:"payload_manifest,omitempty"`
	DelegateTo     string         `json:"delegate_to,omitempty"`
	Surface        string         `json:"surface,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// InputRef identifies one input artifact+content pair consumed by a plan.
type InputRef struct {
	ArtifactId string `json:"artifact_id"`
	ContentId  string `json:"content_id"`
}

// ManifestRef is one entry of a plan's payload manifest.
type ManifestRef struct {
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// ValidatedPayload is attached to every artifact.validated event.
type ValidatedPayload struct {
	Validator         string           `json:"validator"`
	Errors            []string         `json:"errors,omitempty"`
	ComputedRiskClass string           `json:"computed_risk_class"`
	RiskReasons       []string         `json:"risk_reasons,omitempty"`
	ConstraintResults []map[string]any `json:"constraint_results,omitempty"`
}

// ApprovedPayload is attached to every artifact.approved event.
type ApprovedPayload struct {
	ApprovalArtifactId string `json:"approval_artifact_id"`
	ForceAck           bool   `json:"force_ack"`
	Scope              string `json:"scope"`
}

// ExecutedPayload is attached to every artifact.executed event.
type ExecutedPayload struct {
	ResultArtifactId string         `json:"result_artifact_id"`
	ErasureCost      map[string]any `json:"erasure_cost,omitempty"`
	CreationSummary  map[string]any `json:"creation_summary,omitempty"`
	Executor         string         `json:"executor"`
}

// RejectedPayload is attached to every artifact.rejected event.
type RejectedPayload struct {
	Reason string `json:"reason"`
	Stage  string `json:"stage"`
}

// SupersededPayload is attached to every artifact.superseded event.
type SupersededPayload struct {
	SupersededBy string `json:"superseded_by"`
	Reason       string `json:"reason,omitempty"`
}

// ConstraintEvaluatedPayload is attached to every constraint.evaluated event.
type ConstraintEvaluatedPayload struct {
	RulesetId string         `json:"ruleset_id"`
	RuleId    string         `json:"rule_id"`
	Invariant string         `json:"invariant,omitempty"`
	Result    string         `json:"result"` // pass | fail | warning
	Evidence  map[string]any `json:"evidence,omitempty"`
}

// InvariantCheckedPayload is attached to every invariant.checked event.
type InvariantCheckedPayload struct {
	InvariantId    string   `json:"invariant_id"`
	Status         string   `json:"status"` // pass | fail
	RulesChecked   int      `json:"rules_checked"`
	Violations     int      `json:"violations"`
	AffectedItems  []string `json:"affected_items,omitempty"`
}

// ExecutionLoggedPayload is attached to every execution.logged event.
type ExecutionLoggedPayload struct {
	ExecutionId string         `json:"execution_id"`
	Phase       string         `json:"phase"` // prepare | execute | commit
	Status      string         `json:"status"` // started | completed | failed | skipped
	HandlerId   string         `json:"handler_id,omitempty"`
	PlanStepId  string         `json:"plan_step_id,omitempty"`
	Attempt     int            `json:"attempt"`
	StartedAt   string         `json:"started_at,omitempty"`
	EndedAt     string         `json:"ended_at,omitempty"`
	DurationMs  *int64         `json:"duration_ms,omitempty"`
	Resources   map[string]any `json:"resources,omitempty"`
	ErrorType   string         `json:"error_type,omitempty"`
	Error       string         `json:"error,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// ToMap renders a typed payload into the open map Event.Payload expects, by
// round-tripping through JSON (matching the teacher's codebase's general
// approach of open maps at the wire boundary with typed constructors in code).
func ToMap(v any) map[string]any {
	return toMapViaJSON(v)
}
