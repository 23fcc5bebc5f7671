// Package events defines the immutable Event record appended to the
// artifact ledger and the closed set of event and artifact types.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is one of the closed set of ledger event types.
type Type string

const (
	ArtifactCreated    Type = "artifact.created"
	ArtifactValidated  Type = "artifact.validated"
	ArtifactApproved   Type = "artifact.approved"
	ArtifactExecuted   Type = "artifact.executed"
	ArtifactRejected   Type = "artifact.rejected"
	ArtifactSuperseded Type = "artifact.superseded"
	ConstraintEvaluated Type = "constraint.evaluated"
	InvariantChecked   Type = "invariant.checked"
	ExecutionLogged    Type = "execution.logged"
)

// validTypes is the closed membership set used by Event validation.
var validTypes = map[Type]bool{
	ArtifactCreated: true, ArtifactValidated: true, ArtifactApproved: true,
	ArtifactExecuted: true, ArtifactRejected: true, ArtifactSuperseded: true,
	ConstraintEvaluated: true, InvariantChecked: true, ExecutionLogged: true,
}

// ArtifactType is one of the closed set of artifact kinds a CREATED event
// may introduce.
type ArtifactType string

const (
	TypePlan             ArtifactType = "plan"
	TypeApproval         ArtifactType = "approval"
	TypeReport           ArtifactType = "report"
	TypeExecutionSummary ArtifactType = "execution_summary"
	TypeLintReport       ArtifactType = "lint_report"
	TypeRuleset          ArtifactType = "ruleset"
	TypeExport           ArtifactType = "export"
	TypeConfig           ArtifactType = "config"
	TypeNote             ArtifactType = "note"
	TypeChangeEvent      ArtifactType = "change_event"
	TypeFsEvent          ArtifactType = "fs_event"
	TypeAuditEntry       ArtifactType = "audit_entry"
	TypeBundle           ArtifactType = "bundle"
)

// Event is an immutable, append-only ledger record. Payload is open
// (map[string]any) at the wire boundary. The typed payload structs in
// payloads.go can be rendered into it with ToMap; the call sites in this
// module build the map literal directly.
type Event struct {
	EventType    Type           `json:"event_type"`
	ArtifactId   string         `json:"artifact_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Actor        string         `json:"actor"`
	Payload      map[string]any `json:"payload,omitempty"`
	ContentId    string         `json:"content_id,omitempty"`
	ArtifactType ArtifactType   `json:"artifact_type,omitempty"`
}

// New validates and constructs an Event.
func New(eventType Type, artifactId string, actor string, payload map[string]any, opts ...Option) (Event, error) {
	if !validTypes[eventType] {
		return Event{}, fmt.Errorf("events: unknown event type %q", eventType)
	}
	if artifactId == "" {
		return Event{}, fmt.Errorf("events: artifact_id is required")
	}
	if actor == "" {
		return Event{}, fmt.Errorf("events: actor is required")
	}

	e := Event{
		EventType:  eventType,
		ArtifactId: artifactId,
		Timestamp:  time.Now().UTC(),
		Actor:      actor,
		Payload:    payload,
	}
	for _, opt := range opts {
		opt(&e)
	}

	if e.EventType == ArtifactCreated && e.ContentId == "" {
		return Event{}, fmt.Errorf("events: %w", errEmptyContentId)
	}
	return e, nil
}

var errEmptyContentId = fmt.Errorf("content_id must not be empty on artifact.created")

// Option customizes an Event built by New.
type Option func(*Event)

// WithContentId sets the content_id field (required on artifact.created).
func WithContentId(id string) Option {
	return func(e *Event) { e.ContentId = id }
}

// WithArtifactType sets the artifact_type field (optional; New does not
// require it, even on artifact.created).
func WithArtifactType(t ArtifactType) Option {
	return func(e *Event) { e.ArtifactType = t }
}

// WithTimestamp overrides the timestamp, primarily for deterministic tests.
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t }
}

// ToJSON serializes the event to a single compact JSON line (no trailing newline).
func (e Event) ToJSON() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal: %w", err)
	}
	return b, nil
}

// FromJSON deserializes a single JSON line into an Event, rejecting unknown
// event types.
func FromJSON(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("events: unmarshal: %w", err)
	}
	if !validTypes[e.EventType] {
		return Event{}, fmt.Errorf("events: unknown event type %q", e.EventType)
	}
	return e, nil
}
