// Package snapshot reconstructs an artifact's current state by folding its
// event sequence. Snapshots are never persisted; they are recomputed on
// demand from the ledger's event stream.
package snapshot

import (
	"fmt"
	"time"

	"github.com/irrev-systems/irrev/pkg/events"
)

// Status is an artifact's lifecycle state.
type Status string

const (
	StatusCreated    Status = "created"
	StatusValidated  Status = "validated"
	StatusApproved   Status = "approved"
	StatusExecuted   Status = "executed"
	StatusRejected   Status = "rejected"
	StatusSuperseded Status = "superseded"
)

// Snapshot is the derived projection of an artifact from its event history.
type Snapshot struct {
	ArtifactId        string
	ContentId         string
	ArtifactType      events.ArtifactType
	Status            Status
	RiskClass         string
	ComputedRiskClass string
	Inputs            []events.InputRef
	Producer          map[string]any
	PayloadManifest   []events.ManifestRef
	DelegateTo        string
	ValidationErrors  []string
	ApprovalArtifactId string
	ForceAck          bool
	ApprovalScope     string
	ResultArtifactId  string
	ErasureCost       map[string]any
	CreationSummary   map[string]any
	Executor          string
	RejectionReason   string
	RejectionStage    string
	SupersededBy      string

	CreatedAt   time.Time
	ValidatedAt *time.Time
	ApprovedAt  *time.Time
	ExecutedAt  *time.Time

	Events []events.Event
}

// IsTerminal reports whether no further transitions are expected.
func (s Snapshot) IsTerminal() bool {
	return s.Status == StatusExecuted || s.Status == StatusRejected || s.Status == StatusSuperseded
}

// RequiresApproval reports whether this artifact's computed (authoritative)
// risk class, falling back to its declared one, gates execution on approval.
func (s Snapshot) RequiresApproval() bool {
	c := s.ComputedRiskClass
	if c == "" {
		c = s.RiskClass
	}
	return c == "mutation_destructive" || c == "external_side_effect"
}

// CanExecute reports whether the artifact is approved and, if approval is
// required by risk, that an approval has in fact been recorded.
func (s Snapshot) CanExecute() bool {
	if s.Status != StatusApproved {
		return false
	}
	if s.RequiresApproval() && s.ApprovalArtifactId == "" {
		return false
	}
	return true
}

// Fold rebuilds a Snapshot from an artifact's full event sequence. The
// first event must be artifact.created and every event must share the same
// artifact_id; folding is a deterministic, pure function of the input.
func Fold(evs []events.Event) (Snapshot, error) {
	if len(evs) == 0 {
		return Snapshot{}, fmt.Errorf("snapshot: cannot fold an empty event sequence")
	}
	first := evs[0]
	if first.EventType != events.ArtifactCreated {
		return Snapshot{}, fmt.Errorf("snapshot: first event must be artifact.created, got %q", first.EventType)
	}
	id := first.ArtifactId
	for _, e := range evs {
		if e.ArtifactId != id {
			return Snapshot{}, fmt.Errorf("snapshot: mixed artifact_id in fold: %q vs %q", e.ArtifactId, id)
		}
	}

	s := Snapshot{
		ArtifactId:   id,
		ContentId:    first.ContentId,
		ArtifactType: first.ArtifactType,
		Status:       StatusCreated,
		CreatedAt:    first.Timestamp,
		Events:       evs,
	}
	if op, ok := first.Payload["operation"].(string); ok {
		s.Producer = map[string]any{"actor": first.Actor, "operation": op, "timestamp": first.Timestamp}
		if surface, ok := first.Payload["surface"].(string); ok {
			s.Producer["surface"] = surface
		}
	}
	if rc, ok := first.Payload["risk_class"].(string); ok {
		s.RiskClass = rc
	}
	if dt, ok := first.Payload["delegate_to"].(string); ok {
		s.DelegateTo = dt
	}
	s.Inputs = extractInputs(first.Payload["inputs"])
	s.PayloadManifest = extractManifest(first.Payload["payload_manifest"])

	for _, e := range evs[1:] {
		applyEvent(&s, e)
	}
	return s, nil
}

func applyEvent(s *Snapshot, e events.Event) {
	switch e.EventType {
	case events.ArtifactValidated:
		s.Status = StatusValidated
		t := e.Timestamp
		s.ValidatedAt = &t
		if rc, ok := e.Payload["computed_risk_class"].(string); ok {
			s.ComputedRiskClass = rc
		}
		s.ValidationErrors = stringSlice(e.Payload["errors"])
	case events.ArtifactApproved:
		s.Status = StatusApproved
		t := e.Timestamp
		s.ApprovedAt = &t
		if v, ok := e.Payload["approval_artifact_id"].(string); ok {
			s.ApprovalArtifactId = v
		}
		if v, ok := e.Payload["force_ack"].(bool); ok {
			s.ForceAck = v
		}
		if v, ok := e.Payload["scope"].(string); ok {
			s.ApprovalScope = v
		}
	case events.ArtifactExecuted:
		s.Status = StatusExecuted
		t := e.Timestamp
		s.ExecutedAt = &t
		if v, ok := e.Payload["result_artifact_id"].(string); ok {
			s.ResultArtifactId = v
		}
		if v, ok := e.Payload["erasure_cost"].(map[string]any); ok {
			s.ErasureCost = v
		}
		if v, ok := e.Payload["creation_summary"].(map[string]any); ok {
			s.CreationSummary = v
		}
		if v, ok := e.Payload["executor"].(string); ok {
			s.Executor = v
		}
	case events.ArtifactRejected:
		s.Status = StatusRejected
		if v, ok := e.Payload["reason"].(string); ok {
			s.RejectionReason = v
		}
		if v, ok := e.Payload["stage"].(string); ok {
			s.RejectionStage = v
		}
	case events.ArtifactSuperseded:
		s.Status = StatusSuperseded
		if v, ok := e.Payload["superseded_by"].(string); ok {
			s.SupersededBy = v
		}
	}
}

func extractInputs(v any) []events.InputRef {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]events.InputRef, 0, len(list))
	for _, item := range list {
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

func extractManifest(v any) []events.ManifestRef {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]events.ManifestRef, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path, _ := m["path"].(string)
		sha, _ := m["sha256"].(string)
		n, _ := m["bytes"].(float64)
		out = append(out, events.ManifestRef{Path: path, Bytes: int(n), SHA256: sha})
	}
	return out
}

func stringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
