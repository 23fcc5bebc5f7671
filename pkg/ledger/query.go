package ledger

import (
	"time"

	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/snapshot"
)

// Params are the query parameters accepted by Query, the ledger's sole
// query primitive. A zero-value field means "no constraint" except where
// noted.
type Params struct {
	ArtifactId   string
	ExecutionId  string
	EventType    events.Type
	Since        *time.Time
	Until        *time.Time
	Actor        string
	Where        func(events.Event) bool
	Limit        int
	Order        string // "asc" (default) or "desc"
	AfterEventId string // cursor: the artifact_id of the last-seen event; that event itself is skipped
}

// Query is the sole read primitive over the ledger. It intersects the
// artifact_id / execution_id / event_type index candidates (each only
// applied if set), walks them in append order, applies a cursor skip, then
// the remaining filters, and finally reverses the result if Order is
// "desc". Default order is chronological append order.
func (l *Ledger) Query(p Params) ([]events.Event, error) {
	if err := l.ensureIndexed(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	candidates := l.candidateIndices(p)

	var results []events.Event
	cursorPassed := p.AfterEventId == ""
	for _, idx := range candidates {
		e := l.events[idx]

		if !cursorPassed {
			if e.ArtifactId == p.AfterEventId {
				cursorPassed = true
			}
			continue
		}

		if p.Since != nil && e.Timestamp.Before(*p.Since) {
			continue
		}
		if p.Until != nil && e.Timestamp.After(*p.Until) {
			continue
		}
		if p.Actor != "" && e.Actor != p.Actor {
			continue
		}
		if p.Where != nil && !p.Where(e) {
			continue
		}

		results = append(results, e)
		if p.Limit > 0 && len(results) >= p.Limit {
			break
		}
	}

	if p.Order == "desc" {
		reverse(results)
	}
	return results, nil
}

// candidateIndices intersects the index sets named by p, returned sorted
// ascending (append order). Callers must hold l.mu for reading.
func (l *Ledger) candidateIndices(p Params) []int {
	var sets [][]int
	if p.ArtifactId != "" {
		sets = append(sets, l.byArtifactId[p.ArtifactId])
	}
	if p.ExecutionId != "" {
		sets = append(sets, l.byExecutionId[p.ExecutionId])
	}
	if p.EventType != "" {
		sets = append(sets, l.byEventType[p.EventType])
	}

	if len(sets) == 0 {
		all := make([]int, len(l.events))
		for i := range all {
			all[i] = i
		}
		return all
	}

	result := sets[0]
	for _, s := range sets[1:] {
		result = intersectSorted(result, s)
	}
	return result
}

func intersectSorted(a, b []int) []int {
	member := make(map[int]bool, len(b))
	for _, v := range b {
		member[v] = true
	}
	var out []int
	for _, v := range a {
		if member[v] {
			out = append(out, v)
		}
	}
	return out
}

func reverse(evs []events.Event) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}

// ListByStatus returns the snapshots of every artifact currently in status.
func (l *Ledger) ListByStatus(status snapshot.Status) ([]snapshot.Snapshot, error) {
	all, err := l.AllSnapshots()
	if err != nil {
		return nil, err
	}
	var out []snapshot.Snapshot
	for _, s := range all {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListByType returns the snapshots of every artifact of the given type.
func (l *Ledger) ListByType(t events.ArtifactType) ([]snapshot.Snapshot, error) {
	all, err := l.AllSnapshots()
	if err != nil {
		return nil, err
	}
	var out []snapshot.Snapshot
	for _, s := range all {
		if s.ArtifactType == t {
			out = append(out, s)
		}
	}
	return out, nil
}

// PendingApprovals returns validated artifacts whose risk requires approval
// but have not yet received one.
func (l *Ledger) PendingApprovals() ([]snapshot.Snapshot, error) {
	validated, err := l.ListByStatus(snapshot.StatusValidated)
	if err != nil {
		return nil, err
	}
	var out []snapshot.Snapshot
	for _, s := range validated {
		if s.RequiresApproval() {
			out = append(out, s)
		}
	}
	return out, nil
}

// Snapshot folds and returns the current state of one artifact.
func (l *Ledger) Snapshot(artifactId string) (snapshot.Snapshot, error) {
	evs, err := l.EventsFor(artifactId)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Fold(evs)
}

// AllSnapshots folds every artifact in the ledger, grouped by artifact_id.
func (l *Ledger) AllSnapshots() (map[string]snapshot.Snapshot, error) {
	if err := l.ensureIndexed(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	ids := make([]string, 0, len(l.byArtifactId))
	for id := range l.byArtifactId {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	out := make(map[string]snapshot.Snapshot, len(ids))
	for _, id := range ids {
		s, err := l.Snapshot(id)
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}

// AuditTrail is an alias for Query(ArtifactId: artifactId) in append order.
func (l *Ledger) AuditTrail(artifactId string) ([]events.Event, error) {
	return l.Query(Params{ArtifactId: artifactId})
}

// ExecutionTimeline returns every execution.logged event for one execution,
// in append order.
func (l *Ledger) ExecutionTimeline(executionId string) ([]events.Event, error) {
	return l.Query(Params{ExecutionId: executionId, EventType: events.ExecutionLogged})
}
