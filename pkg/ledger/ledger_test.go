package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/snapshot"
)

func mustEvent(t *testing.T, et events.Type, artifactId, actor string, payload map[string]any, opts ...events.Option) events.Event {
	t.Helper()
	e, err := events.New(et, artifactId, actor, payload, opts...)
	require.NoError(t, err)
	return e
}

func TestLedger_AppendAndQueryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)

	created := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "lint", "risk_class": "read_only",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	validated := mustEvent(t, events.ArtifactValidated, "a1", "harness", map[string]any{
		"computed_risk_class": "read_only",
	})

	require.NoError(t, l.Append(created))
	require.NoError(t, l.Append(validated))

	exists, err := l.Exists("a1")
	require.NoError(t, err)
	require.True(t, exists)

	count, err := l.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	evs, err := l.EventsFor("a1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.Equal(t, events.ArtifactCreated, evs[0].EventType)
	require.Equal(t, events.ArtifactValidated, evs[1].EventType)
}

func TestLedger_FreshIndexFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)
	e := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "lint", "risk_class": "read_only",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	require.NoError(t, l.Append(e))

	reopened := New(path)
	evs, err := reopened.EventsFor("a1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestLedger_QueryWithCursorSkipsSeenEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)

	created := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "lint", "risk_class": "read_only",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	validated := mustEvent(t, events.ArtifactValidated, "a1", "harness", map[string]any{
		"computed_risk_class": "read_only",
	})
	require.NoError(t, l.AppendMany([]events.Event{created, validated}))

	evs, err := l.Query(Params{ArtifactId: "a1", AfterEventId: "a1"})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, events.ArtifactValidated, evs[0].EventType)
}

func TestLedger_QueryDescReversesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)
	created := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "lint", "risk_class": "read_only",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	validated := mustEvent(t, events.ArtifactValidated, "a1", "harness", map[string]any{
		"computed_risk_class": "read_only",
	})
	require.NoError(t, l.AppendMany([]events.Event{created, validated}))

	evs, err := l.Query(Params{ArtifactId: "a1", Order: "desc"})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.Equal(t, events.ArtifactValidated, evs[0].EventType)
	require.Equal(t, events.ArtifactCreated, evs[1].EventType)
}

func TestLedger_PendingApprovals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)

	created := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "graph.load", "risk_class": "external_side_effect",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	validated := mustEvent(t, events.ArtifactValidated, "a1", "harness", map[string]any{
		"computed_risk_class": "external_side_effect",
	})
	require.NoError(t, l.AppendMany([]events.Event{created, validated}))

	pending, err := l.PendingApprovals()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a1", pending[0].ArtifactId)
}

func TestLedger_ListByStatusAndType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)

	created := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "lint", "risk_class": "read_only",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	require.NoError(t, l.Append(created))

	byStatus, err := l.ListByStatus(snapshot.StatusCreated)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	byType, err := l.ListByType(events.TypePlan)
	require.NoError(t, err)
	require.Len(t, byType, 1)
}

func TestLedger_ExecutionTimeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)

	logged := mustEvent(t, events.ExecutionLogged, "a1", "handler", map[string]any{
		"execution_id": "exec1", "phase": "execute", "status": "ok",
	})
	require.NoError(t, l.Append(logged))

	timeline, err := l.ExecutionTimeline("exec1")
	require.NoError(t, err)
	require.Len(t, timeline, 1)
}

func TestLedger_AppendManyAtomicBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := New(path)

	created := mustEvent(t, events.ArtifactCreated, "a1", "agent", map[string]any{
		"operation": "lint", "risk_class": "read_only",
	}, events.WithArtifactType(events.TypePlan), events.WithContentId("c1"))
	validated := mustEvent(t, events.ArtifactValidated, "a1", "harness", map[string]any{
		"computed_risk_class": "read_only",
	})

	require.NoError(t, l.AppendMany([]events.Event{created, validated}))

	count, err := l.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	artifactCount, err := l.ArtifactCount()
	require.NoError(t, err)
	require.Equal(t, 1, artifactCount)
}
