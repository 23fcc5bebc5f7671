package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_RejectsUnknownType(t *testing.T) {
	_, err := New(Type("bogus"), "a1", "actor", nil)
	require.Error(t, err)
}

func TestNew_RequiresContentIdOnCreated(t *testing.T) {
	_, err := New(ArtifactCreated, "a1", "actor", nil, WithArtifactType(TypePlan))
	require.Error(t, err)

	_, err = New(ArtifactCreated, "a1", "actor", nil, WithArtifactType(TypePlan), WithContentId("deadbeef"))
	require.NoError(t, err)
}

func TestEvent_RoundTripJSON(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e, err := New(ArtifactValidated, "a1", "harness", ToMap(ValidatedPayload{Validator: "harness", ComputedRiskClass: "append_only"}), WithTimestamp(ts))
	require.NoError(t, err)

	raw, err := e.ToJSON()
	require.NoError(t, err)

	round, err := FromJSON(raw)
	require.NoError(t, err)
	require.Equal(t, e.ArtifactId, round.ArtifactId)
	require.Equal(t, e.EventType, round.EventType)
	require.True(t, e.Timestamp.Equal(round.Timestamp))
}

func TestFromJSON_RejectsUnknownType(t *testing.T) {
	_, err := FromJSON([]byte(`{"event_type":"bogus","artifact_id":"a1","actor":"x"}`))
	require.Error(t, err)
}
