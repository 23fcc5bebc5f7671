package ledgerindex

import (
	"context"
	"testing"

	"github.com/irrev-systems/irrev/pkg/events"
)

// TestRedisCache_Integration requires a running Redis. We skip if connection
// fails, matching the pack's convention for Redis-backed components.
func TestRedisCache_Integration(t *testing.T) {
	c := NewRedisCache("localhost:6379", "", 0, "test-ledger")
	ctx := context.Background()
	if _, err := c.client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer func() { _ = c.Close() }()

	byArtifactId := map[string][]int{"a1": {0, 3}}
	byEventType := map[events.Type][]int{events.ArtifactCreated: {0}}
	byExecutionId := map[string][]int{"exec-1": {3}}

	if err := c.Save(ctx, 128, "deadbeef", byArtifactId, byEventType, byExecutionId); err != nil {
		t.Fatalf("save: %v", err)
	}

	valid, err := c.Valid(ctx, 128, "deadbeef")
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if !valid {
		t.Fatalf("expected cache to be valid for matching fingerprint")
	}

	stale, err := c.Valid(ctx, 129, "deadbeef")
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if stale {
		t.Fatalf("expected cache to be invalid for a changed size")
	}

	offsets, err := c.ArtifactOffsets(ctx, "a1")
	if err != nil {
		t.Fatalf("artifact offsets: %v", err)
	}
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 3 {
		t.Fatalf("unexpected offsets: %v", offsets)
	}
}
