// Package ledgerindex provides an optional write-through persistence layer
// for the ledger's in-memory indexes, so a second process can warm-start
// without a full re-scan of the event log. The in-memory indexes built by
// the ledger package remain authoritative; this cache only accelerates
// cold start and is safe to discard at any time.
package ledgerindex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/irrev-systems/irrev/pkg/events"
)

// RedisCache persists the ledger's three indexes (by artifact_id, by
// event_type, by execution_id) to Redis, tagged with the ledger file's
// (size, tail_hash) pair so a stale cache is detected and ignored rather
// than silently served.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache returns a cache keyed under prefix (so multiple ledgers can
// share one Redis instance without collision).
func NewRedisCache(addr, password string, db int, prefix string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: prefix,
	}
}

func (c *RedisCache) metaKey() string                   { return c.prefix + ":meta" }
func (c *RedisCache) artifactKey(id string) string      { return c.prefix + ":artifact:" + id }
func (c *RedisCache) eventTypeKey(t events.Type) string { return c.prefix + ":event:" + string(t) }
func (c *RedisCache) executionKey(id string) string     { return c.prefix + ":execution:" + id }

// Save writes the three index maps and the (size, tailHash) fingerprint
// they were built from, as one pipelined transaction.
func (c *RedisCache) Save(ctx context.Context, size int64, tailHash string, byArtifactId map[string][]int, byEventType map[events.Type][]int, byExecutionId map[string][]int) error {
	pipe := c.client.TxPipeline()

	pipe.HSet(ctx, c.metaKey(), map[string]interface{}{
		"size":      size,
		"tail_hash": tailHash,
	})

	for id, offsets := range byArtifactId {
		key := c.artifactKey(id)
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, intsToAny(offsets)...)
	}
	for t, offsets := range byEventType {
		key := c.eventTypeKey(t)
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, intsToAny(offsets)...)
	}
	for id, offsets := range byExecutionId {
		key := c.executionKey(id)
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, intsToAny(offsets)...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledgerindex: save: %w", err)
	}
	return nil
}

// Valid reports whether a previously saved cache still matches the
// ledger's current (size, tailHash) fingerprint. A stale cache (ledger file
// truncated or its tail changed) must never be loaded.
func (c *RedisCache) Valid(ctx context.Context, size int64, tailHash string) (bool, error) {
	meta, err := c.client.HGetAll(ctx, c.metaKey()).Result()
	if err != nil {
		return false, fmt.Errorf("ledgerindex: read meta: %w", err)
	}
	if len(meta) == 0 {
		return false, nil
	}
	storedSize, err := strconv.ParseInt(meta["size"], 10, 64)
	if err != nil {
		return false, nil
	}
	return storedSize == size && meta["tail_hash"] == tailHash, nil
}

// ArtifactOffsets returns the cached line offsets for artifactId.
func (c *RedisCache) ArtifactOffsets(ctx context.Context, artifactId string) ([]int, error) {
	return c.offsets(ctx, c.artifactKey(artifactId))
}

// EventTypeOffsets returns the cached line offsets for an event type.
func (c *RedisCache) EventTypeOffsets(ctx context.Context, t events.Type) ([]int, error) {
	return c.offsets(ctx, c.eventTypeKey(t))
}

// ExecutionOffsets returns the cached line offsets for an execution_id.
func (c *RedisCache) ExecutionOffsets(ctx context.Context, executionId string) ([]int, error) {
	return c.offsets(ctx, c.executionKey(executionId))
}

func (c *RedisCache) offsets(ctx context.Context, key string) ([]int, error) {
	vals, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ledgerindex: read %s: %w", key, err)
	}
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("ledgerindex: parse offset %q: %w", v, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Close releases the underlying Redis client.
func (c *RedisCache) Close() error { return c.client.Close() }

func intsToAny(ints []int) []interface{} {
	out := make([]interface{}, len(ints))
	for i, n := range ints {
		out[i] = n
	}
	return out
}
