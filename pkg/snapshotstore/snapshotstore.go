// Package snapshotstore provides a queryable SQL read-model mirror of the
// ledger's artifact snapshots, for callers that want indexed lookups
// (ByStatus, ByDelegateTo; artifact_type is indexed but has no query method)
// beyond what the ledger's in-memory
// indexes expose, without re-folding the full event stream per query. The
// ledger remains the source of truth; the store is rebuilt by Sync from
// AllSnapshots() and never written to independently.
package snapshotstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/irrev-systems/irrev/pkg/snapshot"
)

// dialect abstracts the one SQL difference this package handles between the
// embedded single-node backend (sqlite, "?" placeholders) and the
// Postgres-backed multi-reader backend ("$1" placeholders).
type dialect struct {
	placeholder func(n int) string
}

func sqliteDialect() dialect {
	return dialect{placeholder: func(int) string { return "?" }}
}

func postgresDialect() dialect {
	return dialect{placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
}

func (d dialect) ph(n int) string { return d.placeholder(n) }

// Cache mirrors snapshot.Snapshot rows into a SQL table, refreshed by Sync.
type Cache struct {
	db *sql.DB
	d  dialect
}

// Open opens (creating if absent) a SQLite-backed cache at path and ensures
// its schema exists, for an embedded single-node deployment.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: open: %w", err)
	}
	return New(db)
}

// New wraps an already-open SQLite *sql.DB and ensures the cache's schema
// exists. Use OpenPostgres/NewPostgres for a Postgres-backed multi-reader
// deployment instead.
func New(db *sql.DB) (*Cache, error) {
	return newCache(db, sqliteDialect())
}

// OpenPostgres opens a Postgres-backed cache via dataSourceName (a lib/pq
// connection string), for deployments where multiple readers share one
// materialized snapshot table instead of each holding an embedded file.
func OpenPostgres(dataSourceName string) (*Cache, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: open postgres: %w", err)
	}
	return NewPostgres(db)
}

// NewPostgres wraps an already-open Postgres *sql.DB and ensures the
// cache's schema exists.
func NewPostgres(db *sql.DB) (*Cache, error) {
	return newCache(db, postgresDialect())
}

func newCache(db *sql.DB, d dialect) (*Cache, error) {
	c := &Cache{db: db, d: d}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS artifact_snapshots (
			artifact_id TEXT PRIMARY KEY,
			artifact_type TEXT,
			status TEXT,
			risk_class TEXT,
			computed_risk_class TEXT,
			delegate_to TEXT,
			approval_artifact_id TEXT,
			result_artifact_id TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			producer TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("snapshotstore: migrate table: %w", err)
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_artifact_snapshots_status ON artifact_snapshots(status)`,
		`CREATE INDEX IF NOT EXISTS idx_artifact_snapshots_type ON artifact_snapshots(artifact_type)`,
		`CREATE INDEX IF NOT EXISTS idx_artifact_snapshots_delegate ON artifact_snapshots(delegate_to)`,
	} {
		if _, err := c.db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("snapshotstore: migrate index: %w", err)
		}
	}
	return nil
}

// Upsert writes or replaces the cached row for s.
func (c *Cache) Upsert(ctx context.Context, s snapshot.Snapshot) error {
	producerJSON, err := json.Marshal(s.Producer)
	if err != nil {
		return fmt.Errorf("snapshotstore: marshal producer: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO artifact_snapshots (
			artifact_id, artifact_type, status, risk_class, computed_risk_class,
			delegate_to, approval_artifact_id, result_artifact_id,
			created_at, updated_at, producer
		) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT(artifact_id) DO UPDATE SET
			artifact_type = excluded.artifact_type,
			status = excluded.status,
			risk_class = excluded.risk_class,
			computed_risk_class = excluded.computed_risk_class,
			delegate_to = excluded.delegate_to,
			approval_artifact_id = excluded.approval_artifact_id,
			result_artifact_id = excluded.result_artifact_id,
			updated_at = excluded.updated_at,
			producer = excluded.producer
	`, c.d.ph(1), c.d.ph(2), c.d.ph(3), c.d.ph(4), c.d.ph(5), c.d.ph(6), c.d.ph(7), c.d.ph(8), c.d.ph(9), c.d.ph(10), c.d.ph(11))

	_, err = c.db.ExecContext(ctx, q,
		s.ArtifactId, string(s.ArtifactType), string(s.Status), s.RiskClass, s.ComputedRiskClass,
		s.DelegateTo, s.ApprovalArtifactId, s.ResultArtifactId,
		s.CreatedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), string(producerJSON),
	)
	if err != nil {
		return fmt.Errorf("snapshotstore: upsert %s: %w", s.ArtifactId, err)
	}
	return nil
}

// Sync upserts every snapshot in all, used to rebuild the cache from the
// ledger's AllSnapshots() after a restart or as a periodic reconciliation.
func (c *Cache) Sync(ctx context.Context, all map[string]snapshot.Snapshot) error {
	for _, s := range all {
		if err := c.Upsert(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Row is the denormalized projection returned by cache queries.
type Row struct {
	ArtifactId         string
	ArtifactType       string
	Status             string
	RiskClass          string
	ComputedRiskClass  string
	DelegateTo         string
	ApprovalArtifactId string
	ResultArtifactId   string
}

const rowColumns = `artifact_id, artifact_type, status, risk_class, computed_risk_class, delegate_to, approval_artifact_id, result_artifact_id`

// ByStatus returns cached rows for a given status.
func (c *Cache) ByStatus(ctx context.Context, status string) ([]Row, error) {
	q := fmt.Sprintf(`SELECT %s FROM artifact_snapshots WHERE status = %s`, rowColumns, c.d.ph(1))
	return c.query(ctx, q, status)
}

// ByDelegateTo returns cached rows whose plan targets delegateTo, the index
// a rate-limited harness or operator dashboard would use to see what is
// queued against one external system.
func (c *Cache) ByDelegateTo(ctx context.Context, delegateTo string) ([]Row, error) {
	q := fmt.Sprintf(`SELECT %s FROM artifact_snapshots WHERE delegate_to = %s`, rowColumns, c.d.ph(1))
	return c.query(ctx, q, delegateTo)
}

func (c *Cache) query(ctx context.Context, q string, arg any) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ArtifactId, &r.ArtifactType, &r.Status, &r.RiskClass, &r.ComputedRiskClass, &r.DelegateTo, &r.ApprovalArtifactId, &r.ResultArtifactId); err != nil {
			return nil, fmt.Errorf("snapshotstore: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }
