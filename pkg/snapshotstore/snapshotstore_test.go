package snapshotstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/irrev-systems/irrev/pkg/events"
	"github.com/irrev-systems/irrev/pkg/snapshot"
)

func TestUpsert_IssuesUpsertStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))

	c, err := New(db)
	require.NoError(t, err)

	s := snapshot.Snapshot{
		ArtifactId:        "01J000000000000000000001",
		ArtifactType:      events.TypePlan,
		Status:            snapshot.StatusApproved,
		RiskClass:         "mutation_destructive",
		ComputedRiskClass: "mutation_destructive",
		DelegateTo:        "neo4j-primary",
		Producer:          map[string]any{"agent": "test"},
		CreatedAt:         time.Now(),
	}

	mock.ExpectExec("INSERT INTO artifact_snapshots").WillReturnResult(sqlmock.NewResult(1, 1))

	err = c.Upsert(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestByStatus_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))

	c, err := New(db)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"artifact_id", "artifact_type", "status", "risk_class", "computed_risk_class",
		"delegate_to", "approval_artifact_id", "result_artifact_id",
	}).AddRow("01J0001", "plan", "approved", "mutation_destructive", "mutation_destructive", "neo4j-primary", "01J0002", "")

	mock.ExpectQuery("SELECT (.|\n)* FROM artifact_snapshots WHERE status").WithArgs("approved").WillReturnRows(rows)

	out, err := c.ByStatus(context.Background(), "approved")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "01J0001", out[0].ArtifactId)
	require.Equal(t, "neo4j-primary", out[0].DelegateTo)
}

func TestByDelegateTo_PostgresDialectUsesNumberedPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))

	c, err := NewPostgres(db)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"artifact_id", "artifact_type", "status", "risk_class", "computed_risk_class",
		"delegate_to", "approval_artifact_id", "result_artifact_id",
	}).AddRow("01J0003", "plan", "executed", "external_side_effect", "external_side_effect", "s3-bucket", "", "01J0004")

	mock.ExpectQuery(`SELECT (.|\n)* FROM artifact_snapshots WHERE delegate_to = \$1`).WithArgs("s3-bucket").WillReturnRows(rows)

	out, err := c.ByDelegateTo(context.Background(), "s3-bucket")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "01J0003", out[0].ArtifactId)
	require.Equal(t, "executed", out[0].Status)
}
