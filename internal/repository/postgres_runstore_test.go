package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"graphplan-mcp/internal/planner"
	"graphplan-mcp/pkg/models"
)

func TestPostgresRunStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, Schema); err != nil {
		t.Fatal(err)
	}
	store := NewPostgresRunStore(pool)

	newRun := func() *models.Run {
		run := models.NewRun(uuid.New().String(),
			models.Goal{KindOfGraph: "supply chain", Description: "parts and assemblies"},
			[]string{"parts.csv", "assemblies.csv"})
		run.CreatedBy = "alice@example.com"
		return run
	}

	t.Run("Save and Get", func(t *testing.T) {
		run := newRun()
		run.Candidate.Nodes = []models.NodeConstruction{
			{Label: "Part", SourceFile: "parts.csv", UniqueColumn: "part_id",
				Properties: map[string]string{"part_name": "name"}},
		}
		run.LastVerdict = &models.Verdict{
			Valid: false, Feedback: "plan rejected",
			PlanFingerprint: run.Candidate.Fingerprint(),
		}
		run.LastFeedback = "plan rejected"
		run.TurnCount = 1

		require.NoError(t, store.SaveRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, run.CreatedBy, got.CreatedBy)
		assert.Equal(t, run.Goal, got.Goal)
		assert.Equal(t, run.Files, got.Files)
		assert.Equal(t, run.Candidate, got.Candidate)
		assert.Nil(t, got.Approved)
		assert.Equal(t, run.LastVerdict, got.LastVerdict)
		assert.Equal(t, 1, got.TurnCount)
		assert.Equal(t, models.RunStatusProposing, got.Status)
	})

	t.Run("Save upserts", func(t *testing.T) {
		run := newRun()
		require.NoError(t, store.SaveRun(ctx, run))

		run.Candidate.Nodes = []models.NodeConstruction{
			{Label: "Part", SourceFile: "parts.csv", UniqueColumn: "part_id"},
		}
		run.Approved = run.Candidate.Clone()
		run.Status = models.RunStatusAccepted
		run.TurnCount = 2
		run.UpdatedAt = time.Now().UTC()
		require.NoError(t, store.SaveRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusAccepted, got.Status)
		assert.Equal(t, 2, got.TurnCount)
		require.NotNil(t, got.Approved)
		assert.Equal(t, run.Approved, got.Approved)
	})

	t.Run("Get unknown run", func(t *testing.T) {
		_, err := store.GetRun(ctx, uuid.New().String())
		assert.True(t, errors.Is(err, planner.ErrNotFound))
	})

	t.Run("List newest first", func(t *testing.T) {
		older := newRun()
		older.CreatedAt = time.Now().UTC().Add(-time.Hour)
		newer := newRun()
		require.NoError(t, store.SaveRun(ctx, older))
		require.NoError(t, store.SaveRun(ctx, newer))

		runs, err := store.ListRuns(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(runs), 2)

		var olderIdx, newerIdx int
		for i, r := range runs {
			switch r.ID {
			case older.ID:
				olderIdx = i
			case newer.ID:
				newerIdx = i
			}
		}
		assert.Less(t, newerIdx, olderIdx)
	})
}
