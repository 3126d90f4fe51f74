package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"graphplan-mcp/internal/planner"
	"graphplan-mcp/pkg/models"
)

// Schema creates the runs table. Applied by cmd/seed and by the store tests.
const Schema = `CREATE TABLE IF NOT EXISTS runs (
	id UUID PRIMARY KEY,
	created_by TEXT,
	goal JSONB NOT NULL,
	files JSONB NOT NULL,
	candidate JSONB NOT NULL,
	approved JSONB,
	last_feedback TEXT NOT NULL DEFAULT '',
	last_verdict JSONB,
	turn_count INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// PostgresRunStore is a PostgreSQL implementation of the RunStore interface.
type PostgresRunStore struct {
	db *pgxpool.Pool
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// SaveRun upserts the full run state.
func (s *PostgresRunStore) SaveRun(ctx context.Context, run *models.Run) error {
	goal, err := json.Marshal(run.Goal)
	if err != nil {
		return fmt.Errorf("marshal goal: %w", err)
	}
	fileSet, err := json.Marshal(run.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	candidate, err := json.Marshal(run.Candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	var approved, verdict []byte
	if run.Approved != nil {
		if approved, err = json.Marshal(run.Approved); err != nil {
			return fmt.Errorf("marshal approved plan: %w", err)
		}
	}
	if run.LastVerdict != nil {
		if verdict, err = json.Marshal(run.LastVerdict); err != nil {
			return fmt.Errorf("marshal verdict: %w", err)
		}
	}

	_, err = s.db.Exec(ctx, `INSERT INTO runs
		(id, created_by, goal, files, candidate, approved, last_feedback, last_verdict, turn_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			candidate = EXCLUDED.candidate,
			approved = EXCLUDED.approved,
			last_feedback = EXCLUDED.last_feedback,
			last_verdict = EXCLUDED.last_verdict,
			turn_count = EXCLUDED.turn_count,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		run.ID, run.CreatedBy, goal, fileSet, candidate, approved,
		run.LastFeedback, verdict, run.TurnCount, string(run.Status),
		run.CreatedAt, run.UpdatedAt)
	return err
}

// GetRun retrieves a run snapshot by ID.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRow(ctx, `SELECT id, created_by, goal, files, candidate, approved,
		last_feedback, last_verdict, turn_count, status, created_at, updated_at
		FROM runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %q", planner.ErrNotFound, id)
	}
	return run, err
}

// ListRuns returns all stored runs, newest first.
func (s *PostgresRunStore) ListRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := s.db.Query(ctx, `SELECT id, created_by, goal, files, candidate, approved,
		last_feedback, last_verdict, turn_count, status, created_at, updated_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*models.Run, error) {
	var run models.Run
	var status string
	var goal, fileSet, candidate, approved, verdict []byte

	err := row.Scan(&run.ID, &run.CreatedBy, &goal, &fileSet, &candidate, &approved,
		&run.LastFeedback, &verdict, &run.TurnCount, &status, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)

	if err := json.Unmarshal(goal, &run.Goal); err != nil {
		return nil, fmt.Errorf("unmarshal goal: %w", err)
	}
	if err := json.Unmarshal(fileSet, &run.Files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	run.Candidate = &models.ConstructionPlan{}
	if err := json.Unmarshal(candidate, run.Candidate); err != nil {
		return nil, fmt.Errorf("unmarshal candidate: %w", err)
	}
	if len(approved) > 0 {
		run.Approved = &models.ConstructionPlan{}
		if err := json.Unmarshal(approved, run.Approved); err != nil {
			return nil, fmt.Errorf("unmarshal approved plan: %w", err)
		}
	}
	if len(verdict) > 0 {
		run.LastVerdict = &models.Verdict{}
		if err := json.Unmarshal(verdict, run.LastVerdict); err != nil {
			return nil, fmt.Errorf("unmarshal verdict: %w", err)
		}
	}
	return &run, nil
}
