// Package repository persists workflow run snapshots.
package repository

import (
	"context"

	"graphplan-mcp/pkg/models"
)

// RunStore saves and loads run snapshots. The workflow core keeps runs in
// memory; the store exists so a run's history and its approved plan survive
// the process.
type RunStore interface {
	// SaveRun upserts the full run state.
	SaveRun(ctx context.Context, run *models.Run) error
	// GetRun retrieves a run snapshot by ID.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns all stored runs, newest first.
	ListRuns(ctx context.Context) ([]*models.Run, error)
}
