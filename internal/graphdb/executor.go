// Package graphdb holds the graph-database boundary: an opaque
// query-execution capability plus the applier that loads an approved
// construction plan through it. The workflow core never depends on a query
// dialect, only on the Executor's request/response shape.
package graphdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Result carries the rows of a successful execution.
type Result struct {
	Rows []map[string]any `json:"rows,omitempty"`
}

// Executor executes one parameterized statement against the graph store.
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any) (*Result, error)
}

// PostgresExecutor runs statements against a PostgreSQL pool using named
// parameters.
type PostgresExecutor struct {
	db *pgxpool.Pool
}

// NewPostgresExecutor creates a new PostgresExecutor.
func NewPostgresExecutor(db *pgxpool.Pool) *PostgresExecutor {
	return &PostgresExecutor{db: db}
}

// Execute runs the statement with @name parameters bound from params and
// collects any returned rows.
func (e *PostgresExecutor) Execute(ctx context.Context, query string, params map[string]any) (*Result, error) {
	rows, err := e.db.Query(ctx, query, pgx.NamedArgs(params))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &Result{}
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}
