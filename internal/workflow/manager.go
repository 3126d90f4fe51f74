package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"graphplan-mcp/internal/planner"
	"graphplan-mcp/pkg/models"
)

// Manager is the in-memory registry of live runs. Each run has a single
// owner at a time: Update serializes all mutation of a run, which lets the
// MCP tool surface and the REST API share the registry without interleaving
// writes to a candidate plan.
type Manager struct {
	mu   sync.RWMutex
	runs map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	run *models.Run
}

// NewManager creates an empty run registry.
func NewManager() *Manager {
	return &Manager{runs: make(map[string]*entry)}
}

// Create registers a fresh run for the goal and file set.
func (m *Manager) Create(goal models.Goal, fileSet []string, createdBy string) *models.Run {
	run := models.NewRun(uuid.New().String(), goal, fileSet)
	run.CreatedBy = createdBy

	m.mu.Lock()
	m.runs[run.ID] = &entry{run: run}
	m.mu.Unlock()
	return run
}

// Get returns the run with the given ID.
func (m *Manager) Get(id string) (*models.Run, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: run %q", planner.ErrNotFound, id)
	}
	return e.run, nil
}

// Snapshot returns a deep copy of the run taken under its lock, safe to
// serve to readers while a proposer turn mutates the original.
func (m *Manager) Snapshot(id string) (*models.Run, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: run %q", planner.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.Clone(), nil
}

// ListSnapshots returns deep copies of all runs ordered by creation time.
func (m *Manager) ListSnapshots() []*models.Run {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.runs))
	for _, e := range m.runs {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*models.Run, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.run.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update runs fn while holding the run's write lock. All mutation of a run
// outside the embedded coordinator loop must go through here.
func (m *Manager) Update(id string, fn func(run *models.Run) error) error {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: run %q", planner.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.run)
}
