// Package workflow drives the propose/critique refinement loop over a run's
// candidate plan and owns the registry of live runs.
package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"graphplan-mcp/internal/critic"
	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/planner"
	"graphplan-mcp/pkg/models"
)

// DefaultMaxTurns bounds the refinement loop when the configuration does not
// override it.
const DefaultMaxTurns = 10

// Proposer is the opaque actor that populates or refines the candidate plan
// during one turn. It may call the toolbox any number of times and returns
// when it considers its turn complete. Its termination policy is its own.
type Proposer interface {
	Propose(ctx context.Context, goal models.Goal, fileSet []string, feedback string, tools *Toolbox) error
}

// Snapshots persists run state between turns. Implementations must tolerate
// being called after every turn with the full run.
type Snapshots interface {
	SaveRun(ctx context.Context, run *models.Run) error
}

// Coordinator alternates proposer and critic turns until the critic accepts
// the candidate or the turn budget is exhausted. One coordinator may serve
// many runs; each run is driven strictly sequentially.
type Coordinator struct {
	proposer Proposer
	critic   *critic.Critic
	builder  *planner.Builder
	files    *files.Service
	store    Snapshots
	logger   *logging.Logger
	maxTurns int

	turnsTotal    metric.Int64Counter
	runsAccepted  metric.Int64Counter
	runsExhausted metric.Int64Counter
}

// NewCoordinator wires the refinement loop. store may be nil when run
// snapshots are not persisted. maxTurns <= 0 selects DefaultMaxTurns.
func NewCoordinator(proposer Proposer, cr *critic.Critic, builder *planner.Builder, fsvc *files.Service, store Snapshots, logger *logging.Logger, maxTurns int) (*Coordinator, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	meter := otel.Meter("graphplan-mcp/workflow")
	turns, err := meter.Int64Counter("workflow.turns",
		metric.WithDescription("Propose/critique rounds executed"))
	if err != nil {
		return nil, err
	}
	accepted, err := meter.Int64Counter("workflow.runs.accepted",
		metric.WithDescription("Runs ending with an approved plan"))
	if err != nil {
		return nil, err
	}
	exhausted, err := meter.Int64Counter("workflow.runs.exhausted",
		metric.WithDescription("Runs ending with the turn budget spent"))
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		proposer:      proposer,
		critic:        cr,
		builder:       builder,
		files:         fsvc,
		store:         store,
		logger:        logger,
		maxTurns:      maxTurns,
		turnsTotal:    turns,
		runsAccepted:  accepted,
		runsExhausted: exhausted,
	}, nil
}

// MaxTurns returns the configured turn budget.
func (c *Coordinator) MaxTurns() int {
	return c.maxTurns
}

// HasProposer reports whether embedded runs are available. Without a
// proposer the coordinator still serves the interactive tool surface.
func (c *Coordinator) HasProposer() bool {
	return c.proposer != nil
}

// Run executes the refinement loop for a run until a terminal state. It
// returns an error only for proposer failures, approval invariant violations
// (fatal programmer errors), or context cancellation between turns; reaching
// the exhausted state is a normal return with run.Status telling the story.
func (c *Coordinator) Run(ctx context.Context, run *models.Run) error {
	if c.proposer == nil {
		return fmt.Errorf("%w: coordinator has no proposer", planner.ErrState)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s already ended as %s", planner.ErrState, run.ID, run.Status)
	}

	for {
		// Cancellation is honored between turns only; an in-flight turn
		// is awaited to completion.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.turn(ctx, run); err != nil {
			return err
		}
		if run.Status.Terminal() {
			return nil
		}
	}
}

// RunManaged executes the refinement loop for a run held by the manager,
// taking the run's write lock per turn so readers can snapshot the run
// between turns.
func (c *Coordinator) RunManaged(ctx context.Context, mgr *Manager, id string) error {
	if c.proposer == nil {
		return fmt.Errorf("%w: coordinator has no proposer", planner.ErrState)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done := false
		err := mgr.Update(id, func(run *models.Run) error {
			if run.Status.Terminal() {
				done = true
				return nil
			}
			if err := c.turn(ctx, run); err != nil {
				return err
			}
			done = run.Status.Terminal()
			return nil
		})
		if err != nil || done {
			return err
		}
	}
}

// turn executes one full propose/critique round, including promotion on a
// valid verdict.
func (c *Coordinator) turn(ctx context.Context, run *models.Run) error {
	run.Status = models.RunStatusProposing
	tools := NewToolbox(run, c.builder, c.files)
	if err := c.proposer.Propose(ctx, run.Goal, run.Files, run.LastFeedback, tools); err != nil {
		return fmt.Errorf("proposer turn failed: %w", err)
	}

	verdict := c.CritiqueTurn(ctx, run)
	c.snapshot(ctx, run)

	switch {
	case verdict.Valid:
		if err := c.builder.ApproveRun(run); err != nil {
			return err
		}
		c.snapshot(ctx, run)
		c.runsAccepted.Add(ctx, 1)
		c.logger.Info("plan approved", "run_id", run.ID, "turns", run.TurnCount)
	case run.Status == models.RunStatusExhausted:
		c.runsExhausted.Add(ctx, 1)
		c.logger.Info("turn budget exhausted", "run_id", run.ID, "turns", run.TurnCount)
	default:
		c.logger.Debug("critic requested retry", "run_id", run.ID, "turn", run.TurnCount)
	}
	return nil
}

// CritiqueTurn closes one propose/critique round: it increments the turn
// counter, records the verdict, and applies the state transition. A retry at
// the turn budget moves the run to exhausted; a retry below it hands the
// feedback to the next proposer turn while keeping the candidate intact
// (refinement is incremental, never a restart). The same transition serves
// both the embedded loop and the interactive tool surface.
func (c *Coordinator) CritiqueTurn(ctx context.Context, run *models.Run) models.Verdict {
	run.Status = models.RunStatusCritiquing
	run.TurnCount++
	c.turnsTotal.Add(ctx, 1)

	verdict := c.critic.Review(run.Candidate, run.Files)
	run.LastVerdict = &verdict

	if verdict.Valid {
		return verdict
	}

	run.LastFeedback = verdict.Feedback
	if run.TurnCount >= c.maxTurns {
		run.Status = models.RunStatusExhausted
	} else {
		run.Status = models.RunStatusProposing
	}
	return verdict
}

// ApproveRun exposes the builder's approval for the interactive surface.
func (c *Coordinator) ApproveRun(run *models.Run) error {
	return c.builder.ApproveRun(run)
}

func (c *Coordinator) snapshot(ctx context.Context, run *models.Run) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		c.logger.Error("failed to snapshot run", "run_id", run.ID, "error", err)
	}
}
