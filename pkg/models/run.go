package models

import (
	"time"
)

// RunStatus tracks where a run sits in the propose/critique loop.
type RunStatus string

const (
	// RunStatusProposing means the proposer owns the next turn.
	RunStatusProposing RunStatus = "proposing"
	// RunStatusCritiquing means a proposer turn ended and the critic is due.
	RunStatusCritiquing RunStatus = "critiquing"
	// RunStatusAccepted means the critic accepted and the plan was promoted.
	RunStatusAccepted RunStatus = "accepted"
	// RunStatusExhausted means the turn budget ran out without acceptance.
	// This is a normal terminal outcome, not an error.
	RunStatusExhausted RunStatus = "exhausted"
)

// Terminal reports whether the status is a terminal state of the loop.
func (s RunStatus) Terminal() bool {
	return s == RunStatusAccepted || s == RunStatusExhausted
}

// Verdict is the critic's judgement of a candidate plan. Valid means every
// hard rule passed; otherwise Feedback carries every violation found in one
// pass. PlanFingerprint binds the verdict to the exact candidate it judged,
// so approval can detect a candidate rebuilt after the critique.
type Verdict struct {
	Valid           bool   `json:"valid"`
	Feedback        string `json:"feedback,omitempty"`
	PlanFingerprint string `json:"plan_fingerprint"`
}

// Run is the complete workflow state of one refinement run. The candidate
// plan is mutated only through the plan builder; the approved slot is
// assigned exactly once, after a valid verdict.
type Run struct {
	ID           string            `json:"id"`
	CreatedBy    string            `json:"created_by,omitempty"`
	Goal         Goal              `json:"goal"`
	Files        []string          `json:"files"`
	Candidate    *ConstructionPlan `json:"candidate"`
	Approved     *ConstructionPlan `json:"approved,omitempty"`
	LastFeedback string            `json:"last_feedback,omitempty"`
	LastVerdict  *Verdict          `json:"last_verdict,omitempty"`
	TurnCount    int               `json:"turn_count"`
	Status       RunStatus         `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewRun creates a run in the initial proposing state with an empty
// candidate plan.
func NewRun(id string, goal Goal, files []string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        id,
		Goal:      goal,
		Files:     files,
		Candidate: &ConstructionPlan{},
		Status:    RunStatusProposing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the run, safe to hand to readers while the
// original keeps being mutated under its owner's lock.
func (r *Run) Clone() *Run {
	out := *r
	out.Files = append([]string(nil), r.Files...)
	if r.Candidate != nil {
		out.Candidate = r.Candidate.Clone()
	}
	if r.Approved != nil {
		out.Approved = r.Approved.Clone()
	}
	if r.LastVerdict != nil {
		v := *r.LastVerdict
		out.LastVerdict = &v
	}
	return &out
}

// HasFile reports whether the file belongs to the run's file set.
func (r *Run) HasFile(file string) bool {
	for _, f := range r.Files {
		if f == file {
			return true
		}
	}
	return false
}
