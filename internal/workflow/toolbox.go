package workflow

import (
	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/planner"
	"graphplan-mcp/pkg/models"
)

// Toolbox is the validated surface a proposer works through during one turn.
// Plan mutation goes through the builder only; the proposer never touches
// the run's state directly.
type Toolbox struct {
	run     *models.Run
	builder *planner.Builder
	files   *files.Service
}

// NewToolbox binds the builder and file inspection service to one run.
func NewToolbox(run *models.Run, builder *planner.Builder, fsvc *files.Service) *Toolbox {
	return &Toolbox{run: run, builder: builder, files: fsvc}
}

// ProposeNode appends a node construction to the candidate plan after
// validation.
func (t *Toolbox) ProposeNode(node models.NodeConstruction) error {
	return t.builder.ProposeNode(t.run, node)
}

// ProposeRelationship appends a relationship construction to the candidate
// plan after validation.
func (t *Toolbox) ProposeRelationship(rel models.RelationshipConstruction) error {
	return t.builder.ProposeRelationship(t.run, rel)
}

// Sample returns up to maxLines lines of an import file.
func (t *Toolbox) Sample(file string, maxLines int) ([]string, error) {
	return t.files.Sample(file, maxLines)
}

// Search returns the lines of an import file containing pattern.
func (t *Toolbox) Search(file, pattern string) ([]files.Match, error) {
	return t.files.Search(file, pattern)
}

// Plan returns a copy of the current candidate plan.
func (t *Toolbox) Plan() *models.ConstructionPlan {
	return t.run.Candidate.Clone()
}
