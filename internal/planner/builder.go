// Package planner implements the plan builder tools: validated mutations of
// a run's candidate construction plan.
package planner

import (
	"fmt"
	"sort"
	"time"

	"graphplan-mcp/pkg/models"
)

// Inspector is the slice of the file inspection service the builder needs to
// verify that referenced columns actually exist in a source file.
type Inspector interface {
	Header(file string) ([]string, error)
}

// Builder validates and applies construction rule proposals against a run's
// candidate plan. Every operation is atomic: it either appends exactly one
// rule or leaves the plan untouched and returns a descriptive error.
type Builder struct {
	files Inspector
}

// NewBuilder creates a Builder backed by the given file inspector.
func NewBuilder(files Inspector) *Builder {
	return &Builder{files: files}
}

// ProposeNode validates a node construction against the run's file set and
// the current candidate plan, then appends it.
func (b *Builder) ProposeNode(run *models.Run, node models.NodeConstruction) error {
	if node.Label == "" {
		return fmt.Errorf("%w: node label must not be empty", ErrValidation)
	}
	if node.UniqueColumn == "" {
		return fmt.Errorf("%w: node %q needs a unique column", ErrValidation, node.Label)
	}
	if !run.HasFile(node.SourceFile) {
		return fmt.Errorf("%w: source file %q is not in the run's file set", ErrValidation, node.SourceFile)
	}
	if run.Candidate.HasNode(node.Label) {
		return fmt.Errorf("%w: label %q already present in plan", ErrValidation, node.Label)
	}

	columns, err := b.files.Header(node.SourceFile)
	if err != nil {
		return err
	}
	if !contains(columns, node.UniqueColumn) {
		return fmt.Errorf("%w: column %q not found in %q (has: %v)",
			ErrValidation, node.UniqueColumn, node.SourceFile, columns)
	}
	for _, col := range sortedKeys(node.Properties) {
		if !contains(columns, col) {
			return fmt.Errorf("%w: property source column %q not found in %q",
				ErrValidation, col, node.SourceFile)
		}
	}

	run.Candidate.Nodes = append(run.Candidate.Nodes, node)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// ProposeRelationship validates a relationship construction. Both endpoint
// labels must already exist in the candidate plan; forward references are
// rejected outright rather than left dangling until approval.
func (b *Builder) ProposeRelationship(run *models.Run, rel models.RelationshipConstruction) error {
	if rel.Type == "" {
		return fmt.Errorf("%w: relationship type must not be empty", ErrValidation)
	}
	if !run.Candidate.HasNode(rel.FromNode) {
		return fmt.Errorf("%w: from_node %q is not a planned node label", ErrValidation, rel.FromNode)
	}
	if !run.Candidate.HasNode(rel.ToNode) {
		return fmt.Errorf("%w: to_node %q is not a planned node label", ErrValidation, rel.ToNode)
	}
	if !run.HasFile(rel.SourceFile) {
		return fmt.Errorf("%w: source file %q is not in the run's file set", ErrValidation, rel.SourceFile)
	}
	if rel.FromColumn == "" || rel.ToColumn == "" {
		return fmt.Errorf("%w: relationship %q needs both join columns", ErrValidation, rel.Type)
	}

	columns, err := b.files.Header(rel.SourceFile)
	if err != nil {
		return err
	}
	for _, col := range []string{rel.FromColumn, rel.ToColumn} {
		if !contains(columns, col) {
			return fmt.Errorf("%w: join column %q not found in %q (has: %v)",
				ErrValidation, col, rel.SourceFile, columns)
		}
	}
	for _, col := range sortedKeys(rel.Properties) {
		if !contains(columns, col) {
			return fmt.Errorf("%w: property source column %q not found in %q",
				ErrValidation, col, rel.SourceFile)
		}
	}

	run.Candidate.Relationships = append(run.Candidate.Relationships, rel)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// ApproveRun promotes the candidate plan into the run's approved slot. It
// requires a recorded valid verdict for the exact candidate being approved:
// verdicts carry the fingerprint of the plan they judged, and the candidate
// may have been rebuilt since. The approved slot is single-assignment.
func (b *Builder) ApproveRun(run *models.Run) error {
	if run.Approved != nil {
		return fmt.Errorf("%w: run %s already has an approved plan", ErrState, run.ID)
	}
	if run.LastVerdict == nil || !run.LastVerdict.Valid {
		return fmt.Errorf("%w: run %s has no valid verdict for its candidate", ErrState, run.ID)
	}
	if run.LastVerdict.PlanFingerprint != run.Candidate.Fingerprint() {
		return fmt.Errorf("%w: candidate changed since the valid verdict was recorded", ErrState)
	}

	run.Approved = run.Candidate.Clone()
	run.Status = models.RunStatusAccepted
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
