// Package critic evaluates candidate construction plans against the
// structural rules a plan must satisfy before it can be approved.
package critic

import (
	"fmt"
	"sort"
	"strings"

	"graphplan-mcp/pkg/models"
)

// Inspector is the slice of the file inspection service the critic needs.
// Columns are re-verified against the files at critique time rather than
// trusted from proposal time; the files are external and may have changed.
type Inspector interface {
	Header(file string) ([]string, error)
}

// Critic is a stateless evaluator over a candidate plan and its file set.
type Critic struct {
	files Inspector
}

// New creates a Critic backed by the given file inspector.
func New(files Inspector) *Critic {
	return &Critic{files: files}
}

// Review checks every hard rule in one pass and returns a verdict. A plan
// failing any hard rule yields a retry verdict whose feedback describes all
// violations found, so the proposer can fix several issues in one refinement
// turn. Unreferenced files produce advisory feedback only; they never block
// an otherwise valid plan.
func (c *Critic) Review(plan *models.ConstructionPlan, fileSet []string) models.Verdict {
	var violations []string

	if len(plan.Nodes) == 0 {
		violations = append(violations, "plan contains no node constructions")
	}

	// Node uniqueness.
	seen := make(map[string]bool, len(plan.Nodes))
	for _, n := range plan.Nodes {
		if seen[n.Label] {
			violations = append(violations, fmt.Sprintf("duplicate node label %q", n.Label))
		}
		seen[n.Label] = true
	}

	// Referential integrity.
	for _, r := range plan.Relationships {
		if !plan.HasNode(r.FromNode) {
			violations = append(violations, fmt.Sprintf(
				"relationship %q references unknown from_node %q", r.Type, r.FromNode))
		}
		if !plan.HasNode(r.ToNode) {
			violations = append(violations, fmt.Sprintf(
				"relationship %q references unknown to_node %q", r.Type, r.ToNode))
		}
	}

	// Connectivity. A single-node plan is trivially connected.
	if len(plan.Nodes) > 1 {
		for _, n := range plan.Nodes {
			connected := false
			for _, r := range plan.Relationships {
				if r.FromNode == n.Label || r.ToNode == n.Label {
					connected = true
					break
				}
			}
			if !connected {
				violations = append(violations, fmt.Sprintf(
					"node %q is not referenced by any relationship", n.Label))
			}
		}
	}

	// Column existence, re-verified from fresh headers.
	headers := make(map[string][]string)
	for _, n := range plan.Nodes {
		columns, errMsg := c.header(headers, n.SourceFile)
		if errMsg != "" {
			violations = append(violations, errMsg)
			continue
		}
		violations = append(violations, missingColumns(
			fmt.Sprintf("node %q", n.Label), n.SourceFile, columns,
			append([]string{n.UniqueColumn}, propertyColumns(n.Properties)...))...)
	}
	for _, r := range plan.Relationships {
		columns, errMsg := c.header(headers, r.SourceFile)
		if errMsg != "" {
			violations = append(violations, errMsg)
			continue
		}
		violations = append(violations, missingColumns(
			fmt.Sprintf("relationship %q", r.Type), r.SourceFile, columns,
			append([]string{r.FromColumn, r.ToColumn}, propertyColumns(r.Properties)...))...)
	}

	if len(violations) == 0 {
		return models.Verdict{Valid: true, PlanFingerprint: plan.Fingerprint()}
	}

	var sb strings.Builder
	sb.WriteString("plan rejected:")
	for _, v := range violations {
		sb.WriteString("\n- ")
		sb.WriteString(v)
	}

	// Goal coverage is advisory: report files the plan never touches, but
	// only alongside hard violations.
	for _, f := range fileSet {
		if !plan.ReferencesFile(f) {
			sb.WriteString(fmt.Sprintf("\n- advisory: file %q is not used by any construction rule", f))
		}
	}

	return models.Verdict{
		Valid:           false,
		Feedback:        sb.String(),
		PlanFingerprint: plan.Fingerprint(),
	}
}

func (c *Critic) header(cache map[string][]string, file string) ([]string, string) {
	if columns, ok := cache[file]; ok {
		return columns, ""
	}
	columns, err := c.files.Header(file)
	if err != nil {
		return nil, fmt.Sprintf("could not verify columns of %q: %v", file, err)
	}
	cache[file] = columns
	return columns, ""
}

func missingColumns(subject, file string, columns, wanted []string) []string {
	var out []string
	for _, col := range wanted {
		found := false
		for _, have := range columns {
			if have == col {
				found = true
				break
			}
		}
		if !found {
			out = append(out, fmt.Sprintf("%s references column %q missing from %q", subject, col, file))
		}
	}
	return out
}

func propertyColumns(props map[string]string) []string {
	cols := make([]string, 0, len(props))
	for col := range props {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
