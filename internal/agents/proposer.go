// Package agents contains the language-model-backed proposer that drives the
// plan builder tools through a JSON action protocol.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"graphplan-mcp/internal/llm"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/workflow"
	"graphplan-mcp/pkg/models"
)

const systemPrompt = `You are a graph data architect. Your job is to build a construction plan:
a set of node and relationship rules mapping flat import files onto a property graph.

Work one action at a time. On every turn output EXACTLY ONE JSON object and nothing else:

{"action":"sample","file":"<path>","max_lines":20}
  Look at the first lines of a file to learn its columns.
{"action":"search","file":"<path>","pattern":"<substring>"}
  Find lines containing a substring.
{"action":"propose_node","label":"<Label>","source_file":"<path>","unique_column":"<col>","properties":{"<col>":"<property>"}}
  Add a node rule. The label must be new and the columns must exist in the file.
{"action":"propose_relationship","type":"<TYPE>","source_file":"<path>","from_node":"<Label>","to_node":"<Label>","from_column":"<col>","to_column":"<col>","properties":{}}
  Add a relationship rule. Both labels must already be in the plan.
{"action":"done"}
  End your turn once the plan covers the goal.

Rules:
- Sample a file before referencing its columns.
- Every node label needs at least one relationship unless the plan has a single node.
- When you receive critic feedback, fix every listed violation before ending the turn.
- A rejected action does not change the plan; read the error and correct the arguments.`

// LLMProposer populates a candidate plan by looping a completion model over
// the toolbox until the model signals it is done or the per-turn action
// budget runs out.
type LLMProposer struct {
	client     llm.Client
	logger     *logging.Logger
	maxActions int
}

// NewLLMProposer creates a proposer. maxActions bounds tool calls within one
// turn; <= 0 selects a default of 32.
func NewLLMProposer(client llm.Client, logger *logging.Logger, maxActions int) *LLMProposer {
	if maxActions <= 0 {
		maxActions = 32
	}
	return &LLMProposer{client: client, logger: logger, maxActions: maxActions}
}

type action struct {
	Action       string            `json:"action"`
	File         string            `json:"file,omitempty"`
	MaxLines     int               `json:"max_lines,omitempty"`
	Pattern      string            `json:"pattern,omitempty"`
	Label        string            `json:"label,omitempty"`
	Type         string            `json:"type,omitempty"`
	SourceFile   string            `json:"source_file,omitempty"`
	UniqueColumn string            `json:"unique_column,omitempty"`
	FromNode     string            `json:"from_node,omitempty"`
	ToNode       string            `json:"to_node,omitempty"`
	FromColumn   string            `json:"from_column,omitempty"`
	ToColumn     string            `json:"to_column,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// Propose runs one proposer turn. Tool rejections are fed back to the model
// as observations rather than ending the turn; only transport failures or an
// unparseable model reply abort.
func (p *LLMProposer) Propose(ctx context.Context, goal models.Goal, fileSet []string, feedback string, tools *workflow.Toolbox) error {
	observation := "Begin. Inspect the files you need, then propose constructions."

	for i := 0; i < p.maxActions; i++ {
		prompt := p.buildPrompt(goal, fileSet, feedback, tools, observation)

		reply, err := p.client.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			return err
		}

		var act action
		if err := json.Unmarshal([]byte(stripFences(reply)), &act); err != nil {
			return fmt.Errorf("proposer reply is not a JSON action: %w", err)
		}

		if act.Action == "done" {
			return nil
		}
		observation = p.dispatch(act, tools)
		p.logger.Debug("proposer action", "action", act.Action, "observation_len", len(observation))
	}

	// Out of actions; the critic will judge whatever was built.
	p.logger.Warn("proposer turn hit action budget", "max_actions", p.maxActions)
	return nil
}

func (p *LLMProposer) dispatch(act action, tools *workflow.Toolbox) string {
	switch act.Action {
	case "sample":
		lines, err := tools.Sample(act.File, act.MaxLines)
		if err != nil {
			return "sample failed: " + err.Error()
		}
		return fmt.Sprintf("first %d lines of %s:\n%s", len(lines), act.File, strings.Join(lines, "\n"))

	case "search":
		matches, err := tools.Search(act.File, act.Pattern)
		if err != nil {
			return "search failed: " + err.Error()
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d matching lines in %s", len(matches), act.File)
		for _, m := range matches {
			fmt.Fprintf(&sb, "\n%d: %s", m.Line, m.Text)
		}
		return sb.String()

	case "propose_node":
		err := tools.ProposeNode(models.NodeConstruction{
			Label:        act.Label,
			SourceFile:   act.SourceFile,
			UniqueColumn: act.UniqueColumn,
			Properties:   act.Properties,
		})
		if err != nil {
			return "propose_node rejected: " + err.Error()
		}
		return fmt.Sprintf("node %q added to the plan", act.Label)

	case "propose_relationship":
		err := tools.ProposeRelationship(models.RelationshipConstruction{
			Type:       act.Type,
			SourceFile: act.SourceFile,
			FromNode:   act.FromNode,
			ToNode:     act.ToNode,
			FromColumn: act.FromColumn,
			ToColumn:   act.ToColumn,
			Properties: act.Properties,
		})
		if err != nil {
			return "propose_relationship rejected: " + err.Error()
		}
		return fmt.Sprintf("relationship %q added to the plan", act.Type)

	default:
		return fmt.Sprintf("unknown action %q; use sample, search, propose_node, propose_relationship, or done", act.Action)
	}
}

func (p *LLMProposer) buildPrompt(goal models.Goal, fileSet []string, feedback string, tools *workflow.Toolbox, observation string) string {
	planJSON, _ := json.MarshalIndent(tools.Plan(), "", "  ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: build a %s graph.\n%s\n\n", goal.KindOfGraph, goal.Description)
	fmt.Fprintf(&sb, "Available files: %s\n\n", strings.Join(fileSet, ", "))
	fmt.Fprintf(&sb, "Current plan:\n%s\n\n", planJSON)
	if feedback != "" {
		fmt.Fprintf(&sb, "Critic feedback on the previous attempt:\n%s\n\n", feedback)
	}
	fmt.Fprintf(&sb, "Last observation:\n%s\n\nNext action?", observation)
	return sb.String()
}

// stripFences removes a markdown code fence around a JSON reply, which
// models emit despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
