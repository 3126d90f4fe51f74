package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphplan-mcp/internal/critic"
	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/planner"
	"graphplan-mcp/internal/workflow"
	"graphplan-mcp/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "parts.csv"),
		[]byte("part_id,part_name,unit_cost\nP-100,M4 bolt,0.12\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assemblies.csv"),
		[]byte("assembly_id,assembly_name,part_id,quantity\nA-1,Spindle,P-100,8\n"), 0o644))

	fsvc := files.NewService(root)
	builder := planner.NewBuilder(fsvc)
	logger := logging.NewNop()
	coordinator, err := workflow.NewCoordinator(nil, critic.New(fsvc), builder, fsvc, nil, logger, 10)
	require.NoError(t, err)

	return NewServer(workflow.NewManager(), coordinator, builder, fsvc, logger, 100)
}

func callReq(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestInteractiveRefinementFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Start a run over every import file.
	result, err := s.handleStartRun(ctx, callReq(map[string]interface{}{
		"kind_of_graph": "supply chain",
		"description":   "parts and the assemblies containing them",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var run models.Run
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, []string{"assemblies.csv", "parts.csv"}, run.Files)

	// Propose both node types.
	result, err = s.handleProposeNode(ctx, callReq(map[string]interface{}{
		"run_id":        run.ID,
		"label":         "Part",
		"source_file":   "parts.csv",
		"unique_column": "part_id",
		"properties":    `{"part_name":"name","unit_cost":"cost"}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	result, err = s.handleProposeNode(ctx, callReq(map[string]interface{}{
		"run_id":        run.ID,
		"label":         "Assembly",
		"source_file":   "assemblies.csv",
		"unique_column": "assembly_id",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	// A disconnected plan draws a retry verdict; approval is refused.
	result, err = s.handleCritiquePlan(ctx, callReq(map[string]interface{}{"run_id": run.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))
	var verdict models.Verdict
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &verdict))
	assert.False(t, verdict.Valid)
	assert.Contains(t, verdict.Feedback, "not referenced by any relationship")

	result, err = s.handleApprovePlan(ctx, callReq(map[string]interface{}{"run_id": run.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// Repair connectivity and critique again.
	result, err = s.handleProposeRelationship(ctx, callReq(map[string]interface{}{
		"run_id":      run.ID,
		"type":        "CONTAINS",
		"source_file": "assemblies.csv",
		"from_node":   "Assembly",
		"to_node":     "Part",
		"from_column": "assembly_id",
		"to_column":   "part_id",
		"properties":  `{"quantity":"quantity"}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	result, err = s.handleCritiquePlan(ctx, callReq(map[string]interface{}{"run_id": run.ID}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &verdict))
	assert.True(t, verdict.Valid)

	result, err = s.handleApprovePlan(ctx, callReq(map[string]interface{}{"run_id": run.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var approved models.Run
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &approved))
	assert.Equal(t, models.RunStatusAccepted, approved.Status)
	assert.Equal(t, 2, approved.TurnCount)
	require.NotNil(t, approved.Approved)
	assert.Len(t, approved.Approved.Nodes, 2)
	assert.Len(t, approved.Approved.Relationships, 1)

	// A terminal run rejects further proposals.
	result, err = s.handleProposeNode(ctx, callReq(map[string]interface{}{
		"run_id":        run.ID,
		"label":         "Supplier",
		"source_file":   "parts.csv",
		"unique_column": "part_id",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "already ended")
}

func TestStartRunWithExplicitFiles(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleStartRun(context.Background(), callReq(map[string]interface{}{
		"kind_of_graph": "supply chain",
		"description":   "parts only",
		"files":         `["parts.csv"]`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var run models.Run
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &run))
	assert.Equal(t, []string{"parts.csv"}, run.Files)
}

func TestStartRunMissingParameters(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleStartRun(context.Background(), callReq(map[string]interface{}{
		"kind_of_graph": "supply chain",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestFileInspectionTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleListImportFiles(ctx, callReq(nil))
	require.NoError(t, err)
	assert.Equal(t, `["assemblies.csv","parts.csv"]`, textOf(t, result))

	result, err = s.handleSampleFile(ctx, callReq(map[string]interface{}{
		"file":      "parts.csv",
		"max_lines": float64(1),
	}))
	require.NoError(t, err)
	var lines []string
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &lines))
	assert.Equal(t, []string{"part_id,part_name,unit_cost"}, lines)

	result, err = s.handleSearchFile(ctx, callReq(map[string]interface{}{
		"file":    "parts.csv",
		"pattern": "M4",
	}))
	require.NoError(t, err)
	var matches []files.Match
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Line)

	result, err = s.handleSampleFile(ctx, callReq(map[string]interface{}{
		"file": "../outside.csv",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRunToolsUnknownRun(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleGetRun(ctx, callReq(map[string]interface{}{"run_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleCritiquePlan(ctx, callReq(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "run_id")
}
