package graphdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/pkg/models"
)

// recordingExecutor captures every statement instead of hitting a database.
type recordingExecutor struct {
	calls []executedCall
	err   error
}

type executedCall struct {
	query  string
	params map[string]any
}

func (e *recordingExecutor) Execute(_ context.Context, query string, params map[string]any) (*Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls = append(e.calls, executedCall{query: query, params: params})
	return &Result{}, nil
}

func newApplyFixture(t *testing.T) (*recordingExecutor, *Applier) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "parts.csv"), []byte(
		"part_id,part_name,unit_cost\n"+
			"P-100,M4 bolt,0.12\n"+
			"P-101,M4 nut,\n"+
			",Orphan row,1.00\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assemblies.csv"), []byte(
		"assembly_id,assembly_name,part_id,quantity\n"+
			"A-1,Spindle,P-100,8\n"+
			"A-1,Spindle,,2\n"), 0o644))

	fsvc := files.NewService(root)
	exec := &recordingExecutor{}
	return exec, NewApplier(exec, fsvc, logging.NewNop())
}

func supplyChainPlan() *models.ConstructionPlan {
	return &models.ConstructionPlan{
		Nodes: []models.NodeConstruction{
			{Label: "Part", SourceFile: "parts.csv", UniqueColumn: "part_id",
				Properties: map[string]string{"part_name": "name", "unit_cost": "cost"}},
			{Label: "Assembly", SourceFile: "assemblies.csv", UniqueColumn: "assembly_id"},
		},
		Relationships: []models.RelationshipConstruction{
			{Type: "CONTAINS", SourceFile: "assemblies.csv", FromNode: "Assembly",
				ToNode: "Part", FromColumn: "assembly_id", ToColumn: "part_id",
				Properties: map[string]string{"quantity": "quantity"}},
		},
	}
}

func TestApply(t *testing.T) {
	exec, applier := newApplyFixture(t)

	stats, err := applier.Apply(context.Background(), supplyChainPlan())
	require.NoError(t, err)

	// parts.csv has 2 keyed rows, assemblies.csv 2; one edge row lacks its
	// part_id and is skipped.
	assert.Equal(t, 4, stats.Nodes)
	assert.Equal(t, 1, stats.Relationships)
	require.Len(t, exec.calls, 5)

	first := exec.calls[0]
	assert.Equal(t, upsertNode, first.query)
	assert.Equal(t, "Part", first.params["label"])
	assert.Equal(t, "P-100", first.params["key"])
	assert.Equal(t, map[string]any{"name": "M4 bolt", "cost": "0.12"}, first.params["properties"])

	// The empty unit_cost cell does not become a property.
	second := exec.calls[1]
	assert.Equal(t, "P-101", second.params["key"])
	assert.Equal(t, map[string]any{"name": "M4 nut"}, second.params["properties"])

	edge := exec.calls[len(exec.calls)-1]
	assert.Equal(t, insertEdge, edge.query)
	assert.Equal(t, "CONTAINS", edge.params["type"])
	assert.Equal(t, "A-1", edge.params["from_key"])
	assert.Equal(t, "P-100", edge.params["to_key"])
	assert.Equal(t, map[string]any{"quantity": "8"}, edge.params["properties"])
}

func TestApplyNodesBeforeRelationships(t *testing.T) {
	exec, applier := newApplyFixture(t)

	_, err := applier.Apply(context.Background(), supplyChainPlan())
	require.NoError(t, err)

	sawEdge := false
	for _, call := range exec.calls {
		if call.query == insertEdge {
			sawEdge = true
		} else if sawEdge {
			t.Fatal("node statement executed after an edge statement")
		}
	}
	assert.True(t, sawEdge)
}

func TestApplyMissingSourceFile(t *testing.T) {
	exec, applier := newApplyFixture(t)
	plan := supplyChainPlan()
	plan.Nodes[0].SourceFile = "missing.csv"

	_, err := applier.Apply(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `applying node "Part"`)
	assert.Empty(t, exec.calls)
}

func TestApplyExecutorFailure(t *testing.T) {
	exec, applier := newApplyFixture(t)
	exec.err = errors.New("connection reset")

	_, err := applier.Apply(context.Background(), supplyChainPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
