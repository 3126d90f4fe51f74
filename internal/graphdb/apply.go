package graphdb

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/pkg/models"
)

// Schema creates the generic property-graph tables the applier loads into.
const Schema = `CREATE TABLE IF NOT EXISTS graph_nodes (
	label TEXT NOT NULL,
	key TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (label, key)
);
CREATE TABLE IF NOT EXISTS graph_edges (
	type TEXT NOT NULL,
	from_label TEXT NOT NULL,
	from_key TEXT NOT NULL,
	to_label TEXT NOT NULL,
	to_key TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}'
);`

const upsertNode = `INSERT INTO graph_nodes (label, key, properties)
VALUES (@label, @key, @properties)
ON CONFLICT (label, key) DO UPDATE SET properties = graph_nodes.properties || EXCLUDED.properties`

const insertEdge = `INSERT INTO graph_edges (type, from_label, from_key, to_label, to_key, properties)
VALUES (@type, @from_label, @from_key, @to_label, @to_key, @properties)`

// ApplyStats reports how many graph elements an apply produced.
type ApplyStats struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
}

// Applier loads an approved construction plan into the graph store, one
// parameterized statement per source row. Rows with an empty key column are
// skipped; an unreadable source file aborts the apply.
type Applier struct {
	exec   Executor
	files  *files.Service
	logger *logging.Logger
}

// NewApplier creates an Applier.
func NewApplier(exec Executor, fsvc *files.Service, logger *logging.Logger) *Applier {
	return &Applier{exec: exec, files: fsvc, logger: logger}
}

// Apply executes the plan: all node rules first, then relationship rules, so
// every endpoint exists before its edges are written.
func (a *Applier) Apply(ctx context.Context, plan *models.ConstructionPlan) (*ApplyStats, error) {
	stats := &ApplyStats{}

	for _, node := range plan.Nodes {
		n, err := a.applyNode(ctx, node)
		if err != nil {
			return stats, fmt.Errorf("applying node %q: %w", node.Label, err)
		}
		stats.Nodes += n
	}
	for _, rel := range plan.Relationships {
		n, err := a.applyRelationship(ctx, rel)
		if err != nil {
			return stats, fmt.Errorf("applying relationship %q: %w", rel.Type, err)
		}
		stats.Relationships += n
	}

	a.logger.Info("plan applied", "nodes", stats.Nodes, "relationships", stats.Relationships)
	return stats, nil
}

func (a *Applier) applyNode(ctx context.Context, node models.NodeConstruction) (int, error) {
	count := 0
	err := a.eachRow(node.SourceFile, func(index map[string]int, record []string) error {
		key := field(record, index, node.UniqueColumn)
		if key == "" {
			return nil
		}
		_, err := a.exec.Execute(ctx, upsertNode, map[string]any{
			"label":      node.Label,
			"key":        key,
			"properties": rowProperties(record, index, node.Properties),
		})
		if err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func (a *Applier) applyRelationship(ctx context.Context, rel models.RelationshipConstruction) (int, error) {
	count := 0
	err := a.eachRow(rel.SourceFile, func(index map[string]int, record []string) error {
		fromKey := field(record, index, rel.FromColumn)
		toKey := field(record, index, rel.ToColumn)
		if fromKey == "" || toKey == "" {
			return nil
		}
		_, err := a.exec.Execute(ctx, insertEdge, map[string]any{
			"type":       rel.Type,
			"from_label": rel.FromNode,
			"from_key":   fromKey,
			"to_label":   rel.ToNode,
			"to_key":     toKey,
			"properties": rowProperties(record, index, rel.Properties),
		})
		if err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// eachRow streams the CSV file, calling fn for every data row with the
// header index.
func (a *Applier) eachRow(file string, fn func(index map[string]int, record []string) error) error {
	r, err := a.files.Open(file)
	if err != nil {
		return err
	}
	defer r.Close()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(index, record); err != nil {
			return err
		}
	}
}

func field(record []string, index map[string]int, column string) string {
	i, ok := index[column]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func rowProperties(record []string, index map[string]int, mapping map[string]string) map[string]any {
	props := make(map[string]any, len(mapping))
	for col, name := range mapping {
		if v := field(record, index, col); v != "" {
			props[name] = v
		}
	}
	return props
}
