// Package models defines the domain models for the graph construction plan service.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Goal describes what kind of property graph a run should produce from the
// import files. It is immutable for the lifetime of a run.
type Goal struct {
	KindOfGraph string `json:"kind_of_graph"`
	Description string `json:"description"`
}

// NodeConstruction maps rows of a source file onto nodes with a given label.
// UniqueColumn identifies the column whose value keys each node. Properties
// maps source columns to property names on the constructed node.
type NodeConstruction struct {
	Label        string            `json:"label"`
	SourceFile   string            `json:"source_file"`
	UniqueColumn string            `json:"unique_column"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// RelationshipConstruction maps rows of a source file onto relationships
// between two already-planned node labels. FromColumn and ToColumn name the
// join columns matched against the endpoint nodes' unique columns.
type RelationshipConstruction struct {
	Type       string            `json:"type"`
	SourceFile string            `json:"source_file"`
	FromNode   string            `json:"from_node"`
	ToNode     string            `json:"to_node"`
	FromColumn string            `json:"from_column"`
	ToColumn   string            `json:"to_column"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ConstructionPlan is the full declarative mapping from flat files to a
// property-graph schema.
type ConstructionPlan struct {
	Nodes         []NodeConstruction         `json:"nodes"`
	Relationships []RelationshipConstruction `json:"relationships"`
}

// HasNode reports whether a node construction with the given label exists.
// Labels are matched case-sensitively.
func (p *ConstructionPlan) HasNode(label string) bool {
	for _, n := range p.Nodes {
		if n.Label == label {
			return true
		}
	}
	return false
}

// NodeLabels returns the labels of all node constructions in plan order.
func (p *ConstructionPlan) NodeLabels() []string {
	labels := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		labels = append(labels, n.Label)
	}
	return labels
}

// ReferencesFile reports whether any construction rule draws from the file.
func (p *ConstructionPlan) ReferencesFile(file string) bool {
	for _, n := range p.Nodes {
		if n.SourceFile == file {
			return true
		}
	}
	for _, r := range p.Relationships {
		if r.SourceFile == file {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the plan. Approval stores a clone so later
// candidate edits cannot reach the approved slot.
func (p *ConstructionPlan) Clone() *ConstructionPlan {
	out := &ConstructionPlan{}
	for _, n := range p.Nodes {
		n.Properties = cloneProps(n.Properties)
		out.Nodes = append(out.Nodes, n)
	}
	for _, r := range p.Relationships {
		r.Properties = cloneProps(r.Properties)
		out.Relationships = append(out.Relationships, r)
	}
	return out
}

// Fingerprint returns a stable hex digest of the plan's structure. Two plans
// that are structurally equal produce the same fingerprint even when built
// through different sequences of proposals. encoding/json emits map keys in
// sorted order, so the serialization is canonical.
func (p *ConstructionPlan) Fingerprint() string {
	data, err := json.Marshal(p)
	if err != nil {
		// Plans contain only strings and maps of strings; Marshal cannot fail.
		panic("models: plan marshal: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cloneProps(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
