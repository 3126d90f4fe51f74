// Package mcp exposes the plan builder and file inspection tools over the
// Model Context Protocol, so an external agent can drive a refinement run
// interactively.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/planner"
	"graphplan-mcp/internal/workflow"
	"graphplan-mcp/pkg/models"
)

// Server wires the workflow tools into an MCP server.
type Server struct {
	mcpServer   *server.MCPServer
	manager     *workflow.Manager
	coordinator *workflow.Coordinator
	planBuilder *planner.Builder
	files       *files.Service
	logger      *logging.Logger
	sampleLines int
}

// NewServer creates the MCP server and registers all tools. sampleLines is
// the default bound for sample_file.
func NewServer(manager *workflow.Manager, coordinator *workflow.Coordinator, planBuilder *planner.Builder, fsvc *files.Service, logger *logging.Logger, sampleLines int) *Server {
	if sampleLines <= 0 {
		sampleLines = files.DefaultSampleLines
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Graph Construction Planner",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		manager:     manager,
		coordinator: coordinator,
		planBuilder: planBuilder,
		files:       fsvc,
		logger:      logger,
		sampleLines: sampleLines,
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for mounting.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_run",
			mcp.WithDescription("Start a new construction plan refinement run"),
			mcp.WithString("kind_of_graph", mcp.Required(), mcp.Description("What kind of graph to build, e.g. 'supply chain'")),
			mcp.WithString("description", mcp.Required(), mcp.Description("What the graph should capture")),
			mcp.WithString("files", mcp.Description("JSON array of import file paths; omit to use every file under the import root")),
		),
		s.handleStartRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_run",
			mcp.WithDescription("Get the full state of a run"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
		),
		s.handleGetRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_import_files",
			mcp.WithDescription("List the files available under the import root"),
		),
		s.handleListImportFiles,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"sample_file",
			mcp.WithDescription("Return the first lines of an import file"),
			mcp.WithString("file", mcp.Required(), mcp.Description("File path relative to the import root")),
			mcp.WithNumber("max_lines", mcp.Description("Maximum number of lines to return")),
		),
		s.handleSampleFile,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"search_file",
			mcp.WithDescription("Return the lines of an import file containing a substring"),
			mcp.WithString("file", mcp.Required(), mcp.Description("File path relative to the import root")),
			mcp.WithString("pattern", mcp.Required(), mcp.Description("Substring to search for")),
		),
		s.handleSearchFile,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"propose_node",
			mcp.WithDescription("Add a node construction rule to a run's candidate plan"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
			mcp.WithString("label", mcp.Required(), mcp.Description("Node label, unique within the plan")),
			mcp.WithString("source_file", mcp.Required(), mcp.Description("Import file the nodes come from")),
			mcp.WithString("unique_column", mcp.Required(), mcp.Description("Column whose value keys each node")),
			mcp.WithString("properties", mcp.Description("JSON object mapping source columns to property names")),
		),
		s.handleProposeNode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"propose_relationship",
			mcp.WithDescription("Add a relationship construction rule to a run's candidate plan"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
			mcp.WithString("type", mcp.Required(), mcp.Description("Relationship type, e.g. CONTAINS")),
			mcp.WithString("source_file", mcp.Required(), mcp.Description("Import file the relationships come from")),
			mcp.WithString("from_node", mcp.Required(), mcp.Description("Label of the source node, already in the plan")),
			mcp.WithString("to_node", mcp.Required(), mcp.Description("Label of the target node, already in the plan")),
			mcp.WithString("from_column", mcp.Required(), mcp.Description("Join column for the source node key")),
			mcp.WithString("to_column", mcp.Required(), mcp.Description("Join column for the target node key")),
			mcp.WithString("properties", mcp.Description("JSON object mapping source columns to property names")),
		),
		s.handleProposeRelationship,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_plan",
			mcp.WithDescription("Get a run's current candidate plan"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
		),
		s.handleGetPlan,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"critique_plan",
			mcp.WithDescription("End the proposer turn and have the critic judge the candidate plan"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
		),
		s.handleCritiquePlan,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"approve_plan",
			mcp.WithDescription("Promote a candidate plan with a valid verdict into the approved slot"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
		),
		s.handleApprovePlan,
	)
}

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	kind, _ := args["kind_of_graph"].(string)
	description, _ := args["description"].(string)
	if kind == "" || description == "" {
		return mcp.NewToolResultError("Missing required parameters: kind_of_graph, description"), nil
	}

	var fileSet []string
	if raw, ok := args["files"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &fileSet); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("files must be a JSON array of strings: %v", err)), nil
		}
	} else {
		var err error
		fileSet, err = s.files.List()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list import files: %v", err)), nil
		}
	}
	if len(fileSet) == 0 {
		return mcp.NewToolResultError("No import files available for this run"), nil
	}

	run := s.manager.Create(models.Goal{KindOfGraph: kind, Description: description}, fileSet, "mcp")
	s.logger.Info("run started", "run_id", run.ID, "kind_of_graph", kind, "files", len(fileSet))
	return jsonResult(run)
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, errResult := s.runID(request)
	if errResult != nil {
		return errResult, nil
	}
	run, err := s.manager.Snapshot(runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run)
}

func (s *Server) handleListImportFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileSet, err := s.files.List()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list import files: %v", err)), nil
	}
	return jsonResult(fileSet)
}

func (s *Server) handleSampleFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	file, _ := args["file"].(string)
	if file == "" {
		return mcp.NewToolResultError("Missing required parameter: file"), nil
	}
	maxLines := s.sampleLines
	if n, ok := args["max_lines"].(float64); ok && int(n) > 0 {
		maxLines = int(n)
	}

	lines, err := s.files.Sample(file, maxLines)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to sample %s: %v", file, err)), nil
	}
	return jsonResult(lines)
}

func (s *Server) handleSearchFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	file, _ := args["file"].(string)
	pattern, _ := args["pattern"].(string)
	if file == "" || pattern == "" {
		return mcp.NewToolResultError("Missing required parameters: file, pattern"), nil
	}

	matches, err := s.files.Search(file, pattern)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search %s: %v", file, err)), nil
	}
	return jsonResult(matches)
}

func (s *Server) handleProposeNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	runID, _ := args["run_id"].(string)
	label, _ := args["label"].(string)
	sourceFile, _ := args["source_file"].(string)
	uniqueColumn, _ := args["unique_column"].(string)
	if runID == "" || label == "" || sourceFile == "" || uniqueColumn == "" {
		return mcp.NewToolResultError("Missing required parameters: run_id, label, source_file, unique_column"), nil
	}
	properties, err := parseProperties(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	node := models.NodeConstruction{
		Label:        label,
		SourceFile:   sourceFile,
		UniqueColumn: uniqueColumn,
		Properties:   properties,
	}
	err = s.manager.Update(runID, func(run *models.Run) error {
		if run.Status.Terminal() {
			return fmt.Errorf("run %s already ended as %s", run.ID, run.Status)
		}
		return workflow.NewToolbox(run, s.planBuilder, s.files).ProposeNode(node)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to propose node: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Node %q added to the candidate plan", label)), nil
}

func (s *Server) handleProposeRelationship(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	runID, _ := args["run_id"].(string)
	relType, _ := args["type"].(string)
	sourceFile, _ := args["source_file"].(string)
	fromNode, _ := args["from_node"].(string)
	toNode, _ := args["to_node"].(string)
	fromColumn, _ := args["from_column"].(string)
	toColumn, _ := args["to_column"].(string)
	if runID == "" || relType == "" || sourceFile == "" || fromNode == "" || toNode == "" || fromColumn == "" || toColumn == "" {
		return mcp.NewToolResultError("Missing required parameters: run_id, type, source_file, from_node, to_node, from_column, to_column"), nil
	}
	properties, err := parseProperties(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rel := models.RelationshipConstruction{
		Type:       relType,
		SourceFile: sourceFile,
		FromNode:   fromNode,
		ToNode:     toNode,
		FromColumn: fromColumn,
		ToColumn:   toColumn,
		Properties: properties,
	}
	err = s.manager.Update(runID, func(run *models.Run) error {
		if run.Status.Terminal() {
			return fmt.Errorf("run %s already ended as %s", run.ID, run.Status)
		}
		return workflow.NewToolbox(run, s.planBuilder, s.files).ProposeRelationship(rel)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to propose relationship: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Relationship %q added to the candidate plan", relType)), nil
}

func (s *Server) handleGetPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, errResult := s.runID(request)
	if errResult != nil {
		return errResult, nil
	}
	run, err := s.manager.Snapshot(runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run.Candidate)
}

func (s *Server) handleCritiquePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, errResult := s.runID(request)
	if errResult != nil {
		return errResult, nil
	}

	var verdict models.Verdict
	err := s.manager.Update(runID, func(run *models.Run) error {
		if run.Status.Terminal() {
			return fmt.Errorf("run %s already ended as %s", run.ID, run.Status)
		}
		verdict = s.coordinator.CritiqueTurn(ctx, run)
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to critique plan: %v", err)), nil
	}
	return jsonResult(verdict)
}

func (s *Server) handleApprovePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, errResult := s.runID(request)
	if errResult != nil {
		return errResult, nil
	}

	var run *models.Run
	err := s.manager.Update(runID, func(r *models.Run) error {
		if err := s.coordinator.ApproveRun(r); err != nil {
			return err
		}
		run = r.Clone()
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to approve plan: %v", err)), nil
	}
	s.logger.Info("plan approved via mcp", "run_id", runID)
	return jsonResult(run)
}

func (s *Server) runID(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", mcp.NewToolResultError("Invalid arguments type")
	}
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return "", mcp.NewToolResultError("Missing required parameter: run_id")
	}
	return runID, nil
}

func parseProperties(args map[string]interface{}) (map[string]string, error) {
	raw, ok := args["properties"].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	var props map[string]string
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("properties must be a JSON object of strings: %v", err)
	}
	return props, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, _ := json.Marshal(v)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers mounts the MCP SSE endpoints on the mux.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
