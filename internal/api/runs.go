package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"graphplan-mcp/internal/auth"
	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/graphdb"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/planner"
	"graphplan-mcp/internal/workflow"
	"graphplan-mcp/pkg/models"
)

// Handler holds the dependencies for the REST API.
type Handler struct {
	manager     *workflow.Manager
	coordinator *workflow.Coordinator
	files       *files.Service
	applier     *graphdb.Applier
	logger      *logging.Logger

	// baseCtx outlives individual requests; embedded refinement runs
	// launched from StartRun are bound to it, not to the request.
	baseCtx context.Context
}

// NewHandler creates a new Handler.
func NewHandler(baseCtx context.Context, manager *workflow.Manager, coordinator *workflow.Coordinator, fsvc *files.Service, applier *graphdb.Applier, logger *logging.Logger) *Handler {
	return &Handler{
		manager:     manager,
		coordinator: coordinator,
		files:       fsvc,
		applier:     applier,
		logger:      logger,
		baseCtx:     baseCtx,
	}
}

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	KindOfGraph string   `json:"kind_of_graph"`
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
}

// StartRun creates a run and launches the embedded refinement loop.
// (POST /api/v1/runs)
func (h *Handler) StartRun(c echo.Context) error {
	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.KindOfGraph == "" || req.Description == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind_of_graph and description are required")
	}
	if !h.coordinator.HasProposer() {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"No language model configured; drive runs through the MCP tools instead")
	}

	fileSet := req.Files
	if len(fileSet) == 0 {
		var err error
		fileSet, err = h.files.List()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list import files: "+err.Error())
		}
	}
	if len(fileSet) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No import files available for this run")
	}

	createdBy, _ := c.Request().Context().Value(auth.EmailContextKey).(string)
	goal := models.Goal{KindOfGraph: req.KindOfGraph, Description: req.Description}
	run := h.manager.Create(goal, fileSet, createdBy)

	go func() {
		if err := h.coordinator.RunManaged(h.baseCtx, h.manager, run.ID); err != nil {
			h.logger.Error("refinement run failed", "run_id", run.ID, "error", err)
		}
	}()

	h.logger.Info("run started", "run_id", run.ID, "kind_of_graph", goal.KindOfGraph, "created_by", createdBy)
	snapshot, err := h.manager.Snapshot(run.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, snapshot)
}

// ListRuns returns all live runs.
// (GET /api/v1/runs)
func (h *Handler) ListRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.ListSnapshots())
}

// GetRun returns the state of one run.
// (GET /api/v1/runs/:id)
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.manager.Snapshot(c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetPlan returns a run's approved plan when one exists, otherwise the
// current candidate. format=yaml renders the plan as YAML.
// (GET /api/v1/runs/:id/plan)
func (h *Handler) GetPlan(c echo.Context) error {
	run, err := h.manager.Snapshot(c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}

	plan := run.Candidate
	if run.Approved != nil {
		plan = run.Approved
	}

	if c.QueryParam("format") == "yaml" {
		data, err := yaml.Marshal(plan)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
	return c.JSON(http.StatusOK, plan)
}

// ApplyPlan loads a run's approved plan into the graph store.
// (POST /api/v1/runs/:id/apply)
func (h *Handler) ApplyPlan(c echo.Context) error {
	run, err := h.manager.Snapshot(c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	if run.Approved == nil {
		return echo.NewHTTPError(http.StatusConflict, "Run has no approved plan to apply")
	}
	if h.applier == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Graph store is not configured")
	}

	stats, err := h.applier.Apply(c.Request().Context(), run.Approved)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Apply failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func notFoundOr500(err error) error {
	if errors.Is(err, planner.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
