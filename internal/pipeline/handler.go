package pipeline

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
)

// Handler serves the pipeline HTTP API.
type Handler struct {
	runner *Runner
	runs   storage.RunStore // nil when the run store is disabled
}

// NewHandler creates a handler over runner. runs may be nil.
func NewHandler(runner *Runner, runs storage.RunStore) *Handler {
	return &Handler{runner: runner, runs: runs}
}

// PipelineSummary describes one loaded pipeline.
type PipelineSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
	Sink        string `json:"sink,omitempty"`
	DependsOn   string `json:"depends_on,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// RunResponse is the body of a successful run.
type RunResponse struct {
	Run     storage.Run `json:"run"`
	Columns []string    `json:"columns"`
	Rows    []row.Row   `json:"rows"`
}

// RegisterRoutes registers all pipeline API routes on the given router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/pipelines", h.HandleListPipelines)
	r.POST("/v1/pipelines/:name/run", h.HandleRunPipeline)
	r.GET("/v1/runs", h.HandleListRuns)
}

// HandleListPipelines handles GET /v1/pipelines
func (h *Handler) HandleListPipelines(c *gin.Context) {
	defs, err := h.runner.Pipelines(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to list pipelines",
			Details:   err.Error(),
		})
		return
	}

	out := make([]PipelineSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, PipelineSummary{
			Name:        d.Name,
			Description: d.Description,
			Source:      d.Source.Kind,
			Sink:        d.Sink.Kind,
			DependsOn:   d.DependsOn(),
			Fingerprint: d.Fingerprint,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pipelines": out})
}

// HandleRunPipeline handles POST /v1/pipelines/:name/run
// Query parameters: emit (default true)
func (h *Handler) HandleRunPipeline(c *gin.Context) {
	var uri struct {
		Name string `uri:"name" binding:"required"`
	}
	var query struct {
		Emit *bool `form:"emit"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	opts := RunOptions{SkipEmit: query.Emit != nil && !*query.Emit}
	res, err := h.runner.Run(c.Request.Context(), uri.Name, opts)
	if err != nil {
		status, body := runErrorResponse(err)
		c.JSON(status, body)
		return
	}

	rows := res.Rows
	if rows == nil {
		rows = []row.Row{}
	}
	c.JSON(http.StatusOK, RunResponse{Run: res.Run, Columns: res.Columns, Rows: rows})
}

// HandleListRuns handles GET /v1/runs
// Query parameters: pipeline, limit
func (h *Handler) HandleListRuns(c *gin.Context) {
	var query struct {
		Pipeline string `form:"pipeline"`
		Limit    int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	if h.runs == nil {
		c.JSON(http.StatusNotImplemented, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Run store is disabled",
			Details:   "set database.dsn to record runs",
		})
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), query.Pipeline, query.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to list runs",
			Details:   err.Error(),
		})
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "as_of": time.Now().UTC()})
}

func runErrorResponse(err error) (int, httperr.ErrorResponse) {
	var (
		specErr   *httperr.SpecError
		sourceErr *httperr.SourceError
		sinkErr   *httperr.SinkError
	)
	switch {
	case errors.Is(err, httperr.ErrPipelineNotFound):
		return http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpPipelineNotFoundError,
			Message:   "Pipeline not found",
			Details:   err.Error(),
		}
	case errors.As(err, &specErr):
		return http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpSpecError,
			Message:   "Invalid pipeline definition",
			Details:   err.Error(),
		}
	case errors.As(err, &sourceErr):
		return http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpSourceError,
			Message:   "Failed to read source rows",
			Details:   err.Error(),
		}
	case errors.As(err, &sinkErr):
		return http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpSinkError,
			Message:   "Failed to emit rows",
			Details:   gin.H{"error": err.Error(), "rows_emitted": sinkErr.RowsEmitted},
		}
	}
	return http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   "Pipeline run failed",
		Details:   err.Error(),
	}
}
