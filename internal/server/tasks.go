package server

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	agentcore "github.com/mohammad-safakhou/opsassist/internal/agent/core"
	agenttele "github.com/mohammad-safakhou/opsassist/internal/agent/telemetry"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

// TaskHandler exposes the pipeline over HTTP.
type TaskHandler struct {
	Pipeline  *agentcore.Pipeline
	Registry  *tool.Registry
	Telemetry *agenttele.Telemetry
	Logger    *log.Logger
}

type taskRequest struct {
	Task string `json:"task"`
}

// Register attaches the task routes to the given group.
func (h *TaskHandler) Register(g *echo.Group) {
	if h.Logger == nil {
		h.Logger = log.New(log.Writer(), "[TASKS] ", log.LstdFlags)
	}
	g.POST("/task", h.runTask)
	g.GET("/tools", h.listTools)
	g.GET("/stats", h.stats)
}

func (h *TaskHandler) runTask(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Task = strings.TrimSpace(req.Task)
	if req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task is required")
	}

	result, err := h.Pipeline.Run(c.Request().Context(), req.Task)
	if err != nil {
		// Planning failed before any tool ran. Surface it as a failed
		// result rather than an opaque 500.
		h.Logger.Printf("task rejected at planning: %v", err)
		result = agentcore.TaskResult{
			ID:        uuid.New().String(),
			Task:      req.Task,
			Status:    agentcore.StatusFailed,
			Summary:   "The task could not be planned.",
			Data:      map[string]interface{}{},
			Errors:    []string{err.Error()},
			CreatedAt: time.Now(),
		}
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *TaskHandler) listTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": h.Registry.DescribeAll(),
	})
}

func (h *TaskHandler) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_cost_usd": h.Telemetry.TotalCost(),
		"total_tokens":   h.Telemetry.TotalTokens(),
	})
}
