package core

import (
	"time"
)

// Status classifies the outcome of one pipeline run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// PlanStep is one entry in a plan, naming a tool and its parameters.
type PlanStep struct {
	StepNumber  int                    `json:"step_number"`
	Tool        string                 `json:"tool"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Plan is an ordered sequence of tool invocations with rationale. Step order
// is execution order.
type Plan struct {
	TaskSummary    string     `json:"task_summary"`
	Steps          []PlanStep `json:"steps"`
	ExpectedOutput string     `json:"expected_output"`
}

// TaskResult is the terminal, immutable artifact of one pipeline run.
type TaskResult struct {
	ID        string                 `json:"id"`
	Task      string                 `json:"task"`
	Status    Status                 `json:"status"`
	Summary   string                 `json:"summary"`
	Data      map[string]interface{} `json:"data"`
	Errors    []string               `json:"errors"`
	Plan      *Plan                  `json:"plan,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// PlanningError indicates the planner could not obtain a schema-valid,
// tool-consistent plan after bounded retries. It is fatal to the run: no
// executor stage occurs.
type PlanningError struct {
	Task string
	Err  error
}

func (e *PlanningError) Error() string {
	return "planning failed: " + e.Err.Error()
}

func (e *PlanningError) Unwrap() error { return e.Err }
