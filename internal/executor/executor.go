package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/opsassist/internal/agent/core"
	"github.com/mohammad-safakhou/opsassist/internal/agent/telemetry"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

// Executor runs plan steps strictly in order against the tool registry,
// folding per-step outcomes into a data map and an ordered error list.
// Partial success is always returned, never discarded.
type Executor struct {
	registry    *tool.Registry
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
	stepTimeout time.Duration
	// one extra attempt for failures classified as transient
	transientRetries int
}

// Option configures executor behaviour.
type Option func(*Executor)

// WithStepTimeout bounds each tool call.
func WithStepTimeout(d time.Duration) Option {
	return func(ex *Executor) { ex.stepTimeout = d }
}

// WithTransientRetries sets the per-step retry bound for transient failures.
func WithTransientRetries(n int) Option {
	return func(ex *Executor) {
		if n >= 0 {
			ex.transientRetries = n
		}
	}
}

// New creates an executor over the given registry.
func New(registry *tool.Registry, tele *telemetry.Telemetry, opts ...Option) *Executor {
	ex := &Executor{
		registry:         registry,
		telemetry:        tele,
		logger:           log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
		stepTimeout:      30 * time.Second,
		transientRetries: 1,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// StepKey derives the deterministic result key for a step.
func StepKey(step core.PlanStep) string {
	return fmt.Sprintf("step_%d_%s", step.StepNumber, step.Tool)
}

// Run executes every step of the plan in ascending step_number order. A
// failed or unknown-tool step is recorded and the remaining steps still run.
func (e *Executor) Run(ctx context.Context, plan core.Plan) (map[string]interface{}, []string) {
	data := make(map[string]interface{})
	var errs []string

	for _, step := range plan.Steps {
		t, ok := e.registry.Lookup(step.Tool)
		if !ok {
			e.logger.Printf("step %d: unknown tool %s", step.StepNumber, step.Tool)
			e.telemetry.RecordStep(step.Tool, "unknown_tool")
			errs = append(errs, fmt.Sprintf("step %d: unknown tool %s", step.StepNumber, step.Tool))
			continue
		}

		result := e.executeStep(ctx, t, step)
		if result.Success {
			e.telemetry.RecordStep(step.Tool, "success")
			data[StepKey(step)] = result.Data
			continue
		}
		e.telemetry.RecordStep(step.Tool, "failure")
		errs = append(errs, fmt.Sprintf("step %d (%s): %s", step.StepNumber, step.Tool, result.Error))
	}

	return data, errs
}

// executeStep invokes a tool with a bounded per-call timeout, retrying once
// on transient failure.
func (e *Executor) executeStep(ctx context.Context, t tool.Tool, step core.PlanStep) tool.Result {
	attempts := e.transientRetries + 1
	var result tool.Result
	for attempt := 0; attempt < attempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		start := time.Now()
		result = t.Execute(stepCtx, step.Parameters)
		cancel()
		e.telemetry.RecordStepDuration(step.Tool, time.Since(start))

		if result.Success || !result.Transient {
			return result
		}
		if attempt < attempts-1 {
			e.logger.Printf("step %d (%s) transient failure, retrying: %s", step.StepNumber, step.Tool, result.Error)
			e.telemetry.RecordStepRetry(step.Tool)
		}
	}
	return result
}
