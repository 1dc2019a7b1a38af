package core

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/opsassist/config"
	"github.com/mohammad-safakhou/opsassist/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StepRunner executes a plan's steps and folds outcomes into data and errors.
type StepRunner interface {
	Run(ctx context.Context, plan Plan) (map[string]interface{}, []string)
}

var pipelineTracer trace.Tracer = otel.Tracer("opsassist/internal/agent/pipeline")

// Pipeline runs the three-stage sequence Planner -> Executor -> Verifier.
// Each run is independent; only the read-only tool registry is shared.
type Pipeline struct {
	cfg       *config.Config
	planner   *Planner
	runner    StepRunner
	verifier  *Verifier
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewPipeline wires the three stages together.
func NewPipeline(cfg *config.Config, planner *Planner, runner StepRunner, verifier *Verifier, tele *telemetry.Telemetry) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		planner:   planner,
		runner:    runner,
		verifier:  verifier,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
}

// Run processes one task. The returned error is non-nil only for a
// planning-stage failure; every other failure mode is absorbed into the
// TaskResult.
func (p *Pipeline) Run(ctx context.Context, task string) (TaskResult, error) {
	startTime := time.Now()
	runID := uuid.New().String()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	p.logger.Printf("run %s: planning task", runID)
	planCtx, planSpan := pipelineTracer.Start(ctx, "pipeline.plan")
	plan, err := p.planner.Plan(planCtx, task)
	planSpan.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		p.telemetry.RecordRun(string(StatusFailed), time.Since(startTime))
		return TaskResult{}, err
	}
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))

	p.logger.Printf("run %s: executing %d steps", runID, len(plan.Steps))
	execCtx, execSpan := pipelineTracer.Start(ctx, "pipeline.execute")
	data, errs := p.runner.Run(execCtx, plan)
	execSpan.SetAttributes(
		attribute.Int("steps.succeeded", len(data)),
		attribute.Int("steps.failed", len(errs)),
	)
	execSpan.End()

	p.logger.Printf("run %s: verifying results (%d ok, %d errors)", runID, len(data), len(errs))
	verifyCtx, verifySpan := pipelineTracer.Start(ctx, "pipeline.verify")
	result := p.verifier.Verify(verifyCtx, task, plan, data, errs)
	verifySpan.End()

	result.ID = runID
	span.SetAttributes(attribute.String("run.status", string(result.Status)))
	p.telemetry.RecordRun(string(result.Status), time.Since(startTime))
	p.logger.Printf("run %s: completed with status %s in %v", runID, result.Status, time.Since(startTime))
	return result, nil
}
