package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/opsassist/config"
	"github.com/mohammad-safakhou/opsassist/internal/agent/telemetry"
	"github.com/mohammad-safakhou/opsassist/internal/llm"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

// planSchema constrains the planner's structured output.
var planSchema = &llm.Schema{
	Name: "plan",
	Raw: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_summary", "steps", "expected_output"],
  "properties": {
    "task_summary": {"type": "string"},
    "expected_output": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["step_number", "tool", "description"],
        "properties": {
          "step_number": {"type": "integer", "minimum": 1},
          "tool": {"type": "string"},
          "description": {"type": "string"},
          "parameters": {"type": "object"}
        }
      }
    }
  }
}`,
}

// Planner turns a task string into an execution plan grounded in the
// registry's capabilities.
type Planner struct {
	cfg       *config.Config
	client    *llm.StructuredClient
	registry  *tool.Registry
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	// extra attempts when the model returns a plan that is schema-valid
	// but tool-inconsistent (unknown tool, bad step numbering)
	retries int
}

// NewPlanner creates a new planner instance.
func NewPlanner(cfg *config.Config, client *llm.StructuredClient, registry *tool.Registry, tele *telemetry.Telemetry) *Planner {
	return &Planner{
		cfg:       cfg,
		client:    client,
		registry:  registry,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
		retries:   cfg.LLM.MaxStructuredRetries,
	}
}

// Plan creates an execution plan for a task. The returned error is always a
// *PlanningError when planning could not complete.
func (p *Planner) Plan(ctx context.Context, task string) (Plan, error) {
	startTime := time.Now()
	model := p.cfg.LLM.Routing.Planning

	prompt := p.createPlanningPrompt(task)
	attempts := p.retries + 1

	var plan Plan
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		plan = Plan{}
		err := p.client.Request(ctx, prompt, model, planSchema, map[string]interface{}{
			"temperature": 0.3,
		}, &plan)
		if err != nil {
			lastErr = err
			break // structured client already exhausted its own retries
		}

		if err := p.validatePlan(plan); err != nil {
			lastErr = err
			p.logger.Printf("plan attempt %d/%d rejected: %v", attempt+1, attempts, err)
			prompt = p.createPlanningPrompt(task) + fmt.Sprintf(`

Your previous plan was rejected: %v
Produce a corrected plan. Use only the listed tools and number steps 1..N with no gaps.`, err)
			continue
		}

		p.telemetry.RecordPlanning(time.Since(startTime), len(plan.Steps), true)
		p.logger.Printf("planning completed in %v with %d steps", time.Since(startTime), len(plan.Steps))
		return plan, nil
	}

	p.telemetry.RecordPlanning(time.Since(startTime), 0, false)
	return Plan{}, &PlanningError{Task: task, Err: lastErr}
}

// validatePlan checks tool references and step numbering. An empty steps
// sequence is a valid plan.
func (p *Planner) validatePlan(plan Plan) error {
	seen := make(map[int]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		if _, ok := p.registry.Lookup(step.Tool); !ok {
			return fmt.Errorf("step %d references unknown tool %q", step.StepNumber, step.Tool)
		}
		if seen[step.StepNumber] {
			return fmt.Errorf("duplicate step_number %d", step.StepNumber)
		}
		seen[step.StepNumber] = true
		if step.StepNumber != i+1 {
			return fmt.Errorf("step numbers must be contiguous 1..N: got %d at position %d", step.StepNumber, i+1)
		}
	}
	return nil
}

// createPlanningPrompt embeds the task and every registered capability.
func (p *Planner) createPlanningPrompt(task string) string {
	var tools strings.Builder
	for _, card := range p.registry.DescribeAll() {
		schema, _ := json.Marshal(card.Parameters)
		fmt.Fprintf(&tools, "- %s: %s\n  parameters schema: %s\n", card.Name, card.Description, schema)
	}

	return fmt.Sprintf(`You are a planning agent that converts a natural-language task into an ordered execution plan over a fixed set of tools.

TASK: %s

AVAILABLE TOOLS:
%s
PLANNING REQUIREMENTS:
1. Break the task into specific, executable steps. Each step calls exactly one tool.
2. Use ONLY the tools listed above. Do not invent tools.
3. Number steps 1..N in execution order with no gaps or duplicates.
4. Fill "parameters" so they satisfy the tool's parameters schema.
5. If the task needs no tool calls, return an empty "steps" array.

OUTPUT FORMAT (JSON only, no prose, no code fences):
{
  "task_summary": "Restatement of the task",
  "steps": [
    {
      "step_number": 1,
      "tool": "tool_name",
      "description": "What this step accomplishes and why",
      "parameters": {"param": "value"}
    }
  ],
  "expected_output": "Description of the anticipated shape of results"
}`, task, tools.String())
}
