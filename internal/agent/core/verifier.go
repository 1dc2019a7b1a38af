package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/opsassist/config"
	"github.com/mohammad-safakhou/opsassist/internal/agent/telemetry"
	"github.com/mohammad-safakhou/opsassist/internal/llm"
)

// verificationSchema constrains the verifier's structured output.
var verificationSchema = &llm.Schema{
	Name: "verification",
	Raw: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["summary", "status"],
  "properties": {
    "summary": {"type": "string"},
    "status": {"type": "string", "enum": ["success", "partial", "failed"]}
  }
}`,
}

// Verifier validates execution results and produces the final TaskResult.
// It always returns a TaskResult: when the model cannot produce valid output
// it degrades to a deterministic summary instead of failing the run.
type Verifier struct {
	cfg       *config.Config
	client    *llm.StructuredClient
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewVerifier creates a new verifier instance.
func NewVerifier(cfg *config.Config, client *llm.StructuredClient, tele *telemetry.Telemetry) *Verifier {
	return &Verifier{
		cfg:       cfg,
		client:    client,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[VERIFIER] ", log.LstdFlags),
	}
}

// Verify assembles the TaskResult for one run. The status classification is
// enforced here, not left to the model.
func (v *Verifier) Verify(ctx context.Context, task string, plan Plan, data map[string]interface{}, errs []string) TaskResult {
	result := TaskResult{
		ID:        uuid.New().String(),
		Task:      task,
		Status:    classify(data, errs),
		Data:      data,
		Errors:    errs,
		Plan:      &plan,
		CreatedAt: time.Now(),
	}
	if result.Data == nil {
		result.Data = map[string]interface{}{}
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}

	var out struct {
		Summary string `json:"summary"`
		Status  string `json:"status"`
	}
	err := v.client.Request(ctx, v.createVerificationPrompt(task, plan, data, errs),
		v.cfg.LLM.Routing.Verification, verificationSchema,
		map[string]interface{}{"temperature": 0.2}, &out)
	if err != nil {
		var malformed *llm.MalformedOutputError
		if !errors.As(err, &malformed) {
			v.logger.Printf("verification call failed: %v", err)
		} else {
			v.logger.Printf("verification output malformed after %d attempts, using deterministic summary", malformed.Attempts)
		}
		result.Summary = fallbackSummary(plan, data, errs)
		return result
	}

	if Status(out.Status) != result.Status {
		v.logger.Printf("model classified status %q, enforcing %q", out.Status, result.Status)
	}
	result.Summary = out.Summary
	return result
}

// classify applies the status rule: no errors means success; mixed results
// mean partial; errors with no data mean failed.
func classify(data map[string]interface{}, errs []string) Status {
	switch {
	case len(errs) == 0:
		return StatusSuccess
	case len(data) > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func (v *Verifier) createVerificationPrompt(task string, plan Plan, data map[string]interface{}, errs []string) string {
	dataJSON, _ := json.MarshalIndent(data, "", "  ")
	errsJSON, _ := json.Marshal(errs)

	return fmt.Sprintf(`You are a verification agent that validates execution results and writes the final user-facing summary.

ORIGINAL TASK: %s

EXPECTED OUTPUT: %s

COLLECTED DATA:
%s

ERRORS:
%s

Review whether the collected data satisfies the task. Summarize what was accomplished in 2-3 sentences, noting any errors or missing pieces.

OUTPUT FORMAT (JSON only, no prose, no code fences):
{"summary": "...", "status": "success"|"partial"|"failed"}`,
		task, plan.ExpectedOutput, dataJSON, errsJSON)
}

// fallbackSummary assembles a deterministic summary directly from the
// collected data and errors.
func fallbackSummary(plan Plan, data map[string]interface{}, errs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d steps succeeded.", len(data), len(plan.Steps))
	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, " Collected: %s.", strings.Join(keys, ", "))
	}
	if len(errs) > 0 {
		fmt.Fprintf(&b, " Errors: %s.", strings.Join(errs, "; "))
	}
	return b.String()
}
