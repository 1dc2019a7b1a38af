package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/opsassist/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry tracks pipeline metrics and LLM cost across runs. All methods
// are safe for concurrent use and are no-ops on a nil receiver so tests can
// pass a zero telemetry.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *log.Logger

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	planningTotal *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	stepRetries   *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec

	mu        sync.Mutex
	totalCost float64
	tokens    int64
}

// New creates telemetry and registers its collectors with the default
// Prometheus registry.
func New(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsassist_runs_total",
			Help: "Pipeline runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsassist_run_duration_seconds",
			Help:    "End-to-end pipeline run duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		planningTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsassist_planning_total",
			Help: "Planning attempts by outcome.",
		}, []string{"outcome"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsassist_steps_total",
			Help: "Executed plan steps by tool and outcome.",
		}, []string{"tool", "outcome"}),
		stepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsassist_step_retries_total",
			Help: "Transient step retries by tool.",
		}, []string{"tool"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsassist_step_duration_seconds",
			Help:    "Tool call duration by tool.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"tool"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsassist_llm_tokens_total",
			Help: "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
	}
	if cfg.Enabled {
		prometheus.MustRegister(t.runsTotal, t.runDuration, t.planningTotal,
			t.stepsTotal, t.stepRetries, t.stepDuration, t.llmTokens)
	}
	return t
}

// RecordRun records one completed pipeline run.
func (t *Telemetry) RecordRun(status string, d time.Duration) {
	if t == nil {
		return
	}
	t.runsTotal.WithLabelValues(status).Inc()
	t.runDuration.Observe(d.Seconds())
}

// RecordPlanning records a planning attempt outcome.
func (t *Telemetry) RecordPlanning(d time.Duration, steps int, ok bool) {
	if t == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	t.planningTotal.WithLabelValues(outcome).Inc()
	if ok {
		t.logger.Printf("planned %d steps in %v", steps, d)
	}
}

// RecordStep records a step outcome (success, failure, unknown_tool).
func (t *Telemetry) RecordStep(toolName, outcome string) {
	if t == nil {
		return
	}
	t.stepsTotal.WithLabelValues(toolName, outcome).Inc()
}

// RecordStepRetry records a transient retry for a tool.
func (t *Telemetry) RecordStepRetry(toolName string) {
	if t == nil {
		return
	}
	t.stepRetries.WithLabelValues(toolName).Inc()
}

// RecordStepDuration records one tool call duration.
func (t *Telemetry) RecordStepDuration(toolName string, d time.Duration) {
	if t == nil {
		return
	}
	t.stepDuration.WithLabelValues(toolName).Observe(d.Seconds())
}

// RecordLLMUsage accumulates token counts and dollar cost for a model call.
func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64) {
	if t == nil {
		return
	}
	t.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	t.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	if t.cfg.CostTracking {
		t.mu.Lock()
		t.totalCost += cost
		t.tokens += inputTokens + outputTokens
		t.mu.Unlock()
	}
}

// TotalCost returns the accumulated dollar cost since start.
func (t *Telemetry) TotalCost() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// TotalTokens returns the accumulated token count since start.
func (t *Telemetry) TotalTokens() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokens
}
