package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	appconfig "github.com/mohammad-safakhou/opsassist/config"
	agentcore "github.com/mohammad-safakhou/opsassist/internal/agent/core"
	agenttele "github.com/mohammad-safakhou/opsassist/internal/agent/telemetry"
	"github.com/mohammad-safakhou/opsassist/internal/executor"
	"github.com/mohammad-safakhou/opsassist/internal/httpx"
	"github.com/mohammad-safakhou/opsassist/internal/llm"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
	"github.com/mohammad-safakhou/opsassist/tools/github"
	"github.com/mohammad-safakhou/opsassist/tools/news"
	"github.com/mohammad-safakhou/opsassist/tools/weather"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run starts the HTTP API and blocks until the listener fails.
func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"service": "opsassist",
			"docs":    "/api/tools",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	pipeline, registry, tele, err := BuildPipeline(cfg)
	if err != nil {
		return err
	}

	th := &TaskHandler{Pipeline: pipeline, Registry: registry, Telemetry: tele}
	th.Register(e.Group("/api"))

	return e.Start(cfg.Server.Address)
}

// BuildPipeline assembles the tool registry, LLM clients and the three
// pipeline stages from config. It is the single place where the stages are
// wired together.
func BuildPipeline(cfg *appconfig.Config) (*agentcore.Pipeline, *tool.Registry, *agenttele.Telemetry, error) {
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating llm provider: %w", err)
	}

	tele := agenttele.New(cfg.Telemetry)
	onUsage := func(model string, inputTokens, outputTokens int64) {
		cost := provider.CalculateCost(inputTokens, outputTokens, model)
		tele.RecordLLMUsage(model, inputTokens, outputTokens, cost)
	}
	client := llm.NewStructuredClient(provider, cfg.LLM.MaxStructuredRetries, onUsage)

	httpClient := httpx.NewClient(cfg.Tools.Timeout)
	registry, err := tool.NewRegistry(
		github.New(cfg.Tools.GitHub, httpClient),
		weather.New(cfg.Tools.Weather, httpClient),
		news.New(cfg.Tools.News, httpClient),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building tool registry: %w", err)
	}

	planner := agentcore.NewPlanner(cfg, client, registry, tele)
	exec := executor.New(registry, tele,
		executor.WithStepTimeout(cfg.Tools.Timeout))
	verifier := agentcore.NewVerifier(cfg, client, tele)
	pipeline := agentcore.NewPipeline(cfg, planner, exec, verifier, tele)
	return pipeline, registry, tele, nil
}
