package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compintel/cibot/config"
	"github.com/compintel/cibot/internal/index"
	"github.com/compintel/cibot/internal/pipeline"
	"github.com/compintel/cibot/internal/telemetry"
	"github.com/compintel/cibot/provider"
	"github.com/compintel/cibot/tools/acquire"
	"github.com/compintel/cibot/tools/embedding"
	"github.com/compintel/cibot/tools/web_fetch"
	"github.com/compintel/cibot/tools/web_search"
)

type compareRequest struct {
	Prompt string `json:"prompt"`
}

type compareResponse struct {
	RequestID string   `json:"request_id"`
	EntityA   string   `json:"entity_a"`
	EntityB   string   `json:"entity_b"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources,omitempty"`
}

// Run wires the shared process-wide dependencies once and serves the
// compare API.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

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

	registry := prometheus.NewRegistry()
	tele := telemetry.New(registry)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	orch, err := BuildOrchestrator(cfg, tele)
	if err != nil {
		return err
	}

	e.POST("/api/compare", func(c echo.Context) error {
		var req compareRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.General.DefaultTimeout)
		defer cancel()

		result, err := orch.Run(ctx, req.Prompt)
		if err != nil {
			return echo.NewHTTPError(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, compareResponse{
			RequestID: result.RequestID,
			EntityA:   result.EntityA,
			EntityB:   result.EntityB,
			Answer:    result.Answer,
			Sources:   result.Sources,
		})
	})

	return e.Start(cfg.Server.Address)
}

// BuildOrchestrator constructs the single shared pipeline instance from
// configuration.
func BuildOrchestrator(cfg *config.Config, tele *telemetry.Telemetry) (*pipeline.Orchestrator, error) {
	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), searchAPIKey(cfg), cfg.Firecrawl.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("web searcher: %w", err)
	}
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetch.Backend), cfg.Firecrawl.APIKey, cfg.Firecrawl.BaseURL, cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("web fetcher: %w", err)
	}
	store, err := index.NewVectorStore(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	acquireLogger := log.New(log.Writer(), "[ACQUIRE] ", log.LstdFlags)
	acquirer := acquire.New(searcher, fetcher, cfg.Pipeline.FetchWorkers, acquireLogger)
	embedder := embedding.NewEmbedding(llm, cfg.LLM.EmbeddingDimension)

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	return pipeline.NewOrchestrator(cfg.Pipeline, cfg.Search.MaxSources, orchLogger, tele, llm, acquirer, embedder, store), nil
}

func searchAPIKey(cfg *config.Config) string {
	if cfg.Search.Provider == string(web_search.SerperProvider) {
		return cfg.Search.SerperAPIKey
	}
	return cfg.Firecrawl.APIKey
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrMalformedPrompt), errors.Is(err, pipeline.ErrAmbiguousIntent):
		return http.StatusBadRequest
	case errors.Is(err, acquire.ErrAcquisitionFailed), errors.Is(err, pipeline.ErrNoContent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
