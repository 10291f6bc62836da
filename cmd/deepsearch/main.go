// Command deepsearch runs the iterative deep-research service: an HTTP
// server exposing the synchronous and SSE-streamed research endpoints
// described in spec §6.1, backed by the graph-based research pipeline.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepsearch/internal/cache"
	"github.com/hyperifyio/deepsearch/internal/config"
	"github.com/hyperifyio/deepsearch/internal/fetch"
	"github.com/hyperifyio/deepsearch/internal/httpapi"
	"github.com/hyperifyio/deepsearch/internal/llm"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
	"github.com/hyperifyio/deepsearch/internal/orchestrator"
	"github.com/hyperifyio/deepsearch/internal/research"
	"github.com/hyperifyio/deepsearch/internal/robots"
	"github.com/hyperifyio/deepsearch/internal/session"
	"github.com/hyperifyio/deepsearch/internal/sse"
	"github.com/hyperifyio/deepsearch/internal/webfetch"
	"github.com/hyperifyio/deepsearch/internal/websearch"
)

// sweepInterval drives the SSE Connection Monitor's whole-session timeout
// sweep (spec §5); independent of the per-connection heartbeat/check timers
// the orchestrator runs per request.
const sweepInterval = 60 * time.Second

func newOpenAIClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	return openai.NewClientWithConfig(cfg)
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()

	var llmCache *cache.LLMCache
	var httpCache *cache.HTTPCache
	if cfg.CacheDir != "" {
		llmCache = &cache.LLMCache{Dir: cfg.CacheDir, StrictPerms: true}
		httpCache = &cache.HTTPCache{Dir: cfg.CacheDir}
	}

	registry := session.NewRegistry()

	var primary llm.Client = &llm.OpenAIProvider{Inner: newOpenAIClient(cfg.PrimaryBaseURL, cfg.PrimaryAPIKey)}
	var secondary llm.Client
	if cfg.SecondaryBaseURL != "" || cfg.SecondaryModel != "" {
		secondary = &llm.OpenAIProvider{Inner: newOpenAIClient(cfg.SecondaryBaseURL, cfg.SecondaryAPIKey)}
	}

	invoker := &llmclient.Invoker{
		Registry:        registry,
		PrimaryClient:   primary,
		PrimaryModel:    cfg.PrimaryModel,
		SecondaryClient: secondary,
		SecondaryModel:  cfg.SecondaryModel,
		Cache:           llmCache,
	}

	searchClient := &websearch.Client{
		Endpoint:   cfg.SearchEndpoint,
		APIKey:     cfg.SearchAPIKey,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		UserAgent:  cfg.WebScrapeUserAgent,
	}

	fetchClient := &fetch.Client{
		HTTPClient:        &http.Client{},
		UserAgent:         cfg.WebScrapeUserAgent,
		MaxAttempts:       3,
		PerRequestTimeout: cfg.WebScrapeTimeout,
		Cache:             httpCache,
		MaxConcurrent:     cfg.WebScrapeConcurrency,
	}
	robotsManager := &robots.Manager{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Cache:      httpCache,
		UserAgent:  cfg.WebScrapeUserAgent,
	}
	fetcher := &webfetch.Fetcher{Client: fetchClient, Robots: robotsManager, UserAgent: cfg.WebScrapeUserAgent}

	wrCfg := research.WebResearchConfig{
		TopK:           cfg.WebScrapeTopK,
		Concurrency:    cfg.WebScrapeConcurrency,
		FetchTimeout:   cfg.WebScrapeTimeout,
		MaxTotalChars:  cfg.WebScrapeMaxTotalChars,
		MaxPerDocChars: cfg.WebScrapeMaxPerDocChars,
	}

	g, err := research.BuildGraph(invoker, searchClient, fetcher, wrCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build research graph")
	}

	monitor := sse.NewMonitor()
	orch := orchestrator.New(g, registry, monitor)

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			orch.SweepExpiredSessions()
		}
	}()

	server := httpapi.New(orch, cfg)
	mux := http.NewServeMux()
	server.Routes(mux)

	log.Info().Str("addr", cfg.ListenAddr).Msg("deepsearch listening")
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
