// Package config loads the environment-driven configuration (spec §6.4)
// following the teacher's internal/app.ApplyEnvToConfig idiom: a struct of
// typed fields, each populated from its env var with a sensible default
// when unset.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config bundles every tunable the service reads from its environment.
type Config struct {
	// C3: primary/secondary LLM endpoints.
	PrimaryBaseURL   string
	PrimaryAPIKey    string
	PrimaryModel     string
	SecondaryBaseURL string
	SecondaryAPIKey  string
	SecondaryModel   string
	LLMTimeout       time.Duration

	// C2: search provider.
	SearchEndpoint string
	SearchAPIKey   string

	// C1: web fetch tunables.
	WebScrapeTopK           int
	WebScrapeConcurrency    int
	WebScrapeTimeout        time.Duration
	WebScrapeMaxTotalChars  int
	WebScrapeMaxPerDocChars int
	WebScrapeUserAgent      string

	// Graph-level defaults (spec §6.1's request field defaults).
	InitialSearchQueryCount int
	MaxResearchLoops        int

	// C4/cache.
	CacheDir string

	// httpapi auth gate.
	APIKeyHeaderName  string
	APIKeyHeaderValue string

	// HTTP listen address for cmd/deepsearch.
	ListenAddr string
}

// Load populates a Config from environment variables, applying the
// defaults spec §6.4 names. Explicit process env always wins; there is no
// file-based layer in this service (unlike the teacher's config_file.go),
// since every documented key is a plain scalar.
func Load() Config {
	return Config{
		PrimaryBaseURL:   os.Getenv("PRIMARY_LLM_BASE_URL"),
		PrimaryAPIKey:    os.Getenv("PRIMARY_LLM_API_KEY"),
		PrimaryModel:     os.Getenv("PRIMARY_LLM_MODEL"),
		SecondaryBaseURL: os.Getenv("SECONDARY_LLM_BASE_URL"),
		SecondaryAPIKey:  os.Getenv("SECONDARY_LLM_API_KEY"),
		SecondaryModel:   os.Getenv("SECONDARY_LLM_MODEL"),
		LLMTimeout:       envDurationSeconds("API_TIMEOUT_SECONDS", 600*time.Second),

		SearchEndpoint: os.Getenv("SEARCH_ENDPOINT"),
		SearchAPIKey:   os.Getenv("SEARCH_API_KEY"),

		WebScrapeTopK:           envInt("WEB_SCRAPE_TOP_K", 5),
		WebScrapeConcurrency:    envInt("WEB_SCRAPE_CONCURRENCY", 5),
		WebScrapeTimeout:        envDurationSeconds("WEB_SCRAPE_TIMEOUT_SECONDS", 20*time.Second),
		WebScrapeMaxTotalChars:  envInt("WEB_SCRAPE_MAX_TOTAL_CHARS", 80_000),
		WebScrapeMaxPerDocChars: envInt("WEB_SCRAPE_MAX_PER_DOC_CHARS", 20_000),
		WebScrapeUserAgent:      envOr("WEB_SCRAPE_USER_AGENT", "deepsearch/1.0 (+research-bot)"),

		InitialSearchQueryCount: envInt("INITIAL_SEARCH_QUERY_COUNT", 3),
		MaxResearchLoops:        envInt("MAX_RESEARCH_LOOPS", 5),

		CacheDir: os.Getenv("CACHE_DIR"),

		APIKeyHeaderName:  envOr("API_KEY_HEADER_NAME", "X-API-Key"),
		APIKeyHeaderValue: os.Getenv("API_KEY_HEADER_VALUE"),

		ListenAddr: envOr("LISTEN_ADDR", ":8080"),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationSeconds(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
