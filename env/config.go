// Package env loads engine configuration from environment variables, with
// optional .env file support for development.
package env

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/usefocal/focal"
)

// Config holds every tunable of the engine. Zero values are filled from
// the envDefault tags; paths are derived from DataDir unless overridden.
type Config struct {
	DataDir    string `env:"DATA_DIR" envDefault:"./data"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Per-path overrides; empty means the DataDir-derived default.
	IndexDir          string `env:"INDEX_DIR"`
	CrawlStore        string `env:"CRAWL_STORE"`
	NormalizedPath    string `env:"NORMALIZED_PATH"`
	IndexLedger       string `env:"INDEX_LEDGER"`
	SimHashPath       string `env:"SIMHASH_PATH"`
	LastIndexTimePath string `env:"LAST_INDEX_TIME_PATH"`
	LogsDir           string `env:"LOGS_DIR"`
	LearnedWebDBPath  string `env:"LEARNED_WEB_DB_PATH"`
	AppStateDBPath    string `env:"APP_STATE_DB_PATH"`
	SeedRegistryPath  string `env:"SEED_REGISTRY_PATH"`

	SmartMinResults          int           `env:"SMART_MIN_RESULTS" envDefault:"3"`
	SmartTriggerCooldown     time.Duration `env:"SMART_TRIGGER_COOLDOWN" envDefault:"900s"`
	SmartConfidenceThreshold float64       `env:"SMART_CONFIDENCE_THRESHOLD" envDefault:"0.35"`
	FocusedCrawlBudget       int           `env:"FOCUSED_CRAWL_BUDGET" envDefault:"20"`
	FocusedCrawlEnabled      bool          `env:"FOCUSED_CRAWL_ENABLED" envDefault:"true"`

	HybridKeywordWeight float64 `env:"HYBRID_KEYWORD_WEIGHT" envDefault:"0.6"`
	HybridVectorWeight  float64 `env:"HYBRID_VECTOR_WEIGHT" envDefault:"0.4"`
	HybridCandidatePool int     `env:"HYBRID_CANDIDATE_POOL" envDefault:"40"`

	FrontierPerHost         int           `env:"FRONTIER_PER_HOST" envDefault:"3"`
	FrontierPolitenessDelay time.Duration `env:"FRONTIER_POLITENESS_DELAY" envDefault:"1s"`
	FrontierRerankMargin    float64       `env:"FRONTIER_RERANK_MARGIN" envDefault:"0.15"`

	DiscoverWValue float64 `env:"DISCOVER_W_VALUE" envDefault:"0.5"`
	DiscoverWFresh float64 `env:"DISCOVER_W_FRESH" envDefault:"0.3"`
	DiscoverWAuth  float64 `env:"DISCOVER_W_AUTH" envDefault:"0.2"`

	OllamaHost    string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	EmbedModel    string `env:"EMBED_MODEL" envDefault:"nomic-embed-text"`
	EmbedTestMode bool   `env:"EMBED_TEST_MODE"`
	EmbedAutopull bool   `env:"EMBED_AUTOPULL"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	LLMModel     string `env:"LLM_MODEL" envDefault:"gemini-3-flash-preview"`

	UserAgent string `env:"USER_AGENT" envDefault:"focalbot/1.0 (+https://github.com/usefocal/focal)"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Paths derives the filesystem layout, applying per-path overrides over
// the DataDir defaults.
func (c *Config) Paths() focal.Paths {
	p := focal.DefaultPaths(c.DataDir)
	if c.IndexDir != "" {
		p.IndexDir = c.IndexDir
	}
	if c.CrawlStore != "" {
		p.CrawlRawDir = c.CrawlStore
	}
	if c.NormalizedPath != "" {
		p.NormalizedPath = c.NormalizedPath
	}
	if c.IndexLedger != "" {
		p.LedgerPath = c.IndexLedger
	}
	if c.SimHashPath != "" {
		p.SimHashPath = c.SimHashPath
	}
	if c.LastIndexTimePath != "" {
		p.LastIndexTimePath = c.LastIndexTimePath
	}
	if c.LogsDir != "" {
		p.LogsDir = c.LogsDir
	}
	if c.LearnedWebDBPath != "" {
		p.LearnedWebDBPath = c.LearnedWebDBPath
	}
	if c.AppStateDBPath != "" {
		p.AppStateDBPath = c.AppStateDBPath
	}
	if c.SeedRegistryPath != "" {
		p.SeedRegistryPath = c.SeedRegistryPath
	}
	return p
}
