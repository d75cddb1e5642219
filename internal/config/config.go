// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Browser     BrowserConfig
	LLM         LLMConfig
	Crawler     CrawlerConfig
	Output      OutputConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	NATS        NATSConfig
	Log         LogConfig

	// TargetsFile is an optional YAML file with targets and filters.
	TargetsFile string
	Targets     []TargetConfig
	Filters     []string
}

// BrowserConfig holds headless Chrome configuration.
type BrowserConfig struct {
	Headless      bool
	Timeout       time.Duration
	ActionTimeout time.Duration
	UserAgent     string
	ExecPath     string
	WindowWidth  int
	WindowHeight int
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider         string
	AnthropicKey     string
	OpenAIKey        string
	Model            string
	FastModel        string
	FallbackProvider string
	FallbackModel    string
	MaxTokens        int
	Temperature      float64
	OllamaBaseURL    string
	LMStudioBaseURL  string
	RequestsPerMin   int
	ExcerptTokens    int
}

// CrawlerConfig holds the budgets and delays of the crawl loop.
type CrawlerConfig struct {
	BlockingGuard bool
	URLDiscovery  bool
	SearchEngine  string

	MinDelay            time.Duration
	MaxDelay            time.Duration
	PairMinDelay        time.Duration
	PairMaxDelay        time.Duration
	MaxBlockingWait     time.Duration
	RateLimitWait       time.Duration
	AccessDeniedWait    time.Duration
	ManualSolveGrace    time.Duration
	ChangeApproachDelay time.Duration
	NavRetryDelay       time.Duration
	NavAttempts         int
	StepTimeout         time.Duration
	QuiescentTimeout    time.Duration

	MaxPages      int
	MaxEmptyPages int
	MaxRecords    int
}

// OutputConfig holds local output configuration.
type OutputConfig struct {
	Directory  string
	SaveFormat string
	URLCache   string
}

// RedisConfig holds Redis configuration. An empty Host disables the shared URL cache.
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// DatabaseConfig holds database configuration. Driver is "postgres", "sqlite" or empty to disable.
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

// ObjectStoreConfig holds object storage configuration. An empty Endpoint disables uploads.
type ObjectStoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// NATSConfig holds NATS configuration. An empty URL disables event publishing.
type NATSConfig struct {
	URL     string
	Subject string
	// Stream, when set, publishes through JetStream into this stream.
	Stream string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// Load reads an optional .env file, then environment variables, then the targets file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := FromEnv()

	if err := cfg.loadTargets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:      getEnvAsBool("HEADLESS_MODE", false),
			Timeout:       getEnvAsSeconds("BROWSER_TIMEOUT", 30),
			ActionTimeout: getEnvAsSeconds("BROWSER_ACTION_TIMEOUT", 10),
			UserAgent:     getEnv("BROWSER_USER_AGENT", ""),
			ExecPath:      getEnv("CHROME_PATH", ""),
			WindowWidth:   getEnvAsInt("BROWSER_WIDTH", 1920),
			WindowHeight:  getEnvAsInt("BROWSER_HEIGHT", 1080),
		},
		LLM: LLMConfig{
			Provider:         getEnv("LLM_PROVIDER", "anthropic"),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", getEnv("CLAUDE_API_KEY", "")),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			Model:            getEnv("LLM_MODEL", ""),
			FastModel:        getEnv("LLM_FAST_MODEL", ""),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
			MaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 2000),
			Temperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.1),
			OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
			LMStudioBaseURL:  getEnv("LMSTUDIO_BASE_URL", "http://localhost:1234/v1"),
			RequestsPerMin:   getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 30),
			ExcerptTokens:    getEnvAsInt("LLM_EXCERPT_TOKENS", 1500),
		},
		Crawler: CrawlerConfig{
			BlockingGuard: getEnvAsBool("BLOCKING_GUARD", true),
			URLDiscovery:  getEnvAsBool("URL_DISCOVERY", true),
			SearchEngine:  getEnv("SEARCH_ENGINE_URL", "https://www.google.com/search?q="),

			MinDelay:            getEnvAsSeconds("MIN_DELAY", 2),
			MaxDelay:            getEnvAsSeconds("MAX_DELAY", 5),
			PairMinDelay:        getEnvAsSeconds("PAIR_MIN_DELAY", 10),
			PairMaxDelay:        getEnvAsSeconds("PAIR_MAX_DELAY", 20),
			MaxBlockingWait:     getEnvAsSeconds("MAX_BLOCKING_WAIT", 300),
			RateLimitWait:       getEnvAsSeconds("RATE_LIMIT_WAIT_TIME", 60),
			AccessDeniedWait:    getEnvAsSeconds("ACCESS_DENIED_WAIT_TIME", 120),
			ManualSolveGrace:    getEnvAsSeconds("CAPTCHA_WAIT_TIME", 30),
			ChangeApproachDelay: getEnvAsSeconds("CHANGE_APPROACH_DELAY", 10),
			NavRetryDelay:       getEnvAsSeconds("NAV_RETRY_DELAY", 5),
			NavAttempts:         getEnvAsInt("NAV_ATTEMPTS", 3),
			StepTimeout:         getEnvAsSeconds("STEP_TIMEOUT", 5),
			QuiescentTimeout:    getEnvAsSeconds("QUIESCENT_TIMEOUT", 10),

			MaxPages:      getEnvAsInt("MAX_PAGES_PER_STATE", 50),
			MaxEmptyPages: getEnvAsInt("MAX_EMPTY_PAGES", 3),
			MaxRecords:    getEnvAsInt("MAX_ADVISORS_PER_COMPANY", 10000),
		},
		Output: OutputConfig{
			Directory:  getEnv("OUTPUT_DIRECTORY", "./scraped_data"),
			SaveFormat: strings.ToLower(getEnv("SAVE_FORMAT", "both")),
			URLCache:   getEnv("URL_CACHE_FILE", "discovered_urls.json"),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", ""),
			Port:      getEnvAsInt("REDIS_PORT", 6379),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "advisor-scraper"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", "")),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "advisors"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			Path:         getEnv("DB_PATH", "advisors.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", ""),
			BucketName:      getEnv("STORAGE_BUCKET", "advisor-scrapes"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", ""),
			Subject: getEnv("NATS_SUBJECT", "scraper.pairs"),
			Stream:  getEnv("NATS_STREAM", ""),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "text"),
			AddSource: getEnvAsBool("LOG_ADD_SOURCE", false),
		},
		TargetsFile: getEnv("TARGETS_FILE", ""),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	cr := c.Crawler
	if cr.MinDelay < 0 || cr.MaxDelay < cr.MinDelay {
		errs = append(errs, fmt.Errorf("MIN_DELAY must be >= 0 and <= MAX_DELAY"))
	}
	if cr.PairMinDelay < 0 || cr.PairMaxDelay < cr.PairMinDelay {
		errs = append(errs, fmt.Errorf("PAIR_MIN_DELAY must be >= 0 and <= PAIR_MAX_DELAY"))
	}
	if cr.MaxPages <= 0 || cr.MaxEmptyPages <= 0 || cr.MaxRecords <= 0 {
		errs = append(errs, fmt.Errorf("page, empty-page and record budgets must be positive"))
	}
	if cr.NavAttempts <= 0 {
		errs = append(errs, fmt.Errorf("NAV_ATTEMPTS must be positive"))
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY must be set for the anthropic provider"))
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY must be set for the openai provider"))
		}
	case "ollama", "lmstudio":
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER: %s", c.LLM.Provider))
	}

	switch c.Output.SaveFormat {
	case "csv", "json", "both":
	default:
		errs = append(errs, fmt.Errorf("SAVE_FORMAT must be csv, json or both"))
	}

	switch c.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER: %s", c.Database.Driver))
	}

	if len(c.Targets) == 0 {
		errs = append(errs, fmt.Errorf("at least one target is required"))
	}

	return errors.Join(errs...)
}

// DSN returns the database connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the Redis connection URL.
func (c *RedisConfig) URL() string {
	if c.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", c.Password, c.Host, c.Port, c.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", c.Host, c.Port, c.DB)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsSeconds reads a (possibly fractional) number of seconds.
func getEnvAsSeconds(key string, defaultSeconds float64) time.Duration {
	return time.Duration(getEnvAsFloat(key, defaultSeconds) * float64(time.Second))
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
