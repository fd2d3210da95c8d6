// Package config loads all environment variables for the chat-api-go service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Search backends.
const (
	BackendCortex   = "cortex"
	BackendPostgres = "postgres"
)

// LLM providers.
const (
	ProviderCortex    = "cortex"
	ProviderAnthropic = "anthropic"
)

// CortexModels is the model option set offered by Cortex Complete.
var CortexModels = []string{
	"mistral-large",
	"snowflake-arctic",
	"llama3-70b",
	"llama3-8b",
}

// Config holds all configuration for the chat API service.
type Config struct {
	// Server
	APIHost string
	APIPort string

	// Database (login + postgres search backend)
	DatabaseURL string

	// SearchBackend selects where search services live: "cortex" or "postgres"
	SearchBackend string

	// Snowflake / Cortex
	SnowflakeAccount        string
	SnowflakeUser           string
	SnowflakePrivateKeyPath string
	SnowflakeToken          string
	SnowflakeDatabase       string
	SnowflakeSchema         string
	SnowflakeWarehouse      string
	SnowflakeRole           string
	CortexBaseURL           string
	CortexTimeoutMS         int

	// LLM
	LLMProvider     string
	AnthropicAPIKey string
	LLMMaxTokens    int

	// Models is the enumerated set a session may select from
	Models []string

	// Session defaults
	DefaultModel           string
	DefaultRetrievedChunks int
	DefaultHistoryWindow   int

	// Retrieval
	SearchColumns        []string
	SearchFilterLanguage string
	QueryExpansion       bool

	// Postgres search backend
	EmbedEndpoint string
	RRFK          int

	// Sessions
	SessionIdleTTLMin  int
	QuestionsPerMinute int

	// AuthEnabled controls whether JWT auth is enforced
	AuthEnabled bool

	// JWTSecret is the HMAC-SHA256 signing key for JWT tokens
	JWTSecret string

	// JWTExpiryHours is the JWT token lifetime in hours (default 24)
	JWTExpiryHours int

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envOr("API_PORT", "8000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SearchBackend: envOr("SEARCH_BACKEND", BackendCortex),

		SnowflakeAccount:        os.Getenv("SNOWFLAKE_ACCOUNT"),
		SnowflakeUser:           os.Getenv("SNOWFLAKE_USER"),
		SnowflakePrivateKeyPath: os.Getenv("SNOWFLAKE_PRIVATE_KEY_PATH"),
		SnowflakeToken:          os.Getenv("SNOWFLAKE_TOKEN"),
		SnowflakeDatabase:       os.Getenv("SNOWFLAKE_DATABASE"),
		SnowflakeSchema:         os.Getenv("SNOWFLAKE_SCHEMA"),
		SnowflakeWarehouse:      os.Getenv("SNOWFLAKE_WAREHOUSE"),
		SnowflakeRole:           os.Getenv("SNOWFLAKE_ROLE"),
		CortexBaseURL:           os.Getenv("CORTEX_BASE_URL"),
		CortexTimeoutMS:         envInt("CORTEX_TIMEOUT_MS", 120000),

		LLMProvider:     envOr("LLM_PROVIDER", ProviderCortex),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		LLMMaxTokens:    envInt("LLM_MAX_TOKENS", 1024),

		DefaultRetrievedChunks: envInt("DEFAULT_RETRIEVED_CHUNKS", 5),
		DefaultHistoryWindow:   envInt("DEFAULT_HISTORY_WINDOW", 5),

		SearchColumns:        envList("SEARCH_COLUMNS", []string{"chunk", "file_url", "relative_path"}),
		SearchFilterLanguage: envOrEmpty("SEARCH_FILTER_LANGUAGE", "English"),
		QueryExpansion:       envBool("QUERY_EXPANSION", false),

		EmbedEndpoint: os.Getenv("EMBED_ENDPOINT"),
		RRFK:          envInt("RRF_K", 60),

		SessionIdleTTLMin:  envInt("SESSION_IDLE_TTL_MIN", 60),
		QuestionsPerMinute: envInt("QUESTIONS_PER_MINUTE", 30),

		AuthEnabled:    envBool("AUTH_ENABLED", false),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTExpiryHours: envInt("JWT_EXPIRY_HOURS", 24),

		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	cfg.WriteTimeout = cfg.askTimeout()

	// Model set depends on the provider unless given explicitly
	defaultModels := CortexModels
	if cfg.LLMProvider == ProviderAnthropic {
		defaultModels = []string{"claude-sonnet-4-20250514"}
	}
	cfg.Models = envList("CHAT_MODELS", defaultModels)
	cfg.DefaultModel = envOr("DEFAULT_MODEL", cfg.Models[0])

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SearchBackend {
	case BackendCortex:
		if c.SnowflakeAccount == "" && c.CortexBaseURL == "" {
			return fmt.Errorf("SNOWFLAKE_ACCOUNT or CORTEX_BASE_URL is required for the cortex search backend")
		}
		if c.SnowflakeDatabase == "" || c.SnowflakeSchema == "" {
			return fmt.Errorf("SNOWFLAKE_DATABASE and SNOWFLAKE_SCHEMA are required for the cortex search backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres search backend")
		}
	default:
		return fmt.Errorf("unsupported SEARCH_BACKEND: %s", c.SearchBackend)
	}

	switch c.LLMProvider {
	case ProviderCortex:
		if c.SnowflakeAccount == "" && c.CortexBaseURL == "" {
			return fmt.Errorf("SNOWFLAKE_ACCOUNT or CORTEX_BASE_URL is required for the cortex LLM provider")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic LLM provider")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER: %s", c.LLMProvider)
	}

	if c.UsesCortex() && c.SnowflakeToken == "" && (c.SnowflakeUser == "" || c.SnowflakePrivateKeyPath == "") {
		return fmt.Errorf("SNOWFLAKE_TOKEN or SNOWFLAKE_USER + SNOWFLAKE_PRIVATE_KEY_PATH is required")
	}

	if c.AuthEnabled {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED=true")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when AUTH_ENABLED=true")
		}
	}

	if !c.IsAllowedModel(c.DefaultModel) {
		return fmt.Errorf("DEFAULT_MODEL %q is not in CHAT_MODELS", c.DefaultModel)
	}
	if c.DefaultRetrievedChunks < 1 {
		return fmt.Errorf("DEFAULT_RETRIEVED_CHUNKS must be positive")
	}
	if c.DefaultHistoryWindow < 1 {
		return fmt.Errorf("DEFAULT_HISTORY_WINDOW must be positive")
	}
	return nil
}

// Addr returns the listen address as "host:port".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.APIHost, c.APIPort)
}

// UsesCortex reports whether any collaborator talks to Snowflake Cortex.
func (c *Config) UsesCortex() bool {
	return c.SearchBackend == BackendCortex || c.LLMProvider == ProviderCortex
}

// IsAllowedModel reports whether name is in the enumerated model set.
func (c *Config) IsAllowedModel(name string) bool {
	for _, m := range c.Models {
		if m == name {
			return true
		}
	}
	return false
}

// CortexTimeout returns the Cortex HTTP timeout as a time.Duration.
func (c *Config) CortexTimeout() time.Duration {
	return time.Duration(c.CortexTimeoutMS) * time.Millisecond
}

// askTimeout bounds the slowest ask: one search and one completion, plus a
// second completion when questions are rewritten from history.
func (c *Config) askTimeout() time.Duration {
	calls := 2
	if c.QueryExpansion {
		calls = 3
	}
	return time.Duration(calls)*c.CortexTimeout() + 10*time.Second
}

// SessionIdleTTL returns how long an unused session is kept.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMin) * time.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOrEmpty is envOr, except that a variable set to "" yields "".
func envOrEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envList parses a comma-separated list, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
