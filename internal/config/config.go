// Package config loads process configuration from an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"query-assistant/internal/domain"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// History store kinds.
const (
	StoreMongo  = "mongodb"
	StoreDynamo = "dynamodb"
	StoreSQLite = "sqlite"
	StoreNone   = "none"
)

type Config struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	LLM     LLMConfig     `yaml:"llm"`
	Query   QueryConfig   `yaml:"query"`
	History HistoryConfig `yaml:"history"`
	HTTP    HTTPConfig    `yaml:"http"`
}

type LLMConfig struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	GoogleAPIKey  string        `yaml:"google_api_key,omitempty"`
	OpenAIAPIKey  string        `yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL string        `yaml:"openai_base_url,omitempty"`
	ParamPrefix   string        `yaml:"param_prefix,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
}

type QueryConfig struct {
	Dialect        string `yaml:"dialect"`
	SchemaFile     string `yaml:"schema_file,omitempty"`
	MaxInputLength int    `yaml:"max_input_length"`
}

type HistoryConfig struct {
	// Store is empty until Load resolves it: mongodb when a URI is present,
	// none otherwise.
	Store          string        `yaml:"store"`
	Limit          int           `yaml:"limit"`
	MongoURI       string        `yaml:"mongo_uri,omitempty"`
	DynamoTable    string        `yaml:"dynamodb_table,omitempty"`
	SQLitePath     string        `yaml:"sqlite_path,omitempty"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

type HTTPConfig struct {
	StrictStatus   bool     `yaml:"strict_status"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     3001,
		LogLevel: "info",
		LLM: LLMConfig{
			Provider: ProviderGemini,
			Timeout:  30 * time.Second,
		},
		Query: QueryConfig{
			Dialect:        string(domain.DialectDocument),
			MaxInputLength: 4000,
		},
		History: HistoryConfig{
			Limit:          5,
			SQLitePath:     "data/history.db",
			PersistTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load builds the configuration. envFile and yamlPath are optional; a missing
// envFile is ignored, a missing yamlPath is an error.
func Load(envFile, yamlPath string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)
	if cfg.History.Store == "" {
		cfg.History.Store = StoreNone
		if cfg.History.MongoURI != "" {
			cfg.History.Store = StoreMongo
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envIntOrDefault("PORT", cfg.Port)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.LLM.Provider = strings.ToLower(envOrDefault("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.Model = envOrDefault("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.GoogleAPIKey = envOrDefault("GOOGLE_API_KEY", cfg.LLM.GoogleAPIKey)
	cfg.LLM.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.ParamPrefix = envOrDefault("PARAM_PREFIX", cfg.LLM.ParamPrefix)
	cfg.LLM.Timeout = envDurationOrDefault("COMPLETION_TIMEOUT", cfg.LLM.Timeout)

	cfg.Query.Dialect = envOrDefault("QUERY_DIALECT", cfg.Query.Dialect)
	cfg.Query.SchemaFile = envOrDefault("SCHEMA_FILE", cfg.Query.SchemaFile)
	cfg.Query.MaxInputLength = envIntOrDefault("MAX_INPUT_LENGTH", cfg.Query.MaxInputLength)

	cfg.History.Store = strings.ToLower(envOrDefault("HISTORY_STORE", cfg.History.Store))
	cfg.History.Limit = envIntOrDefault("HISTORY_LIMIT", cfg.History.Limit)
	cfg.History.MongoURI = envOrDefault("MONGO_URI", cfg.History.MongoURI)
	cfg.History.DynamoTable = envOrDefault("DYNAMODB_TABLE", cfg.History.DynamoTable)
	cfg.History.SQLitePath = envOrDefault("SQLITE_PATH", cfg.History.SQLitePath)
	cfg.History.PersistTimeout = envDurationOrDefault("PERSIST_TIMEOUT", cfg.History.PersistTimeout)

	cfg.HTTP.StrictStatus = envBoolOrDefault("STRICT_HTTP_STATUS", cfg.HTTP.StrictStatus)
	cfg.HTTP.AllowedOrigins = envListOrDefault("CORS_ALLOWED_ORIGINS", cfg.HTTP.AllowedOrigins)
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GoogleAPIKey == "" && c.LLM.ParamPrefix == "" {
			return errors.New("config: GOOGLE_API_KEY or PARAM_PREFIX is required when LLM_PROVIDER=gemini")
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" && c.LLM.ParamPrefix == "" {
			return errors.New("config: OPENAI_API_KEY or PARAM_PREFIX is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("config: COMPLETION_TIMEOUT must be positive")
	}

	if _, err := domain.ParseDialect(c.Query.Dialect); err != nil {
		return fmt.Errorf("config: QUERY_DIALECT: %w", err)
	}
	if c.Query.MaxInputLength < 1 {
		return errors.New("config: MAX_INPUT_LENGTH must be at least 1")
	}

	if c.History.Limit < 1 {
		return errors.New("config: HISTORY_LIMIT must be at least 1")
	}
	if c.History.PersistTimeout <= 0 {
		return errors.New("config: PERSIST_TIMEOUT must be positive")
	}
	switch c.History.Store {
	case StoreMongo:
		if c.History.MongoURI == "" {
			return errors.New("config: MONGO_URI is required when HISTORY_STORE=mongodb")
		}
	case StoreDynamo:
		if c.History.DynamoTable == "" {
			return errors.New("config: DYNAMODB_TABLE is required when HISTORY_STORE=dynamodb")
		}
	case StoreSQLite:
		if c.History.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required when HISTORY_STORE=sqlite")
		}
	case StoreNone:
	default:
		return fmt.Errorf("config: unknown HISTORY_STORE %q", c.History.Store)
	}
	return nil
}

// Dialect returns the parsed query dialect. Call after Validate.
func (c Config) Dialect() domain.Dialect {
	d, _ := domain.ParseDialect(c.Query.Dialect)
	return d
}

// Schema returns the contents of SchemaFile, or "" when none is configured.
func (c Config) Schema() (string, error) {
	if c.Query.SchemaFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(c.Query.SchemaFile)
	if err != nil {
		return "", fmt.Errorf("config: read schema: %w", err)
	}
	return string(raw), nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	if c.History.Store == StoreDynamo {
		return true
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		return c.LLM.GoogleAPIKey == "" && c.LLM.ParamPrefix != ""
	case ProviderOpenAI:
		return c.LLM.OpenAIAPIKey == "" && c.LLM.ParamPrefix != ""
	}
	return false
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

// envDurationOrDefault accepts Go durations ("45s") or whole seconds ("45").
func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envListOrDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
