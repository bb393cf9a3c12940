package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig controls the HTTP listener and the upload boundary.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	MaxFileBytes    int64
	MaxFiles        int
	AllowedOrigins  []string
}

// RecomposeConfig tunes the merge/split engine.
type RecomposeConfig struct {
	MinMergeFiles    int
	SplitConcurrency int
}

// ProviderModels defines the model pair used per provider.
type ProviderModels struct {
	Primary   string
	Secondary string
}

// ProvidersConfig defines engines, models and credentials per provider.
type ProvidersConfig struct {
	PrimaryEngine    string // "openai"|"anthropic"
	SecondaryEngine  string // "anthropic"|"openai"
	OpenAI           ProviderModels
	Anthropic        ProviderModels
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
}

// AIConfig controls the summarize/compare collaborator.
type AIConfig struct {
	Timeout          time.Duration
	MaxAttempts      int
	RetryDelay       time.Duration
	MaxDocumentChars int
	MinTextChars     int
	MaxTokens        int
}

// LimitsConfig bounds request admission.
type LimitsConfig struct {
	RequestsPerSecond float64
	Burst             int
	MaxInflight       int
}

// BreakerConfig configures the provider circuit breaker. An empty RedisURL disables it.
type BreakerConfig struct {
	RedisURL    string
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// StorageConfig configures remote source fetching.
type StorageConfig struct {
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	AllowHTTP      bool
	FetchTimeout   time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Server    ServerConfig
	Recompose RecomposeConfig
	Providers ProvidersConfig
	AI        AIConfig
	Limits    LimitsConfig
	Breaker   BreakerConfig
	Storage   StorageConfig
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfdesk.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfdesk",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
		WriteTimeout:    parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "120s"), 120*time.Second),
		ShutdownTimeout: parseDuration(getEnv("HTTP_SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		MaxUploadBytes:  parseInt64(getEnv("MAX_UPLOAD_BYTES", ""), 64<<20),
		MaxFileBytes:    parseInt64(getEnv("MAX_FILE_BYTES", ""), 32<<20),
		MaxFiles:        parseInt(getEnv("MAX_FILES", "20"), 20),
		AllowedOrigins:  parseList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	cfg.Recompose = RecomposeConfig{
		MinMergeFiles:    parseInt(getEnv("MERGE_MIN_FILES", "2"), 2),
		SplitConcurrency: parseInt(getEnv("SPLIT_CONCURRENCY", "4"), 4),
	}
	if cfg.Recompose.MinMergeFiles < 1 {
		cfg.Recompose.MinMergeFiles = 1
	}
	if cfg.Recompose.SplitConcurrency < 1 {
		cfg.Recompose.SplitConcurrency = 1
	}

	cfg.Providers = ProvidersConfig{
		PrimaryEngine:   getEnv("PRIMARY_ENGINE", "openai"),
		SecondaryEngine: getEnv("SECONDARY_ENGINE", "anthropic"),
		OpenAI: ProviderModels{
			Primary:   getEnv("OPENAI_PRIMARY_MODEL", "gpt-4.1"),
			Secondary: getEnv("OPENAI_SECONDARY_MODEL", "gpt-4.1-mini"),
		},
		Anthropic: ProviderModels{
			Primary:   getEnv("ANTHROPIC_PRIMARY_MODEL", "claude-3-5-sonnet-latest"),
			Secondary: getEnv("ANTHROPIC_SECONDARY_MODEL", "claude-3-5-haiku-latest"),
		},
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
	}

	cfg.AI = AIConfig{
		Timeout:          parseDuration(getEnv("AI_TIMEOUT", "90s"), 90*time.Second),
		MaxAttempts:      parseInt(getEnv("AI_MAX_ATTEMPTS", "3"), 3),
		RetryDelay:       parseDuration(getEnv("AI_RETRY_DELAY", "2s"), 2*time.Second),
		MaxDocumentChars: parseInt(getEnv("AI_MAX_DOCUMENT_CHARS", "60000"), 60000),
		MinTextChars:     parseInt(getEnv("AI_MIN_TEXT_CHARS", "50"), 50),
		MaxTokens:        parseInt(getEnv("AI_MAX_TOKENS", "2048"), 2048),
	}
	if cfg.AI.MaxAttempts < 1 {
		cfg.AI.MaxAttempts = 1
	}

	cfg.Limits = LimitsConfig{
		RequestsPerSecond: parseFloat(getEnv("RATE_LIMIT_RPS", "5"), 5),
		Burst:             parseInt(getEnv("RATE_LIMIT_BURST", "10"), 10),
		MaxInflight:       parseInt(getEnv("MAX_INFLIGHT", "8"), 8),
	}

	cfg.Breaker = BreakerConfig{
		RedisURL:    getEnv("REDIS_URL", ""),
		BaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		MaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
	}

	cfg.Storage = StorageConfig{
		S3Region:       getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UsePathStyle: parseBool(getEnv("S3_USE_PATH_STYLE", "false")),
		AllowHTTP:      parseBool(getEnv("FETCH_ALLOW_HTTP", "false")),
		FetchTimeout:   parseDuration(getEnv("FETCH_TIMEOUT", "30s"), 30*time.Second),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
