package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings for the API server, the ingestion pipeline and the background jobs.
type Config struct {
	HTTPPort   int           `yaml:"http_port"`
	SQLiteDSN  string        `yaml:"sqlite_dsn"`
	LogLevel   string        `yaml:"log_level"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	// Timezone is the default viewer zone for calendar views.
	Timezone string `yaml:"timezone"`

	Calendar  CalendarConfig  `yaml:"calendar"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Instagram InstagramConfig `yaml:"instagram"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

// CalendarConfig tunes the calendar range cache and recurrence expansion.
type CalendarConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheSize      int           `yaml:"cache_size"`
	MaxOccurrences int           `yaml:"max_occurrences"`
}

// StorageConfig points at the root directory of the object buckets.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// LLMConfig holds the chat and image model endpoints.
type LLMConfig struct {
	ChatBaseURL       string  `yaml:"chat_base_url"`
	ChatAPIKey        string  `yaml:"chat_api_key"`
	ChatModel         string  `yaml:"chat_model"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	ImageBaseURL      string  `yaml:"image_base_url"`
	ImageAPIKey       string  `yaml:"image_api_key"`
	ImageModel        string  `yaml:"image_model"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	// RequestsPerDay and TokensPerMinute cap chat usage over rolling
	// windows. Zero disables the cap.
	RequestsPerDay    int     `yaml:"requests_per_day"`
	TokensPerMinute   int     `yaml:"tokens_per_minute"`
	MaxRetries        int     `yaml:"max_retries"`
}

// InstagramConfig controls the crawler.
type InstagramConfig struct {
	LookbackDays int           `yaml:"lookback_days"`
	MinDelay     time.Duration `yaml:"min_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxRetries   int           `yaml:"max_retries"`
	Headless     bool          `yaml:"headless"`
	ChromePath   string        `yaml:"chrome_path"`
	CookiesFile  string        `yaml:"cookies_file"`
}

// JobsConfig holds cron schedules for the background jobs. An empty schedule disables the job.
type JobsConfig struct {
	Enabled            bool   `yaml:"enabled"`
	PipelineSchedule   string `yaml:"pipeline_schedule"`
	ExtractionSchedule string `yaml:"extraction_schedule"`
	PurgeSchedule      string `yaml:"purge_schedule"`
	ExtractionBatch    int    `yaml:"extraction_batch"`
}

// Defaults returns the configuration used when neither a file nor the environment sets a value.
func Defaults() Config {
	return Config{
		HTTPPort:   8080,
		SQLiteDSN:  "file:campus-events.db?_pragma=foreign_keys(1)",
		LogLevel:   "info",
		SessionTTL: 24 * time.Hour,
		Timezone:   "America/Los_Angeles",
		Calendar: CalendarConfig{
			CacheTTL:       time.Minute,
			CacheSize:      128,
			MaxOccurrences: 500,
		},
		Storage: StorageConfig{Root: "data/buckets"},
		LLM: LLMConfig{
			ChatBaseURL:       "https://api.groq.com/openai/v1",
			ChatModel:         "meta-llama/llama-4-scout-17b-16e-instruct",
			Temperature:       0.1,
			MaxTokens:         1200,
			ImageBaseURL:      "https://api.openai.com/v1",
			ImageModel:        "gpt-image-1",
			RequestsPerMinute: 900,
			RequestsPerDay:    450000,
			TokensPerMinute:   270000,
			MaxRetries:        3,
		},
		Instagram: InstagramConfig{
			LookbackDays: 30,
			MinDelay:     5 * time.Second,
			MaxDelay:     15 * time.Second,
			MaxRetries:   3,
			Headless:     true,
		},
		Jobs: JobsConfig{
			PipelineSchedule:   "0 */6 * * *",
			ExtractionSchedule: "*/30 * * * *",
			PurgeSchedule:      "@hourly",
			ExtractionBatch:    20,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CAMPUS_CONFIG_FILE, and finally the CAMPUS_* environment variables.
//
// Invalid values are collected and reported together.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CAMPUS_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	env := envReader{}
	env.int("CAMPUS_HTTP_PORT", &cfg.HTTPPort, 1)
	env.string("CAMPUS_SQLITE_DSN", &cfg.SQLiteDSN)
	env.string("CAMPUS_LOG_LEVEL", &cfg.LogLevel)
	env.duration("CAMPUS_SESSION_TTL", &cfg.SessionTTL)
	env.string("CAMPUS_TIMEZONE", &cfg.Timezone)

	env.duration("CAMPUS_CALENDAR_CACHE_TTL", &cfg.Calendar.CacheTTL)
	env.int("CAMPUS_CALENDAR_CACHE_SIZE", &cfg.Calendar.CacheSize, 1)
	env.int("CAMPUS_CALENDAR_MAX_OCCURRENCES", &cfg.Calendar.MaxOccurrences, 1)

	env.string("CAMPUS_STORAGE_ROOT", &cfg.Storage.Root)

	env.string("CAMPUS_LLM_CHAT_BASE_URL", &cfg.LLM.ChatBaseURL)
	env.string("CAMPUS_LLM_CHAT_API_KEY", &cfg.LLM.ChatAPIKey)
	env.string("CAMPUS_LLM_CHAT_MODEL", &cfg.LLM.ChatModel)
	env.float("CAMPUS_LLM_TEMPERATURE", &cfg.LLM.Temperature)
	env.int("CAMPUS_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens, 1)
	env.string("CAMPUS_LLM_IMAGE_BASE_URL", &cfg.LLM.ImageBaseURL)
	env.string("CAMPUS_LLM_IMAGE_API_KEY", &cfg.LLM.ImageAPIKey)
	env.string("CAMPUS_LLM_IMAGE_MODEL", &cfg.LLM.ImageModel)
	env.int("CAMPUS_LLM_REQUESTS_PER_MINUTE", &cfg.LLM.RequestsPerMinute, 1)
	env.int("CAMPUS_LLM_REQUESTS_PER_DAY", &cfg.LLM.RequestsPerDay, 0)
	env.int("CAMPUS_LLM_TOKENS_PER_MINUTE", &cfg.LLM.TokensPerMinute, 0)
	env.int("CAMPUS_LLM_MAX_RETRIES", &cfg.LLM.MaxRetries, 0)

	env.int("CAMPUS_INSTAGRAM_LOOKBACK_DAYS", &cfg.Instagram.LookbackDays, 1)
	env.duration("CAMPUS_INSTAGRAM_MIN_DELAY", &cfg.Instagram.MinDelay)
	env.duration("CAMPUS_INSTAGRAM_MAX_DELAY", &cfg.Instagram.MaxDelay)
	env.int("CAMPUS_INSTAGRAM_MAX_RETRIES", &cfg.Instagram.MaxRetries, 0)
	env.bool("CAMPUS_INSTAGRAM_HEADLESS", &cfg.Instagram.Headless)
	env.string("CAMPUS_INSTAGRAM_CHROME_PATH", &cfg.Instagram.ChromePath)
	env.string("CAMPUS_INSTAGRAM_COOKIES_FILE", &cfg.Instagram.CookiesFile)

	env.bool("CAMPUS_JOBS_ENABLED", &cfg.Jobs.Enabled)
	env.string("CAMPUS_JOBS_PIPELINE_SCHEDULE", &cfg.Jobs.PipelineSchedule)
	env.string("CAMPUS_JOBS_EXTRACTION_SCHEDULE", &cfg.Jobs.ExtractionSchedule)
	env.string("CAMPUS_JOBS_PURGE_SCHEDULE", &cfg.Jobs.PurgeSchedule)
	env.int("CAMPUS_JOBS_EXTRACTION_BATCH", &cfg.Jobs.ExtractionBatch, 1)

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		env.invalid = append(env.invalid, "CAMPUS_TIMEZONE")
	}
	if cfg.Instagram.MaxDelay < cfg.Instagram.MinDelay {
		env.invalid = append(env.invalid, "CAMPUS_INSTAGRAM_MAX_DELAY")
	}

	if len(env.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(env.invalid, ", "))
	}
	return cfg, nil
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireIngestion reports the settings the ingestion pipeline cannot run without.
func (c Config) RequireIngestion() error {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(c.LLM.ChatAPIKey) == "" {
		missing = append(missing, "CAMPUS_LLM_CHAT_API_KEY")
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		missing = append(missing, "CAMPUS_STORAGE_ROOT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type envReader struct {
	invalid []string
}

func (e *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (e *envReader) string(key string, dst *string) {
	if value, ok := e.lookup(key); ok {
		*dst = value
	}
}

func (e *envReader) int(key string, dst *int, min int) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < min {
		e.invalid = append(e.invalid, key)
		return
	}
	*dst = parsed
}

func (e *envReader) float(key string, dst *float64) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		e.invalid = append(e.invalid, key)
		return
	}
	*dst = parsed
}

func (e *envReader) bool(key string, dst *bool) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return
	}
	*dst = parsed
}

func (e *envReader) duration(key string, dst *time.Duration) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		e.invalid = append(e.invalid, key)
		return
	}
	*dst = parsed
}
