package quizengine

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendOpenAI = "openai"
	BackendHTTP   = "http"
)

// Config holds everything the binaries need to assemble a session
type Config struct {
	Backend string `yaml:"backend"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	GenerationURL string `yaml:"generation_url"`
	JudgeURL      string `yaml:"judge_url"`

	DBPath        string   `yaml:"db_path"`
	Port          int      `yaml:"port"`
	SessionSecret string   `yaml:"session_secret"`
	SecureCookies bool     `yaml:"secure_cookies"`
	CORSOrigins   []string `yaml:"cors_origins"`
	// Web sessions idle this long outside a running countdown are dropped
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	WarningThresholds []int         `yaml:"warning_thresholds"`
	DefaultMinutes    int           `yaml:"default_minutes"`
	MaxMinutes        int           `yaml:"max_minutes"`
	MaxQuestions      int           `yaml:"max_questions"`
	JudgeTimeout      time.Duration `yaml:"judge_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	TranscriptDir     string        `yaml:"transcript_dir"`
	Verbose           bool          `yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:           BackendOpenAI,
		OpenAIModel:       "gpt-4o",
		DBPath:            "quiz.db",
		Port:              8080,
		CORSOrigins:       []string{"*"},
		WarningThresholds: append([]int(nil), DefaultWarningThresholds...),
		DefaultMinutes:    10,
		MaxMinutes:        180,
		MaxQuestions:      50,
		JudgeTimeout:      30 * time.Second,
		GenerationTimeout: 2 * time.Minute,
		TranscriptDir:     "",

		SessionIdleTimeout: 30 * time.Minute,
	}
}

// LoadConfig builds a Config from defaults, an optional .env file, an optional
// YAML file at path and finally the environment.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Backend = getEnv("QUIZ_BACKEND", c.Backend)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.GenerationURL = getEnv("GENERATION_URL", c.GenerationURL)
	c.JudgeURL = getEnv("JUDGE_URL", c.JudgeURL)
	c.DBPath = getEnv("QUIZ_DB_PATH", c.DBPath)
	c.Port = getEnvAsInt("PORT", c.Port)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.SecureCookies = getEnvAsBool("SECURE_COOKIES", c.SecureCookies)
	c.SessionIdleTimeout = getEnvAsDuration("SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout)
	c.MaxMinutes = getEnvAsInt("QUIZ_MAX_MINUTES", c.MaxMinutes)
	c.Verbose = getEnvAsBool("QUIZ_VERBOSE", c.Verbose)
	c.JudgeTimeout = getEnvAsDuration("JUDGE_TIMEOUT", c.JudgeTimeout)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.CORSOrigins = strings.Split(origins, ",")
	}
}

// Validate rejects configurations no session could run with
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
	case BackendHTTP:
		if c.GenerationURL == "" || c.JudgeURL == "" {
			return fmt.Errorf("generation_url and judge_url are required for the http backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	for _, th := range c.WarningThresholds {
		if th <= 0 {
			return fmt.Errorf("warning thresholds must be positive, got %d", th)
		}
	}
	if c.MaxMinutes <= 0 || c.MaxMinutes > MaxSessionMinutes {
		return fmt.Errorf("max_minutes must be between 1 and %d", MaxSessionMinutes)
	}
	if c.DefaultMinutes <= 0 || c.DefaultMinutes > c.MaxMinutes {
		return fmt.Errorf("default_minutes must be between 1 and max_minutes")
	}
	if c.MaxQuestions <= 0 {
		return fmt.Errorf("max_questions must be positive")
	}
	if c.JudgeTimeout <= 0 {
		return fmt.Errorf("judge_timeout must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session_idle_timeout must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// NewCollaborators builds the generator and judge selected by the backend
func (c *Config) NewCollaborators() (Generator, Judge) {
	if c.Backend == BackendHTTP {
		return NewHTTPGenerator(c.GenerationURL, c.GenerationTimeout), NewHTTPJudge(c.JudgeURL, c.JudgeTimeout)
	}
	return NewOpenAIGenerator(c.OpenAIAPIKey, c.OpenAIModel), NewOpenAIJudge(c.OpenAIAPIKey, c.OpenAIModel)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
