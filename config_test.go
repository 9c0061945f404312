package quizengine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"QUIZ_BACKEND", "OPENAI_API_KEY", "OPENAI_MODEL", "GENERATION_URL", "JUDGE_URL",
		"QUIZ_DB_PATH", "PORT", "SESSION_SECRET", "QUIZ_VERBOSE", "JUDGE_TIMEOUT", "CORS_ORIGINS",
		"SECURE_COOKIES", "SESSION_IDLE_TIMEOUT", "QUIZ_MAX_MINUTES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaultsWithEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("JUDGE_TIMEOUT", "5s")
	t.Setenv("QUIZ_VERBOSE", "true")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("SECURE_COOKIES", "true")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("QUIZ_MAX_MINUTES", "60")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != BackendOpenAI || cfg.OpenAIAPIKey != "sk-test" || cfg.Port != 9090 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.JudgeTimeout != 5*time.Second || !cfg.Verbose {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if !cfg.SecureCookies || cfg.SessionIdleTimeout != 10*time.Minute || cfg.MaxMinutes != 60 {
		t.Fatalf("web overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if len(cfg.WarningThresholds) != 2 || cfg.WarningThresholds[0] != 300 || cfg.WarningThresholds[1] != 60 {
		t.Fatalf("unexpected default thresholds %v", cfg.WarningThresholds)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("QUIZ_DB_PATH", "/tmp/override.db")

	path := filepath.Join(t.TempDir(), "quiz.yaml")
	data := `
backend: http
generation_url: http://localhost:9000/generate
judge_url: http://localhost:9000/compare
db_path: decks.db
warning_thresholds: [120, 30, 10]
default_minutes: 20
judge_timeout: 45s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != BackendHTTP || cfg.JudgeURL != "http://localhost:9000/compare" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("environment should override the file, got %q", cfg.DBPath)
	}
	if len(cfg.WarningThresholds) != 3 || cfg.DefaultMinutes != 20 || cfg.JudgeTimeout != 45*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	gen, judge := cfg.NewCollaborators()
	if _, ok := gen.(*HTTPGenerator); !ok {
		t.Fatalf("expected HTTP generator, got %T", gen)
	}
	if _, ok := judge.(*HTTPJudge); !ok {
		t.Fatalf("expected HTTP judge, got %T", judge)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing key", func(c *Config) {}, "OPENAI_API_KEY"},
		{"unknown backend", func(c *Config) { c.Backend = "carrier-pigeon" }, "unknown backend"},
		{"http without urls", func(c *Config) { c.Backend = BackendHTTP }, "generation_url"},
		{"bad threshold", func(c *Config) { c.OpenAIAPIKey = "k"; c.WarningThresholds = []int{60, 0} }, "positive"},
		{"bad port", func(c *Config) { c.OpenAIAPIKey = "k"; c.Port = 70000 }, "port"},
		{"minutes beyond a day", func(c *Config) { c.OpenAIAPIKey = "k"; c.MaxMinutes = MaxSessionMinutes + 1 }, "max_minutes"},
		{"default above max", func(c *Config) { c.OpenAIAPIKey = "k"; c.MaxMinutes = 5 }, "default_minutes"},
		{"no idle timeout", func(c *Config) { c.OpenAIAPIKey = "k"; c.SessionIdleTimeout = 0 }, "session_idle_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.OpenAIAPIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "k")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
