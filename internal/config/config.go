// Package config loads run configuration from an optional YAML file, a
// .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"corawiki/internal/artifact"
	"corawiki/internal/report"
)

type Config struct {
	Research ResearchConfig    `yaml:"research"`
	Python   PythonConfig      `yaml:"python"`
	LLM      LLMConfig         `yaml:"llm"`
	Quality  report.Thresholds `yaml:"quality"`
	Artifact artifact.Config   `yaml:"artifact"`
}

type ResearchConfig struct {
	MaxSteps       int    `yaml:"max_steps"`
	MaxTotalTokens int    `yaml:"max_total_tokens"`
	DebugDir       string `yaml:"debug_dir"`
	ReadLines      int    `yaml:"read_lines"`
	Concurrency    int    `yaml:"concurrency"`
}

type PythonConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interpreter   string `yaml:"interpreter"`
	ExtensionPath string `yaml:"extension_path"`
	// OnFailure is "skip" or "retry"; empty consults nothing.
	OnFailure string `yaml:"on_failure"`
}

type LLMConfig struct {
	Model      string  `yaml:"model"`
	APIKey     string  `yaml:"-"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	MaxRetries int     `yaml:"max_retries"`
}

func Default() Config {
	return Config{
		Research: ResearchConfig{MaxSteps: 8, MaxTotalTokens: 120000},
		Python:   PythonConfig{Interpreter: "python3"},
		LLM:      LLMConfig{Model: "gemini-2.5-flash", RPS: 1, Burst: 1, MaxRetries: 3},
		Quality:  report.DefaultThresholds(),
	}
}

// Load reads .env (if present), then path (if non-empty and present), then
// applies environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	var errs []error
	envInt := func(key string, dst *int) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = v
		}
	}
	envStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	envInt("CORAWIKI_MAX_STEPS", &cfg.Research.MaxSteps)
	envInt("CORAWIKI_MAX_TOTAL_TOKENS", &cfg.Research.MaxTotalTokens)
	envStr("CORAWIKI_DEBUG_DIR", &cfg.Research.DebugDir)
	envBool("CORAWIKI_PYTHON_ENABLED", &cfg.Python.Enabled)
	envStr("CORAWIKI_PYTHON_PATH", &cfg.Python.Interpreter)
	envStr("CORAWIKI_EXTENSION_PATH", &cfg.Python.ExtensionPath)
	envStr("CORAWIKI_MODEL", &cfg.LLM.Model)
	envStr("GEMINI_API_KEY", &cfg.LLM.APIKey)

	envStr("CORAWIKI_ARTIFACT_DIR", &cfg.Artifact.Dir)
	envStr("DATABASE_URL", &cfg.Artifact.DatabaseURL)
	s3 := &cfg.Artifact.S3
	envStr("ARTIFACT_S3_ENDPOINT", &s3.Endpoint)
	envStr("ARTIFACT_S3_REGION", &s3.Region)
	s3.AccessKey = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")), s3.AccessKey)
	s3.SecretKey = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")), s3.SecretKey)
	envStr("ARTIFACT_S3_BUCKET", &s3.Bucket)
	envBool("ARTIFACT_S3_USE_SSL", &s3.UseSSL)
	return errors.Join(errs...)
}

// Validate rejects values the research loop cannot run with.
func (c *Config) Validate() error {
	if c.Research.MaxSteps < 1 {
		return fmt.Errorf("config: max_steps must be >= 1, got %d", c.Research.MaxSteps)
	}
	if c.Research.MaxTotalTokens < 1 {
		return fmt.Errorf("config: max_total_tokens must be >= 1, got %d", c.Research.MaxTotalTokens)
	}
	if r := c.Quality.MaxP2Ratio; r < 0 || r > 1 {
		return fmt.Errorf("config: quality.max_p2_ratio must be within [0,1], got %v", r)
	}
	switch strings.ToLower(strings.TrimSpace(c.Python.OnFailure)) {
	case "", "skip", "retry":
	default:
		return fmt.Errorf("config: python.on_failure must be skip or retry, got %q", c.Python.OnFailure)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
