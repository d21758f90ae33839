// Package config loads the YAML configuration file and applies
// environment overrides. A missing file yields the defaults, so the
// binaries run out of the box against a local workspace.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all capgen configuration.
type Config struct {
	// Workspace is the root holding per-app input and extracted tests.
	Workspace string `yaml:"workspace"`

	// DataDir holds the generated capability, skill, and intent documents.
	DataDir string `yaml:"data_dir"`

	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the agent HTTP server.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	SessionTTL string `yaml:"session_ttl"`

	// SessionFile, when set, persists open sessions across restarts.
	SessionFile string `yaml:"session_file"`
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// PipelineConfig configures the offline compilation run.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: "workspace",
		DataDir:   "data",

		Server: ServerConfig{
			Addr:       ":8089",
			SessionTTL: "30m",
		},

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Pipeline: PipelineConfig{
			Concurrency: 4,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A .env in the working
// directory is read first so api keys can stay out of the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if v := os.Getenv("CAPGEN_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("CAPGEN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CAPGEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CAPGEN_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("CAPGEN_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("CAPGEN_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("CAPGEN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Concurrency = n
		}
	}
	if v := os.Getenv("CAPGEN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSessionTTL returns the session idle timeout as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Server.SessionTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}
