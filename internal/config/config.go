// Package config loads the Sidekick configuration from YAML files with
// environment-variable overrides. The loaded Config is an immutable value:
// the session receives a copy and nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	WorkspaceRoot string        `yaml:"workspace_root"`
	LLM           LLMConfig     `yaml:"llm"`
	Policy        PolicyConfig  `yaml:"policy"`
	Limits        LimitsConfig  `yaml:"limits"`
	Context       ContextConfig `yaml:"context"`
	RAG           RAGConfig     `yaml:"rag"`
	Weather       WeatherConfig `yaml:"weather"`
	Logging       LoggingConfig `yaml:"logging"`
	Audit         AuditConfig   `yaml:"audit"`
}

// LLMConfig selects and tunes the model backend.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIMode     string  `yaml:"api_mode"` // "openai" (default) or "anthropic"
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutS    int     `yaml:"timeout_s"`
}

// PolicyConfig feeds the policy gate.
type PolicyConfig struct {
	AllowNetwork     bool     `yaml:"allow_network"`
	ConfirmWrite     bool     `yaml:"confirm_write"`
	ConfirmExec      bool     `yaml:"confirm_exec"`
	AllowedTools     []string `yaml:"allowed_tools"`
	DisallowedTools  []string `yaml:"disallowed_tools"`
	CommandDenylist  []string `yaml:"command_denylist"`
	CommandAllowlist []string `yaml:"command_allowlist"`
	PathRules        []string `yaml:"path_rules"` // "allow:<glob>" / "deny:<glob>"
	MaxRiskLevel     string   `yaml:"max_risk_level"`
}

// LimitsConfig bounds resource use per turn.
type LimitsConfig struct {
	MaxFileReadBytes int `yaml:"max_file_read_bytes"`
	MaxOutputBytes   int `yaml:"max_output_bytes"`
	MaxIterations    int `yaml:"max_iterations"`
	MaxReplans       int `yaml:"max_replans"`
	ToolTimeoutS     int `yaml:"tool_timeout_s"`
}

// ContextConfig tunes the context manager.
type ContextConfig struct {
	MaxTokens       int `yaml:"max_tokens"`
	ReservedOutput  int `yaml:"reserved_output"`
	ProtectedRecent int `yaml:"protected_recent"`
	CacheTTLS       int `yaml:"cache_ttl_s"`
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// RAGConfig is consumed only when the external indexer is wired.
type RAGConfig struct {
	ChunkTargetLines  int    `yaml:"chunk_target_lines"`
	ChunkMaxLines     int    `yaml:"chunk_max_lines"`
	ChunkOverlapLines int    `yaml:"chunk_overlap_lines"`
	EmbedBatchSize    int    `yaml:"embed_batch_size"`
	VectorBackend     string `yaml:"vector_backend"`
}

// WeatherConfig configures the example HTTP adapter.
type WeatherConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	DefaultUnits string `yaml:"default_units"`
	DefaultLang  string `yaml:"default_lang"`
	TimeoutS     int    `yaml:"timeout_s"`
	CacheTTLS    int    `yaml:"cache_ttl_s"`
}

// LoggingConfig configures the observability logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// Default returns a configuration with working defaults for a local run.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			APIMode:     "openai",
			Model:       "gpt-4o",
			Temperature: 0.2,
			MaxTokens:   4096,
			TimeoutS:    120,
		},
		Policy: PolicyConfig{
			ConfirmWrite: true,
			ConfirmExec:  true,
			MaxRiskLevel: "high",
		},
		Limits: LimitsConfig{
			MaxFileReadBytes: 200_000,
			MaxOutputBytes:   64_000,
			MaxIterations:    20,
			MaxReplans:       3,
			ToolTimeoutS:     60,
		},
		Context: ContextConfig{
			MaxTokens:       128_000,
			ReservedOutput:  8_000,
			ProtectedRecent: 5,
			CacheTTLS:       300,
			CacheMaxEntries: 256,
		},
		RAG: RAGConfig{
			ChunkTargetLines:  60,
			ChunkMaxLines:     120,
			ChunkOverlapLines: 10,
			EmbedBatchSize:    32,
			VectorBackend:     "sqlite",
		},
		Weather: WeatherConfig{
			DefaultUnits: "metric",
			DefaultLang:  "en",
			TimeoutS:     10,
			CacheTTLS:    600,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Audit:   AuditConfig{Enabled: true, BufferSize: 1000},
	}
}

// Load reads the config file at path (YAML), falling back to defaults for
// absent fields, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the runtime relies on.
func (c *Config) Validate() error {
	if c.WorkspaceRoot != "" && !filepath.IsAbs(c.WorkspaceRoot) {
		abs, err := filepath.Abs(c.WorkspaceRoot)
		if err != nil {
			return fmt.Errorf("workspace_root: %w", err)
		}
		c.WorkspaceRoot = abs
	}
	switch c.LLM.APIMode {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("llm.api_mode %q is not supported", c.LLM.APIMode)
	}
	if c.Context.ReservedOutput >= c.Context.MaxTokens {
		return fmt.Errorf("context.reserved_output (%d) must be below context.max_tokens (%d)",
			c.Context.ReservedOutput, c.Context.MaxTokens)
	}
	if c.Limits.MaxIterations <= 0 {
		c.Limits.MaxIterations = 20
	}
	return nil
}

// applyEnvOverrides maps SIDEKICK_* environment variables onto config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIDEKICK_WORKSPACE"); v != "" {
		cfg.WorkspaceRoot = v
	}
	if v := os.Getenv("SIDEKICK_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SIDEKICK_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SIDEKICK_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SIDEKICK_LLM_API_MODE"); v != "" {
		cfg.LLM.APIMode = v
	}
	if v := os.Getenv("SIDEKICK_ALLOW_NETWORK"); v != "" {
		cfg.Policy.AllowNetwork = parseBool(v, cfg.Policy.AllowNetwork)
	}
	if v := os.Getenv("SIDEKICK_CONFIRM_WRITE"); v != "" {
		cfg.Policy.ConfirmWrite = parseBool(v, cfg.Policy.ConfirmWrite)
	}
	if v := os.Getenv("SIDEKICK_CONFIRM_EXEC"); v != "" {
		cfg.Policy.ConfirmExec = parseBool(v, cfg.Policy.ConfirmExec)
	}
	if v := os.Getenv("SIDEKICK_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.MaxIterations = n
		}
	}
	if v := os.Getenv("SIDEKICK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// WellKnownPaths returns the config file candidates checked in order when no
// explicit path is given: workspace-local first, then the user config dir.
func WellKnownPaths(workspace string) []string {
	paths := []string{}
	if workspace != "" {
		paths = append(paths, filepath.Join(workspace, ".sidekick", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sidekick", "config.yaml"))
	}
	return paths
}
