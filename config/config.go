// Package config loads the server configuration, scenario files and the
// catalogue of selectable scenarios.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/memory"
)

// EnvPrefix prefixes the environment overrides of the server configuration.
const EnvPrefix = "AGENTROOM_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// Memory backends.
const (
	MemoryBackendFile     = "file"
	MemoryBackendRedis    = "redis"
	MemoryBackendInMemory = "memory"
)

// Config is the server configuration.
type Config struct {
	Server      ServerConfig           `koanf:"server"`
	Log         LogConfig              `koanf:"log"`
	Memory      MemoryConfig           `koanf:"memory"`
	Session     SessionConfig          `koanf:"session"`
	Interaction InteractionConfig      `koanf:"interaction"`
	Models      map[string]ModelConfig `koanf:"models"`
	Metrics     MetricsConfig          `koanf:"metrics"`
	Tools       ToolsConfig            `koanf:"tools"`
	// Scenarios maps configuration names to scenario file paths. CONFIG_*
	// environment variables are merged in by NewCatalog.
	Scenarios map[string]string `koanf:"scenarios"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// KeepAlive is the interval of keep-alive frames on the websocket.
	KeepAlive time.Duration `koanf:"keepalive"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	// Backend selects zap (default) or slog.
	Backend string `koanf:"backend"`
}

// MemoryConfig selects the durable memory record store.
type MemoryConfig struct {
	Backend       string `koanf:"backend"`
	Dir           string `koanf:"dir"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
	OutboxSize      int           `koanf:"outbox_size"`
}

// InteractionConfig holds interaction limits. In the server configuration
// they are the defaults for scenarios that omit them.
type InteractionConfig struct {
	Steps            int           `koanf:"steps" yaml:"steps"`
	CriticIterations int           `koanf:"critic_iterations" yaml:"critic_iterations"`
	HumanTimeout     time.Duration `koanf:"human_timeout" yaml:"human_timeout"`
	Coordinator      string        `koanf:"coordinator" yaml:"coordinator"`
	AcceptanceMarker string        `koanf:"acceptance_marker" yaml:"acceptance_marker"`
}

// Merge returns i with unset fields taken from defaults.
func (i InteractionConfig) Merge(defaults InteractionConfig) InteractionConfig {
	if i.Steps <= 0 {
		i.Steps = defaults.Steps
	}
	if i.CriticIterations <= 0 {
		i.CriticIterations = defaults.CriticIterations
	}
	if i.HumanTimeout <= 0 {
		i.HumanTimeout = defaults.HumanTimeout
	}
	if i.Coordinator == "" {
		i.Coordinator = defaults.Coordinator
	}
	if i.AcceptanceMarker == "" {
		i.AcceptanceMarker = defaults.AcceptanceMarker
	}
	return i
}

// Core converts to core.Interaction, filling remaining gaps with the core defaults.
func (i InteractionConfig) Core() core.Interaction {
	return core.Interaction{
		Steps:            i.Steps,
		CriticIterations: i.CriticIterations,
		HumanTimeout:     i.HumanTimeout,
		Coordinator:      i.Coordinator,
		AcceptanceMarker: i.AcceptanceMarker,
	}.WithDefaults()
}

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// ModelConfig configures one named model. Scenario agents refer to it by
// name in their llm field.
type ModelConfig struct {
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int64   `koanf:"max_tokens"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	// Workdir confines the file tools.
	Workdir string `koanf:"workdir"`
}

// Load reads the YAML file at path (skipped when empty), then applies
// AGENTROOM_* environment overrides, defaults and validation.
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	AGENTROOM_SERVER_ADDR        -> server.addr
//	AGENTROOM_MEMORY_REDIS_ADDR  -> memory.redis_addr
//	AGENTROOM_SESSION_TTL        -> session.ttl
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s too large: %d bytes (max %d)", path, info.Size(), maxConfigFileSize)
		}
		content = make([]byte, info.Size())
		if _, err := f.Read(content); err != nil && info.Size() > 0 {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Parse(content)
}

// Parse is Load for an in-memory YAML document.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8081"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.KeepAlive == 0 {
		cfg.Server.KeepAlive = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Backend == "" {
		cfg.Log.Backend = "zap"
	}

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = MemoryBackendFile
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = "memory"
	}
	if cfg.Memory.RedisPrefix == "" {
		cfg.Memory.RedisPrefix = memory.DefaultRedisPrefix
	}

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Session.JanitorInterval == 0 {
		cfg.Session.JanitorInterval = time.Minute
	}
	if cfg.Session.OutboxSize == 0 {
		cfg.Session.OutboxSize = core.DefaultOutboxSize
	}

	cfg.Interaction = cfg.Interaction.Merge(InteractionConfig{
		Steps:            core.DefaultInteractionSteps,
		CriticIterations: core.DefaultCriticIterations,
		HumanTimeout:     core.DefaultHumanTimeout,
		Coordinator:      core.DefaultCoordinator,
		AcceptanceMarker: core.DefaultAcceptanceMarker,
	})

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "agentroom"
	}

	if cfg.Tools.Workdir == "" {
		cfg.Tools.Workdir = "."
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.KeepAlive <= 0 {
		return errors.New("keepalive interval must be positive")
	}

	switch c.Memory.Backend {
	case MemoryBackendFile, MemoryBackendInMemory:
	case MemoryBackendRedis:
		if c.Memory.RedisAddr == "" {
			return errors.New("memory.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown memory backend %q", c.Memory.Backend)
	}

	switch c.Log.Backend {
	case "zap", "slog":
	default:
		return fmt.Errorf("unknown log backend %q", c.Log.Backend)
	}

	if c.Session.TTL <= 0 || c.Session.JanitorInterval <= 0 {
		return errors.New("session ttl and janitor interval must be positive")
	}

	for name, m := range c.Models {
		switch m.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		default:
			return fmt.Errorf("model %s: unknown provider %q", name, m.Provider)
		}
	}
	return nil
}
