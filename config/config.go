// Package config loads the application configuration: built-in defaults,
// then an optional YAML file (with ${VAR} expansion), then environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/mcp"
	"github.com/hupe1980/agentswarm/tool"
)

// EnvConfigPath names the variable consulted for the config file path when
// none is given explicitly.
const EnvConfigPath = "AGENTSWARM_CONFIG"

type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Swarm      SwarmConfig      `yaml:"swarm"`
	MCP        MCPConfig        `yaml:"mcp"`
	Actions    []tool.Action    `yaml:"actions"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`
}

type ModelConfig struct {
	// Provider is openai or anthropic.
	Provider string `yaml:"provider" env:"AGENTSWARM_MODEL_PROVIDER"`
	// Name is the provider's model id. Empty selects the adapter default.
	Name string `yaml:"name" env:"AGENTSWARM_MODEL_NAME"`
	// APIKey falls back to OPENAI_API_KEY or ANTHROPIC_API_KEY, depending on
	// the provider.
	APIKey            string  `yaml:"api_key" env:"AGENTSWARM_MODEL_API_KEY"`
	BaseURL           string  `yaml:"base_url" env:"AGENTSWARM_MODEL_BASE_URL"`
	Temperature       float64 `yaml:"temperature" env:"AGENTSWARM_MODEL_TEMPERATURE"`
	MaxTokens         int64   `yaml:"max_tokens" env:"AGENTSWARM_MODEL_MAX_TOKENS"`
	RequestsPerMinute int     `yaml:"requests_per_minute" env:"AGENTSWARM_MODEL_RPM"`
}

type SwarmConfig struct {
	// Mode is swarm (handoff topology) or pipeline (research, plan, execute).
	Mode          string `yaml:"mode" env:"AGENTSWARM_SWARM_MODE"`
	DefaultAgent  string `yaml:"default_agent" env:"AGENTSWARM_DEFAULT_AGENT"`
	MaxHops       int    `yaml:"max_hops" env:"AGENTSWARM_MAX_HOPS"`
	MaxRetries    int    `yaml:"max_retries" env:"AGENTSWARM_MAX_RETRIES"`
	MaxModelCalls int    `yaml:"max_model_calls" env:"AGENTSWARM_MAX_MODEL_CALLS"`
	PlanEnabled   bool   `yaml:"plan_enabled" env:"AGENTSWARM_PLAN_ENABLED"`
	// HandoffStyle is cooperative or bubble.
	HandoffStyle string `yaml:"handoff_style" env:"AGENTSWARM_HANDOFF_STYLE"`
	// WebSearch seeds the provider web search flag of new conversations.
	WebSearch bool `yaml:"web_search" env:"AGENTSWARM_WEB_SEARCH"`
	// Intents maps agent names to descriptions. When set, new conversations
	// are routed by an intent classifier instead of starting at DefaultAgent.
	// Swarm mode only.
	Intents map[string]string `yaml:"intents"`
}

type MCPConfig struct {
	Servers []mcp.ServerConfig          `yaml:"servers"`
	Mapping map[string]mcp.ServerConfig `yaml:"mapping"`
	// ExcelURL is the endpoint of the built-in "mcp-excel" mapping.
	ExcelURL string `yaml:"excel_url" env:"MCP_EXCEL_URL"`
}

type CheckpointConfig struct {
	// Backend is memory, sqlite or nats.
	Backend string `yaml:"backend" env:"AGENTSWARM_CHECKPOINT_BACKEND"`
	// Path is the sqlite database file.
	Path string `yaml:"path" env:"AGENTSWARM_CHECKPOINT_PATH"`
	// NATSURL selects an external NATS server. When empty an embedded server
	// is started with its JetStream data under DataDir.
	NATSURL string `yaml:"nats_url" env:"AGENTSWARM_NATS_URL"`
	DataDir string `yaml:"data_dir" env:"AGENTSWARM_NATS_DATA_DIR"`
	Bucket  string `yaml:"bucket" env:"AGENTSWARM_CHECKPOINT_BUCKET"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"AGENTSWARM_LOG_LEVEL"`
	Format string `yaml:"format" env:"AGENTSWARM_LOG_FORMAT"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Model: ModelConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Swarm: SwarmConfig{
			Mode:         "swarm",
			DefaultAgent: "execute_agent",
			MaxHops:      8,
			MaxRetries:   2,
			HandoffStyle: "cooperative",
		},
		MCP: MCPConfig{
			ExcelURL: mcp.DefaultExcelURL,
		},
		Checkpoint: CheckpointConfig{
			Backend: "memory",
			Path:    "data/agentswarm.db",
			DataDir: "data/nats",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration. An empty path falls back to
// $AGENTSWARM_CONFIG; when that is empty too, only defaults and environment
// overrides apply. A path that was asked for but does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	return nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}
	if c.Model.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("model.requests_per_minute must not be negative"))
	}

	switch c.Swarm.Mode {
	case "swarm", "pipeline":
	default:
		errs = append(errs, fmt.Errorf("swarm.mode: unknown mode %q", c.Swarm.Mode))
	}
	switch c.Swarm.HandoffStyle {
	case "", "cooperative", "bubble":
	default:
		errs = append(errs, fmt.Errorf("swarm.handoff_style: unknown style %q", c.Swarm.HandoffStyle))
	}
	if len(c.Swarm.Intents) > 0 && c.Swarm.Mode != "swarm" {
		errs = append(errs, errors.New("swarm.intents require swarm mode"))
	}
	if c.Swarm.MaxHops < 0 || c.Swarm.MaxRetries < 0 || c.Swarm.MaxModelCalls < 0 {
		errs = append(errs, errors.New("swarm limits must not be negative"))
	}

	switch c.Checkpoint.Backend {
	case "memory", "nats":
	case "sqlite":
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("checkpoint.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint.backend: unknown backend %q", c.Checkpoint.Backend))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	for _, s := range c.MCP.Servers {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// HandoffStyle maps Swarm.HandoffStyle to the tool constant.
func (c *Config) HandoffStyle() tool.HandoffStyle {
	if c.Swarm.HandoffStyle == "bubble" {
		return tool.Bubble
	}
	return tool.Cooperative
}

// MCPMapping returns the built-in mapping extended by the configured one.
func (c *Config) MCPMapping() mcp.Mapping {
	m := mcp.DefaultMapping(c.MCP.ExcelURL)
	for name, sc := range c.MCP.Mapping {
		m[name] = sc
	}
	return m
}

// LoggerConfig converts Log into a logging.LoggerConfig writing to stderr.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultLoggerConfig()
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = lvl
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}
