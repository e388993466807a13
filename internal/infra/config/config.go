package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves fields unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Config is the root configuration for the proxy daemon.
type Config struct {
	DefaultProvider string               `yaml:"default_provider"`
	SystemPrompt    string               `yaml:"system_prompt"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	Logger          LoggerConfig         `yaml:"logger"`
	Tracer          TracerConfig         `yaml:"tracer"`
	Knowledge       KnowledgeConfig      `yaml:"knowledge"`
	Documents       DocumentsConfig      `yaml:"documents"`
	Conversations   ConvlogConfig        `yaml:"conversations"`
}

// CircuitBreakerConfig holds per-provider circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai | anthropic | gemini | mistral | fireworks
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Models      []string      `yaml:"models"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// Configured reports whether the provider has credentials available.
func (p ProviderConfig) Configured() bool { return p.APIKey != "" }

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

// KnowledgeConfig selects and configures the knowledge store backend.
type KnowledgeConfig struct {
	Backend string   `yaml:"backend"` // local | s3
	S3      S3Config `yaml:"s3"`
}

// S3Config holds remote object store settings.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// DocumentsConfig holds document ingestion settings.
type DocumentsConfig struct {
	DataDir           string   `yaml:"data_dir"`
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ConvlogConfig holds durable conversation log settings.
type ConvlogConfig struct {
	Path string `yaml:"path"` // sqlite database file; empty disables persistence
}

// Load reads and parses the config file at path. Environment references of
// the form ${VAR} in api_key fields are expanded, so keys can live outside
// the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Documents.MaxFileSize == 0 {
		c.Documents.MaxFileSize = 10 * 1024 * 1024
	}
	if len(c.Documents.AllowedExtensions) == 0 {
		c.Documents.AllowedExtensions = []string{
			"pdf", "docx", "txt", "md", "jpg", "jpeg", "png", "gif", "html",
		}
	}
	if c.Documents.DataDir == "" {
		c.Documents.DataDir = "data/documents"
	}
	if c.Knowledge.Backend == "" {
		c.Knowledge.Backend = "local"
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Temperature == 0 {
			p.Temperature = DefaultTemperature
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = DefaultMaxTokens
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with type %q has no name", p.Type)
		}
		name := strings.ToLower(p.Name)
		if seen[name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[name] = true

		switch p.Type {
		case "openai", "anthropic", "gemini", "mistral", "fireworks":
		default:
			return fmt.Errorf("provider %q has unknown type %q", p.Name, p.Type)
		}
	}

	if c.DefaultProvider != "" && !seen[strings.ToLower(c.DefaultProvider)] {
		return fmt.Errorf("default_provider %q is not a configured provider", c.DefaultProvider)
	}

	if c.Knowledge.Backend == "s3" && c.Knowledge.S3.Bucket == "" {
		return fmt.Errorf("knowledge backend s3 requires a bucket")
	}

	return nil
}
