// Package config loads completions runtime configuration from a TOML file and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Provider profile keys under [providers.*].
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderPerplexity = "perplexity"
	ProviderGoogle     = "google"
)

// Queue backends.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from COMPLETIONS_HOME and not read from config.
	HomeDir     string                    `mapstructure:"-"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Completion  CompletionConfig          `mapstructure:"completion"`
	Queue       QueueConfig               `mapstructure:"queue"`
	Store       StoreConfig               `mapstructure:"store"`
	Tools       ToolsConfig               `mapstructure:"tools"`
	Experiments ExperimentsConfig         `mapstructure:"experiments"`
	Logging     LoggingConfig             `mapstructure:"logging"`
}

// ProviderConfig configures one upstream completion provider.
type ProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CompletionConfig controls the tool loop.
type CompletionConfig struct {
	MaxToolCalls     int  `mapstructure:"max_tool_calls"`
	ParallelTools    bool `mapstructure:"parallel_tools"`
	ToolOutputLength int  `mapstructure:"tool_output_length"`
	StrictTools      bool `mapstructure:"strict_tools"`
}

// QueueConfig selects and configures the async job queues.
type QueueConfig struct {
	Backend string            `mapstructure:"backend"`
	Size    int               `mapstructure:"size"`
	Workers int               `mapstructure:"workers"`
	Names   map[string]string `mapstructure:"names"`
	Redis   RedisConfig       `mapstructure:"redis"`
}

// RedisConfig configures the redis queue backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StoreConfig configures request log persistence.
type StoreConfig struct {
	// Path defaults to data/requests.db under the home dir when empty.
	Path string `mapstructure:"path"`
}

// ToolsConfig configures built-in tool implementations.
type ToolsConfig struct {
	HTTPTimeout time.Duration   `mapstructure:"http_timeout"`
	Search      WebSearchConfig `mapstructure:"search"`
	Datasets    DatasetsConfig  `mapstructure:"datasets"`
	// ImageModel answers image_analysis calls. Empty disables the tool.
	ImageModel string `mapstructure:"image_model"`
	// BlockedDomains are refused by web tools, subdomains included.
	BlockedDomains []string `mapstructure:"blocked_domains"`
}

// WebSearchConfig configures the web search provider.
type WebSearchConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
}

// DatasetsConfig points dataset tools at a SQLite file.
type DatasetsConfig struct {
	Path string `mapstructure:"path"`
}

// ExperimentsConfig configures experiment event publishing.
type ExperimentsConfig struct {
	Topic string `mapstructure:"topic"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaultConfig = Config{
	Providers: map[string]ProviderConfig{
		ProviderAnthropic: {
			APIKey:         "$ANTHROPIC_API_KEY",
			MaxTokens:      8192,
			RequestTimeout: 2 * time.Minute,
		},
		ProviderOpenAI: {
			APIKey:         "$OPENAI_API_KEY",
			MaxTokens:      8192,
			RequestTimeout: 2 * time.Minute,
		},
		ProviderPerplexity: {
			APIKey:         "$PERPLEXITY_API_KEY",
			MaxTokens:      4096,
			RequestTimeout: 2 * time.Minute,
		},
		ProviderGoogle: {
			APIKey:         "$GOOGLE_API_KEY",
			MaxTokens:      8192,
			RequestTimeout: 2 * time.Minute,
		},
	},
	Completion: CompletionConfig{
		MaxToolCalls:     5,
		ParallelTools:    false,
		ToolOutputLength: 4000,
		StrictTools:      false,
	},
	Queue: QueueConfig{
		Backend: QueueBackendMemory,
		Size:    100,
		Workers: 1,
		Names: map[string]string{
			ProviderAnthropic:  "claude-client-queue",
			ProviderOpenAI:     "openai-client-queue",
			ProviderPerplexity: "perplexity-client-queue",
			ProviderGoogle:     "google-client-queue",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
	},
	Tools: ToolsConfig{
		HTTPTimeout: 30 * time.Second,
		Search: WebSearchConfig{
			Provider: "brave",
			APIKey:   "$BRAVE_API_KEY",
		},
		ImageModel: "gpt-4o-mini",
	},
	Experiments: ExperimentsConfig{
		Topic: "experiments",
	},
	Logging: LoggingConfig{
		Level:  "warn",
		Format: "auto",
	},
}

// homeDir returns the completions home directory.
// Uses COMPLETIONS_HOME env var if set, otherwise defaults to ~/.completions.
func homeDir() (string, error) {
	if dir := os.Getenv("COMPLETIONS_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// Load merges hardcoded defaults and config file values in that order.
// Config is always at $COMPLETIONS_HOME/config.toml.
func Load() (*Config, error) {
	homeDir, err := homeDir()
	if err != nil {
		return nil, err
	}

	v, err := readViper(homeDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir
	if cfg.Store.Path == "" {
		cfg.Store.Path = cfg.RequestsDBPath()
	}

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := homeDir()
	if err != nil {
		return err
	}
	v, err := readViper(homeDir)
	if err != nil {
		return err
	}

	// Keep duration fields human-readable in generated TOML.
	for name := range defaultConfig.Providers {
		key := "providers." + name + ".request_timeout"
		v.Set(key, v.GetDuration(key).String())
	}
	v.Set("tools.http_timeout", v.GetDuration("tools.http_timeout").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func readViper(homeDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	for name, p := range defaultConfig.Providers {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"api_key", p.APIKey)
		v.SetDefault(prefix+"base_url", p.BaseURL)
		v.SetDefault(prefix+"max_tokens", p.MaxTokens)
		v.SetDefault(prefix+"request_timeout", p.RequestTimeout)
	}

	v.SetDefault("completion.max_tool_calls", defaultConfig.Completion.MaxToolCalls)
	v.SetDefault("completion.parallel_tools", defaultConfig.Completion.ParallelTools)
	v.SetDefault("completion.tool_output_length", defaultConfig.Completion.ToolOutputLength)
	v.SetDefault("completion.strict_tools", defaultConfig.Completion.StrictTools)

	v.SetDefault("queue.backend", defaultConfig.Queue.Backend)
	v.SetDefault("queue.size", defaultConfig.Queue.Size)
	v.SetDefault("queue.workers", defaultConfig.Queue.Workers)
	for name, queueName := range defaultConfig.Queue.Names {
		v.SetDefault("queue.names."+name, queueName)
	}
	v.SetDefault("queue.redis.addr", defaultConfig.Queue.Redis.Addr)
	v.SetDefault("queue.redis.password", defaultConfig.Queue.Redis.Password)
	v.SetDefault("queue.redis.db", defaultConfig.Queue.Redis.DB)

	v.SetDefault("store.path", defaultConfig.Store.Path)

	v.SetDefault("tools.http_timeout", defaultConfig.Tools.HTTPTimeout)
	v.SetDefault("tools.search.provider", defaultConfig.Tools.Search.Provider)
	v.SetDefault("tools.search.api_key", defaultConfig.Tools.Search.APIKey)
	v.SetDefault("tools.datasets.path", defaultConfig.Tools.Datasets.Path)
	v.SetDefault("tools.image_model", defaultConfig.Tools.ImageModel)
	v.SetDefault("tools.blocked_domains", defaultConfig.Tools.BlockedDomains)

	v.SetDefault("experiments.topic", defaultConfig.Experiments.Topic)

	v.SetDefault("logging.level", defaultConfig.Logging.Level)
	v.SetDefault("logging.format", defaultConfig.Logging.Format)
}

// Provider returns the named provider profile with fallback defaults.
func (c *Config) Provider(name string) ProviderConfig {
	if p, ok := c.Providers[name]; ok {
		return p
	}
	return defaultConfig.Providers[name]
}

// QueueName returns the queue name configured for a provider.
func (c *Config) QueueName(provider string) string {
	if name, ok := c.Queue.Names[provider]; ok && name != "" {
		return name
	}
	return defaultConfig.Queue.Names[provider]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
