package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// Validate checks one provider profile. An empty api_key is allowed so a
// deployment can leave unused providers unconfigured; the provider factory
// rejects it when the provider is actually built.
func (c ProviderConfig) Validate() error {
	if c.MaxTokens < 0 {
		return errors.New("max_tokens must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}
	return nil
}

// Validate checks tool loop settings.
func (c CompletionConfig) Validate() error {
	if c.MaxToolCalls < 0 {
		return errors.New("max_tool_calls must be >= 0")
	}
	if c.ToolOutputLength < 0 {
		return errors.New("tool_output_length must be >= 0")
	}
	return nil
}

// Validate checks queue backend settings.
func (c QueueConfig) Validate() error {
	switch c.Backend {
	case QueueBackendMemory:
		if c.Size <= 0 {
			return errors.New("size must be > 0 for the memory backend")
		}
	case QueueBackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (allowed: %q, %q)", c.Backend, QueueBackendMemory, QueueBackendRedis)
	}
	if c.Workers <= 0 {
		return errors.New("workers must be > 0")
	}

	seen := make(map[string]string, len(c.Names))
	providers := make([]string, 0, len(c.Names))
	for provider := range c.Names {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	for _, provider := range providers {
		name := c.Names[provider]
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("names.%s is empty", provider)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("names.%s and names.%s share queue %q", other, provider, name)
		}
		seen[name] = provider
	}
	return nil
}

// Validate checks the search provider.
func (c ToolsConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Search.Provider)) {
	case "", "brave":
	default:
		return fmt.Errorf("unsupported search.provider %q", c.Search.Provider)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http_timeout must be > 0")
	}
	return nil
}

// Validate checks experiment settings.
func (c ExperimentsConfig) Validate() error {
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("topic is required")
	}
	return nil
}

// Validate validates startup configuration and returns every fatal error joined.
func (cfg *Config) Validate() error {
	var errs []error

	for _, name := range []string{ProviderAnthropic, ProviderOpenAI, ProviderPerplexity, ProviderGoogle} {
		if err := cfg.Provider(name).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("providers.%s: %w", name, err))
		}
	}
	for name := range cfg.Providers {
		switch name {
		case ProviderAnthropic, ProviderOpenAI, ProviderPerplexity, ProviderGoogle:
		default:
			errs = append(errs, fmt.Errorf("providers.%s: unsupported provider", name))
		}
	}

	if err := cfg.Completion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("completion: %w", err))
	}
	if err := cfg.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	if err := cfg.Tools.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tools: %w", err))
	}
	if err := cfg.Experiments.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("experiments: %w", err))
	}

	return errors.Join(errs...)
}
