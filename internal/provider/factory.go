package provider

import (
	"fmt"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/logging"
)

// NewFromConfig builds the provider for kind from its config profile.
func NewFromConfig(kind Kind, cfg config.ProviderConfig) (Provider, error) {
	switch kind {
	case Anthropic:
		return newAnthropicProvider(cfg)
	case OpenAI:
		return newOpenAIProvider(cfg)
	case Perplexity:
		return newPerplexityProvider(cfg)
	case Google:
		return newGoogleProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", kind)
	}
}

// NewAll builds every provider that has usable credentials. Providers that
// fail to build are logged and left out; models owned by them still resolve
// but cannot be executed.
func NewAll(cfg *config.Config) map[Kind]Provider {
	out := make(map[Kind]Provider, len(Kinds()))
	for _, kind := range Kinds() {
		p, err := NewFromConfig(kind, cfg.Provider(string(kind)))
		if err != nil {
			logging.Logger().Warn("provider disabled", "provider", kind, "err", err)
			continue
		}
		out[kind] = p
	}
	return out
}
