package cli

import (
	"strings"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/logging"
)

// Emit startup warnings derived from non-fatal config/runtime conditions.
func warnStartupConditions(cfg *config.Config) {
	if cfg == nil {
		return
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Tools.Search.Provider), "brave") &&
		strings.TrimSpace(cfg.Tools.Search.APIKey) == "" {
		logging.Logger().Warn("tools.search.api_key is empty while tools.search.provider is brave. search_web tool will fail until this is set")
	}
	if strings.TrimSpace(cfg.Tools.ImageModel) == "" {
		logging.Logger().Warn("tools.image_model is empty. image_analysis tool will fail until this is set")
	}
	for _, name := range []string{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderPerplexity, config.ProviderGoogle} {
		if strings.TrimSpace(cfg.Provider(name).APIKey) == "" {
			logging.Logger().Warn("provider api_key is empty. models of this provider cannot be executed", "provider", name)
		}
	}
}
