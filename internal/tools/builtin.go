package tools

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/provider"
)

// Collaborators wires the tools whose work happens outside this package.
type Collaborators struct {
	RunPrompt    PromptRunner
	AnalyzeImage ImageAnalyzer
	Reply        Replier
}

// toolKinds are the providers that accept tool definitions.
var toolKinds = []provider.Kind{provider.Anthropic, provider.OpenAI, provider.Google}

// NewDefaultRegistry registers every built-in tool for each tool-capable provider.
// The returned Datasets handle may be nil when no datasets file exists and
// must be closed by the caller otherwise.
func NewDefaultRegistry(cfg config.ToolsConfig, datasetsPath string, deps Collaborators) (*Registry, *Datasets, error) {
	guard, err := newDomainGuard(cfg.BlockedDomains, http.DefaultTransport)
	if err != nil {
		return nil, nil, err
	}
	client := &http.Client{Timeout: cfg.HTTPTimeout, Transport: guard}

	var datasets *Datasets
	if _, err := os.Stat(datasetsPath); err == nil {
		datasets, err = OpenDatasets(datasetsPath)
		if err != nil {
			return nil, nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	} else {
		logging.Logger().Info("datasets file not found, dataset tools disabled", slog.String("path", datasetsPath))
	}

	builtins := []Tool{
		CallPromptTool{Run: deps.RunPrompt},
		SearchWebTool{Client: client, Provider: cfg.Search.Provider, APIKey: cfg.Search.APIKey},
		DatasetSearchTool{Datasets: datasets},
		DatasetQueryTool{Datasets: datasets},
		BrowseWebTool{Client: client},
		RetrieveWebTool{Client: client},
		ParseFileTool{Client: client},
		IntercomReplyToTool{Reply: deps.Reply},
		ImageAnalysisTool{Analyze: deps.AnalyzeImage},
	}

	registry := NewRegistry()
	for _, tool := range builtins {
		if err := registry.RegisterShared(tool, toolKinds...); err != nil {
			_ = datasets.Close()
			return nil, nil, err
		}
	}
	return registry, datasets, nil
}
