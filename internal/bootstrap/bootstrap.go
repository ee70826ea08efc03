package bootstrap

import (
	"fmt"
	"os"

	"github.com/neoclaw-ai/completions/internal/config"
)

const defaultConfigTOML = `# completions configuration. Values shown are the built-in defaults.

[providers.anthropic]
api_key = '$ANTHROPIC_API_KEY'

[providers.openai]
api_key = '$OPENAI_API_KEY'

[providers.perplexity]
api_key = '$PERPLEXITY_API_KEY'

[providers.google]
api_key = '$GOOGLE_API_KEY'

[completion]
max_tool_calls = 5
parallel_tools = false

[queue]
backend = 'memory'
workers = 1

[tools]
image_model = 'gpt-4o-mini'

[tools.search]
provider = 'brave'
api_key = '$BRAVE_API_KEY'

[logging]
level = 'warn'
format = 'auto'
`

// Initialize creates the completions home and data tree if missing.
func Initialize(cfg *config.Config) error {
	dirs := []string{
		cfg.HomeDir,
		cfg.DataDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	if err := writeFileIfMissing(cfg.ConfigPath(), defaultConfigTOML); err != nil {
		return err
	}
	return nil
}

func writeFileIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}
