package config

import "path/filepath"

const (
	// Global layout under COMPLETIONS_HOME.
	ConfigFilePath = "config.toml"
	DataDirPath    = "data"

	RequestsDBFileName   = "requests.db"
	DatasetsDBFileName   = "datasets.db"
	ConversationsDirPath = "conversations"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".completions")
}

func homeDataPath(home string) string {
	return filepath.Join(home, DataDirPath)
}

func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

func (c *Config) DataDir() string {
	return homeDataPath(c.HomeDir)
}

func (c *Config) RequestsDBPath() string {
	return filepath.Join(c.DataDir(), RequestsDBFileName)
}

// DatasetsPath returns the configured dataset file, defaulting under the data dir.
func (c *Config) DatasetsPath() string {
	if c.Tools.Datasets.Path != "" {
		return c.Tools.Datasets.Path
	}
	return filepath.Join(c.DataDir(), DatasetsDBFileName)
}

// ConversationsDir holds one JSONL file per conversation part.
func (c *Config) ConversationsDir() string {
	return filepath.Join(c.DataDir(), ConversationsDirPath)
}
