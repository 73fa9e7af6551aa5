package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings mirrors the indexer's own settings.yaml (spec.md §6.2): model
// names, the local inference endpoint, and chunking parameters. The backend
// parses it at startup and whenever the file changes, and logs whether
// parsing succeeded; the parsed values are not otherwise used or reported.
type Settings struct {
	Models struct {
		Chat struct {
			Model    string `yaml:"model"`
			APIBase  string `yaml:"api_base"`
			APIKey   string `yaml:"api_key"`
			Provider string `yaml:"type"`
		} `yaml:"chat"`
		Embedding struct {
			Model    string `yaml:"model"`
			APIBase  string `yaml:"api_base"`
			APIKey   string `yaml:"api_key"`
			Provider string `yaml:"type"`
		} `yaml:"embedding"`
	} `yaml:"models"`
	Chunks struct {
		Size    int `yaml:"size"`
		Overlap int `yaml:"overlap"`
	} `yaml:"chunks"`
}

// LoadSettings reads and parses the indexer settings YAML at path. A missing
// file is not fatal to the backend overall (the indexer binary may still run
// with its own built-in defaults) but callers that need the settings for
// display or validation should treat the error as fatal to that operation.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	return &s, nil
}
