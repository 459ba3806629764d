// Package config handles configuration loading and management
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/pybundle/pybundle/pkg/types"
)

// FileName is the base name of the project configuration file
const FileName = "pybundle.config"

// Extensions lists supported config formats in search order
var Extensions = []string{".json", ".yaml", ".yml", ".toml"}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// FindConfigFile searches the project root for a configuration file.
// Returns an empty string when none exists; the caller falls back to
// the built-in defaults.
func (m *Manager) FindConfigFile(projectRoot string) string {
	for _, ext := range Extensions {
		path := filepath.Join(projectRoot, FileName+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadConfig loads configuration from a file, applies defaults, and
// validates the result.
func (m *Manager) LoadConfig(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := m.parse(path, data)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the project config when one exists and otherwise
// returns the built-in defaults.
func (m *Manager) LoadOrDefault(projectRoot string) (*types.Config, error) {
	path := m.FindConfigFile(projectRoot)
	if path == "" {
		return types.DefaultConfig(), nil
	}
	return m.LoadConfig(path)
}

// SaveConfig writes a configuration as indented JSON
func (m *Manager) SaveConfig(path string, cfg *types.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func (m *Manager) parse(path string, data []byte) (*types.Config, error) {
	var cfg types.Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		return &cfg, nil
	case ".yaml", ".yml":
		if err := m.parseYAML(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return &cfg, nil
	}

	// Unknown extension: try JSON first, then YAML
	if err := json.Unmarshal(data, &cfg); err == nil {
		return &cfg, nil
	}
	if err := m.parseYAML(data, &cfg); err == nil {
		return &cfg, nil
	}
	return nil, fmt.Errorf("failed to parse config as JSON or YAML: %s", path)
}

// parseYAML decodes YAML by bridging through JSON so the json struct
// tags stay the single source of field naming.
func (m *Manager) parseYAML(data []byte, cfg *types.Config) error {
	var yamlData map[string]interface{}
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	jsonData, err := json.Marshal(yamlData)
	if err != nil {
		return fmt.Errorf("failed to convert YAML config: %w", err)
	}
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML config: %w", err)
	}
	return nil
}
