package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SAEConfig holds defaults for sparse feature runs.
type SAEConfig struct {
	ModelID    string `yaml:"model_id"`
	KExpansion string `yaml:"k_expansion"`
	Workers    int    `yaml:"workers,omitempty"`
	BatchSize  int    `yaml:"batch_size,omitempty"`
}

// Config is the in-memory representation of ~/.lscope/lscope.yaml.
type Config struct {
	DataDir   string    `yaml:"data_dir"`
	LogLevel  string    `yaml:"log_level,omitempty"`
	LogFormat string    `yaml:"log_format,omitempty"`
	SAE       SAEConfig `yaml:"sae"`
}

// HomeDir returns the absolute path to ~/.lscope/.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".lscope"), nil
}

// ConfigPath returns the absolute path to ~/.lscope/lscope.yaml.
func ConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lscope.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the default Config written on first lscope init.
func DefaultConfig() (*Config, error) {
	dir, err := HomeDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		DataDir:   filepath.Join(dir, "data"),
		LogLevel:  "info",
		LogFormat: "console",
		SAE: SAEConfig{
			ModelID:    "enjalot/sae-nomic-text-v1.5-FineWeb-edu-10BT",
			KExpansion: "64_32",
			Workers:    4,
			BatchSize:  1024,
		},
	}, nil
}

// Load reads and parses ~/.lscope/lscope.yaml.
//
// A missing file is not an error: defaults are returned so that commands can
// run against a data directory given on the command line.
func Load() (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	if v, err := GetConfigValue("LSCOPE_DATA_DIR"); err != nil {
		return nil, err
	} else if v != "" {
		cfg.DataDir = v
	}
	cfg.DataDir, err = ExpandPath(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.SAE.Workers <= 0 {
		c.SAE.Workers = 1
	}
	if c.SAE.BatchSize <= 0 {
		c.SAE.BatchSize = 1024
	}
}

// Save marshals cfg and writes it to ~/.lscope/lscope.yaml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
