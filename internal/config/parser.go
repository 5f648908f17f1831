package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseConfig loads a configuration file from disk, applies defaults and REF_*
// environment overrides, validates it, and returns the resulting model.
func ParseConfig(path string) (*Config, error) {
	return ParseConfigWithEnv(path, os.LookupEnv)
}

// ParseConfigWithEnv is ParseConfig with an explicit environment lookup.
func ParseConfigWithEnv(path string, lookup LookupFunc) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, referrors.NewParseError(path, 0, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		var cfgErr *referrors.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, referrors.NewParseError(path, extractLine(err), err)
	}

	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a configuration document and fills in defaults. It does not
// validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Executor.Kind == "" {
		cfg.Executor.Kind = "local"
	}
	if cfg.Artifacts.Kind == "" {
		cfg.Artifacts.Kind = "local"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "ref"
	}
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
