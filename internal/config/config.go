// Package config loads the layoutc configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete layoutc configuration
type Config struct {
	BaseDir string         `yaml:"-"`      // Directory containing the config file
	Input   string         `yaml:"input"`  // Input file, relative to BaseDir; -in and the argument take precedence
	Debug   bool           `yaml:"debug"`  // Log the listing of every compiled program
	Output  string         `yaml:"output"` // "listing", "html" or "both" (default: "listing")
	Watch   WatchConfig    `yaml:"watch"`
	Props   map[string]any `yaml:"props"` // Default props for html output, overridden by the layout file
}

// WatchConfig holds -watch settings
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"` // Quiet period before recompiling (default: 200ms)
}

const (
	OutputListing = "listing"
	OutputHTML    = "html"
	OutputBoth    = "both"
)

// Defaults returns a Config with default values
func Defaults() *Config {
	return &Config{
		Output: OutputListing,
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Props: map[string]any{},
	}
}

// Load reads the config at path over the defaults. An empty path returns
// the defaults. ${VAR} and ${VAR:-default} are expanded with getenv before
// parsing.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := interpolateEnv(string(data), getenv)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = filepath.Dir(absPath)
	if cfg.Input != "" && !filepath.IsAbs(cfg.Input) {
		cfg.Input = filepath.Join(cfg.BaseDir, cfg.Input)
	}
	if cfg.Props == nil {
		cfg.Props = map[string]any{}
	}

	return cfg, nil
}

// Validate checks values that cannot be checked while parsing
func Validate(cfg *Config) error {
	switch cfg.Output {
	case OutputListing, OutputHTML, OutputBoth:
	default:
		return fmt.Errorf("output must be %q, %q or %q, got %q", OutputListing, OutputHTML, OutputBoth, cfg.Output)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default}
func interpolateEnv(s string, getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if v := getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}
