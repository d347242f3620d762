package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvToken = "BOT_TOKEN"
	EnvOwner = "OWNER_ID"
)

// FileName is the configuration file name searched for by Find.
const FileName = "autoreply.yaml"

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file on top of Default, expands
// environment variables, then applies the BOT_TOKEN and OWNER_ID overrides.
// An empty path loads the defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}

		expanded, err := expandEnv(raw)
		if err != nil {
			return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
		}

		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Variables that are already set win. Missing files
// are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: loading %s: %w", p, err)
		}
	}
	return nil
}

// Find returns the configuration file to load. An explicit path must
// exist. Otherwise the search order is
// $XDG_CONFIG_HOME/autoreply/autoreply.yaml, ~/.config/autoreply/autoreply.yaml,
// ./autoreply.yaml; when none exists Find returns "" and no error.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	for _, path := range Candidates() {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// Candidates lists the default configuration locations in search order.
func Candidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "autoreply", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "autoreply", FileName))
	}
	return append(candidates, FileName)
}

// DefaultDataDir returns $XDG_DATA_HOME/autoreply, or
// ~/.local/share/autoreply when XDG_DATA_HOME is unset.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "autoreply")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "autoreply")
}

// ResolvedDataDir returns cfg.DataDir or the default data directory.
func (cfg *Config) ResolvedDataDir() string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return DefaultDataDir()
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvToken); ok && v != "" {
		cfg.Bot.Token = v
	}
	if v, ok := os.LookupEnv(EnvOwner); ok && v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("config: %s must be a positive integer, got %q", EnvOwner, v)
		}
		cfg.Bot.OwnerID = id
	}
	return nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}
