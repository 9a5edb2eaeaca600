package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration for the current directory.
func LoadWithSources() (*TrackedConfig, error) {
	return LoadWithSourcesFrom(".")
}

// LoadWithSourcesFrom loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.storyforge/config.yaml) - optional
//  3. Project config (<projectDir>/.storyforge/config.yaml)
//  4. Environment variables (STORYFORGE_*)
func LoadWithSourcesFrom(projectDir string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, Dir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := tc.MergeFile(userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := filepath.Join(projectDir, Dir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := tc.MergeFile(projectPath, SourceProject); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	ApplyEnvVars(tc)

	return tc, nil
}

// MergeFile overlays the YAML file at path onto tc.Config. Only keys present
// in the file change, and each one is recorded as coming from source.
func (tc *TrackedConfig) MergeFile(path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse YAML into a map to track which fields are set
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	// Decoding onto the existing struct leaves absent keys untouched.
	if err := yaml.Unmarshal(data, tc.Config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, key := range leafPaths("", raw) {
		tc.SetSourceWithPath(key, source, path)
	}
	return nil
}

// leafPaths flattens nested YAML keys into sorted dotted paths.
func leafPaths(prefix string, m map[string]any) []string {
	var out []string
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			out = append(out, leafPaths(key, nested)...)
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
