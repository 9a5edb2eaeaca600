package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"STORYFORGE_OFFLINE":           "offline",
	"STORYFORGE_USE_DURABLE_STORE": "use_durable_store",
	// Database settings
	"STORYFORGE_DB_DRIVER":   "database.driver",
	"STORYFORGE_DB_PATH":     "database.sqlite.path",
	"STORYFORGE_DB_PASSWORD": "database.postgres.password",
	"STORYFORGE_DB_HOST":     "database.postgres.host",
	"STORYFORGE_DB_PORT":     "database.postgres.port",
	"STORYFORGE_DB_NAME":     "database.postgres.database",
	"STORYFORGE_DB_USER":     "database.postgres.user",
	"STORYFORGE_DB_SSL_MODE": "database.postgres.ssl_mode",
	// Remote API
	"STORYFORGE_REMOTE_URL":       "remote.base_url",
	"STORYFORGE_REMOTE_TIMEOUT":   "remote.timeout",
	"STORYFORGE_REMOTE_RETRY_MAX": "remote.retry_max",
	// Sync
	"STORYFORGE_SYNC_ON_START":    "sync.on_start",
	"STORYFORGE_SYNC_CONCURRENCY": "sync.detail_concurrency",
	// Archive
	"STORYFORGE_ARCHIVE_DRIVER":      "archive.driver",
	"STORYFORGE_ARCHIVE_DIR":         "archive.dir",
	"STORYFORGE_ARCHIVE_S3_BUCKET":   "archive.s3.bucket",
	"STORYFORGE_ARCHIVE_S3_REGION":   "archive.s3.region",
	"STORYFORGE_ARCHIVE_S3_ENDPOINT": "archive.s3.endpoint",
	// Server
	"STORYFORGE_HOST": "server.host",
	"STORYFORGE_PORT": "server.port",
	// Timeouts
	"STORYFORGE_STORE_TIMEOUT": "timeouts.store",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns a list of paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv)
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "offline":
		cfg.Offline = parseBool(value)
	case "use_durable_store":
		cfg.UseDurableStore = parseBool(value)
	case "database.driver":
		cfg.Database.Driver = value
	case "database.sqlite.path":
		cfg.Database.SQLite.Path = value
	case "database.postgres.password":
		cfg.Database.Postgres.Password = value
	case "database.postgres.host":
		cfg.Database.Postgres.Host = value
	case "database.postgres.port":
		return setInt(&cfg.Database.Postgres.Port, value)
	case "database.postgres.database":
		cfg.Database.Postgres.Database = value
	case "database.postgres.user":
		cfg.Database.Postgres.User = value
	case "database.postgres.ssl_mode":
		cfg.Database.Postgres.SSLMode = value
	case "remote.base_url":
		cfg.Remote.BaseURL = value
	case "remote.timeout":
		return setDuration(&cfg.Remote.Timeout, value)
	case "remote.retry_max":
		return setInt(&cfg.Remote.RetryMax, value)
	case "sync.on_start":
		cfg.Sync.OnStart = parseBool(value)
	case "sync.detail_concurrency":
		return setInt(&cfg.Sync.DetailConcurrency, value)
	case "archive.driver":
		cfg.Archive.Driver = value
	case "archive.dir":
		cfg.Archive.Dir = value
	case "archive.s3.bucket":
		cfg.Archive.S3.Bucket = value
	case "archive.s3.region":
		cfg.Archive.S3.Region = value
	case "archive.s3.endpoint":
		cfg.Archive.S3.Endpoint = value
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		return setInt(&cfg.Server.Port, value)
	case "timeouts.store":
		return setDuration(&cfg.Timeouts.Store, value)
	default:
		return false
	}
	return true
}

func setInt(dst *int, value string) bool {
	v, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	*dst = v
	return true
}

func setDuration(dst *time.Duration, value string) bool {
	d, err := time.ParseDuration(value)
	if err != nil {
		return false
	}
	*dst = d
	return true
}

// parseBool parses a boolean string (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
