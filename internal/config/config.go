// Package config provides configuration management for storyforge.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/storyforge/internal/db/driver"
	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// Dir is the storyforge configuration directory
	Dir = ".storyforge"
)

// Archive drivers.
const (
	ArchiveFS     = "fs"
	ArchiveS3     = "s3"
	ArchiveMemory = "memory"
)

// Config is the storyforge configuration.
type Config struct {
	// Offline skips the remote source entirely.
	Offline bool `yaml:"offline"`

	// UseDurableStore keeps factories in the configured database. When false
	// (and not offline) factories live in a private in-memory store.
	UseDurableStore bool `yaml:"use_durable_store"`

	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Server   ServerConfig   `yaml:"server"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// DatabaseConfig defines database connection settings.
type DatabaseConfig struct {
	// Driver is the database type: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig defines SQLite-specific settings.
type SQLiteConfig struct {
	// Path of the factory database, relative to the working directory.
	Path string `yaml:"path"`
}

// PostgresConfig defines PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"` // Use env STORYFORGE_DB_PASSWORD
	SSLMode  string `yaml:"ssl_mode"`
	PoolMax  int    `yaml:"pool_max"`
}

// RemoteConfig configures the project API client.
type RemoteConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
	PageLimit int           `yaml:"page_limit"`
}

// SyncConfig configures background synchronization.
type SyncConfig struct {
	// OnStart loads from the store and then the remote when the app starts.
	OnStart bool `yaml:"on_start"`
	// DetailConcurrency bounds parallel project detail fetches.
	DetailConcurrency int `yaml:"detail_concurrency"`
}

// ArchiveConfig selects where exported factories are written.
type ArchiveConfig struct {
	// Driver is one of fs, s3, memory.
	Driver string   `yaml:"driver"`
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

// S3Config defines the S3 archive bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// ServerConfig defines the API server bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TimeoutsConfig bounds store and remote calls made by repositories.
type TimeoutsConfig struct {
	Store  time.Duration `yaml:"store"`
	Remote time.Duration `yaml:"remote"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Offline:         false,
		UseDurableStore: true,
		Database: DatabaseConfig{
			Driver: string(driver.DialectSQLite),
			SQLite: SQLiteConfig{Path: filepath.Join(Dir, "storyforge.db")},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "storyforge",
				User:     "storyforge",
				SSLMode:  "disable",
				PoolMax:  10,
			},
		},
		Remote: RemoteConfig{
			BaseURL:   "http://localhost:8000/api",
			Timeout:   30 * time.Second,
			RetryMax:  3,
			PageLimit: 100,
		},
		Sync: SyncConfig{
			OnStart:           true,
			DetailConcurrency: 4,
		},
		Archive: ArchiveConfig{
			Driver: ArchiveFS,
			Dir:    filepath.Join(Dir, "archive"),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Timeouts: TimeoutsConfig{
			Store:  10 * time.Second,
			Remote: 30 * time.Second,
		},
	}
}

// Validate checks field values and returns the first problem found.
func (c *Config) Validate() error {
	dialect, err := driver.ParseDialect(c.Database.Driver)
	if err != nil {
		return storyerrors.ErrConfigInvalid("database.driver", err.Error())
	}
	switch dialect {
	case driver.DialectSQLite:
		if c.Database.SQLite.Path == "" {
			return storyerrors.ErrConfigMissing("database.sqlite.path")
		}
	case driver.DialectPostgres:
		if c.Database.Postgres.Host == "" {
			return storyerrors.ErrConfigMissing("database.postgres.host")
		}
		if c.Database.Postgres.Database == "" {
			return storyerrors.ErrConfigMissing("database.postgres.database")
		}
	}

	if !c.Offline {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return storyerrors.ErrConfigInvalid("remote.base_url", fmt.Sprintf("%q is not an absolute URL", c.Remote.BaseURL))
		}
	}
	if c.Remote.RetryMax < 0 {
		return storyerrors.ErrConfigInvalid("remote.retry_max", "must not be negative")
	}
	if c.Remote.PageLimit <= 0 {
		return storyerrors.ErrConfigInvalid("remote.page_limit", "must be positive")
	}
	if c.Sync.DetailConcurrency <= 0 {
		return storyerrors.ErrConfigInvalid("sync.detail_concurrency", "must be positive")
	}

	switch c.Archive.Driver {
	case ArchiveFS:
		if c.Archive.Dir == "" {
			return storyerrors.ErrConfigMissing("archive.dir")
		}
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return storyerrors.ErrConfigMissing("archive.s3.bucket")
		}
	case ArchiveMemory:
	default:
		return storyerrors.ErrConfigInvalid("archive.driver", fmt.Sprintf("unknown driver %q (want fs, s3 or memory)", c.Archive.Driver))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return storyerrors.ErrConfigInvalid("server.port", "must be between 0 and 65535")
	}
	if c.Timeouts.Store < 0 || c.Timeouts.Remote < 0 {
		return storyerrors.ErrConfigInvalid("timeouts", "must not be negative")
	}
	return nil
}

// DSN renders the database connection string: the SQLite file path or a
// PostgreSQL URL.
func (c *Config) DSN() string {
	dialect, _ := driver.ParseDialect(c.Database.Driver)
	if dialect != driver.DialectPostgres {
		return c.Database.SQLite.Path
	}
	pg := c.Database.Postgres
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(pg.Host, strconv.Itoa(pg.Port)),
		Path:   "/" + pg.Database,
	}
	if pg.Password != "" {
		u.User = url.UserPassword(pg.User, pg.Password)
	} else if pg.User != "" {
		u.User = url.User(pg.User)
	}
	if pg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {pg.SSLMode}}.Encode()
	}
	return u.String()
}

// DriverConfig returns the connection settings for the db package.
func (c *Config) DriverConfig() (driver.Config, error) {
	dialect, err := driver.ParseDialect(c.Database.Driver)
	if err != nil {
		return driver.Config{}, storyerrors.ErrConfigInvalid("database.driver", err.Error())
	}
	cfg := driver.Config{Dialect: dialect, DSN: c.DSN()}
	if dialect == driver.DialectPostgres {
		cfg.PoolMax = c.Database.Postgres.PoolMax
	}
	return cfg, nil
}

// ServerAddr returns host:port for the API server.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Load loads the config from the default location.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Dir, ConfigFileName))
}

// LoadFrom loads the config from a specific path on top of the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveTo saves the config to a specific path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
