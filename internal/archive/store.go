// Package archive exports project factories to a blob store and imports them
// back. Each factory becomes one JSON entry per component under
// projects/<id>/, next to a basic.json listing entry.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/randalmurphal/storyforge/internal/config"
)

// ErrNotFound is returned by Get for a key that does not exist.
var ErrNotFound = errors.New("archive entry not found")

// Store is a flat key/value blob store. Keys use forward slashes.
type Store interface {
	// Put writes data under key, replacing any existing entry.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key with the given prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Open selects a Store implementation from the archive configuration.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch cfg.Driver {
	case config.ArchiveFS, "":
		return NewFSStore(cfg.Dir)
	case config.ArchiveS3:
		return NewS3Store(ctx, S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case config.ArchiveMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// cleanKey rejects keys that are empty, absolute or escape the store root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}
