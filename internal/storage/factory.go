package storage

import (
	"context"
	"net/url"

	"github.com/randalmurphal/storyforge/internal/config"
	"github.com/randalmurphal/storyforge/internal/db"
	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
)

// NewStore opens the durable store described by cfg.Database and applies
// migrations.
func NewStore(ctx context.Context, cfg *config.Config, opts ...Option) (*DatabaseStore, error) {
	dc, err := cfg.DriverConfig()
	if err != nil {
		return nil, err
	}
	fdb, err := db.OpenFactory(ctx, dc)
	if err != nil {
		return nil, storyerrors.ErrStoreUnavailable(redact(dc.DSN)).WithCause(err)
	}
	return NewDatabaseStore(fdb, opts...), nil
}

func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	return u.Redacted()
}
