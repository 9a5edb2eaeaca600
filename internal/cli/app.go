package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/storyforge/internal/config"
	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/remote"
	"github.com/randalmurphal/storyforge/internal/repository"
	"github.com/randalmurphal/storyforge/internal/storage"
)

// app is the wiring shared by commands that touch repositories.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	store   storage.Store // durable store, nil when not configured
	pub     events.Publisher
	repos   *repository.Bundle
}

// appOptions tune openApp for a single command.
type appOptions struct {
	// progress echoes every change event to stderr, not just warnings.
	progress bool
}

// loadConfig resolves configuration from --config (or the default files),
// environment variables and the --offline flag.
func loadConfig(g *globalFlags, v *viper.Viper) (*config.TrackedConfig, error) {
	var tc *config.TrackedConfig
	if g.cfgFile != "" {
		tc = config.NewTrackedConfig()
		if err := tc.MergeFile(g.cfgFile, config.SourceFile); err != nil {
			return nil, err
		}
		config.ApplyEnvVars(tc)
	} else {
		var err error
		if tc, err = config.LoadWithSources(); err != nil {
			return nil, err
		}
	}
	if v.GetBool("offline") && !tc.Config.Offline {
		tc.Config.Offline = true
		tc.SetSource("offline", config.SourceFlag)
	}
	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// newLogger returns a logger on w whose level follows --verbose and --quiet.
// --json switches it to JSON lines.
func newLogger(g *globalFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case g.verbose:
		level = slog.LevelDebug
	case g.quiet:
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if g.jsonOut {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openApp builds the repositories described by the configuration.
func openApp(ctx context.Context, cmd *cobra.Command, g *globalFlags, v *viper.Viper, opts appOptions) (*app, error) {
	tc, err := loadConfig(g, v)
	if err != nil {
		return nil, err
	}
	cfg := tc.Config
	a := &app{
		cfg:     cfg,
		logger:  newLogger(g, cmd.ErrOrStderr()),
		metrics: metrics.New(),
	}
	a.pub = events.NewCLIPublisher(cmd.ErrOrStderr(),
		events.WithInnerPublisher(events.NewMemoryPublisher()),
		events.WithWarningsOnly(!opts.progress || g.quiet))

	if cfg.UseDurableStore {
		store, err := storage.NewStore(ctx, cfg, storage.WithLogger(a.logger), storage.WithMetrics(a.metrics))
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	var src remote.Source
	if !cfg.Offline && cfg.Remote.BaseURL != "" {
		src = remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Timeout,
			remote.WithRetryMax(cfg.Remote.RetryMax),
			remote.WithLogger(a.logger))
	}

	a.repos, err = repository.New(ctx, repository.Options{
		Offline:         cfg.Offline,
		UseDurableStore: cfg.UseDurableStore,
		Store:           a.store,
		Remote:          src,
		Publisher:       a.pub,
		Logger:          a.logger,
		Metrics:         a.metrics,
		StoreTimeout:    cfg.Timeouts.Store,
		RemoteTimeout:   cfg.Timeouts.Remote,
		PageLimit:       cfg.Remote.PageLimit,
		SyncConcurrency: cfg.Sync.DetailConcurrency,
	})
	if err != nil {
		a.pub.Close()
		if a.store != nil {
			_ = a.store.Close()
		}
		return nil, err
	}
	a.logger.Debug("app ready", "mode", a.repos.Mode.String(), "offline", cfg.Offline)
	return a, nil
}

// Close releases the repositories, the publisher and the durable store.
func (a *app) Close() error {
	var errs []error
	if a.repos != nil {
		errs = append(errs, a.repos.Close())
	}
	if a.pub != nil {
		a.pub.Close()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, g *globalFlags, v *viper.Viper, fn func(context.Context, *app) error) error {
	return withAppOptions(cmd, g, v, appOptions{}, fn)
}

func withAppOptions(cmd *cobra.Command, g *globalFlags, v *viper.Viper, opts appOptions, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cmd, g, v, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}
