package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/remote"
	"github.com/randalmurphal/storyforge/internal/storage"
)

// Options describe how to assemble a Bundle.
type Options struct {
	// Offline disables the remote even when one is given.
	Offline bool
	// UseDurableStore backs the repositories with Store. Otherwise a private
	// in-memory store is used.
	UseDurableStore bool
	Store           storage.Store
	Remote          remote.Source

	Publisher events.Publisher
	Logger    *slog.Logger
	Metrics   *metrics.Recorder

	StoreTimeout    time.Duration
	RemoteTimeout   time.Duration
	PageLimit       int
	SyncConcurrency int
}

// SelectMode picks the repository mode for o:
//
//	online with a remote            -> ModeRemote
//	durable store requested and set -> ModeStore
//	otherwise                       -> ModeMemory
func SelectMode(o Options) Mode {
	switch {
	case !o.Offline && o.Remote != nil:
		return ModeRemote
	case o.UseDurableStore && o.Store != nil:
		return ModeStore
	default:
		return ModeMemory
	}
}

// Bundle is one consistent set of repositories sharing a store, a remote
// and a publisher. Deleting a project drops it from every repository, and
// character changes relink the content indices.
type Bundle struct {
	Mode         Mode
	Store        storage.Store
	Publisher    events.Publisher
	Projects     *ProjectRepository
	Content      *ContentRepository
	Characters   *CharacterRepository
	Distribution *DistributionRepository

	logger     *slog.Logger
	ownedStore storage.Store
	ownsPub    bool
}

// New assembles the repositories described by o. A store or publisher the
// bundle creates itself is closed by Close; the caller keeps ownership of
// the ones passed in.
func New(ctx context.Context, o Options) (*Bundle, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := SelectMode(o)
	b := &Bundle{Mode: mode, logger: logger}

	b.Store = o.Store
	if mode == ModeMemory || (mode == ModeRemote && (!o.UseDurableStore || o.Store == nil)) {
		mem, err := storage.NewInMemoryStore(ctx, storage.WithLogger(logger), storage.WithMetrics(o.Metrics))
		if err != nil {
			return nil, err
		}
		b.Store = mem
		b.ownedStore = mem
	}

	b.Publisher = o.Publisher
	if b.Publisher == nil {
		b.Publisher = events.NewMemoryPublisher()
		b.ownsPub = true
	}

	d := Deps{
		Mode:          mode,
		Store:         b.Store,
		Publisher:     b.Publisher,
		Logger:        logger,
		Metrics:       o.Metrics,
		StoreTimeout:  o.StoreTimeout,
		RemoteTimeout: o.RemoteTimeout,
		locks:         newProjectLocks(),
	}
	if mode == ModeRemote {
		d.Remote = o.Remote
	}

	b.Projects = NewProjectRepository(d, WithPageLimit(o.PageLimit), WithSyncConcurrency(o.SyncConcurrency))
	b.Content = NewContentRepository(d)
	b.Characters = NewCharacterRepository(d)
	b.Distribution = NewDistributionRepository(d)

	b.Projects.OnDelete(b.Content.dropProject)
	b.Projects.OnDelete(b.Characters.dropProject)
	b.Projects.OnDelete(b.Distribution.dropProject)
	b.Characters.OnCharactersChanged(b.Content.syncCharacters)

	logger.Info("repositories ready", "mode", mode.String(), "durable", b.ownedStore == nil)
	return b, nil
}

// Close releases what New created.
func (b *Bundle) Close() error {
	if b.ownsPub {
		b.Publisher.Close()
	}
	if b.ownedStore != nil {
		return b.ownedStore.Close()
	}
	return nil
}
