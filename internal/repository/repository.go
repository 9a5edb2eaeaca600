// Package repository implements the synchronizing repositories that sit
// between callers and the three data tiers: in-memory indices, the persistent
// factory store, and the remote project API.
//
// Reads consult the cache, then (online) the remote, then the store. Writes
// mutate the cache, then persist the whole factory component-wise, then
// publish a change event. A failed persist never rolls back the in-memory
// mutation; it is reported in the WriteResult instead.
//
// Each repository owns its cache. Two repositories can hold different views
// of the same factory until both refresh.
package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/remote"
	"github.com/randalmurphal/storyforge/internal/storage"
)

// Mode selects which tiers a repository consults.
type Mode int

const (
	// ModeRemote consults the remote API, backed by a store.
	ModeRemote Mode = iota
	// ModeStore uses the durable store only.
	ModeStore
	// ModeMemory uses a throwaway in-memory store and no remote.
	ModeMemory
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeStore:
		return "store"
	case ModeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// WriteResult reports the outcome of a mutation. Applied is true once the
// in-memory state changed. Persisted reports whether the store accepted the
// change. Err is set when either step failed; the in-memory change stays.
type WriteResult struct {
	Applied   bool
	Persisted bool
	Err       error
}

// OK reports whether the change was applied and persisted.
func (r WriteResult) OK() bool {
	return r.Applied && r.Persisted && r.Err == nil
}

func notApplied(err error) WriteResult {
	return WriteResult{Err: err}
}

// Deps are the shared resources repositories are built from.
type Deps struct {
	Mode      Mode
	Store     storage.Store
	Remote    remote.Source
	Publisher events.Publisher
	Logger    *slog.Logger
	Metrics   *metrics.Recorder

	// StoreTimeout and RemoteTimeout bound each call; zero means no bound.
	StoreTimeout  time.Duration
	RemoteTimeout time.Duration

	locks *projectLocks
}

// base is the plumbing shared by every repository.
type base struct {
	name    string
	mode    Mode
	store   storage.Store
	remote  remote.Source
	pub     events.Publisher
	events  *events.PublishHelper
	logger  *slog.Logger
	metrics *metrics.Recorder

	storeTimeout  time.Duration
	remoteTimeout time.Duration

	locks *projectLocks
}

func newBase(name string, d Deps) *base {
	b := &base{
		name:          name,
		mode:          d.Mode,
		store:         d.Store,
		remote:        d.Remote,
		pub:           d.Publisher,
		logger:        d.Logger,
		metrics:       d.Metrics,
		storeTimeout:  d.StoreTimeout,
		remoteTimeout: d.RemoteTimeout,
		locks:         d.locks,
	}
	if b.pub == nil {
		b.pub = events.NewMemoryPublisher()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.locks == nil {
		b.locks = newProjectLocks()
	}
	b.logger = b.logger.With("repository", name)
	b.events = events.NewPublishHelper(b.pub)
	return b
}

// online reports whether the remote tier is consulted.
func (b *base) online() bool {
	return b.mode == ModeRemote && b.remote != nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (b *base) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, b.storeTimeout)
}

func (b *base) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, b.remoteTimeout)
}

// loadStored returns the stored factory for projectID. Missing and
// unreadable factories both come back as nil; the latter is logged.
func (b *base) loadStored(ctx context.Context, projectID string) (*factory.ProjectFactory, error) {
	sctx, cancel := b.storeCtx(ctx)
	defer cancel()

	f, err := b.store.GetByProjectID(sctx, projectID)
	if err != nil {
		if failed := factory.FailedComponents(err); len(failed) > 0 {
			b.logger.Warn("skipping unreadable factory", "project_id", projectID, "components", failed, "error", err)
			b.metrics.SkippedRow()
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// loadAllStored returns every readable stored factory.
func (b *base) loadAllStored(ctx context.Context) ([]*factory.ProjectFactory, error) {
	sctx, cancel := b.storeCtx(ctx)
	defer cancel()
	return b.store.GetAll(sctx)
}

func (b *base) recordRemote(op string, notModified bool, err error) {
	switch {
	case remote.IsNotFound(err):
		b.metrics.RemoteResult(op, metrics.OutcomeNotFound)
	case err != nil:
		b.metrics.RemoteResult(op, metrics.OutcomeFailure)
		b.logger.Warn("remote unavailable, using local data", "operation", op, "error", err)
	case notModified:
		b.metrics.RemoteResult(op, metrics.OutcomeNotModified)
	default:
		b.metrics.RemoteResult(op, metrics.OutcomeData)
	}
}

// fetchDetails asks the remote for one project. notModified is true when the
// caller's copy is current. A project the remote does not know comes back as
// (nil, false, nil) so callers fall through to the store.
func (b *base) fetchDetails(ctx context.Context, id string) (f *factory.ProjectFactory, notModified bool, err error) {
	rctx, cancel := b.remoteCtx(ctx)
	defer cancel()

	res, err := b.remote.GetProjectDetails(rctx, id)
	b.recordRemote(remote.OpProjectDetails, err == nil && res.IsNotModified(), err)
	if remote.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if res.IsNotModified() || res.Value == nil {
		return nil, true, nil
	}
	return res.Value.ToFactory(), false, nil
}

// saveFromRemote writes a remote factory through to the store, keeping the
// stored factory type when there is one. Failures are logged only.
func (b *base) saveFromRemote(ctx context.Context, f *factory.ProjectFactory) {
	unlock := b.locks.lock(f.ProjectID)
	defer unlock()

	sctx, cancel := b.storeCtx(ctx)
	defer cancel()

	ft, ok, err := b.store.TypeOf(sctx, f.ProjectID)
	if err != nil || !ok {
		ft = factory.TypeAPI
	}
	if err := b.store.Save(sctx, f, ft); err != nil {
		b.logger.Warn("persist failed, keeping in-memory state", "project_id", f.ProjectID, "error", err)
		b.metrics.PersistFailure(b.name)
	}
}

// persist runs fn against the store and converts its outcome into a
// WriteResult. The in-memory change has already been applied.
func (b *base) persist(ctx context.Context, projectID string, fn func(context.Context) error) WriteResult {
	sctx, cancel := b.storeCtx(ctx)
	defer cancel()

	if err := fn(sctx); err != nil {
		b.logger.Warn("persist failed, keeping in-memory state", "project_id", projectID, "error", err)
		b.metrics.PersistFailure(b.name)
		b.events.Warning(projectID, "persist failed: "+err.Error())
		return WriteResult{Applied: true, Err: errors.ErrWriteFailed(projectID).WithCause(err)}
	}
	return WriteResult{Applied: true, Persisted: true}
}

// persistFactory loads the latest stored factory, applies mutate, and saves
// it back under its existing factory type.
func (b *base) persistFactory(ctx context.Context, projectID string, mutate func(*factory.ProjectFactory)) WriteResult {
	return b.persist(ctx, projectID, func(ctx context.Context) error {
		unlock := b.locks.lock(projectID)
		defer unlock()

		f, err := b.store.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}
		if f == nil {
			return errors.ErrProjectNotFound(projectID)
		}
		ft, ok, err := b.store.TypeOf(ctx, projectID)
		if err != nil {
			return err
		}
		if !ok {
			ft = f.Type()
		}
		mutate(f)
		return b.store.Save(ctx, f, ft)
	})
}

// projectLocks serializes read-modify-write cycles on one stored factory
// across repositories.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *projectLocks) lock(projectID string) func() {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
