package repository

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/index"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/remote"
	"github.com/randalmurphal/storyforge/internal/storage"
)

const (
	defaultPageLimit   = 100
	defaultConcurrency = 4
)

// ProjectRepository caches project records.
type ProjectRepository struct {
	*base

	writeMu sync.Mutex

	mu       sync.RWMutex
	projects *index.Table[model.Project]
	warm     bool

	group   singleflight.Group
	syncing atomic.Bool

	pageLimit   int
	concurrency int

	onDelete []func(projectID string)
}

// ProjectOption configures a ProjectRepository.
type ProjectOption func(*ProjectRepository)

// WithPageLimit sets how many projects a sync lists.
func WithPageLimit(n int) ProjectOption {
	return func(r *ProjectRepository) {
		if n > 0 {
			r.pageLimit = n
		}
	}
}

// WithSyncConcurrency bounds concurrent detail fetches during sync.
func WithSyncConcurrency(n int) ProjectOption {
	return func(r *ProjectRepository) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewProjectRepository creates a project repository.
func NewProjectRepository(d Deps, opts ...ProjectOption) *ProjectRepository {
	r := &ProjectRepository{
		base: newBase("project", d),
		projects: index.NewTable(
			func(p model.Project) string { return p.ID },
			func(model.Project) string { return "" },
		),
		pageLimit:   defaultPageLimit,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDelete registers fn to run after a project is deleted, so caches keyed
// by that project can drop it. Register hooks before the repository is used.
func (r *ProjectRepository) OnDelete(fn func(projectID string)) {
	r.onDelete = append(r.onDelete, fn)
}

func (r *ProjectRepository) cached(id string) (model.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects.Get(id)
}

// Get returns a project by id. An unknown project is (zero, false, nil). The
// error is non-nil only when the remote failed and no local copy exists.
func (r *ProjectRepository) Get(ctx context.Context, id string) (model.Project, bool, error) {
	if p, ok := r.cached(id); ok {
		r.metrics.CacheLookup(r.name, true)
		return p, true, nil
	}
	r.metrics.CacheLookup(r.name, false)

	v, err, _ := r.group.Do(id, func() (any, error) {
		if p, ok := r.cached(id); ok {
			return &p, nil
		}
		return r.load(ctx, id)
	})
	p, _ := v.(*model.Project)
	if p == nil {
		return model.Project{}, false, err
	}
	return p.Clone(), true, nil
}

// load resolves a cache miss: remote first when online, then the store.
func (r *ProjectRepository) load(ctx context.Context, id string) (*model.Project, error) {
	var remoteErr error
	if r.online() {
		f, notModified, err := r.fetchDetails(ctx, id)
		switch {
		case err != nil:
			remoteErr = err
		case notModified:
			if p, ok := r.cached(id); ok {
				return &p, nil
			}
		case f != nil:
			r.absorbRemote(ctx, f)
			return &f.Project, nil
		}
	}

	f, err := r.loadStored(ctx, id)
	if err != nil {
		if remoteErr != nil {
			return nil, remoteErr
		}
		return nil, err
	}
	if f == nil {
		return nil, remoteErr
	}

	r.mu.Lock()
	if _, ok := r.projects.Get(id); !ok {
		r.projects.Put(f.Project)
	}
	r.mu.Unlock()
	return &f.Project, nil
}

// absorbRemote caches a project fetched from the remote and writes it through.
func (r *ProjectRepository) absorbRemote(ctx context.Context, f *factory.ProjectFactory) {
	r.mu.Lock()
	r.projects.Put(f.Project)
	r.mu.Unlock()

	r.saveFromRemote(ctx, f)
	r.events.Synced(f.ProjectID)
}

// RefreshProject re-fetches one project from the remote, bypassing the
// cache. A not-modified answer leaves the cached project untouched.
func (r *ProjectRepository) RefreshProject(ctx context.Context, id string) (model.Project, bool, error) {
	if !r.online() {
		return r.Get(ctx, id)
	}
	f, notModified, err := r.fetchDetails(ctx, id)
	switch {
	case err != nil:
		if p, ok := r.cached(id); ok {
			return p, true, nil
		}
		return r.Get(ctx, id)
	case notModified, f == nil:
		return r.Get(ctx, id)
	default:
		r.absorbRemote(ctx, f)
		return f.Project.Clone(), true, nil
	}
}

// ensureWarm loads every stored project into the cache once.
func (r *ProjectRepository) ensureWarm(ctx context.Context) error {
	r.mu.RLock()
	warm := r.warm
	r.mu.RUnlock()
	if warm {
		return nil
	}
	_, err, _ := r.group.Do("\x00warm", func() (any, error) {
		factories, err := r.loadAllStored(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, f := range factories {
			if _, ok := r.projects.Get(f.ProjectID); !ok {
				r.projects.Put(f.Project)
			}
		}
		r.warm = true
		return nil, nil
	})
	return err
}

// List returns every known project. It never waits on the remote; use
// Refresh or StartSync to pull remote changes.
func (r *ProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	if err := r.ensureWarm(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects.All(), nil
}

// ListBasicInfo reads the store's cheap projection without decoding blobs.
func (r *ProjectRepository) ListBasicInfo(ctx context.Context) ([]storage.BasicInfo, error) {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	return r.store.GetAllBasicInfo(sctx)
}

func (r *ProjectRepository) filter(ctx context.Context, keep func(model.Project) bool) ([]model.Project, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(all))
	for _, p := range all {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Search matches query case-insensitively against title and description.
func (r *ProjectRepository) Search(ctx context.Context, query string) ([]model.Project, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.Project{}, nil
	}
	return r.filter(ctx, func(p model.Project) bool {
		return strings.Contains(strings.ToLower(p.Title), q) ||
			strings.Contains(strings.ToLower(p.Description), q)
	})
}

// ListByType returns projects of one production type.
func (r *ProjectRepository) ListByType(ctx context.Context, t model.ProjectType) ([]model.Project, error) {
	return r.filter(ctx, func(p model.Project) bool { return p.Type == t })
}

// ListByStatus returns projects in one lifecycle state.
func (r *ProjectRepository) ListByStatus(ctx context.Context, s model.ProjectStatus) ([]model.Project, error) {
	return r.filter(ctx, func(p model.Project) bool { return p.Status == s })
}

// ListByPhase returns projects in one production phase.
func (r *ProjectRepository) ListByPhase(ctx context.Context, ph model.ProductionPhase) ([]model.Project, error) {
	return r.filter(ctx, func(p model.Project) bool { return p.Phase == ph })
}

// Create adds a project with an empty factory tagged as user content. An
// explicit id that is already cached or stored is rejected with
// PROJECT_EXISTS; use Update to change an existing project.
func (r *ProjectRepository) Create(ctx context.Context, p model.Project) (model.Project, WriteResult) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if r.exists(ctx, p.ID) {
		return model.Project{}, notApplied(errors.ErrProjectExists(p.ID))
	}
	if p.Status == "" {
		p.Status = model.StatusPlanning
	}
	if p.Phase == "" {
		p.Phase = model.PhaseDevelopment
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	r.mu.Lock()
	r.projects.Put(p)
	r.mu.Unlock()

	f := factory.NewEmpty(p)
	res := r.persist(ctx, p.ID, func(ctx context.Context) error {
		unlock := r.locks.lock(p.ID)
		defer unlock()
		return r.store.Save(ctx, f, factory.TypeUser)
	})
	r.events.ProjectChanged(events.EventProjectCreated, p.ID, "create")
	return p.Clone(), res
}

// exists reports whether id is cached or stored. A store that cannot answer
// counts as not stored; the save that follows reports the store problem.
func (r *ProjectRepository) exists(ctx context.Context, id string) bool {
	if _, ok := r.cached(id); ok {
		return true
	}
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	_, ok, err := r.store.TypeOf(sctx, id)
	if err != nil {
		r.logger.Warn("existence check failed", "project_id", id, "error", err)
		return false
	}
	return ok
}

// Update replaces a known project. Denormalized store columns follow the
// new title, description and type.
func (r *ProjectRepository) Update(ctx context.Context, p model.Project) (model.Project, WriteResult) {
	prev, ok, err := r.Get(ctx, p.ID)
	if !ok {
		if err == nil {
			err = errors.ErrProjectNotFound(p.ID)
		}
		return model.Project{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = prev.CreatedAt
	}
	p.UpdatedAt = time.Now().UTC()
	r.mu.Lock()
	r.projects.Put(p)
	r.mu.Unlock()

	res := r.persistFactory(ctx, p.ID, func(f *factory.ProjectFactory) {
		f.Project = p.Clone()
	})
	r.events.ProjectChanged(events.EventProjectUpdated, p.ID, "update")
	return p.Clone(), res
}

// Delete removes a project and its whole factory. Registered OnDelete hooks
// run even when the store delete fails, since the cached project is gone.
func (r *ProjectRepository) Delete(ctx context.Context, id string) WriteResult {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.projects.Delete(id)
	r.mu.Unlock()

	res := r.persist(ctx, id, func(ctx context.Context) error {
		unlock := r.locks.lock(id)
		defer unlock()
		return r.store.Delete(ctx, id)
	})
	for _, fn := range r.onDelete {
		fn(id)
	}
	r.events.ProjectChanged(events.EventProjectDeleted, id, "delete")
	return res
}

// TeamMembers lists a project's team.
func (r *ProjectRepository) TeamMembers(ctx context.Context, projectID string) ([]model.TeamMember, error) {
	p, ok, err := r.Get(ctx, projectID)
	if !ok {
		return []model.TeamMember{}, err
	}
	if p.Team == nil {
		return []model.TeamMember{}, nil
	}
	return p.Team, nil
}

// AddTeamMember adds m to the team, replacing a member with the same id.
func (r *ProjectRepository) AddTeamMember(ctx context.Context, projectID string, m model.TeamMember) (model.TeamMember, WriteResult) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	res := r.mutateProject(ctx, projectID, func(p *model.Project) {
		for i := range p.Team {
			if p.Team[i].ID == m.ID {
				p.Team[i] = m
				return
			}
		}
		p.Team = append(p.Team, m)
	})
	return m, res
}

// RemoveTeamMember drops a member from the team.
func (r *ProjectRepository) RemoveTeamMember(ctx context.Context, projectID, memberID string) WriteResult {
	return r.mutateProject(ctx, projectID, func(p *model.Project) {
		kept := p.Team[:0]
		for _, m := range p.Team {
			if m.ID != memberID {
				kept = append(kept, m)
			}
		}
		p.Team = kept
	})
}

func (r *ProjectRepository) mutateProject(ctx context.Context, projectID string, fn func(*model.Project)) WriteResult {
	if _, ok, err := r.Get(ctx, projectID); !ok {
		if err == nil {
			err = errors.ErrProjectNotFound(projectID)
		}
		return notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	p, ok := r.projects.Get(projectID)
	if !ok {
		r.mu.Unlock()
		return notApplied(errors.ErrProjectNotFound(projectID))
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	r.projects.Put(p)
	r.mu.Unlock()

	res := r.persistFactory(ctx, projectID, func(f *factory.ProjectFactory) {
		f.Project = p.Clone()
	})
	r.events.ProjectChanged(events.EventProjectUpdated, projectID, "update")
	return res
}

// Observe streams the project: now, then after each change. A nil value
// means the project does not exist.
func (r *ProjectRepository) Observe(ctx context.Context, id string) <-chan *model.Project {
	return observe(ctx, r.pub, []string{events.ProjectTopic(id)}, func(ctx context.Context) *model.Project {
		p, ok, _ := r.Get(ctx, id)
		if !ok {
			return nil
		}
		return &p
	})
}

// ObserveAll streams the project list after every change to any project.
func (r *ProjectRepository) ObserveAll(ctx context.Context) <-chan []model.Project {
	return observe(ctx, r.pub, []string{events.AllProjectsTopic}, func(ctx context.Context) []model.Project {
		all, err := r.List(ctx)
		if err != nil {
			r.logger.Warn("observe list failed", "error", err)
		}
		return all
	})
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	Stored          int  `json:"stored"`
	Listed          int  `json:"listed"`
	Updated         int  `json:"updated"`
	Unchanged       int  `json:"unchanged"`
	Failed          int  `json:"failed"`
	ListNotModified bool `json:"listNotModified"`
	Offline         bool `json:"offline"`
}

// Refresh rebuilds the cache from the store, then (online) lists the remote
// and fetches every listed project's details. Per-project failures are
// counted, not returned. Rebuilding drops in-memory changes that never
// reached the store.
func (r *ProjectRepository) Refresh(ctx context.Context) (SyncReport, error) {
	var rep SyncReport

	factories, err := r.loadAllStored(ctx)
	if err != nil {
		return rep, err
	}
	r.mu.Lock()
	r.projects.Reset()
	for _, f := range factories {
		r.projects.Put(f.Project)
	}
	r.warm = true
	r.mu.Unlock()
	rep.Stored = len(factories)

	if !r.online() {
		rep.Offline = true
		return rep, nil
	}

	rctx, cancel := r.remoteCtx(ctx)
	list, err := r.remote.ListProjects(rctx, r.pageLimit)
	cancel()
	r.recordRemote(remote.OpListProjects, err == nil && list.IsNotModified(), err)
	if err != nil {
		return rep, err
	}
	if list.IsNotModified() {
		rep.ListNotModified = true
		return rep, nil
	}
	rep.Listed = len(list.Value)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, s := range list.Value {
		g.Go(func() error {
			f, notModified, err := r.fetchDetails(ctx, s.ID)
			if f != nil {
				r.absorbRemote(ctx, f)
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil, f == nil && !notModified:
				rep.Failed++
			case notModified:
				rep.Unchanged++
			default:
				rep.Updated++
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("sync complete", "stored", rep.Stored, "listed", rep.Listed,
		"updated", rep.Updated, "unchanged", rep.Unchanged, "failed", rep.Failed)
	return rep, nil
}

// StartSync runs Refresh in the background. Readers are never blocked; the
// result becomes visible through the cache and Observe streams. It returns
// nil if a sync is already running.
func (r *ProjectRepository) StartSync(ctx context.Context) <-chan SyncReport {
	if !r.syncing.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan SyncReport, 1)
	go func() {
		defer r.syncing.Store(false)
		defer close(done)
		rep, err := r.Refresh(ctx)
		if err != nil {
			r.logger.Warn("background sync failed", "error", err)
			r.events.Warning("", "sync failed: "+err.Error())
		}
		done <- rep
	}()
	return done
}
