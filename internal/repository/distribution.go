package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/index"
	"github.com/randalmurphal/storyforge/internal/model"
)

// DistributionRepository caches per-project analytics, platform connections
// and scheduled posts. Distribution data lives beside the factories in the
// store and never comes from the remote.
type DistributionRepository struct {
	*base

	writeMu sync.Mutex

	mu          sync.RWMutex
	analytics   map[string]model.DistributionAnalytics // project -> latest snapshot
	connections *index.Table[model.PlatformConnection]
	posts       *index.Table[model.ScheduledPost]
	loaded      map[string]bool

	group singleflight.Group
}

// NewDistributionRepository creates a distribution repository.
func NewDistributionRepository(d Deps) *DistributionRepository {
	return &DistributionRepository{
		base:      newBase("distribution", d),
		analytics: make(map[string]model.DistributionAnalytics),
		connections: index.NewTable(
			func(c model.PlatformConnection) string { return c.ID },
			func(c model.PlatformConnection) string { return c.ProjectID },
		),
		posts: index.NewTable(
			func(p model.ScheduledPost) string { return p.ID },
			func(p model.ScheduledPost) string { return p.ProjectID },
		),
		loaded: make(map[string]bool),
	}
}

// dropProject forgets a deleted project's distribution data. The store
// removes the rows together with the factory.
func (r *DistributionRepository) dropProject(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.analytics, projectID)
	r.connections.DropOwner(projectID)
	r.posts.DropOwner(projectID)
	delete(r.loaded, projectID)
}

// ConnectionID is the storage id of a project's connection to a platform.
func ConnectionID(projectID string, p model.Platform) string {
	return projectID + "_" + string(p)
}

func (r *DistributionRepository) ensure(ctx context.Context, projectID string) error {
	r.mu.RLock()
	ok := r.loaded[projectID]
	r.mu.RUnlock()
	if ok {
		r.metrics.CacheLookup(r.name, true)
		return nil
	}
	r.metrics.CacheLookup(r.name, false)

	_, err, _ := r.group.Do(projectID, func() (any, error) {
		sctx, cancel := r.storeCtx(ctx)
		defer cancel()

		a, err := r.store.LatestAnalytics(sctx, projectID)
		if err != nil {
			return nil, err
		}
		conns, err := r.store.Connections(sctx, projectID)
		if err != nil {
			return nil, err
		}
		posts, err := r.store.ScheduledPosts(sctx, projectID, "")
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.loaded[projectID] {
			return nil, nil
		}
		if a != nil {
			r.analytics[projectID] = a.Clone()
		}
		r.connections.ReplaceOwner(projectID, conns)
		r.posts.ReplaceOwner(projectID, posts)
		r.loaded[projectID] = true
		return nil, nil
	})
	return err
}

// GetAnalytics returns the latest analytics snapshot, or nil when there is none.
func (r *DistributionRepository) GetAnalytics(ctx context.Context, projectID string) (*model.DistributionAnalytics, error) {
	if err := r.ensure(ctx, projectID); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analytics[projectID]
	if !ok {
		return nil, nil
	}
	out := a.Clone()
	return &out, nil
}

// UpdateAnalytics records a new snapshot. Snapshots are appended, never
// overwritten.
func (r *DistributionRepository) UpdateAnalytics(ctx context.Context, a model.DistributionAnalytics) (model.DistributionAnalytics, WriteResult) {
	if a.ProjectID == "" {
		return model.DistributionAnalytics{}, notApplied(errors.ErrProjectNotFound(""))
	}
	if err := r.ensure(ctx, a.ProjectID); err != nil {
		return model.DistributionAnalytics{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = now
	}
	id := fmt.Sprintf("%s_%d", a.ProjectID, now.UnixMilli())

	r.mu.Lock()
	r.analytics[a.ProjectID] = a.Clone()
	r.mu.Unlock()

	res := r.persist(ctx, a.ProjectID, func(ctx context.Context) error {
		return r.store.SaveAnalytics(ctx, id, a)
	})
	r.events.DistributionChanged(a.ProjectID, "analytics", id, "create")
	return a.Clone(), res
}

// ConnectPlatform links a project to c.Platform and marks the link active.
// Reconnecting keeps the original creation time.
func (r *DistributionRepository) ConnectPlatform(ctx context.Context, c model.PlatformConnection) (model.PlatformConnection, WriteResult) {
	if _, ok := model.ParsePlatform(string(c.Platform)); !ok || c.ProjectID == "" {
		return model.PlatformConnection{}, notApplied(errors.ErrInvalidReference("connection", c.ProjectID, string(c.Platform)))
	}
	if err := r.ensure(ctx, c.ProjectID); err != nil {
		return model.PlatformConnection{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	c.ID = ConnectionID(c.ProjectID, c.Platform)
	c.Status = model.ConnectionActive
	r.mu.Lock()
	if prev, ok := r.connections.Get(c.ID); ok && c.CreatedAt.IsZero() {
		c.CreatedAt = prev.CreatedAt
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.connections.Put(c)
	r.mu.Unlock()

	res := r.persist(ctx, c.ProjectID, func(ctx context.Context) error {
		return r.store.SaveConnection(ctx, c)
	})
	r.events.DistributionChanged(c.ProjectID, "connection", c.ID, "connect")
	return c.Clone(), res
}

// DisconnectPlatform removes a project's link to a platform.
func (r *DistributionRepository) DisconnectPlatform(ctx context.Context, projectID string, p model.Platform) WriteResult {
	if err := r.ensure(ctx, projectID); err != nil {
		return notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	id := ConnectionID(projectID, p)
	r.mu.Lock()
	found := r.connections.Delete(id)
	r.mu.Unlock()
	if !found {
		return notApplied(errors.ErrEntityNotFound("connection", id))
	}

	res := r.persist(ctx, projectID, func(ctx context.Context) error {
		return r.store.DeleteConnection(ctx, projectID, p)
	})
	r.events.DistributionChanged(projectID, "connection", id, "disconnect")
	return res
}

// Connections returns every connection of a project, whatever its status.
func (r *DistributionRepository) Connections(ctx context.Context, projectID string) ([]model.PlatformConnection, error) {
	if err := r.ensure(ctx, projectID); err != nil {
		return []model.PlatformConnection{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connections.ByOwner(projectID), nil
}

// ConnectedPlatformIDs returns the platforms with an active connection.
func (r *DistributionRepository) ConnectedPlatformIDs(ctx context.Context, projectID string) ([]model.Platform, error) {
	conns, err := r.Connections(ctx, projectID)
	if err != nil {
		return []model.Platform{}, err
	}
	out := []model.Platform{}
	for _, c := range conns {
		if c.Status == model.ConnectionActive {
			out = append(out, c.Platform)
		}
	}
	return out, nil
}

// ConnectionInfo returns a project's connection to one platform.
func (r *DistributionRepository) ConnectionInfo(ctx context.Context, projectID string, p model.Platform) (model.PlatformConnection, bool, error) {
	if err := r.ensure(ctx, projectID); err != nil {
		return model.PlatformConnection{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections.Get(ConnectionID(projectID, p))
	return c, ok, nil
}

// SchedulePublish queues a post.
func (r *DistributionRepository) SchedulePublish(ctx context.Context, p model.ScheduledPost) (model.ScheduledPost, WriteResult) {
	if _, ok := model.ParsePlatform(string(p.Platform)); !ok || p.ProjectID == "" {
		return model.ScheduledPost{}, notApplied(errors.ErrInvalidReference("post", p.ProjectID, string(p.Platform)))
	}
	if err := r.ensure(ctx, p.ProjectID); err != nil {
		return model.ScheduledPost{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = model.ScheduleScheduled
	p.CreatedAt = now
	p.UpdatedAt = now

	r.mu.Lock()
	r.posts.Put(p)
	r.mu.Unlock()

	res := r.persist(ctx, p.ProjectID, func(ctx context.Context) error {
		return r.store.SaveScheduledPost(ctx, p)
	})
	r.events.DistributionChanged(p.ProjectID, "post", p.ID, "schedule")
	return p.Clone(), res
}

// ScheduledPosts lists a project's posts by scheduled time. An empty status
// matches every post.
func (r *DistributionRepository) ScheduledPosts(ctx context.Context, projectID string, status model.ScheduleStatus) ([]model.ScheduledPost, error) {
	if err := r.ensure(ctx, projectID); err != nil {
		return []model.ScheduledPost{}, err
	}
	r.mu.RLock()
	all := r.posts.ByOwner(projectID)
	r.mu.RUnlock()

	out := all[:0]
	for _, p := range all {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out, nil
}

// CancelScheduledPost marks a post cancelled. Posts of projects not yet
// cached are cancelled in the store directly.
func (r *DistributionRepository) CancelScheduledPost(ctx context.Context, id string) WriteResult {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	p, cached := r.posts.Get(id)
	if cached {
		p.Status = model.ScheduleCancelled
		p.UpdatedAt = time.Now().UTC()
		r.posts.Put(p)
	}
	r.mu.Unlock()

	var found bool
	res := r.persist(ctx, p.ProjectID, func(ctx context.Context) error {
		var err error
		found, err = r.store.SetScheduledPostStatus(ctx, id, model.ScheduleCancelled)
		return err
	})
	if !cached && !found {
		if res.Err != nil {
			return notApplied(res.Err)
		}
		return notApplied(errors.ErrEntityNotFound("post", id))
	}
	r.events.DistributionChanged(p.ProjectID, "post", id, "cancel")
	return res
}

// ObserveAnalytics streams the latest snapshot after each distribution
// change. A nil value means no snapshot exists.
func (r *DistributionRepository) ObserveAnalytics(ctx context.Context, projectID string) <-chan *model.DistributionAnalytics {
	return observe(ctx, r.pub, []string{events.DistributionTopic(projectID)}, func(ctx context.Context) *model.DistributionAnalytics {
		a, err := r.GetAnalytics(ctx, projectID)
		if err != nil {
			r.logger.Warn("observe analytics failed", "project_id", projectID, "error", err)
		}
		return a
	})
}

// ObserveConnectedPlatforms streams the active connections after each
// distribution change.
func (r *DistributionRepository) ObserveConnectedPlatforms(ctx context.Context, projectID string) <-chan []model.PlatformConnection {
	return observe(ctx, r.pub, []string{events.DistributionTopic(projectID)}, func(ctx context.Context) []model.PlatformConnection {
		conns, err := r.Connections(ctx, projectID)
		if err != nil {
			r.logger.Warn("observe connections failed", "project_id", projectID, "error", err)
		}
		out := []model.PlatformConnection{}
		for _, c := range conns {
			if c.Status == model.ConnectionActive {
				out = append(out, c)
			}
		}
		return out
	})
}
