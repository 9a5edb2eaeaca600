package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/storyforge/internal/db"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/model"
)

// DatabaseStore keeps factories and distribution data in SQLite or
// PostgreSQL. Writes are serialized by a mutex; reads run concurrently.
type DatabaseStore struct {
	db      *db.FactoryDB
	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// Option configures a DatabaseStore.
type Option func(*DatabaseStore)

// WithLogger sets the logger used for skipped-row warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *DatabaseStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the recorder that counts skipped rows.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *DatabaseStore) { s.metrics = r }
}

// NewDatabaseStore wraps an open factory database. The store owns fdb and
// closes it on Close.
func NewDatabaseStore(fdb *db.FactoryDB, opts ...Option) *DatabaseStore {
	s := &DatabaseStore{db: fdb, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryStore opens a private in-memory SQLite store.
func NewInMemoryStore(ctx context.Context, opts ...Option) (*DatabaseStore, error) {
	fdb, err := db.OpenFactoryInMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return NewDatabaseStore(fdb, opts...), nil
}

// DB returns the underlying database.
func (s *DatabaseStore) DB() *db.FactoryDB {
	return s.db
}

// Save serializes f component-wise and upserts it. Title, description and
// project type are always recomputed from f.Project.
func (s *DatabaseStore) Save(ctx context.Context, f *factory.ProjectFactory, factoryType factory.Type) error {
	if f == nil || f.ProjectID == "" {
		return fmt.Errorf("save factory: missing project id")
	}
	c, err := factory.Serialize(f)
	if err != nil {
		return fmt.Errorf("serialize factory %s: %w", f.ProjectID, err)
	}
	row := &db.FactoryRow{
		ProjectID:   f.ProjectID,
		FactoryType: string(factoryType),
		Title:       f.Project.Title,
		Description: f.Project.Description,
		ProjectType: string(f.Project.Type),
		Project:     c.Project,
		Characters:  c.Characters,
		Stories:     c.Stories,
		Scripts:     c.Scripts,
		Storyboards: c.Storyboards,
		Bible:       c.Bible,
		Publishing:  c.Publishing,
		Metadata:    c.Metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SaveFactoryRow(ctx, row)
}

// GetByProjectID loads and fully decodes one factory. A stored factory that
// cannot be decoded is reported as an error.
func (s *DatabaseStore) GetByProjectID(ctx context.Context, id string) (*factory.ProjectFactory, error) {
	s.mu.RLock()
	row, err := s.db.GetFactoryRow(ctx, id)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return decodeRow(row)
}

// TypeOf returns the factory type a project is stored under.
func (s *DatabaseStore) TypeOf(ctx context.Context, id string) (factory.Type, bool, error) {
	s.mu.RLock()
	ft, ok, err := s.db.FactoryType(ctx, id)
	s.mu.RUnlock()
	if err != nil || !ok {
		return "", false, err
	}
	return factory.ParseType(ft), true, nil
}

// GetAllBasicInfo reads the denormalized columns only.
func (s *DatabaseStore) GetAllBasicInfo(ctx context.Context) ([]BasicInfo, error) {
	s.mu.RLock()
	rows, err := s.db.ListBasicInfo(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]BasicInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, BasicInfo{
			ID:          r.ID,
			ProjectID:   r.ProjectID,
			FactoryType: factory.ParseType(r.FactoryType),
			Title:       r.Title,
			Description: r.Description,
			ProjectType: model.ProjectType(r.ProjectType),
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out, nil
}

// GetAll decodes every stored factory, skipping unreadable ones.
func (s *DatabaseStore) GetAll(ctx context.Context) ([]*factory.ProjectFactory, error) {
	return s.scan(ctx, db.FactoryFilter{})
}

// GetByType decodes every factory tagged factoryType.
func (s *DatabaseStore) GetByType(ctx context.Context, factoryType factory.Type) ([]*factory.ProjectFactory, error) {
	return s.scan(ctx, db.FactoryFilter{FactoryType: string(factoryType)})
}

// SearchByTitle decodes every factory whose title contains substring,
// ignoring case.
func (s *DatabaseStore) SearchByTitle(ctx context.Context, substring string) ([]*factory.ProjectFactory, error) {
	if substring == "" {
		return nil, nil
	}
	return s.scan(ctx, db.FactoryFilter{TitleContains: substring})
}

// GetByProjectType decodes every factory whose project has type projectType.
func (s *DatabaseStore) GetByProjectType(ctx context.Context, projectType model.ProjectType) ([]*factory.ProjectFactory, error) {
	return s.scan(ctx, db.FactoryFilter{ProjectType: string(projectType)})
}

func (s *DatabaseStore) scan(ctx context.Context, filter db.FactoryFilter) ([]*factory.ProjectFactory, error) {
	s.mu.RLock()
	rows, err := s.db.ListFactoryRows(ctx, filter)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]*factory.ProjectFactory, 0, len(rows))
	for _, row := range rows {
		f, err := decodeRow(row)
		if err != nil {
			s.logger.Warn("skipping unreadable factory",
				"project_id", row.ProjectID,
				"components", factory.FailedComponents(err),
				"error", err)
			s.metrics.SkippedRow()
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// Delete removes one factory.
func (s *DatabaseStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DeleteFactory(ctx, id)
}

// DeleteAll removes every factory.
func (s *DatabaseStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DeleteAllFactories(ctx)
}

// Count returns the number of stored factories.
func (s *DatabaseStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.CountFactories(ctx, "")
}

// CountByType returns the number of factories tagged factoryType.
func (s *DatabaseStore) CountByType(ctx context.Context, factoryType factory.Type) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.CountFactories(ctx, string(factoryType))
}

// IsEmpty reports whether no factory is stored.
func (s *DatabaseStore) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Close closes the database.
func (s *DatabaseStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func decodeRow(row *db.FactoryRow) (*factory.ProjectFactory, error) {
	return factory.Deserialize(row.ProjectID, factory.Components{
		Project:     row.Project,
		Characters:  row.Characters,
		Stories:     row.Stories,
		Scripts:     row.Scripts,
		Storyboards: row.Storyboards,
		Bible:       row.Bible,
		Publishing:  row.Publishing,
		Metadata:    row.Metadata,
	})
}

// --- distribution ---

// LatestAnalytics returns the newest analytics snapshot for a project.
func (s *DatabaseStore) LatestAnalytics(ctx context.Context, projectID string) (*model.DistributionAnalytics, error) {
	s.mu.RLock()
	row, err := s.db.LatestAnalytics(ctx, projectID)
	s.mu.RUnlock()
	if err != nil || row == nil {
		return nil, err
	}
	var a model.DistributionAnalytics
	if err := json.Unmarshal(row.Data, &a); err != nil {
		return nil, fmt.Errorf("decode analytics %s: %w", row.ID, err)
	}
	return &a, nil
}

// SaveAnalytics appends a snapshot under id.
func (s *DatabaseStore) SaveAnalytics(ctx context.Context, id string, a model.DistributionAnalytics) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analytics %s: %w", id, err)
	}
	row := &db.AnalyticsRow{
		ID:                id,
		ProjectID:         a.ProjectID,
		Data:              data,
		GeneratedAt:       a.GeneratedAt,
		TotalRevenue:      a.TotalRevenue,
		TotalViews:        a.TotalViews,
		AverageEngagement: a.AverageEngagement,
	}
	if !a.PeriodStart.IsZero() {
		row.PeriodStart = &a.PeriodStart
	}
	if !a.PeriodEnd.IsZero() {
		row.PeriodEnd = &a.PeriodEnd
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.InsertAnalytics(ctx, row)
}

// SaveConnection upserts a platform connection.
func (s *DatabaseStore) SaveConnection(ctx context.Context, c model.PlatformConnection) error {
	row := &db.ConnectionRow{
		ID:          c.ID,
		ProjectID:   c.ProjectID,
		Platform:    string(c.Platform),
		AccountName: c.AccountName,
		AccountID:   c.AccountID,
		Status:      string(c.Status),
		ExpiresAt:   c.ExpiresAt,
		LastSyncAt:  c.LastSyncAt,
		CreatedAt:   c.CreatedAt,
	}
	var err error
	if row.Scopes, err = encodeIfSet(len(c.Scopes), c.Scopes); err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	if row.Metadata, err = encodeIfSet(len(c.Metadata), c.Metadata); err != nil {
		return fmt.Errorf("encode connection metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.UpsertConnection(ctx, row)
}

// DeleteConnection removes a project's connection to platform.
func (s *DatabaseStore) DeleteConnection(ctx context.Context, projectID string, platform model.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DeleteConnection(ctx, projectID, string(platform))
}

// Connections lists a project's platform connections.
func (s *DatabaseStore) Connections(ctx context.Context, projectID string) ([]model.PlatformConnection, error) {
	s.mu.RLock()
	rows, err := s.db.ListConnections(ctx, projectID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]model.PlatformConnection, 0, len(rows))
	for _, r := range rows {
		c := model.PlatformConnection{
			ID:          r.ID,
			ProjectID:   r.ProjectID,
			Platform:    model.Platform(r.Platform),
			AccountName: r.AccountName,
			AccountID:   r.AccountID,
			Status:      model.ConnectionStatus(r.Status),
			ExpiresAt:   r.ExpiresAt,
			LastSyncAt:  r.LastSyncAt,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		}
		if r.Scopes != nil {
			if err := json.Unmarshal(r.Scopes, &c.Scopes); err != nil {
				return nil, fmt.Errorf("decode scopes for %s: %w", r.ID, err)
			}
		}
		if r.Metadata != nil {
			if err := json.Unmarshal(r.Metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode connection metadata for %s: %w", r.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// SaveScheduledPost stores a new scheduled post.
func (s *DatabaseStore) SaveScheduledPost(ctx context.Context, p model.ScheduledPost) error {
	req, err := json.Marshal(p.Request)
	if err != nil {
		return fmt.Errorf("encode publish request: %w", err)
	}
	row := &db.ScheduledPostRow{
		ID:            p.ID,
		ProjectID:     p.ProjectID,
		Platform:      string(p.Platform),
		ContentID:     p.ContentID,
		ScheduledTime: p.ScheduledTime,
		Request:       req,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.InsertScheduledPost(ctx, row)
}

// ScheduledPosts lists a project's posts in scheduled order.
func (s *DatabaseStore) ScheduledPosts(ctx context.Context, projectID string, status model.ScheduleStatus) ([]model.ScheduledPost, error) {
	s.mu.RLock()
	rows, err := s.db.ListScheduledPosts(ctx, projectID, string(status))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]model.ScheduledPost, 0, len(rows))
	for _, r := range rows {
		p := model.ScheduledPost{
			ID:            r.ID,
			ProjectID:     r.ProjectID,
			Platform:      model.Platform(r.Platform),
			ContentID:     r.ContentID,
			ScheduledTime: r.ScheduledTime,
			Status:        model.ScheduleStatus(r.Status),
			CreatedAt:     r.CreatedAt,
			UpdatedAt:     r.UpdatedAt,
		}
		if err := json.Unmarshal(r.Request, &p.Request); err != nil {
			return nil, fmt.Errorf("decode publish request for %s: %w", r.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// SetScheduledPostStatus updates a post's status.
func (s *DatabaseStore) SetScheduledPostStatus(ctx context.Context, id string, status model.ScheduleStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.UpdateScheduledPostStatus(ctx, id, string(status))
}

func encodeIfSet(n int, v any) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

var _ Store = (*DatabaseStore)(nil)
