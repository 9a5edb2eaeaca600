// Package storage persists project factories and distribution data.
//
// A factory is stored as one row per project with one JSON blob per
// component, plus denormalized title/description/project type columns that
// are recomputed on every save. Scans skip rows that cannot be decoded.
package storage

import (
	"context"
	"time"

	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
)

// BasicInfo is the cheap list-view projection of a stored factory. It is read
// from denormalized columns only.
type BasicInfo struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"projectId"`
	FactoryType factory.Type      `json:"factoryType"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	ProjectType model.ProjectType `json:"projectType"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// FactoryStore is durable keyed storage of project factories.
// All implementations must be safe for concurrent access.
type FactoryStore interface {
	// Save upserts f under f.ProjectID tagged with factoryType.
	Save(ctx context.Context, f *factory.ProjectFactory, factoryType factory.Type) error
	// GetByProjectID returns nil, nil when no factory is stored for id.
	GetByProjectID(ctx context.Context, id string) (*factory.ProjectFactory, error)
	// TypeOf returns the stored factory type without decoding blobs.
	TypeOf(ctx context.Context, id string) (factory.Type, bool, error)
	// GetAllBasicInfo lists every factory without decoding component blobs.
	GetAllBasicInfo(ctx context.Context) ([]BasicInfo, error)

	GetAll(ctx context.Context) ([]*factory.ProjectFactory, error)
	GetByType(ctx context.Context, factoryType factory.Type) ([]*factory.ProjectFactory, error)
	SearchByTitle(ctx context.Context, substring string) ([]*factory.ProjectFactory, error)
	GetByProjectType(ctx context.Context, projectType model.ProjectType) ([]*factory.ProjectFactory, error)

	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	CountByType(ctx context.Context, factoryType factory.Type) (int, error)
	IsEmpty(ctx context.Context) (bool, error)

	Close() error
}

// DistributionStore persists analytics snapshots, platform connections and
// scheduled posts.
type DistributionStore interface {
	// LatestAnalytics returns nil, nil when the project has no snapshot.
	LatestAnalytics(ctx context.Context, projectID string) (*model.DistributionAnalytics, error)
	SaveAnalytics(ctx context.Context, id string, a model.DistributionAnalytics) error

	SaveConnection(ctx context.Context, c model.PlatformConnection) error
	DeleteConnection(ctx context.Context, projectID string, platform model.Platform) error
	Connections(ctx context.Context, projectID string) ([]model.PlatformConnection, error)

	SaveScheduledPost(ctx context.Context, p model.ScheduledPost) error
	// ScheduledPosts lists a project's posts; an empty status matches all.
	ScheduledPosts(ctx context.Context, projectID string, status model.ScheduleStatus) ([]model.ScheduledPost, error)
	// SetScheduledPostStatus reports whether the post existed.
	SetScheduledPostStatus(ctx context.Context, id string, status model.ScheduleStatus) (bool, error)
}

// Store is a FactoryStore that also holds distribution data.
type Store interface {
	FactoryStore
	DistributionStore
}
