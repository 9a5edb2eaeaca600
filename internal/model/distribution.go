package model

import (
	"maps"
	"slices"
	"time"
)

// Platform is a distribution or social platform.
type Platform string

const (
	PlatformYouTube   Platform = "YOUTUBE"
	PlatformTikTok    Platform = "TIKTOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformVimeo     Platform = "VIMEO"
	PlatformX         Platform = "X"
)

// AllPlatforms lists every supported platform in display order.
func AllPlatforms() []Platform {
	return []Platform{PlatformYouTube, PlatformTikTok, PlatformInstagram, PlatformVimeo, PlatformX}
}

// ParsePlatform returns the platform for a case-sensitive name.
func ParsePlatform(s string) (Platform, bool) {
	for _, p := range AllPlatforms() {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// PlatformMetrics are per-platform figures inside an analytics snapshot.
type PlatformMetrics struct {
	Views      int64   `json:"views"`
	Revenue    float64 `json:"revenue"`
	Engagement float64 `json:"engagement"`
}

// DistributionAnalytics is a point-in-time analytics snapshot for a project.
type DistributionAnalytics struct {
	ProjectID         string                       `json:"projectId"`
	PeriodStart       time.Time                    `json:"periodStart"`
	PeriodEnd         time.Time                    `json:"periodEnd"`
	GeneratedAt       time.Time                    `json:"generatedAt"`
	TotalRevenue      float64                      `json:"totalRevenue"`
	TotalViews        int64                        `json:"totalViews"`
	AverageEngagement float64                      `json:"averageEngagement"`
	ByPlatform        map[Platform]PlatformMetrics `json:"byPlatform,omitempty"`
}

// Clone returns a deep copy of the analytics snapshot.
func (a DistributionAnalytics) Clone() DistributionAnalytics {
	out := a
	out.ByPlatform = maps.Clone(a.ByPlatform)
	return out
}

// ConnectionStatus is the state of a platform connection.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "ACTIVE"
	ConnectionExpired ConnectionStatus = "EXPIRED"
	ConnectionRevoked ConnectionStatus = "REVOKED"
)

// PlatformConnection is a project's account link to a platform.
type PlatformConnection struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"projectId"`
	Platform    Platform          `json:"platform"`
	AccountName string            `json:"accountName,omitempty"`
	AccountID   string            `json:"accountId,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Status      ConnectionStatus  `json:"status"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	LastSyncAt  *time.Time        `json:"lastSyncAt,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of the connection.
func (c PlatformConnection) Clone() PlatformConnection {
	out := c
	out.Scopes = slices.Clone(c.Scopes)
	out.Metadata = maps.Clone(c.Metadata)
	return out
}

// ScheduleStatus is the state of a scheduled post.
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "SCHEDULED"
	SchedulePublished ScheduleStatus = "PUBLISHED"
	ScheduleFailed    ScheduleStatus = "FAILED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

// PublishRequest describes what to publish.
type PublishRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	MediaURL    string   `json:"mediaUrl,omitempty"`
}

// ScheduledPost is a publish request queued for a future time.
type ScheduledPost struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	Platform      Platform       `json:"platform"`
	ContentID     string         `json:"contentId"`
	ScheduledTime time.Time      `json:"scheduledTime"`
	Request       PublishRequest `json:"request"`
	Status        ScheduleStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of the scheduled post.
func (p ScheduledPost) Clone() ScheduledPost {
	out := p
	out.Request.Tags = slices.Clone(p.Request.Tags)
	return out
}
