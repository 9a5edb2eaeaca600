package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AnalyticsRow is one stored analytics snapshot. Data holds the full snapshot
// as JSON; the scalar columns exist for ordering and ad-hoc queries.
type AnalyticsRow struct {
	ID                string
	ProjectID         string
	Data              []byte
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	GeneratedAt       time.Time
	TotalRevenue      float64
	TotalViews        int64
	AverageEngagement float64
}

// ConnectionRow is one stored platform connection.
type ConnectionRow struct {
	ID          string
	ProjectID   string
	Platform    string
	AccountName string
	AccountID   string
	Scopes      []byte
	Status      string
	ExpiresAt   *time.Time
	LastSyncAt  *time.Time
	Metadata    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduledPostRow is one stored scheduled post.
type ScheduledPostRow struct {
	ID            string
	ProjectID     string
	Platform      string
	ContentID     string
	ScheduledTime time.Time
	Request       []byte
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InsertAnalytics appends an analytics snapshot.
func (f *FactoryDB) InsertAnalytics(ctx context.Context, r *AnalyticsRow) error {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	_, err := f.ExecContext(ctx, `
		INSERT INTO distribution_analytics
			(id, project_id, analytics_json, period_start, period_end, generated_at,
			 total_revenue, total_views, average_engagement)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, string(r.Data), nullTime(r.PeriodStart), nullTime(r.PeriodEnd),
		formatTime(r.GeneratedAt), r.TotalRevenue, r.TotalViews, r.AverageEngagement,
	)
	if err != nil {
		return fmt.Errorf("insert analytics %s: %w", r.ID, err)
	}
	return nil
}

// LatestAnalytics returns the most recently generated snapshot for a project,
// or nil if the project has none.
func (f *FactoryDB) LatestAnalytics(ctx context.Context, projectID string) (*AnalyticsRow, error) {
	row := f.QueryRowContext(ctx, `
		SELECT id, project_id, analytics_json, period_start, period_end, generated_at,
			total_revenue, total_views, average_engagement
		FROM distribution_analytics
		WHERE project_id = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT 1`, projectID)

	var r AnalyticsRow
	var data string
	var start, end sql.NullString
	var generated string
	err := row.Scan(&r.ID, &r.ProjectID, &data, &start, &end, &generated,
		&r.TotalRevenue, &r.TotalViews, &r.AverageEngagement)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics for %s: %w", projectID, err)
	}
	r.Data = []byte(data)
	r.PeriodStart = timePtr(start)
	r.PeriodEnd = timePtr(end)
	r.GeneratedAt = parseTime(generated)
	return &r, nil
}

// UpsertConnection saves a connection keyed by (project, platform). Reconnecting
// keeps the original created_at.
func (f *FactoryDB) UpsertConnection(ctx context.Context, r *ConnectionRow) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := f.ExecContext(ctx, `
		INSERT INTO platform_connection
			(id, project_id, platform, account_name, account_id, scopes, connection_status,
			 expires_at, last_sync_at, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, platform) DO UPDATE SET
			account_name = excluded.account_name,
			account_id = excluded.account_id,
			scopes = excluded.scopes,
			connection_status = excluded.connection_status,
			expires_at = excluded.expires_at,
			last_sync_at = excluded.last_sync_at,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at`,
		r.ID, r.ProjectID, r.Platform, r.AccountName, r.AccountID, nullBlob(r.Scopes), r.Status,
		nullTime(r.ExpiresAt), nullTime(r.LastSyncAt), nullBlob(r.Metadata),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert connection %s/%s: %w", r.ProjectID, r.Platform, err)
	}
	return nil
}

// DeleteConnection removes a project's connection to platform.
func (f *FactoryDB) DeleteConnection(ctx context.Context, projectID, platform string) error {
	_, err := f.ExecContext(ctx,
		`DELETE FROM platform_connection WHERE project_id = ? AND platform = ?`, projectID, platform)
	if err != nil {
		return fmt.Errorf("delete connection %s/%s: %w", projectID, platform, err)
	}
	return nil
}

// ListConnections returns a project's connections ordered by platform.
func (f *FactoryDB) ListConnections(ctx context.Context, projectID string) ([]ConnectionRow, error) {
	rows, err := f.QueryContext(ctx, `
		SELECT id, project_id, platform, account_name, account_id, scopes, connection_status,
			expires_at, last_sync_at, metadata_json, created_at, updated_at
		FROM platform_connection
		WHERE project_id = ?
		ORDER BY platform`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list connections for %s: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ConnectionRow
	for rows.Next() {
		var r ConnectionRow
		var accountName, accountID, scopes, expires, lastSync, metadata sql.NullString
		var created, updated string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Platform, &accountName, &accountID, &scopes,
			&r.Status, &expires, &lastSync, &metadata, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		r.AccountName = accountName.String
		r.AccountID = accountID.String
		r.Scopes = blobBytes(scopes)
		r.ExpiresAt = timePtr(expires)
		r.LastSyncAt = timePtr(lastSync)
		r.Metadata = blobBytes(metadata)
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}

// InsertScheduledPost stores a new scheduled post.
func (f *FactoryDB) InsertScheduledPost(ctx context.Context, r *ScheduledPostRow) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := f.ExecContext(ctx, `
		INSERT INTO scheduled_post
			(id, project_id, platform, content_id, scheduled_time, request_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.Platform, r.ContentID, formatTime(r.ScheduledTime), string(r.Request),
		r.Status, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert scheduled post %s: %w", r.ID, err)
	}
	return nil
}

// ListScheduledPosts returns a project's posts in scheduled order. An empty
// status matches every post.
func (f *FactoryDB) ListScheduledPosts(ctx context.Context, projectID, status string) ([]ScheduledPostRow, error) {
	query := `
		SELECT id, project_id, platform, content_id, scheduled_time, request_json, status, created_at, updated_at
		FROM scheduled_post
		WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY scheduled_time, id`

	rows, err := f.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled posts for %s: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ScheduledPostRow
	for rows.Next() {
		var r ScheduledPostRow
		var scheduled, request, created, updated string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Platform, &r.ContentID, &scheduled, &request,
			&r.Status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan scheduled post: %w", err)
		}
		r.ScheduledTime = parseTime(scheduled)
		r.Request = []byte(request)
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled posts: %w", err)
	}
	return out, nil
}

// UpdateScheduledPostStatus sets a post's status. It reports whether a post
// with that id existed.
func (f *FactoryDB) UpdateScheduledPostStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := f.ExecContext(ctx,
		`UPDATE scheduled_post SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("update scheduled post %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update scheduled post %s: %w", id, err)
	}
	return n > 0, nil
}
