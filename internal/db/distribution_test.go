package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestAnalytics(t *testing.T) {
	t.Parallel()
	fdb := NewTestFactoryDB(t)
	ctx := context.Background()

	got, err := fdb.LatestAnalytics(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	start := base.Add(-24 * time.Hour)
	require.NoError(t, fdb.InsertAnalytics(ctx, &AnalyticsRow{
		ID: "p1_1", ProjectID: "p1", Data: []byte(`{"totalViews":1}`), GeneratedAt: base, TotalViews: 1,
	}))
	require.NoError(t, fdb.InsertAnalytics(ctx, &AnalyticsRow{
		ID: "p1_2", ProjectID: "p1", Data: []byte(`{"totalViews":2}`), GeneratedAt: base.Add(time.Hour),
		PeriodStart: &start, TotalViews: 2, TotalRevenue: 9.5,
	}))
	require.NoError(t, fdb.InsertAnalytics(ctx, &AnalyticsRow{
		ID: "p2_1", ProjectID: "p2", Data: []byte(`{}`), GeneratedAt: base.Add(2 * time.Hour),
	}))

	got, err = fdb.LatestAnalytics(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1_2", got.ID)
	assert.Equal(t, int64(2), got.TotalViews)
	assert.InDelta(t, 9.5, got.TotalRevenue, 0.001)
	require.NotNil(t, got.PeriodStart)
	assert.True(t, got.PeriodStart.Equal(start))
	assert.Nil(t, got.PeriodEnd)
	assert.JSONEq(t, `{"totalViews":2}`, string(got.Data))
}

func TestConnections(t *testing.T) {
	t.Parallel()
	fdb := NewTestFactoryDB(t)
	ctx := context.Background()

	conn := &ConnectionRow{
		ID: "p1_YOUTUBE", ProjectID: "p1", Platform: "YOUTUBE", AccountName: "chan",
		Scopes: []byte(`["upload"]`), Status: "ACTIVE",
	}
	require.NoError(t, fdb.UpsertConnection(ctx, conn))
	require.NoError(t, fdb.UpsertConnection(ctx, &ConnectionRow{
		ID: "p1_TIKTOK", ProjectID: "p1", Platform: "TIKTOK", Status: "ACTIVE",
	}))

	// Reconnect replaces the account but keeps one row.
	require.NoError(t, fdb.UpsertConnection(ctx, &ConnectionRow{
		ID: "p1_YOUTUBE", ProjectID: "p1", Platform: "YOUTUBE", AccountName: "other", Status: "ACTIVE",
	}))

	rows, err := fdb.ListConnections(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TIKTOK", rows[0].Platform)
	assert.Equal(t, "YOUTUBE", rows[1].Platform)
	assert.Equal(t, "other", rows[1].AccountName)
	assert.Nil(t, rows[1].Scopes)
	assert.Nil(t, rows[0].ExpiresAt)

	require.NoError(t, fdb.DeleteConnection(ctx, "p1", "TIKTOK"))
	rows, err = fdb.ListConnections(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "YOUTUBE", rows[0].Platform)
}

func TestScheduledPosts(t *testing.T) {
	t.Parallel()
	fdb := NewTestFactoryDB(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, fdb.InsertScheduledPost(ctx, &ScheduledPostRow{
		ID: "late", ProjectID: "p1", Platform: "X", ContentID: "s1",
		ScheduledTime: base.Add(time.Hour), Request: []byte(`{"title":"b"}`), Status: "SCHEDULED",
	}))
	require.NoError(t, fdb.InsertScheduledPost(ctx, &ScheduledPostRow{
		ID: "early", ProjectID: "p1", Platform: "X", ContentID: "s1",
		ScheduledTime: base, Request: []byte(`{"title":"a"}`), Status: "SCHEDULED",
	}))

	posts, err := fdb.ListScheduledPosts(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "early", posts[0].ID)
	assert.True(t, posts[0].ScheduledTime.Equal(base))

	ok, err := fdb.UpdateScheduledPostStatus(ctx, "early", "CANCELLED")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fdb.UpdateScheduledPostStatus(ctx, "missing", "CANCELLED")
	require.NoError(t, err)
	assert.False(t, ok)

	posts, err = fdb.ListScheduledPosts(ctx, "p1", "SCHEDULED")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "late", posts[0].ID)
}
