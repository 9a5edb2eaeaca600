package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/model"
)

func newFactory(id, title string, pt model.ProjectType) *factory.ProjectFactory {
	f := factory.NewEmpty(model.Project{ID: id, Title: title, Description: title + " description", Type: pt})
	f.Characters = []model.Character{{ID: id + "-c1", ProjectID: id, Name: "Mara"}}
	return f
}

func TestSaveAndGetByProjectID(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	f := newFactory("p1", "Harbor Lights", model.ProjectTypeFilm)
	storyID := "s1"
	f.Stories = []model.Story{{ID: storyID, ProjectID: "p1", Title: "Arrival"}}
	f.Scripts = []model.Script{{ID: "sc1", ProjectID: "p1", StoryID: &storyID, Title: "Arrival Draft"}}
	require.NoError(t, store.Save(ctx, f, factory.TypeUser))

	got, err := store.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Harbor Lights", got.Project.Title)
	assert.Len(t, got.Characters, 1)
	require.Len(t, got.Scripts, 1)
	assert.Equal(t, "s1", got.Scripts[0].StoryRef())
	assert.Empty(t, got.Storyboards)
	assert.Nil(t, got.Bible)
}

func TestGetByProjectID_Missing(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)

	got, err := store.GetByProjectID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_RecomputesDenormalizedFields(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	f := newFactory("p1", "Old Title", model.ProjectTypeFilm)
	require.NoError(t, store.Save(ctx, f, factory.TypeUser))

	f.Project.Title = "New Title"
	f.Project.Type = model.ProjectTypeSeries
	require.NoError(t, store.Save(ctx, f, factory.TypeUser))

	infos, err := store.GetAllBasicInfo(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "New Title", infos[0].Title)
	assert.Equal(t, model.ProjectTypeSeries, infos[0].ProjectType)

	byTitle, err := store.SearchByTitle(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, byTitle, "title index must not keep the stale title")

	byType, err := store.GetByProjectType(ctx, model.ProjectTypeSeries)
	require.NoError(t, err)
	assert.Len(t, byType, 1)
}

func TestBasicInfoMatchesFullRead(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	types := []model.ProjectType{model.ProjectTypeFilm, model.ProjectTypeComic, model.ProjectTypeAnimation}
	for i, pt := range types {
		require.NoError(t, store.Save(ctx, newFactory(fmt.Sprintf("p%d", i), fmt.Sprintf("Title %d", i), pt), factory.TypeUser))
	}

	infos, err := store.GetAllBasicInfo(ctx)
	require.NoError(t, err)
	require.Len(t, infos, len(types))
	for _, info := range infos {
		full, err := store.GetByProjectID(ctx, info.ProjectID)
		require.NoError(t, err)
		require.NotNil(t, full)
		assert.Equal(t, full.Project.Title, info.Title)
		assert.Equal(t, full.Project.Type, info.ProjectType)
		assert.Equal(t, full.Project.Description, info.Description)
		assert.Equal(t, factory.TypeUser, info.FactoryType)
	}
}

func TestBasicInfoDoesNotDecodeBlobs(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newFactory("p1", "Broken", model.ProjectTypeFilm), factory.TypeUser))
	_, err := store.DB().ExecContext(ctx,
		`UPDATE project_factory SET project_json = '{not json', characters_json = 'garbage' WHERE project_id = ?`, "p1")
	require.NoError(t, err)

	infos, err := store.GetAllBasicInfo(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Broken", infos[0].Title)
}

func TestGetAll_SkipsCorruptFactory(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	store := NewTestStore(t,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithMetrics(rec))
	ctx := context.Background()

	const n = 5
	for i := range n {
		require.NoError(t, store.Save(ctx, newFactory(fmt.Sprintf("p%d", i), "T", model.ProjectTypeFilm), factory.TypeUser))
	}
	_, err := store.DB().ExecContext(ctx,
		`UPDATE project_factory SET stories_json = '[{"id": 12' WHERE project_id = ?`, "p2")
	require.NoError(t, err)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n-1)
	for _, f := range all {
		assert.NotEqual(t, "p2", f.ProjectID)
	}
	assert.Contains(t, logs.String(), "skipping unreadable factory")
	assert.Contains(t, logs.String(), "project_id=p2")

	// The point lookup reports the corruption instead of hiding it.
	_, err = store.GetByProjectID(ctx, "p2")
	require.Error(t, err)
	assert.Equal(t, []string{factory.ComponentStories}, factory.FailedComponents(err))
}

func TestGetByTypeAndCounts(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	empty, err := store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, store.Save(ctx, newFactory("u1", "User One", model.ProjectTypeFilm), factory.TypeUser))
	require.NoError(t, store.Save(ctx, newFactory("s1", "Sample One", model.ProjectTypeFilm), factory.TypeSample))
	require.NoError(t, store.Save(ctx, newFactory("s2", "Sample Two", model.ProjectTypeFilm), factory.TypeSample))

	samples, err := store.GetByType(ctx, factory.TypeSample)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.CountByType(ctx, factory.TypeSample)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountByType(ctx, factory.TypeTemplate)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearchByTitle(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newFactory("a", "The Night Shift", model.ProjectTypeFilm), factory.TypeUser))
	require.NoError(t, store.Save(ctx, newFactory("b", "Daybreak", model.ProjectTypeFilm), factory.TypeUser))

	got, err := store.SearchByTitle(ctx, "NIGHT")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ProjectID)

	got, err = store.SearchByTitle(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	f := newFactory("p1", "Same", model.ProjectTypeFilm)
	for range 3 {
		require.NoError(t, store.Save(ctx, f, factory.TypeUser))
	}
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newFactory("a", "A", model.ProjectTypeFilm), factory.TypeUser))
	require.NoError(t, store.Save(ctx, newFactory("b", "B", model.ProjectTypeFilm), factory.TypeUser))

	require.NoError(t, store.Delete(ctx, "a"))
	got, err := store.GetByProjectID(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.DeleteAll(ctx))
	empty, err := store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSave_RejectsMissingID(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	assert.Error(t, store.Save(context.Background(), &factory.ProjectFactory{}, factory.TypeUser))
	assert.Error(t, store.Save(context.Background(), nil, factory.TypeUser))
}

func TestDistributionRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	a := model.DistributionAnalytics{
		ProjectID: "p1", GeneratedAt: now, PeriodStart: now.Add(-time.Hour), TotalViews: 42,
		ByPlatform: map[model.Platform]model.PlatformMetrics{model.PlatformYouTube: {Views: 42}},
	}
	require.NoError(t, store.SaveAnalytics(ctx, "p1_1", a))
	got, err := store.LatestAnalytics(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.ByPlatform[model.PlatformYouTube].Views)

	require.NoError(t, store.SaveConnection(ctx, model.PlatformConnection{
		ID: "p1_YOUTUBE", ProjectID: "p1", Platform: model.PlatformYouTube, Status: model.ConnectionActive,
		Scopes: []string{"upload"}, Metadata: map[string]string{"channel": "main"},
	}))
	conns, err := store.Connections(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, []string{"upload"}, conns[0].Scopes)
	assert.Equal(t, "main", conns[0].Metadata["channel"])

	require.NoError(t, store.SaveScheduledPost(ctx, model.ScheduledPost{
		ID: "post1", ProjectID: "p1", Platform: model.PlatformX, ContentID: "s1",
		ScheduledTime: now.Add(time.Hour), Request: model.PublishRequest{Title: "Teaser"}, Status: model.ScheduleScheduled,
	}))
	posts, err := store.ScheduledPosts(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Teaser", posts[0].Request.Title)

	ok, err := store.SetScheduledPostStatus(ctx, "post1", model.ScheduleCancelled)
	require.NoError(t, err)
	assert.True(t, ok)
	posts, err = store.ScheduledPosts(ctx, "p1", model.ScheduleScheduled)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestFailingStore(t *testing.T) {
	t.Parallel()
	inner := NewTestStore(t)
	store := NewFailingStore(inner)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newFactory("p1", "Kept", model.ProjectTypeFilm), factory.TypeUser))

	store.FailWrites(true)
	err := store.Save(ctx, newFactory("p2", "Lost", model.ProjectTypeFilm), factory.TypeUser)
	require.ErrorIs(t, err, ErrInjected)
	assert.ErrorIs(t, store.Delete(ctx, "p1"), ErrInjected)
	assert.Equal(t, 3, store.Writes())

	// Reads still pass through.
	got, err := store.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)

	store.FailReads(true)
	_, err = store.GetAll(ctx)
	assert.ErrorIs(t, err, ErrInjected)
}
