package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/remote"
	"github.com/randalmurphal/storyforge/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	repos   *repository.Bundle
	server  *Server
	project model.Project
	char    model.Character
	script  model.Script
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	rec := metrics.New()
	repos, err := repository.New(ctx, repository.Options{Offline: true, Logger: quietLogger(), Metrics: rec})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	p, res := repos.Projects.Create(ctx, model.Project{Title: "Night Ferry", Type: model.ProjectTypeFilm, Status: model.StatusActive})
	require.True(t, res.OK(), "%v", res.Err)
	c, res := repos.Characters.Create(ctx, model.Character{ProjectID: p.ID, Name: "Ines"})
	require.True(t, res.OK())
	st, res := repos.Content.CreateStory(ctx, model.Story{ProjectID: p.ID, Title: "Crossing", CharacterIDs: []string{c.ID}})
	require.True(t, res.OK())
	sc, res := repos.Content.CreateScript(ctx, model.Script{ProjectID: p.ID, StoryID: &st.ID, Title: "Crossing", Content: "INES\nThe lights are out."})
	require.True(t, res.OK())
	_, res = repos.Content.CreateStoryboard(ctx, model.Storyboard{ProjectID: p.ID, Title: "Crossing - Storyboard"})
	require.True(t, res.OK())

	return &fixture{
		repos:   repos,
		server:  New(Config{Repos: repos, Metrics: rec, Logger: quietLogger()}),
		project: p,
		char:    c,
		script:  sc,
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestServer_Projects(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/projects")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	projects := decode[[]model.Project](t, w)
	require.Len(t, projects, 1)
	assert.Equal(t, "Night Ferry", projects[0].Title)

	w = f.get(t, "/api/projects/"+f.project.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.project.ID, decode[model.Project](t, w).ID)
}

func TestServer_ProjectFilters(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		query string
		want  int
	}{
		{"?type=film", 1},
		{"?type=comic", 0},
		{"?q=ferry", 1},
		{"?q=zeppelin", 0},
		{"?status=active", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.get(t, "/api/projects"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Len(t, decode[[]model.Project](t, w), tt.want)
		})
	}
}

func TestServer_ErrorStatus(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path string
		code string
	}{
		{"/api/projects/missing", "PROJECT_NOT_FOUND"},
		{"/api/projects/missing/stories", "PROJECT_NOT_FOUND"},
		{"/api/characters/missing/content", "ENTITY_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := f.get(t, tt.path)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, tt.code, decode[APIError](t, w).Code)
		})
	}

	w := f.get(t, "/api/search?q=x&limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RemoteUnavailableMapsTo503(t *testing.T) {
	ctx := context.Background()
	src := remote.NewMemorySource()
	src.Fail(remote.OpProjectDetails, assert.AnError)
	repos, err := repository.New(ctx, repository.Options{Remote: src, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	s := New(Config{Repos: repos, Logger: quietLogger()})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects/p1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "REMOTE_UNAVAILABLE", decode[APIError](t, w).Code)
}

func TestServer_Content(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/projects/"+f.project.ID+"/stories")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Story](t, w), 1)

	w = f.get(t, "/api/projects/"+f.project.ID+"/scripts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Script](t, w), 1)

	w = f.get(t, "/api/scripts/"+f.script.ID+"/storyboards")
	require.Equal(t, http.StatusOK, w.Code)
	boards := decode[[]model.Storyboard](t, w)
	require.Len(t, boards, 1, "storyboard is linked by title")

	w = f.get(t, "/api/projects/"+f.project.ID+"/characters")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Character](t, w), 1)

	w = f.get(t, "/api/characters/"+f.char.ID+"/content")
	require.Equal(t, http.StatusOK, w.Code)
	content := decode[repository.CharacterContent](t, w)
	assert.Len(t, content.Stories, 1)
	assert.Len(t, content.Scripts, 1)
	assert.Len(t, content.Storyboards, 1)
}

func TestServer_Search(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/search?q=crossing")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]repository.ContentItem](t, w)
	require.Len(t, items, 3)
	assert.Equal(t, model.KindStory, items[0].Kind)

	w = f.get(t, "/api/search?q=crossing&kind=script")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]repository.ContentItem](t, w), 1)

	w = f.get(t, "/api/search?q=lights")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]repository.ContentItem](t, w), 1, "script bodies are searched")

	w = f.get(t, "/api/search?q=crossing&limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]repository.ContentItem](t, w), 2)
}

func TestServer_Distribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, res := f.repos.Distribution.ConnectPlatform(ctx, model.PlatformConnection{ProjectID: f.project.ID, Platform: model.PlatformYouTube})
	require.True(t, res.OK())

	w := f.get(t, "/api/projects/"+f.project.ID+"/distribution")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[distributionView](t, w)
	assert.Nil(t, view.Analytics)
	require.Len(t, view.Connections, 1)
	assert.Empty(t, view.Scheduled)
}

func TestServer_MetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/api/projects/"+f.project.ID)

	w := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "storyforge_cache_lookups_total"))

	w = f.get(t, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode[map[string]string](t, w)["mode"])
}

func TestServer_CORSHeaders(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/projects")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", w.Header().Get("Access-Control-Allow-Methods"))
}
