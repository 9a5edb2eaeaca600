package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
)

// etagServer serves body under the given ETag and answers 304 when the
// request carries it.
func etagServer(t *testing.T, body *atomic.Value, etag *atomic.Value, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		tag := etag.Load().(string)
		if r.Header.Get("If-None-Match") == tag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", tag)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(url, 2*time.Second, WithRetryMax(1), WithRetryWait(time.Millisecond, 5*time.Millisecond))
}

func TestHTTPClient_ProjectDetailsNotModified(t *testing.T) {
	var body, etag atomic.Value
	var hits atomic.Int32
	body.Store(`{"project":{"id":"p1","title":"Pilot","type":"FILM"},"stories":[{"id":"s1","projectId":"p1","title":"Arc"}]}`)
	etag.Store(`"v1"`)
	srv := etagServer(t, &body, &etag, &hits)

	c := newTestClient(srv.URL)
	ctx := context.Background()

	first, err := c.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	require.False(t, first.IsNotModified())
	assert.Equal(t, "Pilot", first.Value.Project.Title)
	require.Len(t, first.Value.Stories, 1)

	second, err := c.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, second.IsNotModified(), "unchanged resource answers not-modified")
	assert.Nil(t, second.Value)

	etag.Store(`"v2"`)
	body.Store(`{"project":{"id":"p1","title":"Pilot 2"}}`)
	third, err := c.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, third.IsNotModified())
	assert.Equal(t, "Pilot 2", third.Value.Project.Title)

	c.ClearETags()
	fourth, err := c.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, fourth.IsNotModified(), "cleared etags force a full answer")
	assert.Equal(t, int32(4), hits.Load())
}

func TestHTTPClient_ListEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"projects key", `{"projects":[{"id":"p1","title":"A","type":"FILM","factory_type":"sample","created_at":1700000000000,"updated_at":1700000001000}],"total":1}`},
		{"data key", `{"data":[{"id":"p1","title":"A","type":"FILM","factory_type":"sample","created_at":1700000000000,"updated_at":1700000001000}]}`},
		{"bare array", `[{"id":"p1","title":"A","type":"FILM","factory_type":"sample","created_at":1700000000000,"updated_at":1700000001000}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/projects/", r.URL.Path)
				gotLimit = r.URL.Query().Get("limit")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestClient(srv.URL).ListProjects(context.Background(), 25)
			require.NoError(t, err)
			require.Len(t, res.Value, 1)
			p := res.Value[0]
			assert.Equal(t, "25", gotLimit)
			assert.Equal(t, "p1", p.ID)
			assert.Equal(t, model.ProjectTypeFilm, p.Type)
			assert.Equal(t, factory.TypeSample, p.FactoryType)
			assert.Equal(t, time.UnixMilli(1700000001000).UTC(), p.UpdatedAt)
		})
	}
}

func TestHTTPClient_EmptyListIsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"projects":[]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).ListProjects(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, res.IsNotModified(), "empty data is not the same as not modified")
	assert.Empty(t, res.Value)
}

func TestHTTPClient_Characters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/p1/characters", r.URL.Path)
		_, _ = w.Write([]byte(`{"characters":[{"id":"c1","name":"Ada","role":"lead"}]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).GetCharacters(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, res.Value, 1)
	assert.Equal(t, "p1", res.Value[0].ProjectID, "project id filled from the request")
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode errors.Code
		wantMsg  string
	}{
		{"server error with message", http.StatusInternalServerError, `{"error":{"message":"db down"}}`, errors.CodeRemoteUnavailable, "db down"},
		{"not found with detail", http.StatusNotFound, `{"detail":"no such project"}`, errors.CodeProjectNotFound, "no such project"},
		{"plain text", http.StatusBadGateway, "upstream", errors.CodeRemoteUnavailable, "upstream"},
		{"bad payload", http.StatusOK, `{"project":`, errors.CodeRemoteUnavailable, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).GetProjectDetails(context.Background(), "p1")
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHTTPClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)
	ctx := context.Background()

	_, err := c.GetProjectDetails(ctx, "ghost")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "ghost")

	_, err = c.GetCharacters(ctx, "ghost")
	assert.True(t, IsNotFound(err))

	// A missing list endpoint is a misconfigured remote, not a missing project.
	_, err = c.ListProjects(ctx, 10)
	assert.False(t, IsNotFound(err))
	assert.True(t, errors.HasCode(err, errors.CodeRemoteUnavailable))
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"project":{"id":"p1","title":"ok"}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).GetProjectDetails(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value.Project.Title)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second, WithRetryMax(0)).ListProjects(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteUnavailable))
}

func sampleDetails(id, title string) ProjectDetails {
	return ProjectDetails{
		Project:    model.Project{ID: id, Title: title, Type: model.ProjectTypeSeries},
		Characters: []model.Character{{ID: id + "-c1", ProjectID: id, Name: "Ada"}},
	}
}

func TestMemorySource_NotModified(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySource()
	m.PutProject(sampleDetails("p1", "One"))

	first, err := m.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	require.False(t, first.IsNotModified())

	second, err := m.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, second.IsNotModified())

	m.SetCharacters("p1", []model.Character{{ID: "c9", ProjectID: "p1"}})
	third, err := m.GetProjectDetails(ctx, "p1")
	require.NoError(t, err)
	require.False(t, third.IsNotModified())
	assert.Equal(t, "c9", third.Value.Characters[0].ID)

	list, err := m.ListProjects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list.Value, 1)
	again, err := m.ListProjects(ctx, 10)
	require.NoError(t, err)
	assert.True(t, again.IsNotModified(), "character changes do not touch the list")

	assert.Equal(t, 3, m.Calls(OpProjectDetails))
	assert.Equal(t, 2, m.Calls(OpListProjects))
}

func TestMemorySource_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySource()
	m.PutProject(sampleDetails("p1", "One"))

	res, err := m.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	res.Value[0].Name = "changed"

	m.ClearETags()
	again, err := m.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Value[0].Name)
}

func TestMemorySource_Failures(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySource()
	m.PutProject(sampleDetails("p1", "One"))

	boom := stderrors.New("boom")
	m.Fail(OpCharacters, boom)
	_, err := m.GetCharacters(ctx, "p1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteUnavailable))
	assert.ErrorIs(t, err, boom)

	m.Fail(OpCharacters, nil)
	_, err = m.GetCharacters(ctx, "p1")
	require.NoError(t, err)

	_, err = m.GetProjectDetails(ctx, "missing")
	assert.True(t, IsNotFound(err))
	_, err = m.GetCharacters(ctx, "missing")
	assert.True(t, IsNotFound(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.ListProjects(cancelled, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemorySource_ListLimitAndRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySource()
	for i := 1; i <= 3; i++ {
		m.PutProject(sampleDetails(fmt.Sprintf("p%d", i), "T"))
	}

	res, err := m.ListProjects(ctx, 2)
	require.NoError(t, err)
	require.Len(t, res.Value, 2)
	assert.Equal(t, "p1", res.Value[0].ID)
	assert.Equal(t, factory.TypeAPI, res.Value[0].FactoryType)

	m.RemoveProject("p1")
	res, err = m.ListProjects(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, res.Value, 2)
}

func TestProjectDetails_ToFactory(t *testing.T) {
	sid := "s1"
	d := ProjectDetails{
		Project: model.Project{ID: "p1", Title: "One"},
		Stories: []model.Story{{ID: sid, ProjectID: "p1"}},
		Scripts: []model.Script{{ID: "sc1", ProjectID: "p1", StoryID: &sid}},
	}

	f := d.ToFactory()
	assert.Equal(t, "p1", f.ProjectID)
	assert.Equal(t, factory.TypeUser, f.Type(), "missing metadata falls back to defaults")
	assert.Equal(t, factory.MetadataVersion, f.Metadata.Version)

	*f.Scripts[0].StoryID = "other"
	assert.Equal(t, "s1", *d.Scripts[0].StoryID, "factory does not alias the details")

	d.Metadata = &factory.Metadata{IsTemplate: true}
	assert.Equal(t, factory.TypeTemplate, d.ToFactory().Type())
	assert.Equal(t, factory.TypeTemplate, d.Summary().FactoryType)
}
