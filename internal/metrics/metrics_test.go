package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.CacheLookup("project", true)
	r.CacheLookup("project", true)
	r.CacheLookup("project", false)
	r.RemoteResult("get_project_details", OutcomeNotModified)
	r.PersistFailure("character")
	r.SkippedRow()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("project", ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("project", ResultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.remoteResults.WithLabelValues("get_project_details", OutcomeNotModified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.persistFailures.WithLabelValues("character")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skippedRows))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.CacheLookup("project", true)
		r.RemoteResult("list_projects", OutcomeFailure)
		r.PersistFailure("content")
		r.SkippedRow()
	})
	assert.NotNil(t, r.Handler())
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.SkippedRow()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "storyforge_skipped_rows_total 1")
}
