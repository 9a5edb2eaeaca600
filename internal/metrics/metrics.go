// Package metrics records cache, remote and persistence outcomes as
// Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Remote call outcomes.
const (
	OutcomeData        = "data"
	OutcomeNotModified = "not_modified"
	OutcomeNotFound    = "not_found"
	OutcomeFailure     = "failure"
)

// Recorder owns the storyforge counters. A nil *Recorder records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	cacheLookups    *prometheus.CounterVec
	remoteResults   *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	skippedRows     prometheus.Counter
}

// New returns a recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	return NewRecorder(reg)
}

// NewRecorder registers the counters with reg. When reg is also a
// prometheus.Gatherer, Handler serves from it.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyforge_cache_lookups_total",
			Help: "In-memory cache lookups by repository and result.",
		}, []string{"repository", "result"}),
		remoteResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyforge_remote_results_total",
			Help: "Remote source calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyforge_persist_failures_total",
			Help: "Writes applied in memory whose persist step failed.",
		}, []string{"repository"}),
		skippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyforge_skipped_rows_total",
			Help: "Stored factories skipped during scans because they could not be decoded.",
		}),
	}
	reg.MustRegister(r.cacheLookups, r.remoteResults, r.persistFailures, r.skippedRows)
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}
	return r
}

// Nop returns a recorder whose counters are never exported.
func Nop() *Recorder {
	return New()
}

// CacheLookup counts one cache lookup.
func (r *Recorder) CacheLookup(repository string, hit bool) {
	if r == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	r.cacheLookups.WithLabelValues(repository, result).Inc()
}

// RemoteResult counts one remote call outcome.
func (r *Recorder) RemoteResult(operation, outcome string) {
	if r == nil {
		return
	}
	r.remoteResults.WithLabelValues(operation, outcome).Inc()
}

// PersistFailure counts one failed persist step.
func (r *Recorder) PersistFailure(repository string) {
	if r == nil {
		return
	}
	r.persistFailures.WithLabelValues(repository).Inc()
}

// SkippedRow counts one unreadable stored factory.
func (r *Recorder) SkippedRow() {
	if r == nil {
		return
	}
	r.skippedRows.Inc()
}

// Handler serves the recorder's registry in the Prometheus text format,
// falling back to the default registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
