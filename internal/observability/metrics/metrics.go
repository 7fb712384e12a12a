// Package metrics aggregates in-memory counters for the gateway and exposes
// them in Prometheus text format without pulling in a metrics client.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

type upstreamLabel struct {
	target  string
	outcome string
}

// Upstream call outcomes recorded by ObserveUpstream.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Recorder accumulates request totals and durations, catalog cache
// hits/misses, upstream call outcomes, and upload counts. All methods are
// safe for concurrent use.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	cacheHits       map[string]uint64
	cacheMisses     map[string]uint64
	upstreamCalls   map[upstreamLabel]uint64
	uploadsAccepted uint64
	uploadsRejected uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder ready for use.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		cacheHits:       make(map[string]uint64),
		cacheMisses:     make(map[string]uint64),
		upstreamCalls:   make(map[upstreamLabel]uint64),
	}
}

// Default returns the shared Recorder used when no custom instance is wired.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates count and duration for a completed request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   path,
		status: strconv.Itoa(status),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
}

// ObserveCacheHit records a catalog request served from the snapshot.
func (r *Recorder) ObserveCacheHit(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheHits[kind]++
}

// ObserveCacheMiss records a catalog request that required an upstream fetch.
func (r *Recorder) ObserveCacheMiss(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheMisses[kind]++
}

// ObserveUpstream records the outcome of an outbound call to target.
func (r *Recorder) ObserveUpstream(target, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreamCalls[upstreamLabel{target: target, outcome: outcome}]++
}

// ObserveUpload records an upload attempt and whether it was accepted.
func (r *Recorder) ObserveUpload(accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if accepted {
		r.uploadsAccepted++
	} else {
		r.uploadsRejected++
	}
}

// RequestCount returns the number of observed requests matching the label.
func (r *Recorder) RequestCount(method, path string, status int) uint64 {
	label := requestLabel{method: strings.ToUpper(method), path: path, status: strconv.Itoa(status)}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requestCount[label]
}

// CacheCounts returns hit and miss totals for the given resource kind.
func (r *Recorder) CacheCounts(kind string) (hits, misses uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cacheHits[kind], r.cacheMisses[kind]
}

// UpstreamCount returns the call total for a target/outcome pair.
func (r *Recorder) UpstreamCount(target, outcome string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upstreamCalls[upstreamLabel{target: target, outcome: outcome}]
}

// Reset clears all accumulated values; intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.cacheHits = make(map[string]uint64)
	r.cacheMisses = make(map[string]uint64)
	r.upstreamCalls = make(map[upstreamLabel]uint64)
	r.uploadsAccepted = 0
	r.uploadsRejected = 0
}

// Handler serves the recorder state in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders all series to w.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fmt.Fprintln(w, "# HELP gateway_http_requests_total Total number of HTTP requests processed by the gateway")
	fmt.Fprintln(w, "# TYPE gateway_http_requests_total counter")
	for _, label := range sortedRequestLabels(r.requestCount) {
		fmt.Fprintf(w, "gateway_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP gateway_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE gateway_http_request_duration_seconds_sum counter")
	for _, label := range sortedRequestLabels(r.requestDuration) {
		fmt.Fprintf(w, "gateway_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n",
			label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP gateway_catalog_cache_hits_total Catalog requests served from the snapshot cache")
	fmt.Fprintln(w, "# TYPE gateway_catalog_cache_hits_total counter")
	for _, kind := range sortedKeys(r.cacheHits) {
		fmt.Fprintf(w, "gateway_catalog_cache_hits_total{kind=%q} %d\n", kind, r.cacheHits[kind])
	}

	fmt.Fprintln(w, "# HELP gateway_catalog_cache_misses_total Catalog requests that required an upstream fetch")
	fmt.Fprintln(w, "# TYPE gateway_catalog_cache_misses_total counter")
	for _, kind := range sortedKeys(r.cacheMisses) {
		fmt.Fprintf(w, "gateway_catalog_cache_misses_total{kind=%q} %d\n", kind, r.cacheMisses[kind])
	}

	fmt.Fprintln(w, "# HELP gateway_upstream_calls_total Outbound calls by target and outcome")
	fmt.Fprintln(w, "# TYPE gateway_upstream_calls_total counter")
	for _, label := range sortedUpstreamLabels(r.upstreamCalls) {
		fmt.Fprintf(w, "gateway_upstream_calls_total{target=%q,outcome=%q} %d\n",
			label.target, label.outcome, r.upstreamCalls[label])
	}

	fmt.Fprintln(w, "# HELP gateway_uploads_total Upload attempts by result")
	fmt.Fprintln(w, "# TYPE gateway_uploads_total counter")
	fmt.Fprintf(w, "gateway_uploads_total{result=\"accepted\"} %d\n", r.uploadsAccepted)
	fmt.Fprintf(w, "gateway_uploads_total{result=\"rejected\"} %d\n", r.uploadsRejected)
}

func sortedRequestLabels[V any](series map[requestLabel]V) []requestLabel {
	labels := make([]requestLabel, 0, len(series))
	for label := range series {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedUpstreamLabels(series map[upstreamLabel]uint64) []upstreamLabel {
	labels := make([]upstreamLabel, 0, len(series))
	for label := range series {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].target != labels[j].target {
			return labels[i].target < labels[j].target
		}
		return labels[i].outcome < labels[j].outcome
	})
	return labels
}

func sortedKeys(series map[string]uint64) []string {
	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
