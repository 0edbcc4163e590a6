// Package metrics records generation attempts in a bounded in-memory ring
// and exports aggregate counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultCapacity is the number of attempts kept in memory.
const DefaultCapacity = 100

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postforge",
			Name:      "generations_total",
			Help:      "Total generation attempts by outcome",
		},
		[]string{"outcome"}, // "success", "fallback", "error"
	)

	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "postforge",
			Name:      "generation_duration_seconds",
			Help:      "Duration of generation attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	generationTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "postforge",
			Name:      "generation_tokens_total",
			Help:      "Estimated prompt tokens consumed by generation attempts",
		},
	)

	platformResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postforge",
			Name:      "platform_results_total",
			Help:      "Per-platform generation results",
		},
		[]string{"platform", "status"}, // "ok", "failed"
	)
)

// Entry describes one generation attempt.
type Entry struct {
	RequestedAt   time.Time `json:"requestedAt"`
	RespondedAt   time.Time `json:"respondedAt"`
	TokensUsed    int       `json:"tokensUsed"`
	InputChars    int       `json:"inputChars"`
	PlatformCount int       `json:"platformCount"`
	Success       bool      `json:"success"`
	Fallback      bool      `json:"fallback"`
	Model         string    `json:"model,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Duration is the elapsed time of the attempt.
func (e Entry) Duration() time.Duration {
	return e.RespondedAt.Sub(e.RequestedAt)
}

// Recorder is what the orchestrator writes to.
type Recorder interface {
	Record(e Entry)
	RecordPlatform(platform string, ok bool)
}

// Ring keeps the most recent attempts. The zero value is not usable; call
// NewRing.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing returns a ring holding up to capacity entries. A non-positive
// capacity uses DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Record appends e, overwriting the oldest entry when full, and updates the
// Prometheus collectors.
func (r *Ring) Record(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	outcome := "error"
	switch {
	case e.Success && e.Fallback:
		outcome = "fallback"
	case e.Success:
		outcome = "success"
	}
	generationsTotal.WithLabelValues(outcome).Inc()
	if d := e.Duration(); d > 0 {
		generationDuration.Observe(d.Seconds())
	}
	if e.TokensUsed > 0 {
		generationTokens.Add(float64(e.TokensUsed))
	}
}

// RecordPlatform counts a single platform's outcome.
func (r *Ring) RecordPlatform(platform string, ok bool) {
	status := "failed"
	if ok {
		status = "ok"
	}
	platformResults.WithLabelValues(platform, status).Inc()
}

// Len is the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Snapshot returns stored entries, oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Summary aggregates a snapshot.
type Summary struct {
	Attempts      int     `json:"attempts"`
	Successes     int     `json:"successes"`
	Fallbacks     int     `json:"fallbacks"`
	Failures      int     `json:"failures"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	TotalTokens   int     `json:"totalTokens"`
}

// Summarize aggregates the current ring contents.
func (r *Ring) Summarize() Summary {
	var s Summary
	var total time.Duration
	for _, e := range r.Snapshot() {
		s.Attempts++
		s.TotalTokens += e.TokensUsed
		total += e.Duration()
		switch {
		case e.Success && e.Fallback:
			s.Fallbacks++
		case e.Success:
			s.Successes++
		default:
			s.Failures++
		}
	}
	if s.Attempts > 0 {
		s.AvgDurationMs = float64(total.Milliseconds()) / float64(s.Attempts)
	}
	return s
}
