// Package dbtrace carries per-request database statistics and the process
// wide query observer shared by the postgres and sqlite ticket stores.
package dbtrace

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Database system labels.
const (
	SystemPostgres = "postgresql"
	SystemSQLite   = "sqlite"
)

type ctxKey string

const ctxKeyHTTPMethod ctxKey = "http.method"

type statsKey struct{}

// Query describes one finished query (or one store operation for drivers
// without per-statement hooks).
type Query struct {
	System   string
	Method   string
	Route    string
	Outcome  string
	Duration time.Duration
}

// Observer receives per-query metrics (wired by main for Prometheus).
type Observer interface {
	ObserveQuery(ctx context.Context, q Query)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, q Query)

// ObserveQuery implements Observer.
func (f ObserverFunc) ObserveQuery(ctx context.Context, q Query) { f(ctx, q) }

type observerHolder struct{ Observer }

var observer atomic.Pointer[observerHolder]

// SetObserver sets the global observer. nil disables observation.
func SetObserver(o Observer) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&observerHolder{Observer: o})
}

func getObserver() Observer {
	h := observer.Load()
	if h == nil {
		return nil
	}
	return h.Observer
}

// ReqStats accumulates per-request database query statistics.
type ReqStats struct {
	mu            sync.Mutex
	QueryCount    int
	TotalDuration time.Duration
	ErrorCount    int
}

// AddQuery records a single query execution.
func (s *ReqStats) AddQuery(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCount++
	s.TotalDuration += dur
	if err != nil {
		s.ErrorCount++
	}
}

// NewReqStatsContext returns a new context with an empty ReqStats attached.
func NewReqStatsContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, statsKey{}, &ReqStats{})
}

// ReqStatsFromContext extracts the ReqStats from the context, if present.
func ReqStatsFromContext(ctx context.Context) (*ReqStats, bool) {
	s, ok := ctx.Value(statsKey{}).(*ReqStats)
	return s, ok
}

// WithHTTPMethod stores the HTTP method in the context for query labelling.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyHTTPMethod, method)
}

// HTTPMethod is middleware that stashes the request method for query labelling.
func HTTPMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithHTTPMethod(r.Context(), r.Method)))
	})
}

func httpMethodFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyHTTPMethod).(string); ok {
		return v
	}
	return ""
}

func routePatternFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// Record adds a finished query to the request stats in ctx and reports it to
// the global observer, labelled with the HTTP method and chi route pattern.
// Background work outside a request is labelled UNKNOWN / unknown.
func Record(ctx context.Context, system string, dur time.Duration, err error) {
	if s, ok := ReqStatsFromContext(ctx); ok {
		s.AddQuery(dur, err)
	}

	obs := getObserver()
	if obs == nil || dur <= 0 {
		return
	}

	q := Query{
		System:   system,
		Method:   httpMethodFromContext(ctx),
		Route:    routePatternFromContext(ctx),
		Outcome:  "ok",
		Duration: dur,
	}
	if q.Method == "" {
		q.Method = "UNKNOWN"
	}
	if q.Route == "" {
		q.Route = "unknown"
	}
	if err != nil {
		q.Outcome = "error"
	}
	obs.ObserveQuery(ctx, q)
}
