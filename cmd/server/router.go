package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/helpdesk/internal/authmw"
	"github.com/linnemanlabs/helpdesk/internal/dbtrace"
	"github.com/linnemanlabs/helpdesk/internal/deskapi"
)

const (
	healthzPath = "/-/healthy"
	readyzPath  = "/-/ready"

	// tickets carry free text; 64KB is well above any real description
	maxRequestBody = 64 << 10
)

// newRouter builds the main chi router: route-aware middleware, health
// endpoints and the /api/v1 surface behind the optional bearer token.
func newRouter(api *deskapi.API, apiToken string, healthz, readyz http.HandlerFunc) chi.Router {
	r := chi.NewRouter()

	// JSON only
	r.Use(middleware.Compress(5, "application/json"))

	// Annotate logger (and tracer if trace is recording) with http.route from chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// method label for db query metrics
	r.Use(dbtrace.HTTPMethod)

	r.Use(httpmw.AccessLog())

	// 413 past the limit
	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Get(healthzPath, healthz)
	r.Get(readyzPath, readyz)

	api.RegisterRoutes(r, authmw.Optional(apiToken))
	return r
}

// wrapHandler applies the outer middleware stack to h. Each wrapper sees
// the request before everything applied earlier, so SecurityHeaders runs
// first and WithLogger last.
func wrapHandler(h http.Handler, L log.Logger, metricsMW func(http.Handler) http.Handler, ipOpts httpmw.ClientIPOptions) http.Handler {
	// request-scoped logger sees trace_id and chi route
	h = httpmw.WithLogger(L)(h)

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != healthzPath && r.URL.Path != readyzPath
		}),
		// AnnotateHTTPRoute renames the span to the route pattern later
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	if metricsMW != nil {
		h = metricsMW(h)
	}

	// resolved client ip is visible to everything inside
	h = httpmw.ClientIPWithOptions(ipOpts)(h)

	h = httpmw.RequestID("X-Request-Id")(h)

	// catches panics from any inner middleware or handler
	h = httpmw.Recover(L, nil)(h)

	return httpmw.SecurityHeaders(h)
}
