// Helpdesk is a support ticket tracker with AI-assisted triage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/helpdesk/internal/dbtrace"
	"github.com/linnemanlabs/helpdesk/internal/deskapi"
	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

const appName = "helpdesk"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var c config
	c.registerFlags(flag.CommandLine)

	// .env in the working directory feeds the env fill below; a missing file is fine
	dotenvErr := godotenv.Load()

	// cmdline first; env fills only what flags left unset
	flag.Parse()
	if c.showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	cfg.FillFromEnv(flag.CommandLine, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := c.validate(); err != nil {
		return err
	}
	appCfg := c.app

	lg, err := log.New(c.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// flushes buffered backends; no-op for slog/stderr
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", appCfg.APIPort,
		"admin_port", c.ops.Port,
		"enable_pprof", c.ops.EnablePprof,
		"enable_pyroscope", c.prof.EnablePyroscope,
		"enable_tracing", c.trace.EnableTracing,
		"trace_sample", c.trace.TraceSample,
		"otlp_endpoint", c.trace.OTLPEndpoint,
		"trusted_proxy_hops", c.httpmw.TrustedProxyHops,
		"store", storeKind(&appCfg),
		"claude_model", appCfg.ClaudeModel,
		"triage_timeout_seconds", appCfg.TriageTimeoutSeconds,
		"max_reply_words", appCfg.MaxReplyWords,
		"api_auth", appCfg.APIToken != "",
		"dotenv_loaded", dotenvErr == nil,
	)

	// profile the whole process lifetime
	profOpts := c.prof.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", c.prof.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := c.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && c.prof.EnablePyroscope)

	// Per-query DB duration histogram, wired before any store issues queries.
	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpdesk_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"system", "method", "route", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	dbtrace.SetObserver(dbtrace.ObserverFunc(func(_ context.Context, q dbtrace.Query) {
		dbQueryDuration.WithLabelValues(q.System, q.Method, q.Route, q.Outcome).Observe(q.Duration.Seconds())
	}))

	store, closeStore, err := openStore(ctx, &appCfg, L)
	if err != nil {
		return err
	}
	defer closeStore()

	tri, err := newTriage(ctx, &appCfg, store, m.Registry(), L)
	if err != nil {
		return err
	}
	tickets := ticket.NewService(store, L)

	// readiness fails once the gate closes so the load balancer drains us
	var shutdownGate health.ShutdownGate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	// liveness is always true if the app is able to respond
	liveness := health.Fixed(true, "")

	// ops listener: metrics, health, pprof. Internal only; opshttp rejects
	// public source ips and forwarded requests.
	opsOpts := c.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		if err := opsHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	api := deskapi.New(L, tickets, tri.service)
	r := newRouter(api, appCfg.APIToken, health.HealthzHandler(liveness), health.ReadyzHandler(readiness))
	h := wrapHandler(r, L, m.Middleware, httpmw.ClientIPOptions{
		TrustedHops: c.httpmw.TrustedProxyHops,
	})

	apiOpts, err := c.http.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		if err := apiHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	if err := notifySystemd(); err != nil {
		// not fatal; systemd kills us after its start timeout if it was waiting
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	waitForDrain(L, time.Duration(appCfg.DrainSeconds)*time.Second, forceCh)
	signal.Stop(forceCh)

	// api first so no new triage starts, then notifiers, ops and otel last
	// so shutdown itself is still observable
	stopFns := []stopFn{{"api http server", apiHTTPStop}}
	stopFns = append(stopFns, tri.stopFns()...)
	stopFns = append(stopFns,
		stopFn{"ops http server", opsHTTPStop},
		stopFn{"otel", shutdownOtelx},
	)
	stopAll(L, time.Duration(appCfg.ShutdownBudgetSeconds)*time.Second, stopFns)

	L.Info(context.Background(), "shutdown complete")
	return nil
}
