package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/dbtrace"
)

type queryKey struct{}

// queryInfo is stashed by TraceQueryStart for TraceQueryEnd.
type queryInfo struct {
	sql     string
	nargs   int
	start   time.Time
	caller  string
	handler string
}

// minQueryLogDuration controls the threshold for logging successful
// queries. 0 means log all queries.
const minQueryLogDuration = 0 * time.Millisecond

// loggingTracer wraps another pgx.QueryTracer (otelpgx) and adds a
// structured log line plus dbtrace accounting for every query. Query
// arguments are never logged: they carry customer emails and ticket text.
type loggingTracer struct {
	inner pgx.QueryTracer
}

// wrapQueryTracer wraps an inner tracer with structured logging.
func wrapQueryTracer(inner pgx.QueryTracer) pgx.QueryTracer {
	return loggingTracer{inner: inner}
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qi := &queryInfo{
		sql:   data.SQL,
		nargs: len(data.Args),
		start: time.Now(),
	}

	// Caller/handler come from the app call stack, once per query.
	qi.caller, qi.handler = findDBCallerAndHandler()

	// Let inner tracer (otelpgx) create its span first.
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, 2)
		if qi.caller != "" {
			attrs = append(attrs, attribute.String("db.caller", qi.caller))
		}
		if qi.handler != "" {
			attrs = append(attrs, attribute.String("db.handler", qi.handler))
		}
		span.SetAttributes(attrs...)
	}

	return context.WithValue(ctx, queryKey{}, qi)
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	// inner first so its span is finished before we log
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qi, ok := ctx.Value(queryKey{}).(*queryInfo)
	if !ok {
		qi = &queryInfo{}
	}

	var dur time.Duration
	if !qi.start.IsZero() {
		dur = time.Since(qi.start)
	}

	dbtrace.Record(ctx, dbtrace.SystemPostgres, dur, data.Err)

	if minQueryLogDuration > 0 && dur < minQueryLogDuration && data.Err == nil {
		return
	}

	fields := []any{
		"db.statement", qi.sql,
		"db.arg_count", qi.nargs,
		"db.duration", dur.Seconds(),
	}

	tag := strings.TrimSpace(data.CommandTag.String())
	if tag != "" {
		if op, _, _ := strings.Cut(tag, " "); op != "" {
			fields = append(fields, "db.operation.name", strings.ToUpper(op))
		}
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}
	if qi.caller != "" {
		fields = append(fields, "db.caller", qi.caller)
	}
	if qi.handler != "" {
		fields = append(fields, "db.handler", qi.handler)
	}

	L := log.FromContext(ctx)

	if data.Err == nil {
		L.Info(ctx, "db query", fields...)
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields,
			"db.error_code", pgErr.Code,
			"db.error_constraint", pgErr.ConstraintName,
		)
	}
	L.Error(ctx, data.Err, "db query failed", fields...)
}

// findDBCallerAndHandler walks the stack to find:
//   - caller: the store method actually issuing the query
//   - handler: the next meaningful frame above that (service or HTTP handler)
func findDBCallerAndHandler() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function

		switch {
		case fn == "":
		case strings.HasPrefix(fn, "runtime."),
			strings.Contains(fn, "github.com/jackc/pgx/v5"),
			strings.Contains(fn, "github.com/exaring/otelpgx"),
			strings.Contains(fn, "loggingTracer.TraceQuery"):
			// noise
		case caller == "":
			caller = shortenFuncName(fn)
		case strings.Contains(fn, "/internal/ticket/pgstore."):
			// store helpers (inTx, insertActivity) above the caller
		default:
			return caller, shortenFuncName(fn)
		}

		if !more {
			return caller, handler
		}
	}
}

func shortenFuncName(fn string) string {
	// Trim package path.
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	// Trim package name, keep receiver + method.
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
