package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/dbtrace"
)

func TestShortenFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full path", "github.com/linnemanlabs/helpdesk/internal/ticket/pgstore.(*Store).GetTicket", "(*Store).GetTicket"},
		{"already short", "(*Store).GetTicket", "GetTicket"},
		{"empty string", "", ""},
		{"no dots", "main", "main"},
		{"no slashes", "pgstore.(*Store).GetTicket", "(*Store).GetTicket"},
		{"single segment", "foo.Bar", "Bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := shortenFuncName(tt.in)
			if got != tt.want {
				t.Errorf("shortenFuncName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindDBCallerAndHandler_FromTest(t *testing.T) {
	t.Parallel()

	caller, _ := findDBCallerAndHandler()
	if caller == "" {
		t.Error("expected a caller frame from the test stack")
	}
}

type recordingInner struct {
	started, ended int
}

func (r *recordingInner) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	r.started++
	return ctx
}

func (r *recordingInner) TraceQueryEnd(_ context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
	r.ended++
}

// Swaps the global dbtrace observer, so not parallel.
func TestLoggingTracer_RecordsStatsAndDelegates(t *testing.T) {
	inner := &recordingInner{}
	tr := wrapQueryTracer(inner)

	var got dbtrace.Query
	dbtrace.SetObserver(dbtrace.ObserverFunc(func(_ context.Context, q dbtrace.Query) { got = q }))
	defer dbtrace.SetObserver(nil)

	ctx := log.WithContext(context.Background(), log.Nop())
	ctx = dbtrace.NewReqStatsContext(ctx)
	ctx = dbtrace.WithHTTPMethod(ctx, "PUT")

	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{
		SQL:  "UPDATE tickets SET title = $2 WHERE id = $1",
		Args: []any{"t1", "x"},
	})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("UPDATE 1"),
		Err:        errors.New("deadlock detected"),
	})

	if inner.started != 1 || inner.ended != 1 {
		t.Errorf("inner tracer calls = %d/%d, want 1/1", inner.started, inner.ended)
	}

	stats, _ := dbtrace.ReqStatsFromContext(ctx)
	if stats.QueryCount != 1 || stats.ErrorCount != 1 {
		t.Errorf("stats = %+v, want 1 query with 1 error", stats)
	}

	if got.System != dbtrace.SystemPostgres || got.Method != "PUT" || got.Route != "unknown" || got.Outcome != "error" {
		t.Errorf("observer got %+v", got)
	}
}

func TestLoggingTracer_NilInner(t *testing.T) {
	t.Parallel()

	tr := wrapQueryTracer(nil)
	ctx := log.WithContext(context.Background(), log.Nop())
	ctx = dbtrace.NewReqStatsContext(ctx)

	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	stats, _ := dbtrace.ReqStatsFromContext(ctx)
	if stats.QueryCount != 1 || stats.ErrorCount != 0 {
		t.Errorf("stats = %+v, want 1 clean query", stats)
	}
}

func TestLoggingTracer_EndWithoutStart(t *testing.T) {
	t.Parallel()

	tr := wrapQueryTracer(nil)
	// must not panic when the start data is missing from ctx
	tr.TraceQueryEnd(log.WithContext(context.Background(), log.Nop()), nil, pgx.TraceQueryEndData{})
}
