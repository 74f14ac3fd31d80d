package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/helpdesk/internal/cfg"
	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/ticket/memstore"
	"github.com/linnemanlabs/helpdesk/internal/ticket/sqlitestore"
)

func TestOpenStore_InMemoryByDefault(t *testing.T) {
	t.Parallel()

	st, closeFn, err := openStore(context.Background(), &vc.Config{}, log.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeFn()

	if _, ok := st.(*memstore.Store); !ok {
		t.Errorf("store = %T, want *memstore.Store", st)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "desk.db")

	st, closeFn, err := openStore(ctx, &vc.Config{SQLitePath: path}, log.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeFn()

	if _, ok := st.(*sqlitestore.Store); !ok {
		t.Fatalf("store = %T, want *sqlitestore.Store", st)
	}

	// the store is usable end to end through the ticket service
	svc := ticket.NewService(st, nil)
	v, err := svc.Create(ctx, &ticket.NewTicket{
		Title:         "Printer on fire",
		Description:   "Literally",
		CustomerEmail: "it@example.com",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok, err := svc.Get(ctx, v.ID); err != nil || !ok {
		t.Errorf("Get = ok:%v err:%v", ok, err)
	}
}

func TestOpenStore_BadPostgresURL(t *testing.T) {
	t.Parallel()

	_, _, err := openStore(context.Background(), &vc.Config{DatabaseURL: "not a url ://"}, log.Nop())
	if err == nil {
		t.Fatal("expected error for unparsable database url")
	}
	if !strings.Contains(err.Error(), "postgres pool") {
		t.Errorf("error = %q, want postgres pool context", err)
	}
}
