package main

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/helpdesk/internal/cfg"
	"github.com/linnemanlabs/helpdesk/internal/postgres"
	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/ticket/memstore"
	"github.com/linnemanlabs/helpdesk/internal/ticket/pgstore"
	"github.com/linnemanlabs/helpdesk/internal/ticket/sqlitestore"
)

// storeKind names the store openStore will pick.
func storeKind(appCfg *vc.Config) string {
	switch {
	case appCfg.DatabaseURL != "":
		return "postgres"
	case appCfg.SQLitePath != "":
		return "sqlite"
	default:
		return "memory"
	}
}

// openStore picks the ticket store from config: postgres, then sqlite,
// then in-memory. The returned close func is never nil.
func openStore(ctx context.Context, appCfg *vc.Config, L log.Logger) (ticket.Store, func(), error) {
	switch storeKind(appCfg) {
	case "postgres":
		pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		st, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres store")
		return st, pool.Close, nil

	case "sqlite":
		st, err := sqlitestore.New(ctx, appCfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlitestore init: %w", err)
		}
		L.Info(ctx, "using sqlite store", "path", appCfg.SQLitePath)
		return st, func() {
			if err := st.Close(); err != nil {
				L.Error(ctx, err, "failed to close sqlite store")
			}
		}, nil

	default:
		L.Info(ctx, "using in-memory store (no database-url or sqlite-path configured)")
		return memstore.New(), func() {}, nil
	}
}
