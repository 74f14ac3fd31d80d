package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// waitForDrain blocks for d so the load balancer sees the closed gate and
// in-flight requests finish. A value on force ends the wait early.
func waitForDrain(L log.Logger, d time.Duration, force <-chan os.Signal) {
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", d.Seconds())
	select {
	case <-time.After(d):
		L.Info(context.Background(), "drain period complete")
	case <-force:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

// stopAll stops components in order. Each gets an equal slice of budget,
// and the whole sequence never exceeds it. Nil entries are skipped. It
// returns the number of components that failed to stop cleanly.
func stopAll(L log.Logger, budget time.Duration, fns []stopFn) int {
	var live []stopFn
	for _, s := range fns {
		if s.fn != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return 0
	}

	perComponent := budget / time.Duration(len(live))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	failed := 0
	for _, s := range live {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			failed++
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}
	return failed
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
