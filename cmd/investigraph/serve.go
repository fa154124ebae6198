package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/investigraph/investigraphtest"
	"github.com/custodia-labs/investigraph/internal/adapters/driving/http"
	"github.com/custodia-labs/investigraph/internal/config"
)

// Credentials of the account created by serve -demo
const (
	demoUsername = "demo"
	demoPassword = "demo"
)

func cmdServe(ctx context.Context, a *app, args []string, std stdio) error {
	fs := newFlagSet("serve", std)
	demo := fs.Bool("demo", false, "run against an in-memory backend")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *demo {
		demoApp, stop, err := startDemo(ctx, a)
		if err != nil {
			return err
		}
		defer stop()
		a = demoApp
		fmt.Fprintf(std.out, "Demo backend at %s (login %s / %s)\n", a.cfg.API.URL, demoUsername, demoPassword)
	}

	server := http.NewServer(http.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		Version:     version,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Logger:      a.logger,
	}, a.auth, a.documents, a.views, a.client)

	// A session restored from disk gets its dashboard running right away
	if _, err := a.sessions.Current(); err == nil {
		if err := a.dashboard.Mount(ctx); err != nil {
			a.logger.Warn("dashboard mount failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.dashboard.Unmount()
		return nil
	})

	fmt.Fprintf(std.out, "Listening on http://%s\n", server.Addr())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startDemo runs an in-memory backend seeded with a demo account and
// returns an app wired to it. Sessions are kept in a throwaway directory.
func startDemo(ctx context.Context, base *app) (*app, func(), error) {
	backend := investigraphtest.NewBackend()
	if err := backend.AddUser(demoUsername, "demo@investigraph.local", demoPassword); err != nil {
		return nil, nil, fmt.Errorf("seed demo user: %w", err)
	}
	for _, name := range []string{"AAPL_10-K.pdf", "MSFT_10-K.pdf"} {
		if _, err := backend.AddDocument(demoUsername, name); err != nil {
			return nil, nil, fmt.Errorf("seed demo document: %w", err)
		}
	}
	srv := investigraphtest.Serve(backend)

	dir, err := os.MkdirTemp("", "investigraph-demo-")
	if err != nil {
		srv.Close()
		return nil, nil, err
	}

	cfg := *base.cfg
	cfg.API.URL = srv.URL
	cfg.Session = config.SessionConfig{
		Backend: config.BackendFile,
		Path:    filepath.Join(dir, "session.json"),
	}

	a, err := newApp(ctx, &cfg, base.logger.With("mode", "demo"))
	if err != nil {
		srv.Close()
		_ = os.RemoveAll(dir)
		return nil, nil, err
	}

	stop := func() {
		a.close()
		srv.Close()
		if err := os.RemoveAll(dir); err != nil {
			base.logger.Debug("remove demo dir failed", "error", err)
		}
	}
	return a, stop, nil
}
