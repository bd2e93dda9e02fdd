// Package app encapsulates the server components and lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"confessd/internal/retention"
	"confessd/pkg/board"
	"confessd/pkg/config"
	"confessd/pkg/engine"
	"confessd/pkg/logger"
	"confessd/pkg/outbox"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

// App wires the engine, outbox, board and HTTP surface.
type App struct {
	cfg     *config.Config
	version string

	client *tg.Client
	out    *outbox.Queue
	eng    *engine.Engine

	srv *http.Server
}

// New initializes resources that do not require a running context: the
// store, the platform client, the outbox, the engine. Call Run to start
// the workers and the HTTP server.
func New(cfg *config.Config, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	client := tg.New(cfg.Bot.Token, cfg.Bot.APIBase)
	out := outbox.New(cfg.Outbox.Capacity, cfg.Outbox.RPS, cfg.Outbox.Burst, client)
	b := board.New(cfg, out)
	eng := engine.New(cfg, client, b, out)

	return &App{cfg: cfg, version: version, client: client, out: out, eng: eng}, nil
}

// Run starts the outbox worker, the retention scheduler and the HTTP
// server, and blocks until ctx is canceled or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	a.out.Start(ctx)

	cancelRetention, err := retention.Start(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer cancelRetention()

	// startup credential probe; failure is logged, not fatal, so the
	// webhook stays up through transient platform outages
	if err := a.client.GetMe(); err != nil {
		logger.Warn("bot_identity_check_failed", "error", err)
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) shutdownHTTP() {
	if a.srv == nil {
		return
	}
	shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(shctx)
}
