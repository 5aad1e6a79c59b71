package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"collabchat/pkg/auth"
	"collabchat/pkg/config"
	"collabchat/pkg/janitor"
	"collabchat/pkg/live"
	"collabchat/pkg/logger"
	"collabchat/pkg/messages"
	"collabchat/pkg/security"
	"collabchat/pkg/store"

	"github.com/valyala/fasthttp"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	addr      string
	version   string
	commit    string
	buildDate string

	hub     *live.Hub
	limiter *auth.LimiterPool
	srv     *fasthttp.Server

	stopJanitor context.CancelFunc
}

// New initializes resources that do not require a running context: store,
// cipher key, live hub and the message-to-live wiring. Call Run to start
// the HTTP server and block until shutdown.
func New(cfg *config.Config, addr, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := security.SetKeyHex(cfg.Security.EncryptionKeyHex); err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	hub := live.NewHub(live.Options{
		MaxOfflinePerParticipant: cfg.Live.MaxOfflinePerParticipant,
		OfflineTTL:               cfg.OfflineTTL(),
		TypingTTL:                cfg.TypingTTL(),
		SendBuffer:               cfg.Live.SendBuffer,
	})
	messages.SetPublisher(hub)

	a := &App{
		cfg:       cfg,
		addr:      addr,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		hub:       hub,
		limiter:   auth.NewLimiterPool(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst),
	}
	return a, nil
}

// Run starts the janitor and the HTTP server and blocks until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Janitor.Enabled {
		cancel, err := janitor.Start(ctx, a.hub, a.cfg.Janitor.Cron)
		if err != nil {
			return err
		}
		a.stopJanitor = cancel
	}

	logger.Info("server_starting", "addr", a.addr, "version", a.version, "commit", a.commit, "built", a.buildDate,
		"encryption", security.Enabled())

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.srv != nil {
		_ = a.srv.Shutdown()
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "err", err)
	}
	logger.Info("server_stopped")
}
