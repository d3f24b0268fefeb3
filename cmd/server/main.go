package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/kikitori/external/config"
	"github.com/foxseedlab/kikitori/external/discord"
	recognizerimpl "github.com/foxseedlab/kikitori/external/recognizer"
	repositoryimpl "github.com/foxseedlab/kikitori/external/repository"
	webhookimpl "github.com/foxseedlab/kikitori/external/webhook"
	"github.com/foxseedlab/kikitori/external/websocket"
	"github.com/foxseedlab/kikitori/internal/config"
	discordpkg "github.com/foxseedlab/kikitori/internal/discord"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/foxseedlab/kikitori/internal/relay"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "backend", cfg.RecognizerBackend)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	if err := run(cfg, injector); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	recognizerimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	relay.RegisterDI(injector)
	session.RegisterDI(injector)
	websocket.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) error {
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		return err
	}
	captions, err := do.Invoke[*relay.Dispatcher](injector)
	if err != nil {
		return err
	}
	handler, err := do.Invoke[http.Handler](injector)
	if err != nil {
		return err
	}
	defer closeResources(cfg, injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	manager.CloseOrphanedSessions(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// captions keep flowing until every session has run its final pass
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.ListenAddr, "run_id", manager.RunID(), "caption_relay", captions.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return captions.Run(relayCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "active_sessions", manager.ActiveSessions())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", "error", err)
		}
		interrupted := manager.CloseAll()
		if err := manager.Wait(shutdownCtx); err != nil {
			slog.Error("sessions did not finish before shutdown deadline", "error", err, "interrupted", interrupted)
		}
		stopRelay()
		return nil
	})
	return g.Wait()
}

func closeResources(cfg *config.Config, injector do.Injector) {
	if rec, err := do.Invoke[recognizer.Recognizer](injector); err == nil {
		if c, ok := rec.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Error("recognizer close failed", "error", err)
			}
		}
	}
	if !cfg.CaptionRelayEnabled() {
		return
	}
	if dc, err := do.Invoke[discordpkg.Client](injector); err == nil {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}
}
