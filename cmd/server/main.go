package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"webdir/internal/app"
	jwttoken "webdir/internal/jwt_token"
	"webdir/internal/platform/config"
	"webdir/internal/platform/httpserver"
	"webdir/internal/platform/logger"
	rankservice "webdir/internal/ranking/service"
	httptransport "webdir/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close backends", "error", err)
		}
	}()

	if cfg.Server.AdminToken == "" {
		log.Warn("WEBDIR_ADMIN_TOKEN is empty; health probe reports will be rejected")
	}

	handler := httptransport.NewHandler(httptransport.Services{
		Categories:  a.Categories,
		Sites:       a.Sites,
		Memberships: a.Memberships,
		Votes:       a.Votes,
		Ranking:     a.Ranking,
		Bubbling:    a.Bubbling,
		Moderators:  a.Trust,
	}, log)
	validator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer))
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		JWTValidator: validator,
		AdminToken:   cfg.Server.AdminToken,
		Metrics:      a.HTTPMetrics,
		Gatherer:     a.Registry,
		Logger:       log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.AuditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return rankservice.NewScheduler(a.Ranking, cfg.Ranking.Interval, log).Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting webdir", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	return g.Wait()
}
