package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"authchain/internal/chain/handler"
	"authchain/internal/platform/config"
	"authchain/internal/platform/httpserver"
	"authchain/internal/platform/logger"
	"authchain/internal/platform/metrics"
	"authchain/internal/platform/middleware"
	"authchain/internal/platform/tracing"
	"authchain/pkg/platform/httputil"
	"authchain/pkg/platform/middleware/metadata"
	"authchain/pkg/platform/middleware/requesttime"
)

// main parses configuration and runs the server until SIGINT or SIGTERM.
// Wiring lives in wiring.go; business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close(log)

	app, err := buildApp(cfg, infra, log)
	if err != nil {
		return err
	}
	defer app.audit.Close()

	srv := httpserver.New(cfg.Server, newRouter(cfg, infra, app, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting authchain", "addr", cfg.Server.Addr, "state_store", cfg.Server.StateStore)
		err := httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout)
		log.Info("server stopped")
		return err
	})
	if app.purger != nil {
		g.Go(func() error {
			purgeExpired(gctx, app.purger, cfg.Chain.PurgeInterval, log)
			return nil
		})
	}
	return g.Wait()
}

func newRouter(cfg *config.Config, infra *infra, app *app, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(middleware.LatencyMiddleware(metrics.New()))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := infra.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	handler.New(app.service, app.oauth, log).Register(r)
	return r
}

// purgeExpired drops idle states from stores that have no native expiry.
func purgeExpired(ctx context.Context, p purger, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.WarnContext(ctx, "failed to purge expired states", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "purged expired states", "count", n)
			}
		}
	}
}
