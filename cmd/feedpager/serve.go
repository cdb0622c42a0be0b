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

	"github.com/goliatone/go-repository-pager/pkg/config"
	"github.com/goliatone/go-repository-pager/pkg/di"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(configPath *string) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the invalidation worker",
		Long:  "Consume feed mutation events, evict cached pages and serve /metrics and /healthz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			container, err := di.NewContainer(*cfg)
			if err != nil {
				return err
			}
			defer container.Close()
			logger := container.Logger()

			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()
			g, gctx := errgroup.WithContext(ctx)

			if runner := container.Runner(); runner != nil {
				g.Go(func() error {
					return runner.Run(gctx)
				})
			}

			if cfg.Invalidation.Enabled {
				listener, err := container.NewListener()
				if err != nil {
					return err
				}
				defer listener.Close()
				g.Go(func() error {
					return listener.Run(gctx)
				})
			} else {
				logger.Warn("invalidation disabled, cached pages expire by ttl only")
			}

			httpServer := &http.Server{
				Addr:              cfg.Metrics.Addr,
				Handler:           newMux(container, cfg.Metrics.Enabled),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				logger.Info("feedpager started", "addr", cfg.Metrics.Addr, "invalidation", cfg.Invalidation.Enabled)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(sctx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}

func newMux(container *di.Container, metrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	if metrics {
		mux.Handle("/metrics", container.Metrics().Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := container.Ping(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func loadContainer(configPath string) (*di.Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return di.NewContainer(*cfg)
}

func exitOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
