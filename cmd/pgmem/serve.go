package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pgmem/internal/metrics"
	"pgmem/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept PostgreSQL clients over TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "127.0.0.1:5432", "address for PostgreSQL clients")
	flags.Int("max-connections", 100, "maximum concurrent client connections")
	flags.String("metrics-addr", "", "address for the Prometheus /metrics endpoint; empty disables it")
	flags.Bool("shared-catalog", true, "let all connections share one database")
	_ = a.v.BindPFlag("server.listen_addr", flags.Lookup("listen"))
	_ = a.v.BindPFlag("server.max_connections", flags.Lookup("max-connections"))
	_ = a.v.BindPFlag("server.metrics_addr", flags.Lookup("metrics-addr"))
	_ = a.v.BindPFlag("engine.shared_catalog", flags.Lookup("shared-catalog"))
	return cmd
}

// serve runs the wire server and the metrics endpoint until ctx is done or
// either of them fails.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	srv, err := server.New(server.Options{
		MaxConnections: cfg.Server.MaxConnections,
		SharedCatalog:  cfg.Engine.SharedCatalog,
		ServerVersion:  cfg.Engine.ServerVersion,
		Logger:         slog.Default(),
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.ListenAddr)
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		hs := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	return g.Wait()
}
