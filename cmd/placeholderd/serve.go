package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-placeholder-bus/metrics"
	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer placeholder requests with the built-in providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	b, cleanup, err := a.openBus()
	if err != nil {
		return err
	}
	defer cleanup()

	opts := a.apiOptions()

	var srv *http.Server

	if a.cfg.Metrics.Enabled {
		col, err := metrics.New(nil)
		if err != nil {
			return err
		}

		opts = append(opts, placeholder.WithObserver(col))

		mux := http.NewServeMux()
		mux.Handle("/metrics", col.Handler())
		srv = &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	api := placeholder.New(b, a.logger, opts...)
	registerDemo(api.Registry(), time.Now(), time.Now)

	if err := api.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("serving placeholders",
		"namespace", api.Namespace(),
		"transport", a.cfg.Transport,
		"ids", strings.Join(api.Registry().IDs(), ","),
	)

	<-ctx.Done()

	a.logger.Info("shutting down")

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(sctx)
	}

	return api.Close()
}
