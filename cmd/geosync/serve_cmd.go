package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iota-uz/geosync/modules/geo/presentation/controllers"
	"github.com/iota-uz/geosync/pkg/application"
	"github.com/iota-uz/geosync/pkg/httpapi"
	"github.com/iota-uz/geosync/pkg/metrics"
	"github.com/iota-uz/geosync/pkg/middleware"
	"github.com/iota-uz/geosync/pkg/server"
)

func newServeCmd() *cobra.Command {
	var withRunner bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, optionally, the background staging runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			app := application.New(&application.ApplicationOptions{
				Pool:     rt.pool,
				EventBus: rt.bus,
			})
			app.RegisterMiddleware(
				middleware.Cors(rt.conf.Origin),
				middleware.WithLogger(rt.logger),
				middleware.WithPool(rt.pool),
			)
			app.RegisterControllers(
				controllers.NewGeoAPIController(rt.candidates, rt.reviews, rt.staging, rt.applier, rt.rollbacks, rt.geo),
			)
			if rt.conf.Prometheus.Enabled {
				app.RegisterControllers(metrics.NewPrometheusController(rt.conf.Prometheus.Path))
			}

			srv := server.NewHTTPServer(app, notFoundHandler(), methodNotAllowedHandler())

			if withRunner {
				go func() {
					if err := rt.runner.Run(rt.scoped(ctx)); err != nil && !errors.Is(err, context.Canceled) {
						rt.logger.WithError(err).Error("sync runner stopped")
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Infof("listening on %s", rt.conf.SocketAddress)
				errCh <- srv.Start(rt.conf.SocketAddress)
			}()

			select {
			case err := <-errCh:
				return errors.Wrap(err, "http server failed")
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&withRunner, "with-runner", true, "run the periodic staging runner alongside the API")
	return cmd
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "GEO_NOT_FOUND", "resource not found", nil)
	})
}

func methodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "GEO_METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
}
