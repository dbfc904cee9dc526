package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/refineloop/internal/server"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes the refine loop as a JSON API with NDJSON streaming, memory purge and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = envCfg.HTTPAddr
		}

		a, err := buildApp(cmd.Context(), envCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := &http.Server{
			Addr: addr,
			Handler: server.NewHandler(&server.Server{
				Runner:   a.runner,
				Memory:   a.memory,
				Audit:    a.audit,
				Gatherer: a.registry,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logx.Info().Str("addr", srv.Addr).Msg("http server listening")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-shutdown:
			logx.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logx.Warn().Err(err).Dur("timeout", shutdownTimeout).Msg("graceful shutdown did not complete")
				return srv.Close()
			}
			logx.Info().Msg("http server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (defaults to HTTP_ADDR)")
}
