package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tabulardb/tabular/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingestion and query service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := openService()
		if err != nil {
			return err
		}
		defer func() {
			svc.Close()
			_ = store.Close()
		}()

		logger := slog.Default()
		server := &http.Server{
			Addr:              viper.GetString("server.addr"),
			Handler:           api.NewServer(svc, logger).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving", "addr", server.Addr, "db", viper.GetString("db.path"))
			errCh <- server.ListenAndServe()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-stop:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}
