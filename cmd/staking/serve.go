package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakingRewards/internal/api"
)

const (
	serverReadTimeout     = 10 * time.Second
	serverWriteTimeout    = 30 * time.Second
	serverIdleTimeout     = 60 * time.Second
	serverShutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// A pinned time would freeze accrual for the life of the server.
			cfg.At = 0
			return withBackendConfig(cmd, cfg, func(ctx context.Context, _ *cobra.Command, b *backend, logger *zap.Logger) error {
				return serve(ctx, cfg.Listen, b, logger)
			})
		},
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	return cmd
}

func serve(ctx context.Context, addr string, b *backend, logger *zap.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(b.ledger, logger),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server start", zap.String("listen", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
