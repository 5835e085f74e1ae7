package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/EvanUsesRust/gb-emu/internal/claims"
	"github.com/EvanUsesRust/gb-emu/internal/server"
	"github.com/EvanUsesRust/gb-emu/internal/store"
)

// serverShutdownTimeout is how long in-flight requests get to drain on
// SIGINT/SIGTERM before the listener is torn down.
const serverShutdownTimeout = 10 * time.Second

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the file/auth server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	if err := loadedCfg.ValidateServer(); err != nil {
		return err
	}

	logger := buildLogger()

	resolver := claims.NewResolver(claims.NewCodec([]byte(loadedCfg.Server.JWTSecret)))
	roms := store.New(loadedCfg.Server.RomDir, logger)
	saves := store.New(loadedCfg.Server.SaveDir, logger)
	handler := server.New(roms, saves, resolver, logger)

	srv := &http.Server{
		Addr:              loadedCfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening",
			slog.String("addr", loadedCfg.Server.Listen),
			slog.String("rom_dir", loadedCfg.Server.RomDir),
			slog.String("save_dir", loadedCfg.Server.SaveDir),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
