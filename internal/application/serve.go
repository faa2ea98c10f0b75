package application

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetsmith/internal/web"
)

// Serve runs the HTTP server and the session janitor until ctx is
// cancelled, then drains in-flight work and shuts down within the
// configured timeout.
func (a *App) Serve(ctx context.Context) error {
	server := web.NewServer(a.Service, a.Config)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Service.Store().RunJanitor(gctx, a.Config.Session.JanitorInterval)
		return nil
	})

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active uploads and provider calls to complete
		if status := a.Limiter.Status(); status.Active > 0 {
			slog.Info("waiting for in-flight work", "active", status.Active)
			if err := a.Limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("in-flight work did not complete in time", "error", err)
			} else {
				slog.Info("all in-flight work completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	slog.Info("server stopped", "sessions", a.Service.Store().Len())
	return err
}
