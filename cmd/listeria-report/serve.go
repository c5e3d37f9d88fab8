package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/listeria.report/internal/api"
	"github.com/banshee-data/listeria.report/internal/auth"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/version"
)

const shutdownTimeout = 5 * time.Second

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address (default :8080)")
	_ = a.v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	return cmd
}

// buildHandler wires the dashboard, the database admin routes and request
// logging into one handler.
func (a *app) buildHandler(ctx context.Context) (http.Handler, func(), error) {
	database, err := a.openDB()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := a.openStore(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	cleanup := func() {
		closeStore()
		if err := database.Close(); err != nil {
			monitoring.Logf("failed to close database: %v", err)
		}
	}

	secret := []byte(a.cfg.SessionSecret)
	if len(secret) == 0 {
		monitoring.Logf("no session_secret configured, sessions will not survive a restart")
		secret = auth.GenerateSecret()
	}
	sessions, err := auth.NewSessionManager(secret, a.cfg.GetSessionTTL(), a.cfg.SecureCookies, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	metrics, err := monitoring.NewMetrics()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	srv := api.NewServer(store, &auth.PasswordAuthenticator{Users: database}, sessions, metrics, a.cfg, nil)

	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		monitoring.Logf("admin routes disabled: %v", err)
	}
	mux.Handle("/", srv.ServeMux())
	return api.LoggingMiddleware(mux), cleanup, nil
}

func (a *app) serve(ctx context.Context) error {
	handler, cleanup, err := a.buildHandler(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:              a.cfg.GetListen(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		monitoring.Logf("%s listening on %s", version.String(), server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		server.Close()
	}
	monitoring.Logf("HTTP server stopped")
	return nil
}
