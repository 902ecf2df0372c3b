package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rollingdoor-backend/coordinator"
	"rollingdoor-backend/handlers"
	"rollingdoor-backend/invite"
	"rollingdoor-backend/ledger"
	"rollingdoor-backend/mqtt"
	"rollingdoor-backend/session"
	"rollingdoor-backend/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket server, the expiry sweeper and the MQTT bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = uuid.NewString()
		slog.Warn("No JWT secret configured; using a random one, tokens will not survive a restart")
	}

	registry := session.NewRegistry()
	l := ledger.New(db)
	issuer := invite.NewIssuer(l, cfg.Access.InviteTTL)
	coord := coordinator.New(l, issuer, registry)

	h := handlers.New(db, coord, cfg.JWT, cfg.Session)
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handlers.NewRouter(h, registry),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down", "grace", cfg.HTTP.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// hijacked WebSocket connections are not tracked by Shutdown
		registry.CloseAll()
		return err
	})

	g.Go(func() error {
		return sweeper.New(l, cfg.Access.SweepInterval, cfg.Access.PendingTTL).Run(ctx)
	})

	if cfg.MQTT.Enabled() {
		bridge := mqtt.NewBridge(cfg.MQTT, cfg.Session.WriteTimeout, coord)
		g.Go(func() error {
			return bridge.Run(ctx)
		})
	} else {
		slog.Info("MQTT transport disabled (no broker configured)")
	}

	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
