package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/cmd/cmdutil"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/logger"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/migrations"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/server"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gradekeeper API server",
	Long:  `Starts the HTTP server exposing the grade, academic year, assignment, lesson and bricks endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Component("server")

		app, err := cmdutil.NewApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer app.Close()
		log.Info().Str("access_backend", cfg.Access.Backend).Msg("connected to database")

		if serveMigrate {
			group, err := migrations.Apply(cmd.Context(), app.DB)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			if !group.IsZero() {
				log.Info().Int64("group", group.ID).Msg("applied migrations")
			}
		}

		healthHandler := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := app.DB.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unavailable","access_backend":%q}`, cfg.Access.Backend)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok","access_backend":%q}`, cfg.Access.Backend)
		}

		handler := server.NewH2CHandler(server.RouterOptions{
			Grades:      app.Grades,
			Years:       app.Years,
			Assignments: app.Assignments,
			Lessons:     app.Lessons,
			Ledger:      app.Ledger,
			Gate:        app.Gate,
			Resolver: identity.NewResolver(identity.ClaimsConfig{
				UserIDClaim: cfg.Identity.UserIDClaim,
				RoleClaim:   cfg.Identity.RoleClaim,
			}),
			Cookies:       app.Cookies,
			Logger:        logger.Component("http"),
			HealthHandler: healthHandler,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.ServerAddr).Msg("starting server")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
		}

		log.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
