// cmd/api/main.go
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

	scs "github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/finboard/internal/auth"
	"github.com/briangreenhill/finboard/internal/backend"
	"github.com/briangreenhill/finboard/internal/budget"
	"github.com/briangreenhill/finboard/internal/config"
	"github.com/briangreenhill/finboard/internal/finance"
	"github.com/briangreenhill/finboard/internal/http/routes"
	"github.com/briangreenhill/finboard/internal/workspace"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}
	logger.Info().Str("port", cfg.Port).Str("api_url", cfg.APIURL).Msg("starting finboard")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger backend
	gw, err := backend.New(
		backend.WithBaseURL(cfg.APIURL),
		backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		backend.WithLogger(logger.With().Str("component", "backend").Logger()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend client")
	}

	// Budgets
	budgets, err := openBudgets(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("budget store")
	}
	defer budgets.Close()

	// One cache and live channel per signed-in user
	spaces := workspace.NewManager(gw,
		workspace.WithLiveURL(cfg.LiveURL),
		workspace.WithRetryDelay(cfg.LiveRetryDelay),
		workspace.WithLogger(logger.With().Str("component", "workspace").Logger()),
		workspace.WithServiceOptions(finance.WithPageSize(cfg.PageSize), finance.WithFreshReads()),
	)
	defer spaces.Close()
	go spaces.Run(ctx, time.Minute, cfg.WorkspaceIdle)

	// Sessions
	sess := scs.New()
	sess.Lifetime = cfg.SessionLifetime
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = strings.HasPrefix(cfg.BaseURL, "https://")

	// Router / server
	authn := auth.Authenticator{Logger: logger.With().Str("component", "auth").Logger(), OTP: gw}
	if cfg.HasCredentials() {
		authn.Creds = cfg.Credentials()
	}
	s, err := routes.New(routes.ServerOptions{
		Sess:    sess,
		Auth:    authn,
		Spaces:  spaces,
		Budgets: budgets,
		Cfg:     cfg,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("routes")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           sess.LoadAndSave(s.Router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("listen")
	}
	logger.Info().Msg("stopped")
}

func openBudgets(ctx context.Context, cfg config.Config) (budget.Store, error) {
	if cfg.DatabaseURL != "" {
		return budget.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return budget.OpenSQLite(ctx, cfg.BudgetDSN)
}
