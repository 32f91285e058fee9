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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/issuesync/internal/adapter/driven/github"
	httphandler "github.com/ericfisherdev/issuesync/internal/adapter/driving/http"
	"github.com/ericfisherdev/issuesync/internal/application"
	"github.com/ericfisherdev/issuesync/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Install the JSON logger; the level can change on reload.
	var level slog.LevelVar
	level.Set(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"api_url", cfg.APIURL,
		"owner", cfg.Owner,
		"repo", cfg.Repo,
		"project_title", cfg.ProjectTitle,
		"request_timeout", cfg.RequestTimeout,
		"max_retries", cfg.MaxRetries,
		"token_configured", cfg.HasGitHubToken(),
	)
	if !cfg.HasGitHubToken() {
		slog.Warn("no github token configured, only unauthenticated reads will succeed")
	}

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Settings provider for hot reload on SIGHUP.
	provider := application.NewSettingsProvider(cfg.RunSettings(), requestDefaults(cfg))
	go reloadOnHangup(ctx, provider, &level)

	// 5. Wire the tracker factory and core service.
	factory := githubadapter.NewFactory(githubadapter.WithLogger(slog.Default()))
	svc := application.NewService(factory)

	// 6. Create HTTP handler with all routes and middleware.
	apiHandler := httphandler.NewHandler(svc, provider, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Sync runs may take minutes on large request lists.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("issuesync started", "listen_addr", cfg.ListenAddr)

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 8. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// reloadOnHangup re-reads the configuration on SIGHUP and swaps the run
// settings, request defaults and log level. A failed reload keeps the
// previous values.
func reloadOnHangup(ctx context.Context, provider *application.SettingsProvider, level *slog.LevelVar) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load()
			if err != nil {
				slog.Error("config reload failed, keeping previous settings", "error", err)
				continue
			}
			provider.Replace(cfg.RunSettings(), requestDefaults(cfg))
			level.Set(cfg.LogLevel)
			slog.Info("config reloaded",
				"owner", cfg.Owner,
				"repo", cfg.Repo,
				"project_title", cfg.ProjectTitle,
				"token_configured", cfg.HasGitHubToken(),
			)
		}
	}
}

func requestDefaults(cfg *config.Config) application.RequestDefaults {
	return application.RequestDefaults{
		Owner:        cfg.Owner,
		Repo:         cfg.Repo,
		ProjectTitle: cfg.ProjectTitle,
	}
}
