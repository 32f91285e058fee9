package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/issuesync/internal/adapter/driven/github"
	"github.com/ericfisherdev/issuesync/internal/application"
	"github.com/ericfisherdev/issuesync/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the report.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := githubadapter.NewFactory(githubadapter.WithLogger(slog.Default()))
	svc := application.NewService(factory)

	return newRootCmd(svc, cfg).ExecuteContext(ctx)
}
