package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/agent"
	"github.com/runfleet/runfleet/pkg/config"
	"github.com/runfleet/runfleet/pkg/executor"
	"github.com/runfleet/runfleet/pkg/identity"
	_ "github.com/runfleet/runfleet/pkg/logutil"
	"github.com/runfleet/runfleet/pkg/util/contextutil"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to a YAML config file")
		serverURL     = flag.String("server", "", "controller base URL (e.g. http://controller:5000)")
		name          = flag.String("name", "", "client display name (defaults to the host name)")
		interval      = flag.Int("interval", 0, "poll interval in seconds")
		idFile        = flag.String("id-file", "", "identity file path")
		interpreter   = flag.String("interpreter", "", "interpreter for runpy and run actions")
		workDir       = flag.String("work-dir", "", "extraction directory for zipfile actions")
		actionTimeout = flag.Int("action-timeout", 0, "per-action timeout in seconds")
	)
	flag.Parse()

	logger := slog.Default()
	ctx := contextutil.SetupSignals(context.Background())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.With("err", err).Error("failed to load config file")
			os.Exit(1)
		}
		cfg = loaded
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *interval > 0 {
		cfg.PollIntervalSecs = *interval
	}
	if *idFile != "" {
		cfg.IdentityFile = *idFile
	}
	if *interpreter != "" {
		cfg.Interpreter = *interpreter
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *actionTimeout > 0 {
		cfg.ActionTimeoutSecs = *actionTimeout
	}
	if err := cfg.Validate(); err != nil {
		logger.With("err", err).Error("invalid configuration")
		os.Exit(1)
	}

	profile := agent.NewProfile(logger, cfg.Name)
	store := identity.NewStore(logger.With("component", "identity"), cfg.IdentityFile)

	exec := executor.New(executor.Config{
		Logger:        logger.With("component", "executor"),
		HTTPClient:    &http.Client{Timeout: 5 * time.Minute},
		Interpreter:   cfg.Interpreter,
		WorkDir:       cfg.WorkDir,
		ActionTimeout: cfg.ActionTimeout(),
	})

	client := agent.NewClient(agent.ClientConfig{
		Logger:    logger.With("component", "client"),
		ServerURL: cfg.ServerURL,
	})

	a := agent.New(agent.Config{
		Logger:       logger.With("component", "agent"),
		Controller:   client,
		Store:        store,
		Runner:       exec,
		Profile:      profile,
		PollInterval: cfg.PollInterval(),
	})

	if err := services.StartAndAwaitRunning(ctx, a); err != nil {
		logger.With("err", err).Error("failed to start agent")
		os.Exit(1)
	}
	logger.With("server", cfg.ServerURL).With("name", profile.Name).With("interval", cfg.PollInterval()).Info("runfleet agent starting...")

	<-ctx.Done()
	logger.Info("shutting down runfleet agent...")
	if err := services.StopAndAwaitTerminated(context.Background(), a); err != nil {
		logger.With("err", err).Error("failed to shutdown agent")
		os.Exit(1)
	}
}
