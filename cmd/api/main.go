package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/ai"
	"github.com/aman-zulfiqar/solana-npi-router/internal/app"
	"github.com/aman-zulfiqar/solana-npi-router/internal/config"
	"github.com/aman-zulfiqar/solana-npi-router/internal/server"
)

// main is the entry point for the API server.
// It assembles the router and its backends and serves HTTP until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", os.Getenv("NPI_CONFIG"), "Path to configuration file")
	flag.Parse()

	// load .env BEFORE anything reads the environment
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using system environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize router")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}()
	a.Start(ctx)

	aiBase := ai.AgentConfig{
		ClickHouse:       cfg.ClickHouse,
		OpenRouterAPIKey: cfg.AI.OpenRouterAPIKey,
		Model:            cfg.AI.Model,
		Logger:           logger,
	}

	h := &server.Handlers{
		Router:       a.Router,
		Tokens:       a.Tokens,
		AIBaseConfig: aiBase,
		Metrics:      a.Metrics,
		DevMode:      cfg.API.DevMode,
		Logger:       logger,
	}
	// interface fields stay nil when the backend is not configured
	if a.Switches != nil {
		h.Switches = a.Switches
	}
	if a.Ledger != nil {
		h.Ledger = a.Ledger
	}

	if cfg.AI.OpenRouterAPIKey != "" && cfg.ClickHouse.Addr != "" {
		agent, err := ai.NewAgent(ctx, aiBase)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize ai agent")
		} else {
			h.AI = agent
			defer func() { _ = agent.Close() }()
		}
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.API.Addr,
			DevMode: cfg.API.DevMode,
			APIKey:  cfg.API.APIKey,
		},
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithFields(logrus.Fields{
		"addr":   cfg.API.Addr,
		"venues": len(a.Router.Venues()),
	}).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("server did not close cleanly")
	}
}
