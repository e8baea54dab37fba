package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/roomchat/internal/gateway"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional KEY=VALUE file loaded before reading the environment")
	flag.Parse()

	if err := server.LoadEnvFile(*envFile); err != nil {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	cfg := server.SetConfig(server.NewConfigFromEnv())
	logger := server.NewLogger(&cfg)
	slog.SetDefault(logger)

	identity, err := server.NewIdentityResolver(&cfg)
	if err != nil {
		logger.Error("invalid identity configuration", "error", err)
		os.Exit(1)
	}
	if _, anonymous := identity.(server.AnonymousResolver); anonymous {
		logger.Warn("JWT_SECRET_KEY not set; trusting userId sent in payloads")
	}

	gw := gateway.New(logger, gateway.WithStrictRouting(cfg.StrictRouting))
	hub := server.NewHub(gw, logger)
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, identity))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		exitCode = 1
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error("hub shutdown incomplete", "error", err)
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}
