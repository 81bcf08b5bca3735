package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsys-id/finance-api/config"
	"github.com/finsys-id/finance-api/repository"
	"github.com/finsys-id/finance-api/server"
	service_registry "github.com/finsys-id/finance-api/srvreg"
	"github.com/finsys-id/finance-api/token"

	"go.uber.org/zap"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the TOML config file (optional)")
}

func main() {
	// Load Config
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Creating logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	// Connect Postgresql DB
	repo := repository.NewRepository(logger)
	if err := repo.ConnectDB(cfg.PostgresDSN); err != nil {
		logger.Fatalw("Connecting to database", "err", err)
	}
	if err := repo.Migrate(); err != nil {
		logger.Fatalw("Migrating database", "err", err)
	}
	if cfg.SeedData {
		if err := repo.Seed(); err != nil {
			logger.Fatalw("Seeding database", "err", err)
		}
	}

	tokens := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer)

	// Initialize Service Registry
	serviceRegistry := service_registry.NewServiceRegistry(repo, tokens, logger)
	serviceRegistry.RegisterDefaultServices()

	// Start Web Server
	limiter := server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst)
	webserver := server.NewWebServer(cfg.HTTPPort, logger, serviceRegistry, repo, tokens, limiter)
	if err := webserver.Start(); err != nil {
		logger.Fatalw("Starting HTTP server", "err", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	// Create deadline to wait for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(ctx); err != nil {
		logger.Errorw("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}
