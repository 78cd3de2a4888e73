package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantrail/autoscaler/api"
	"github.com/quantrail/autoscaler/internal/collector"
	"github.com/quantrail/autoscaler/internal/executor"
	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/internal/notifier"
	"github.com/quantrail/autoscaler/internal/orchestrator"
	"github.com/quantrail/autoscaler/pkg/config"
	"github.com/quantrail/autoscaler/pkg/database"
	"github.com/quantrail/autoscaler/pkg/database/queries"
	"github.com/quantrail/autoscaler/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	db, err := database.New(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Name:            cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		MaxConnections:  cfg.Database.MaxConnections,
		SSLMode:         cfg.Database.SSLMode,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		PingTimeout:     cfg.Database.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	logger.Info("Database connection established")

	if *migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		logger.Info("Running database migrations")
		migrator := database.NewMigrator(db)
		if err := migrator.Run(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Migrations completed successfully")
		return nil
	}

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return err
	}

	orc := orchestrator.New(cfg, orchestrator.Options{
		Source: collector.NewHTTPSnapshotSource(collector.HTTPSnapshotSourceConfig{
			Endpoint: cfg.Collector.Endpoint,
			Timeout:  cfg.Collector.Timeout,
		}),
		Evaluator: metricsource.NewHTTPEvaluator(metricsource.HTTPEvaluatorConfig{
			QueryURL:      cfg.Collector.QueryURL,
			Timeout:       cfg.Collector.Timeout,
			RetryAttempts: cfg.Collector.RetryAttempts,
			CBMaxFailures: cfg.Collector.CircuitBreaker.MaxFailures,
			CBTimeout:     cfg.Collector.CircuitBreaker.Timeout,
		}),
		Adapter: adapter,
		Store:   queries.NewScalingEventRepository(db.DB),
	})
	orc.Start()
	defer orc.Stop()

	if cfg.Notifier.Enabled {
		n := notifier.New(notifier.Config{
			Enabled:       true,
			WebhookURL:    cfg.Notifier.WebhookURL,
			SlackURL:      cfg.Notifier.SlackURL,
			Timeout:       cfg.Notifier.Timeout,
			RetryAttempts: cfg.Notifier.RetryAttempts,
		})
		n.Start(orc.SubscribeAllEvents())
	}

	server := api.NewServer(cfg.API, cfg.Metrics.Enabled, db, orc)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func buildAdapter(cfg *config.Config) (executor.Adapter, error) {
	switch cfg.Executor.Type {
	case "simulator", "":
		sim := executor.NewSimulatorAdapter(cfg.Executor.ProvisionTime, nil)
		for _, service := range models.MonitoredServices(cfg.Rules) {
			sim.Seed(service, cfg.Limits.MinInstances)
		}
		return sim, nil
	case "http":
		if cfg.Executor.Endpoint == "" {
			return nil, fmt.Errorf("executor.endpoint required for http executor")
		}
		return executor.NewHTTPAdapter(cfg.Executor.Endpoint, cfg.Executor.Timeout, cfg.Executor.RetryAttempts), nil
	default:
		return nil, fmt.Errorf("unknown executor type %q", cfg.Executor.Type)
	}
}
