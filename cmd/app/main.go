package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/api"
	"github.com/AbdulWasayUl/go-weather-etl/internal/backup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/channels"
	"github.com/AbdulWasayUl/go-weather-etl/internal/config"
	"github.com/AbdulWasayUl/go-weather-etl/internal/db"
	"github.com/AbdulWasayUl/go-weather-etl/internal/extract"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/internal/mcptools"
	"github.com/AbdulWasayUl/go-weather-etl/internal/pipeline"
	"github.com/AbdulWasayUl/go-weather-etl/internal/scheduler"
	"github.com/AbdulWasayUl/go-weather-etl/internal/server"
	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/internal/workpool"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/AbdulWasayUl/go-weather-etl/services/weather"
	"go.mongodb.org/mongo-driver/mongo"
)

const version = "1.0.0"

func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	database, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(ctx, database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	backups, mongoClient, err := openBackupStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open backup store: %v", err)
	}
	if mongoClient != nil {
		defer func() {
			if err := backup.DisconnectMongoDB(context.Background(), mongoClient); err != nil {
				logger.Error("Error disconnecting MongoDB: %v", err)
			}
		}()
	}

	httpClient := api.NewClient(api.Options{
		Timeout:    cfg.HTTPTimeout,
		Attempts:   cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
		RateLimit:  models.RateLimitSettings{MaxRequests: cfg.RequestsPerMinute, PerDuration: time.Minute},
	})
	source, err := weather.NewClient(weather.OptionsFromConfig(cfg), httpClient)
	if err != nil {
		log.Fatalf("Failed to create weather client: %v", err)
	}
	logger.Info("Forecast tiers enabled: %v", source.TierNames())

	st := store.New(database)
	orch := pipeline.New(extract.New(source, httpClient, backups), st)
	batch := pipeline.NewBatch(orch, cfg.Locations, true)

	chans := channels.New()
	wp := workpool.New(chans, cfg.WorkerCount)
	wp.Start(ctx)

	services := []scheduler.SchedulableService{batch}

	sch, err := scheduler.New()
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}
	if err := sch.StartJob(ctx, cfg.ScheduleAt, chans, services); err != nil {
		log.Fatalf("Failed to start scheduler job: %v", err)
	}

	app := server.New(server.Options{Reader: st, Runs: batch, AccessLog: true})
	go func() {
		logger.Info("HTTP API listening on %s", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			logger.Error("HTTP server stopped: %v", err)
		}
	}()

	var mcpServer *http.Server
	if cfg.MCPAddr != "" {
		mcpServer = &http.Server{
			Addr:              cfg.MCPAddr,
			Handler:           mcptools.Handler(mcptools.NewServer(st, version)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("MCP server listening on %s", cfg.MCPAddr)
			if err := mcpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("MCP server stopped: %v", err)
			}
		}()
	}

	if cfg.RunOnStart {
		logger.Info("Executing immediate startup run for %d location(s).", len(cfg.Locations))
		sch.RunImmediateJob(ctx, chans, services)
	}

	<-quit
	logger.Info("Received interrupt signal. Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown: %v", err)
	}
	if mcpServer != nil {
		if err := mcpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("MCP shutdown: %v", err)
		}
	}

	sch.Stop()
	cancel()
	wp.Stop()

	logger.Info("Waiting for pending pipeline runs to finish...")
	chans.WG.Wait()
	logger.Info("All pipeline runs finished. Shutdown complete.")
}

// openBackupStore returns the configured raw payload store. The mongo client
// is non-nil only when BACKUP_STORE=mongo and must be disconnected by the caller.
func openBackupStore(ctx context.Context, cfg *config.Config) (backup.Store, *mongo.Client, error) {
	if cfg.BackupStore != config.BackupMongo {
		fs, err := backup.NewFileStore(cfg.BackupDir)
		return fs, nil, err
	}

	client, err := backup.ConnectMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	ms, err := backup.NewMongoStore(ctx, client, cfg.MongoDB)
	if err != nil {
		_ = backup.DisconnectMongoDB(ctx, client)
		return nil, nil, err
	}
	return ms, client, nil
}
