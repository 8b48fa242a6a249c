package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/api"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/blobstore"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/config"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/httpservice"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/telemetry"
)

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		cfg, err = config.LoadConfigFromFile(path)
	} else {
		cfg, err = config.LoadConfigFromEnv()
	}
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logging.Sync(logger)

	logger.Info("Starting service",
		logging.NewField("app", cfg.AppName),
		logging.NewField("version", cfg.AppVersion),
		logging.NewField("environment", cfg.Environment),
		logging.NewField("container", cfg.BlobContainer),
	)

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create blob store", logging.NewField("error", err))
	}

	// Best effort: the service still starts when storage is down, and the
	// storage health endpoint reports the outage.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureContainer(ctx); err != nil {
			logger.Warn("Could not ensure container at startup",
				logging.NewField("container", cfg.BlobContainer),
				logging.NewField("error", err),
			)
		}
		cancel()
	}

	nrClient, err := telemetry.NewNewRelicClient(telemetry.NewRelicConfig{
		LicenseKey: cfg.NewRelicLicenseKey,
		AppName:    cfg.AppName,
		Enabled:    cfg.NewRelicEnabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", logging.NewField("error", err))
	}
	defer nrClient.Shutdown()

	handler := api.NewBlobHandler(api.BlobHandlerConfig{
		Store:          store,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SASExpiry:      time.Duration(cfg.SASExpiryMinutes) * time.Minute,
		AppName:        cfg.AppName,
		AppVersion:     cfg.AppVersion,
	})

	// Headroom over the blob ceiling for multipart framing.
	maxRequestBytes := cfg.MaxUploadBytes + 1<<20

	server, err := httpservice.NewServer(httpservice.ServerConfig{
		ServiceName:     cfg.AppName,
		Port:            cfg.HTTPPort,
		ReadTimeout:     time.Duration(cfg.HTTPReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.HTTPWriteTimeout) * time.Second,
		IdleTimeout:     time.Duration(cfg.HTTPIdleTimeout) * time.Second,
		Logger:          logger,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		MaxRequestBytes: maxRequestBytes,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		Telemetry:       nrClient,
	}, handler)
	if err != nil {
		logger.Fatal("Failed to create HTTP server", logging.NewField("error", err))
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", logging.NewField("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", logging.NewField("error", err))
	}

	logger.Info("Service stopped")
}

// buildStore picks the storage backend from configuration. Connection string
// wins, then account name with key or managed identity, and with no Azure
// credentials at all an in-memory store backs local development.
func buildStore(cfg *config.Config, logger logging.Logger) (blobstore.Store, error) {
	switch {
	case cfg.StorageConnectionString != "":
		return blobstore.NewAzureStoreFromConnectionString(cfg.StorageConnectionString, cfg.BlobContainer, logger)
	case cfg.StorageAccountName != "":
		return blobstore.NewAzureStore(cfg.StorageAccountName, cfg.StorageAccountKey, cfg.BlobContainer, logger)
	default:
		logger.Warn("No Azure storage credentials configured, using in-memory store; data will not persist")
		return blobstore.NewMemoryStore(cfg.BlobContainer), nil
	}
}
