package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/aetherlabs/aether-backend/internal/api"
	"github.com/aetherlabs/aether-backend/internal/config"
	"github.com/aetherlabs/aether-backend/internal/database"
	"github.com/aetherlabs/aether-backend/internal/freepik"
	"github.com/aetherlabs/aether-backend/internal/repository"
	"github.com/aetherlabs/aether-backend/internal/service"
	"github.com/aetherlabs/aether-backend/internal/storage"
	"github.com/aetherlabs/aether-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}
	if err := database.Seed(ctx, db); err != nil {
		log.Fatalf("database seed: %v", err)
	}

	providerClient := freepik.NewClient(cfg, logr)

	mediaStore, err := storage.NewMediaStore(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("media store: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	modelRepo := repository.NewModelRepository(db)
	configRepo := repository.NewConfigRepository(db)

	userService := service.NewUserService(userRepo)
	modelService := service.NewModelService(modelRepo)
	configService := service.NewConfigService(configRepo)
	retentionService := service.NewRetentionService(logr, requestRepo, mediaStore)
	generationService := service.NewGenerationService(
		logr, userRepo, requestRepo, modelRepo, configRepo,
		providerClient, mediaStore, retentionService,
		cfg.PollInterval, cfg.PollMaxAttempts,
	)

	if _, err := retentionService.StartSchedule(ctx, cfg.SweepInterval); err != nil {
		log.Fatalf("retention schedule: %v", err)
	}

	server := api.NewServer(
		cfg.ListenAddr, cfg.AdminUsername, cfg.AdminPassword,
		logr, userService, generationService, modelService, configService,
	)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}

	// Let in-flight video polls reach a terminal state before exit.
	generationService.WaitForPolls()
}
