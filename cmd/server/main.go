package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/api"
	"github.com/joaohacker/creditpanel/internal/config"
	"github.com/joaohacker/creditpanel/internal/database"
	"github.com/joaohacker/creditpanel/internal/notify"
	"github.com/joaohacker/creditpanel/internal/pricing"
	"github.com/joaohacker/creditpanel/internal/provider"
	"github.com/joaohacker/creditpanel/internal/repository"
	"github.com/joaohacker/creditpanel/internal/service"
	"github.com/joaohacker/creditpanel/internal/storage"
	"github.com/joaohacker/creditpanel/pkg/logger"
)

func main() {
	// Monetary fields go out as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true

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

	engine, err := pricing.New(pricing.DefaultTiers)
	if err != nil {
		log.Fatalf("pricing engine: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	generationRepo := repository.NewGenerationRepository(db)

	userService := service.NewUserService(userRepo)
	couponService := service.NewCouponService(cfg, couponRepo)
	rankingService := service.NewRankingService(cfg, logr, userRepo, generationRepo)

	var poller *provider.Poller
	if cfg.ProviderBaseURL != "" {
		poller = provider.NewPoller(provider.NewClient(cfg, logr), cfg.ProviderPollInterval, logr)
		go poller.Run(ctx)
	}

	var uploader *storage.Uploader
	if cfg.ExportEnabled() {
		uploader, err = storage.NewUploader(storage.Config{
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
			log.Fatalf("storage uploader: %v", err)
		}
	}

	notifier, err := notify.New(cfg.TelegramBotToken, cfg.TelegramAdminChatID, logr)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}

	server := api.NewServer(cfg, logr, engine, couponService, rankingService, userService, poller, uploader, notifier)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
