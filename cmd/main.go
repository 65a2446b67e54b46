package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/api"
	"github.com/fathima-sithara/conversation-service/internal/auth"
	"github.com/fathima-sithara/conversation-service/internal/cache"
	"github.com/fathima-sithara/conversation-service/internal/config"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/middleware"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	mc, err := repository.NewMongoClient(cfg)
	if err != nil {
		zlog.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.DB)

	rc, err := cache.NewRedis(cfg, zlog)
	if err != nil {
		zlog.Fatalw("redis init", "err", err)
	}
	defer rc.Close()

	pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zlog)
	defer pub.Close()

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	rcptRepo := repository.NewReceiptRepository(db)

	gate := access.NewGate(convRepo)
	convSvc := service.NewConversationService(convRepo, gate, pub, rc, zlog)
	msgSvc := service.NewMessageService(msgRepo, convRepo, gate, convSvc, pub, rc, zlog)
	rcptSvc := service.NewReceiptService(rcptRepo, msgRepo, convRepo, gate, rc, zlog)
	reactSvc := service.NewReactionService(msgRepo, gate, pub, zlog)
	qrySvc := service.NewQueryService(msgRepo, gate, rcptSvc, zlog)

	jv, err := auth.NewValidator(cfg.JWT)
	if err != nil {
		zlog.Fatalw("jwt init", "err", err)
	}
	rl := middleware.NewRateLimiter(rc.Redis(), "rl:conv", cfg.App.RatePerMin, time.Minute)

	h := api.NewHandlers(convSvc, msgSvc, rcptSvc, reactSvc, qrySvc, zlog)
	app := api.NewServer(cfg, h, jv, rl)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()
	zlog.Infow("conversation-service started", "port", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.App.ShutdownSecs)*time.Second)
	defer cancel()

	_ = app.ShutdownWithContext(ctx)
	zlog.Info("conversation-service stopped")
}
