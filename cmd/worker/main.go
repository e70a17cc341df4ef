package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"directory/internal/cloudinary"
	"directory/internal/config"
	"directory/internal/imageoffload"
	"directory/internal/logging"
	"directory/internal/queue"
	"directory/internal/store"
)

// Worker consumes profile events from redis and moves inline images to
// Cloudinary.
func main() {
	dotenvErr := config.LoadDotEnv()
	log := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).Named("worker")
	defer func() { _ = log.Sync() }()
	if dotenvErr != nil {
		log.Warn("could not read .env", zap.Error(dotenvErr))
	}
	cfg := config.Load(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the memory queue is consumed by the api process", zap.String("queue", cfg.QueueBackend))
	}
	if !cfg.CloudinaryConfigured() {
		log.Fatal("worker needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
	}

	profiles, closeStore, err := store.OpenProfiles(ctx, cfg, log)
	if err != nil {
		log.Fatal("open profile store failed", zap.Error(err))
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx); err != nil {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.Error(err))
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	log.Info("worker started, waiting for messages", zap.String("key", cfg.QueueKey))
	imageoffload.New(profiles, cdn, log).Run(ctx, messages)
	log.Info("worker stopped")
}
