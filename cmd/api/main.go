package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"directory/internal/api"
	"directory/internal/auth"
	"directory/internal/cloudinary"
	"directory/internal/config"
	"directory/internal/imageoffload"
	"directory/internal/logging"
	"directory/internal/profile"
	"directory/internal/queue"
	"directory/internal/store"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	log := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	defer func() { _ = log.Sync() }()
	if dotenvErr != nil {
		log.Warn("could not read .env", zap.Error(dotenvErr))
	}

	cfg := config.Load(log)
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]api.HealthCheck{}

	profiles, closeStore, err := store.OpenProfiles(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *store.Redis
	var events queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		events = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		health["redis"] = redisClient.Ping
	case "none", "off":
	default:
		events = queue.NewInMemory(256)
	}

	var pub profile.Publisher
	if events != nil {
		pub = events
	}
	svc := profile.NewService(profiles, pub, log.Named("profiles"))
	health["store"] = svc.Ping

	admin, err := auth.NewAdmin(cfg.AdminEmail, cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		return fmt.Errorf("admin credentials: %w", err)
	}

	var cdn *cloudinary.Client
	if cfg.CloudinaryConfigured() {
		cdn = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Info("cloudinary not configured, image uploads disabled")
	}

	// Inline images are offloaded in-process when events never leave this
	// process; with redis the worker binary does it.
	if mem, ok := events.(*queue.InMemory); ok {
		msgs, err := mem.Consume(ctx)
		if err != nil {
			return fmt.Errorf("consume events: %w", err)
		}
		if cfg.ImageOffload && cdn != nil {
			go imageoffload.New(profiles, cdn, log.Named("offload")).Run(ctx, msgs)
			log.Info("image offload running in-process")
		} else {
			// Nothing else reads the events; drain them so the buffer never fills.
			go func() {
				for msg := range msgs {
					log.Debug("profile event", zap.String("type", msg.Type), zap.ByteString("id", msg.Body))
				}
			}()
		}
	}

	deps := api.Deps{
		Config:   cfg,
		Log:      log,
		Profiles: svc,
		Admin:    admin,
		Health:   health,
	}
	if cdn != nil {
		deps.Images = cdn
	}
	r := api.NewRouter(deps)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
