package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docbridge/cache"
	"docbridge/config"
	"docbridge/conversion"
	"docbridge/logger"
	"docbridge/services"
	"docbridge/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	log.Info().Str("env", cfg.AppEnv).Msg("starting docbridge conversion service")

	// Cache: shared Redis preferred, per-process memory otherwise. The
	// pipeline converts either way.
	var store cache.Store
	redisStore, err := cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
		store = cache.NewMemoryStore()
	} else {
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis cache")
		store = redisStore
	}

	// Artifact store: S3 when a bucket is configured, a local directory
	// otherwise.
	var artifacts services.ArtifactStore
	if cfg.S3Bucket != "" {
		artifacts = services.NewS3ArtifactStore(cfg)
		log.Info().Str("bucket", cfg.S3Bucket).Msg("using s3 artifact store")
	} else {
		local, err := services.NewLocalArtifactStore(cfg.ArtifactDir)
		if err != nil {
			log.Fatal().Err(err).Msg("artifact directory unavailable")
		}
		artifacts = local
		log.Info().Str("dir", cfg.ArtifactDir).Msg("using local artifact store")
	}

	// Optional conversion history.
	var history *services.HistoryService
	if cfg.DatabaseURL != "" {
		history, err = services.NewHistoryService(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer history.Close()
		log.Info().Msg("conversion history enabled")
	}

	office := services.NewOfficeService(cfg.OfficeServiceURL)
	soffice := services.NewSofficeRunner(cfg.SofficePath)

	pool := worker.NewPool(worker.Options{
		Size:       cfg.WorkerCount,
		JobTimeout: cfg.ServiceTimeout,
	}, conversion.OfficeExecutor(office), log)

	svc := conversion.NewService(cfg, conversion.Deps{
		Cache:     store,
		Pool:      pool,
		Office:    office,
		Soffice:   soffice,
		Artifacts: artifacts,
		History:   history,
	}, log)

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	health := svc.Health(startCtx)
	cancel()
	log.Info().
		Str("status", health.Status).
		Bool("office_service", health.OfficeService).
		Bool("soffice_direct", health.SofficeDirect).
		Int("workers", health.Pool.TotalWorkers).
		Msg("service is ready to process conversions")

	// Wait for shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutdown signal received, stopping workers")

	done := make(chan struct{})
	go func() {
		svc.Close()
		pool.Close()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all workers stopped gracefully")
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}

	store.Close()
	log.Info().Msg("conversion service stopped")
}
