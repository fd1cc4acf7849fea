//	@title			Inkpad API
//	@version		1.0
//	@description	Document and image backend for a collaborative block editor.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Optional JWT Bearer token. Its subject becomes the document owner. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/inkpad/service/internal/api"
	"github.com/inkpad/service/internal/config"
	"github.com/inkpad/service/internal/db"
	"github.com/inkpad/service/internal/document"
	"github.com/inkpad/service/internal/image"
	"github.com/inkpad/service/internal/logger"
	"github.com/inkpad/service/internal/metrics"
	appMiddleware "github.com/inkpad/service/internal/middleware"
	"github.com/inkpad/service/internal/retention"
	"github.com/inkpad/service/internal/storage"

	_ "github.com/inkpad/service/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("invalid configuration: %v", err)
	}

	log := logger.New(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire dependencies: repository → service → handler
	docRepo, imgRepo, closeDB := openRepositories(ctx, cfg, log)
	defer closeDB()

	store := openStorage(ctx, cfg, log)

	imgSvc := image.NewService(imgRepo, store, document.ExistenceChecker(docRepo), log)
	docSvc := document.NewService(docRepo, imgSvc, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	var limiter *appMiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = appMiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	router := api.NewRouter(api.Options{
		Documents:         document.NewHandler(docSvc),
		Images:            image.NewHandler(imgSvc, docSvc, cfg.AllowedImageTypes, cfg.MaxUploadBytes),
		Log:               log,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		Gatherer:          reg,
		RateLimiter:       limiter,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	sweeper := retention.NewSweeper(docSvc, retention.Config{
		Enabled:  cfg.RetentionEnabled,
		Interval: cfg.RetentionInterval,
		MaxAge:   cfg.RetentionMaxAge(),
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	wg.Wait()

	log.Info().Msg("server stopped")
}

func openRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger) (document.Repository, image.Repository, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory repositories; data is lost on restart")
		imgRepo := image.NewMemoryRepository()
		return document.NewMemoryRepository(imgRepo), imgRepo, func() {}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		pool.Close()
		log.Fatal().Err(err).Msg("database migration failed")
	}
	return document.NewPostgresRepository(pool), image.NewPostgresRepository(pool), pool.Close
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) storage.Storage {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory object storage; images are lost on restart")
		return storage.NewMemoryStorage()
	}

	store, err := storage.NewMinioStorage(ctx, storage.MinioConfig{
		Endpoint:      cfg.StorageEndpoint,
		AccessKey:     cfg.StorageAccessKey,
		SecretKey:     cfg.StorageSecretKey,
		Bucket:        cfg.StorageBucket,
		UseSSL:        cfg.StorageUseSSL,
		Region:        cfg.StorageRegion,
		EncryptionKey: cfg.StorageEncryptionKey,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage init failed")
	}
	return store
}
