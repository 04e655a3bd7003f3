package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"shopchat/internal/analytics"
	"shopchat/internal/api"
	"shopchat/internal/auth"
	"shopchat/internal/catalog"
	"shopchat/internal/config"
	"shopchat/internal/logging"
	"shopchat/internal/redis"
	"shopchat/internal/respond"
	"shopchat/internal/service/chat"
	"shopchat/internal/service/conversation"
	"shopchat/internal/storage"
)

func main() {
	cfgPath := os.Getenv("SHOPCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.BasicConfig.LogLevel, cfg.BasicConfig.LogConsole)

	dbType := os.Getenv("SHOPCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Info().Str("driver", dbType).Msg("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// The cache is optional: without redis, settings lookups hit the
	// database and idempotent replay protection is off.
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without cache")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	store := conversation.NewService(db, rdb,
		time.Duration(cfg.Redis.SettingsTTL)*time.Minute,
		cfg.BasicConfig.HistoryLimit,
	)
	bus, err := analytics.NewBus(store)
	if err != nil {
		log.Fatal().Err(err).Msg("start analytics bus")
	}
	defer bus.Close()

	chatService := chat.NewService(store, catalog.New(cfg.Storefront), respond.NewRouter(cfg), bus, cfg)
	handlers := api.NewHandler(chatService, store, auth.NewVerifier(cfg.BasicConfig.ProxySecret), rdb, cfg)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logging.GinMiddleware(), gin.Recovery())
	handlers.RegisterRoutes(router)

	server := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	eg := errgroup.Group{}
	eg.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting chat server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("received interrupt signal, shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	if err := eg.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
