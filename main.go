package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"time"

	"guitargpt/internal/api"
	"guitargpt/internal/chat"
	"guitargpt/internal/config"
	"guitargpt/internal/logger"
	"guitargpt/internal/music"
	"guitargpt/internal/redis"
	"guitargpt/internal/service/gateway"
	"guitargpt/internal/service/history"
	"guitargpt/internal/storage"
	"guitargpt/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("GUITARGPT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := logger.New(cfg.BasicConfig.LogPath)
	defer zlog.Sync()

	dbType := os.Getenv("GUITARGPT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	zlog.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		zlog.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		zlog.Fatal("migrate database", zap.Error(err))
	}

	// The message cache is an optimization; without redis everything
	// falls through to the database.
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		zlog.Warn("redis unavailable, message cache disabled", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	store, err := history.NewService(db)
	if err != nil {
		zlog.Fatal("init history service", zap.Error(err))
	}

	provider := cfg.BasicConfig.Provider
	provCfg := cfg.Providers[provider]

	ctx := context.Background()
	apiKey := provCfg.APIKey
	profile, err := store.GetProfile(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		zlog.Fatal("load profile", zap.Error(err))
	}
	if profile != nil && apiKey == "" {
		apiKey, err = store.GetCredential(ctx, profile.ID, provider)
		if err != nil {
			zlog.Fatal("load credential", zap.Error(err))
		}
	}

	gw, err := gateway.NewService(provider, provCfg, apiKey, zlog)
	if err != nil {
		zlog.Fatal("init gateway", zap.Error(err))
	}

	player := music.NewPlayer(music.NewLogSampler(zlog), zlog)

	runner := worker.NewRunner(worker.Config{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})

	cache := chat.NewCache(rdb, zlog)
	controller := chat.NewController(store, gw, player, cache, runner, zlog)
	if profile != nil {
		controller.BindProfile(profile.ID)
		if _, err := controller.RefreshSessions(ctx); err != nil {
			zlog.Warn("preload sessions", zap.Error(err))
		}
	}

	handlers := api.NewHandler(store, gw, controller, player, provider)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	zlog.Info("listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
