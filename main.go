package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"debatron/internal/api"
	"debatron/internal/middleware"
	"debatron/internal/models"
	"debatron/internal/repository"
	"debatron/internal/service"
	"debatron/internal/storage"
	"debatron/internal/utils"
	"debatron/pkg/config"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化資料庫連接
	db, err := storage.NewPostgresDB(cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(&models.User{}, &models.Topic{}, &models.Room{}, &models.Participation{}, &models.TranscriptFragment{}); err != nil {
		logger.Fatal("Failed to auto migrate database", zap.Error(err))
	}

	// 初始化 Redis，用於計時器的防重入鎖
	rdb, err := storage.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to initialize redis", zap.Error(err))
	}
	defer rdb.Close()

	utils.SetJWTSecret(cfg.JWT.Secret)

	// 初始化 repositories 和 services
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, cfg, logger)

	// 啟動時先補發錯過的計時器，之後由定期掃描接手
	services.Lifecycle.RecoverOverdueTimers()
	c := cron.New()
	if _, err := c.AddFunc("@every 30s", services.Lifecycle.RecoverOverdueTimers); err != nil {
		logger.Fatal("Failed to schedule timer recovery sweep", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	// 設置 Gin 路由
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	api.SetupRoutes(r, services, logger)

	// 啟動伺服器
	if err := r.Run(cfg.Server.Address); err != nil {
		logger.Fatal("Failed to run server", zap.Error(err))
	}
}
