package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"debatron/internal/api/handlers"
	"debatron/internal/middleware"
	"debatron/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services, logger *zap.Logger) {
	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.User)
	topicHandler := handlers.NewTopicHandler(services.Topic)
	roomHandler := handlers.NewRoomHandler(services.Matchmaker)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocket, services.Matchmaker, logger)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 公開路由
	{
		// 用戶認證相關
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware())
	{
		// 題目相關
		topics := authorized.Group("/topics")
		{
			topics.GET("", topicHandler.ListTopics)
			topics.POST("", topicHandler.CreateTopic)
			topics.GET("/:id", topicHandler.GetTopic)
		}

		// 辯論室相關
		rooms := authorized.Group("/rooms")
		{
			rooms.POST("/join", roomHandler.JoinRoom)                // 由配對服務分配房間
			rooms.GET("/:id", roomHandler.GetRoom)                   // 獲取房間信息
			rooms.POST("/:id/leave", roomHandler.LeaveRoom)          // 離開房間
			rooms.GET("/:id/messages", roomHandler.GetRoomTranscripts) // 獲取已持久化的發言記錄

			// WebSocket 連接點
			rooms.GET("/:id/ws", wsHandler.HandleWebSocket)
		}
	}
}
