package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"debatron/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 注意：在生產環境中，應該檢查 origin
	},
}

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsManager  *service.WebSocketManager
	matchmaker *service.MatchmakerService
	logger     *zap.Logger
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(wsManager *service.WebSocketManager, matchmaker *service.MatchmakerService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:  wsManager,
		matchmaker: matchmaker,
		logger:     logger,
	}
}

// HandleWebSocket 處理 WebSocket 連接請求
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// 解析房間 ID
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的房間ID"})
		return
	}

	// 從上下文中獲取用戶 ID
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// 升級 HTTP 連接為 WebSocket 連接；失敗時 upgrader 已經寫出錯誤回應
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err), zap.Uint64("room_id", roomID))
		return
	}

	client := &service.Client{
		ConnID:   uuid.NewString(),
		Conn:     conn,
		UserID:   userID.(uint),
		RoomID:   uint(roomID),
		SendChan: make(chan *service.Event, 256), // 設置緩衝大小為 256 的事件通道
	}

	// 離開事件導回配對服務的移除流程，可能觸發 cancelled 或 closed 轉移
	h.wsManager.HandleConnection(client, func(roomID, userID uint) {
		if err := h.matchmaker.Leave(roomID, userID); err != nil {
			h.logger.Warn("leave via channel failed",
				zap.Error(err), zap.Uint("room_id", roomID), zap.Uint("user_id", userID))
		}
	})
}
