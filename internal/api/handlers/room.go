package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"debatron/internal/service"
)

// RoomHandler 處理與辯論房間相關的請求
type RoomHandler struct {
	matchmaker *service.MatchmakerService
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(matchmaker *service.MatchmakerService) *RoomHandler {
	return &RoomHandler{matchmaker: matchmaker}
}

// JoinRoom 處理加入題目的請求，由配對服務決定房間
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var input struct {
		TopicID uint `json:"topic_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")

	result, err := h.matchmaker.Join(userID.(uint), input.TopicID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTopicNotFound), errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrPremiumRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "只有付費帳號可以加入付費題目"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "加入房間失敗"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// LeaveRoom 處理離開房間的請求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的房間ID"})
		return
	}

	userID, _ := c.Get("userID")

	if err := h.matchmaker.Leave(uint(roomID), userID.(uint)); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "房間不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "離開房間失敗"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "成功離開房間"})
}

// GetRoom 處理獲取房間訊息的請求
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的房間ID"})
		return
	}

	room, err := h.matchmaker.GetRoom(uint(roomID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "房間不存在"})
		return
	}

	c.JSON(http.StatusOK, room)
}

// GetRoomTranscripts 處理獲取房間發言記錄的請求
func (h *RoomHandler) GetRoomTranscripts(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的房間 ID"})
		return
	}

	fragments, err := h.matchmaker.GetRoomTranscripts(uint(roomID))
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "房間不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "無法搜尋發言記錄"})
		return
	}

	c.JSON(http.StatusOK, fragments)
}
