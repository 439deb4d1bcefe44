package service

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/repository"
)

// 廣播給房間成員的事件類型，對應生命週期的各種變化
const (
	EventPhase            = "phase"
	EventParticipantCount = "participant-count"
	EventTranscript       = "transcript"
	EventFinalScore       = "final-score"
	EventTimerSync        = "timer-sync"
	EventRoomError        = "room-error"
)

// Event 是透過 WebSocket 推送給客戶端的統一事件結構
type Event struct {
	Type         string              `json:"type"`
	RoomID       uint                `json:"room_id,omitempty"`
	UserID       uint                `json:"user_id,omitempty"`
	Phase        models.RoomStatus   `json:"phase,omitempty"`
	Text         string              `json:"text,omitempty"`
	Participants int                 `json:"participants"` // 零是合法的人數，不能在序列化時消失
	ElapsedMS    int64               `json:"elapsed_ms"`
	Report       *models.ScoreReport `json:"report,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// inboundMessage 是客戶端送來的消息
type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	ConnID   string          // 連接的 opaque 識別碼
	Conn     *websocket.Conn // WebSocket 連接
	UserID   uint            // 用戶 ID
	RoomID   uint            // 房間 ID
	SendChan chan *Event     // 消息發送通道，用於異步傳送消息

	phase models.RoomStatus // 快取的房間階段，由 clientsMux 保護
}

// LeaveFunc 由上層注入，把離開事件導回配對服務的移除流程
type LeaveFunc func(roomID, userID uint)

// WebSocketManager 管理所有的 WebSocket 連接和事件廣播
type WebSocketManager struct {
	rooms         repository.RoomRepository
	transcripts   repository.TranscriptRepository
	captureWindow time.Duration

	clients    map[uint]map[*Client]bool // 兩層 map: roomID -> client -> bool
	clientsMux sync.RWMutex              // 用於保護 clients map 與各 client 的快取階段
	logger     *zap.Logger
}

// NewWebSocketManager 創建並初始化新的 WebSocket 管理器
func NewWebSocketManager(rooms repository.RoomRepository, transcripts repository.TranscriptRepository, captureWindow time.Duration, logger *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		rooms:         rooms,
		transcripts:   transcripts,
		captureWindow: captureWindow,
		clients:       make(map[uint]map[*Client]bool),
		logger:        logger,
	}
}

// HandleConnection 處理新的客戶端連接：同步當前階段後進入讀寫循環
func (m *WebSocketManager) HandleConnection(client *Client, onLeave LeaveFunc) {
	if err := m.JoinRoom(client); err != nil {
		// 尚未進入寫循環，直接寫出錯誤事件再關閉
		client.Conn.WriteJSON(&Event{Type: EventRoomError, RoomID: client.RoomID, Message: err.Error()})
		client.Conn.Close()
		return
	}

	// 確保連接關閉時清理資源
	defer func() {
		m.removeClient(client)
		client.Conn.Close()
	}()

	go m.writePump(client)
	m.readPump(client, onLeave)
}

// JoinRoom 把客戶端掛進房間的廣播群組，並對它單獨發送階段同步事件，
// 晚加入的客戶端不必等下一次廣播就能收斂到正確狀態
func (m *WebSocketManager) JoinRoom(client *Client) error {
	room, err := m.rooms.FindByID(client.RoomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}

	phase := room.Status
	var elapsed time.Duration
	if room.Status == models.RoomStatusOngoing && room.StartedAt != nil {
		elapsed = time.Since(*room.StartedAt)
		if elapsed >= m.captureWindow {
			// 記錄窗口已過，結算即將或已經發生
			phase = models.RoomStatusFinished
		}
	}

	m.addClient(client, phase)

	if room.Status == models.RoomStatusOngoing && room.StartedAt != nil {
		m.sendToClient(client, &Event{Type: EventTimerSync, RoomID: room.ID, ElapsedMS: elapsed.Milliseconds()})
	}
	m.sendToClient(client, &Event{Type: EventPhase, RoomID: room.ID, Phase: phase})
	if room.Status == models.RoomStatusPending {
		m.BroadcastParticipantCount(room.ID, len(room.Participants))
	}

	m.logger.Info("client joined room channel",
		zap.String("conn_id", client.ConnID),
		zap.Uint("user_id", client.UserID),
		zap.Uint("room_id", client.RoomID),
		zap.String("phase", string(phase)))
	return nil
}

// readPump 持續監聽並處理從客戶端接收的消息
func (m *WebSocketManager) readPump(client *Client, onLeave LeaveFunc) {
	client.Conn.SetReadLimit(4096) // 設置最大消息大小為 4KB
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("websocket unexpected close error", zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			m.logger.Warn("message parse error", zap.Error(err), zap.String("conn_id", client.ConnID))
			continue
		}

		switch msg.Type {
		case EventTranscript:
			if err := m.HandleTranscript(client, msg.Text); err != nil {
				m.logger.Error("transcript handling failed", zap.Error(err), zap.Uint("room_id", client.RoomID))
			}
		case "leave-room":
			if onLeave != nil {
				onLeave(client.RoomID, client.UserID)
			}
			return
		default:
			m.logger.Debug("unknown inbound message type", zap.String("type", msg.Type))
		}
	}
}

// writePump 處理向客戶端發送消息的邏輯
func (m *WebSocketManager) writePump(client *Client) {
	// 設置心跳檢查計時器
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			// 發送心跳包
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleTranscript 處理客戶端提交的發言。只有在快取階段等於記錄窗口
// （ongoing）時才持久化；其他階段照樣對房間廣播，但不落盤，
// 區分計分發言和場外聊天是刻意的設計
func (m *WebSocketManager) HandleTranscript(client *Client, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	m.clientsMux.RLock()
	phase := client.phase
	m.clientsMux.RUnlock()

	if phase == models.RoomStatusOngoing {
		fragment := &models.TranscriptFragment{
			RoomID:    client.RoomID,
			SenderID:  client.UserID,
			Text:      text,
			Timestamp: time.Now(),
		}
		if err := m.transcripts.Append(fragment); err != nil {
			// 寫入失敗仍然廣播，文字頻道不因存儲問題中斷
			m.logger.Error("failed to persist transcript fragment",
				zap.Error(err), zap.Uint("room_id", client.RoomID), zap.Uint("sender_id", client.UserID))
		}
	} else {
		m.logger.Debug("transcript outside capture window, broadcasting only",
			zap.String("phase", string(phase)), zap.Uint("room_id", client.RoomID))
	}

	m.BroadcastToRoom(client.RoomID, &Event{
		Type:   EventTranscript,
		RoomID: client.RoomID,
		UserID: client.UserID,
		Text:   text,
	})
	return nil
}

// BroadcastToRoom 向房間內的所有客戶端廣播事件；沒有連接時是靜默的 no-op
func (m *WebSocketManager) BroadcastToRoom(roomID uint, event *Event) {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()

	for client := range m.clients[roomID] {
		select {
		case client.SendChan <- event:
			// 事件成功加入發送隊列
		default:
			// 客戶端消息隊列已滿，丟棄事件
			m.logger.Warn("client send queue full, dropping event",
				zap.String("conn_id", client.ConnID), zap.Uint("room_id", roomID))
		}
	}
}

// BroadcastPhase 廣播階段轉移並同步更新房間內所有客戶端的快取階段。
// 傳入的階段必須來自剛提交的存儲狀態，不能是呼叫方的本地快取
func (m *WebSocketManager) BroadcastPhase(roomID uint, phase models.RoomStatus) {
	m.clientsMux.Lock()
	for client := range m.clients[roomID] {
		client.phase = phase
	}
	m.clientsMux.Unlock()

	m.BroadcastToRoom(roomID, &Event{Type: EventPhase, RoomID: roomID, Phase: phase})
}

// BroadcastParticipantCount 廣播房間當前人數
func (m *WebSocketManager) BroadcastParticipantCount(roomID uint, count int) {
	m.BroadcastToRoom(roomID, &Event{Type: EventParticipantCount, RoomID: roomID, Participants: count})
}

// BroadcastFinalScore 廣播結算報告
func (m *WebSocketManager) BroadcastFinalScore(roomID uint, report *models.ScoreReport) {
	m.BroadcastToRoom(roomID, &Event{Type: EventFinalScore, RoomID: roomID, Report: report})
}

// addClient 安全地添加新的客戶端連接並設置初始快取階段
func (m *WebSocketManager) addClient(client *Client, phase models.RoomStatus) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if m.clients[client.RoomID] == nil {
		m.clients[client.RoomID] = make(map[*Client]bool)
	}
	client.phase = phase
	m.clients[client.RoomID][client] = true
}

// removeClient 安全地移除客戶端連接
func (m *WebSocketManager) removeClient(client *Client) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if clients, ok := m.clients[client.RoomID]; ok {
		if _, attached := clients[client]; !attached {
			return
		}
		delete(clients, client)
		close(client.SendChan)
		// 如果房間空了，刪除廣播群組
		if len(clients) == 0 {
			delete(m.clients, client.RoomID)
		}
	}
}

// sendToClient 對單一客戶端發送事件
func (m *WebSocketManager) sendToClient(client *Client, event *Event) {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	m.sendDirect(client, event)
}

func (m *WebSocketManager) sendDirect(client *Client, event *Event) {
	select {
	case client.SendChan <- event:
	default:
		m.logger.Warn("client send queue full, dropping event",
			zap.String("conn_id", client.ConnID), zap.Uint("room_id", client.RoomID))
	}
}

// RoomClientCount 獲取指定房間的在線客戶端數量
func (m *WebSocketManager) RoomClientCount(roomID uint) int {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()

	return len(m.clients[roomID])
}
