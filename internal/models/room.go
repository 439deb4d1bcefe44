package models

import (
	"time"

	"gorm.io/gorm"
)

// Room 表示一個辯論房間，是配對與生命週期的聚合根
type Room struct {
	gorm.Model
	TopicID       uint       `json:"topic_id" gorm:"index;not null"`
	Participants  []uint     `json:"participants" gorm:"serializer:json;type:jsonb"` // 參與者 ID，按加入順序
	IsPremiumRoom bool       `json:"is_premium_room"`                                // 創建時從題目複製
	Status        RoomStatus `json:"status" gorm:"type:varchar(20);index"`
	StartedAt     *time.Time `json:"started_at,omitempty"` // 僅在 pending→ongoing 時設置一次

	// 計時器的預定觸發時間，持久化後進程重啟也能由掃描任務補發
	StartDeadline   *time.Time `json:"-"`
	CaptureDeadline *time.Time `json:"-"`

	Scores *ScoreReport `json:"scores,omitempty" gorm:"serializer:json;type:jsonb"` // 結算時設置一次
	Winner *uint        `json:"winner,omitempty"`
}

// RoomStatus 定義房間狀態的類型
type RoomStatus string

const (
	RoomStatusPending   RoomStatus = "pending"
	RoomStatusOngoing   RoomStatus = "ongoing"
	RoomStatusFinished  RoomStatus = "finished"
	RoomStatusCancelled RoomStatus = "cancelled"
	RoomStatusClosed    RoomStatus = "closed" // 房間被清空時的終止狀態
)

// IsTerminal 回報狀態是否為終止狀態，終止後房間不再接受任何變更
func (s RoomStatus) IsTerminal() bool {
	switch s {
	case RoomStatusFinished, RoomStatusCancelled, RoomStatusClosed:
		return true
	default:
		return false
	}
}

// HasParticipant 檢查用戶是否已在房間內
func (r *Room) HasParticipant(userID uint) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// UserScore 是評分服務對單一用戶的評分結果
type UserScore struct {
	Logic    float64 `json:"logic"`
	Evidence float64 `json:"evidence"`
	Rhetoric float64 `json:"rhetoric"`
	Respect  float64 `json:"respect"`
	Total    float64 `json:"total"`
}

// ScoreReport 是一場辯論的完整評分報告
// 評分失敗時 PerUser 為空、Error 標記原因、沒有勝者
type ScoreReport struct {
	PerUser map[uint]UserScore `json:"per_user"`
	Winner  *uint              `json:"winner,omitempty"`
	Error   string             `json:"error,omitempty"`
}
