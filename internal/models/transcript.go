package models

import (
	"time"

	"gorm.io/gorm"
)

// TranscriptFragment 是一段發言記錄，只在房間的記錄窗口內寫入
// 只增不改，結算時按發送者分組讀取
type TranscriptFragment struct {
	gorm.Model
	RoomID    uint      `gorm:"index;not null" json:"room_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	Text      string    `gorm:"type:text" json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
