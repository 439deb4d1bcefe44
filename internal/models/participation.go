package models

import (
	"time"

	"gorm.io/gorm"
)

// Participation 記錄用戶對某個題目的參加
// (user_id, topic_id) 的唯一索引由資料庫強制，同一題目每位用戶只能參加一次，
// 併發的重複加入由這個約束擋下，而不是應用層的先查後寫
type Participation struct {
	gorm.Model
	UserID   uint      `gorm:"uniqueIndex:idx_participation_user_topic;not null" json:"user_id"`
	TopicID  uint      `gorm:"uniqueIndex:idx_participation_user_topic;not null" json:"topic_id"`
	RoomID   uint      `gorm:"not null" json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
}
