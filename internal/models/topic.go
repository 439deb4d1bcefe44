package models

import (
	"gorm.io/gorm"
)

// Topic 表示一個辯論題目
type Topic struct {
	gorm.Model
	Title       string   `gorm:"uniqueIndex;not null" json:"title"`
	Description string   `json:"description"`
	IsPremium   bool     `json:"is_premium"` // 僅限付費用戶加入
	Tags        []string `gorm:"serializer:json;type:jsonb" json:"tags"`
}
