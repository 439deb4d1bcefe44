package repository

import (
	"debatron/internal/models"
	"debatron/internal/storage"
)

type TranscriptRepository interface {
	Append(fragment *models.TranscriptFragment) error
	FindByRoomID(roomID uint) ([]models.TranscriptFragment, error)
}

type transcriptRepository struct {
	db *storage.PostgresDB
}

func NewTranscriptRepository(db *storage.PostgresDB) TranscriptRepository {
	return &transcriptRepository{db: db}
}

func (r *transcriptRepository) Append(fragment *models.TranscriptFragment) error {
	return r.db.Create(fragment).Error
}

// FindByRoomID 按時間順序回傳房間的全部發言記錄
func (r *transcriptRepository) FindByRoomID(roomID uint) ([]models.TranscriptFragment, error) {
	var fragments []models.TranscriptFragment
	err := r.db.Where("room_id = ?", roomID).Order("timestamp asc, id asc").Find(&fragments).Error
	return fragments, err
}
