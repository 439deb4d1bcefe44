package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/storage"
)

// ErrDuplicateParticipation 表示 (user, topic) 的參加記錄已存在
var ErrDuplicateParticipation = errors.New("participation already exists")

type ParticipationRepository interface {
	Create(p *models.Participation) error
	FindByUserAndTopic(userID, topicID uint) (*models.Participation, error)
	// UpdateRoom 把既有的參加記錄改指向新房間，用於終止後的重新配對
	UpdateRoom(userID, topicID, roomID uint) error
}

type participationRepository struct {
	db *storage.PostgresDB
}

func NewParticipationRepository(db *storage.PostgresDB) ParticipationRepository {
	return &participationRepository{db: db}
}

func (r *participationRepository) Create(p *models.Participation) error {
	err := r.db.Create(p).Error
	// 唯一索引衝突轉成哨兵錯誤，讓加入流程把它視為冪等成功
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateParticipation
	}
	return err
}

func (r *participationRepository) FindByUserAndTopic(userID, topicID uint) (*models.Participation, error) {
	var p models.Participation
	err := r.db.Where("user_id = ? AND topic_id = ?", userID, topicID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participationRepository) UpdateRoom(userID, topicID, roomID uint) error {
	return r.db.Model(&models.Participation{}).
		Where("user_id = ? AND topic_id = ?", userID, topicID).
		Updates(map[string]interface{}{"room_id": roomID, "joined_at": time.Now()}).Error
}
