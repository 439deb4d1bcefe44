package repository

import (
	"debatron/internal/models"
	"debatron/internal/storage"
)

type TopicRepository interface {
	Create(topic *models.Topic) error
	FindByID(id uint) (*models.Topic, error)
	FindByTitle(title string) (*models.Topic, error)
	FindAll() ([]models.Topic, error)
}

type topicRepository struct {
	db *storage.PostgresDB
}

func NewTopicRepository(db *storage.PostgresDB) TopicRepository {
	return &topicRepository{db: db}
}

func (r *topicRepository) Create(topic *models.Topic) error {
	return r.db.Create(topic).Error
}

func (r *topicRepository) FindByID(id uint) (*models.Topic, error) {
	var topic models.Topic
	err := r.db.First(&topic, id).Error
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepository) FindByTitle(title string) (*models.Topic, error) {
	var topic models.Topic
	err := r.db.Where("title = ?", title).First(&topic).Error
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// FindAll 查詢所有題目
func (r *topicRepository) FindAll() ([]models.Topic, error) {
	var topics []models.Topic
	err := r.db.Order("created_at DESC").Find(&topics).Error
	return topics, err
}
