package service

import (
	"errors"

	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/repository"
)

type TopicService struct {
	topicRepo repository.TopicRepository
}

func NewTopicService(topicRepo repository.TopicRepository) *TopicService {
	return &TopicService{topicRepo: topicRepo}
}

// CreateTopic 創建新題目，標題重複時回報 ErrTopicExists
func (s *TopicService) CreateTopic(topic *models.Topic) error {
	_, err := s.topicRepo.FindByTitle(topic.Title)
	if err == nil {
		return ErrTopicExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	err = s.topicRepo.Create(topic)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTopicExists
	}
	return err
}

func (s *TopicService) GetTopic(id uint) (*models.Topic, error) {
	topic, err := s.topicRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return topic, nil
}

func (s *TopicService) ListTopics() ([]models.Topic, error) {
	return s.topicRepo.FindAll()
}
