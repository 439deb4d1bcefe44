package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"debatron/internal/models"
	"debatron/internal/storage"
)

type UserRepository interface {
	Create(user *models.User) error
	FindByID(id uint) (*models.User, error)
	FindByUsername(username string) (*models.User, error)
	// AppendDebateHistory 把房間 ID 加入用戶的參賽記錄，已存在時不重複
	AppendDebateHistory(userID, roomID uint) error
}

type userRepository struct {
	db *storage.PostgresDB
}

func NewUserRepository(db *storage.PostgresDB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *userRepository) FindByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) AppendDebateHistory(userID, roomID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}
		for _, id := range user.DebateHistory {
			if id == roomID {
				return nil
			}
		}
		user.DebateHistory = append(user.DebateHistory, roomID)
		return tx.Model(&user).Update("debate_history", user.DebateHistory).Error
	})
}
