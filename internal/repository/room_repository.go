package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"debatron/internal/models"
	"debatron/internal/storage"
)

var (
	// ErrRoomCapacity 表示寫入時容量前置條件已不成立，呼叫方應重新選房
	ErrRoomCapacity = errors.New("room capacity exceeded")
	// ErrRoomNotJoinable 表示房間在選定後已離開 pending 狀態
	ErrRoomNotJoinable = errors.New("room is no longer joinable")
)

type RoomRepository interface {
	Create(room *models.Room) error
	FindByID(id uint) (*models.Room, error)
	// FindOldestPending 找出該題目最舊的可加入房間，排除用戶已在其中的房間；沒有時回傳 nil
	FindOldestPending(topicID, excludeUserID uint, maxSize int) (*models.Room, error)
	// AddParticipant 在容量檢查下加入參與者，檢查與寫入在同一筆交易內完成
	AddParticipant(roomID, userID uint, maxSize int) (*models.Room, bool, error)
	// RemoveParticipant 移除參與者；房間已終止時不做任何變更
	RemoveParticipant(roomID, userID uint) (*models.Room, bool, error)
	// UpdateStatusIf 僅在當前狀態等於 from 時執行轉移，mutate 回傳錯誤則整筆回滾
	UpdateStatusIf(roomID uint, from, to models.RoomStatus, mutate func(*models.Room) error) (*models.Room, bool, error)
	SetStartDeadline(roomID uint, t time.Time) error
	SetCaptureDeadline(roomID uint, t time.Time) error
	// ListScheduledTransitions 找出所有帶著預定觸發時間但仍未轉移的房間，
	// 供恢復掃描補發或重建計時器
	ListScheduledTransitions() ([]models.Room, error)
}

type roomRepository struct {
	db *storage.PostgresDB
}

func NewRoomRepository(db *storage.PostgresDB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(room *models.Room) error {
	if room.Participants == nil {
		room.Participants = []uint{}
	}
	return r.db.Create(room).Error
}

func (r *roomRepository) FindByID(id uint) (*models.Room, error) {
	var room models.Room
	err := r.db.First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) FindOldestPending(topicID, excludeUserID uint, maxSize int) (*models.Room, error) {
	var room models.Room
	err := r.db.
		Where("topic_id = ? AND status = ?", topicID, models.RoomStatusPending).
		Where("jsonb_array_length(participants) < ?", maxSize).
		Where("NOT participants @> ?", fmt.Sprintf("[%d]", excludeUserID)).
		Order("created_at asc").
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) AddParticipant(roomID, userID uint, maxSize int) (*models.Room, bool, error) {
	var room models.Room
	added := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// 鎖定房間列，容量檢查到寫入之間不允許其他交易插隊
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error; err != nil {
			return err
		}
		if room.HasParticipant(userID) {
			return nil // 已在房間內，冪等成功
		}
		if room.Status != models.RoomStatusPending {
			return ErrRoomNotJoinable
		}
		if len(room.Participants) >= maxSize {
			return ErrRoomCapacity
		}
		room.Participants = append(room.Participants, userID)
		added = true
		return tx.Model(&room).Update("participants", room.Participants).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &room, added, nil
}

func (r *roomRepository) RemoveParticipant(roomID, userID uint) (*models.Room, bool, error) {
	var room models.Room
	removed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error; err != nil {
			return err
		}
		if room.Status.IsTerminal() {
			return nil
		}
		remaining := make([]uint, 0, len(room.Participants))
		for _, id := range room.Participants {
			if id == userID {
				removed = true
				continue
			}
			remaining = append(remaining, id)
		}
		if !removed {
			return nil
		}
		room.Participants = remaining
		return tx.Model(&room).Update("participants", room.Participants).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &room, removed, nil
}

func (r *roomRepository) UpdateStatusIf(roomID uint, from, to models.RoomStatus, mutate func(*models.Room) error) (*models.Room, bool, error) {
	var room models.Room
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error; err != nil {
			return err
		}
		if room.Status != from {
			return nil // 狀態已被其他操作改變，轉移不成立
		}
		if mutate != nil {
			if err := mutate(&room); err != nil {
				return err
			}
		}
		room.Status = to
		applied = true
		return tx.Save(&room).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &room, applied, nil
}

func (r *roomRepository) SetStartDeadline(roomID uint, t time.Time) error {
	return r.db.Model(&models.Room{}).Where("id = ?", roomID).
		Update("start_deadline", t).Error
}

func (r *roomRepository) SetCaptureDeadline(roomID uint, t time.Time) error {
	return r.db.Model(&models.Room{}).Where("id = ?", roomID).
		Update("capture_deadline", t).Error
}

func (r *roomRepository) ListScheduledTransitions() ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.
		Where("(status = ? AND start_deadline IS NOT NULL) OR (status = ? AND capture_deadline IS NOT NULL)",
			models.RoomStatusPending, models.RoomStatusOngoing).
		Order("created_at asc").
		Find(&rooms).Error
	return rooms, err
}
