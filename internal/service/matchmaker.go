package service

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/repository"
	"debatron/pkg/config"
)

// 容量衝突時重新選房的次數上限，用盡後以 ErrRoomConflict 回報
const maxJoinRetries = 3

// JoinResult 是加入請求的結果
type JoinResult struct {
	RoomID          uint `json:"room_id"`
	IsDuplicateJoin bool `json:"is_duplicate_join"` // 用戶本來就在回傳的房間內
}

// MatchmakerService 為 (用戶, 題目) 尋找或創建房間，
// 容量與併發約束由 Room 存儲層的條件寫入保證
type MatchmakerService struct {
	rooms          repository.RoomRepository
	participations repository.ParticipationRepository
	users          repository.UserRepository
	topics         repository.TopicRepository
	transcripts    repository.TranscriptRepository
	lifecycle      *LifecycleService
	wsManager      *WebSocketManager
	cfg            config.DebateConfig
	logger         *zap.Logger
}

func NewMatchmakerService(repos *repository.Repositories, lifecycle *LifecycleService, wsManager *WebSocketManager, cfg config.DebateConfig, logger *zap.Logger) *MatchmakerService {
	return &MatchmakerService{
		rooms:          repos.Room,
		participations: repos.Participation,
		users:          repos.User,
		topics:         repos.Topic,
		transcripts:    repos.Transcript,
		lifecycle:      lifecycle,
		wsManager:      wsManager,
		cfg:            cfg,
		logger:         logger,
	}
}

// Join 把用戶加入題目的某個等待中房間，沒有合適的就開新房。
// 重複加入是冪等的：回傳同一個房間並標記 IsDuplicateJoin
func (s *MatchmakerService) Join(userID, topicID uint) (*JoinResult, error) {
	topic, err := s.topics.FindByID(topicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}

	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	// 付費題目只開放給付費用戶
	if topic.IsPremium && !user.IsPremium {
		return nil, ErrPremiumRequired
	}

	// 已有參加記錄且房間還沒終止時直接回傳原房間，重複加入不開新房；
	// 記錄指向已終止的房間時不擋路，讓用戶重新配對同一題目
	if p, err := s.participations.FindByUserAndTopic(userID, topicID); err == nil {
		prev, err := s.rooms.FindByID(p.RoomID)
		if err == nil && !prev.Status.IsTerminal() {
			return &JoinResult{RoomID: prev.ID, IsDuplicateJoin: true}, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	room, added, err := s.findOrCreateAndAppend(userID, topic)
	if err != nil {
		return nil, err
	}

	// 記錄參加；因併發出現的重複記錄視為成功而非錯誤
	err = s.participations.Create(&models.Participation{
		UserID:   userID,
		TopicID:  topicID,
		RoomID:   room.ID,
		JoinedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateParticipation) {
			// 先前的參加記錄還在（例如房間取消後重新配對），改指向新房間
			s.logger.Warn("participation already recorded, repointing",
				zap.Uint("user_id", userID), zap.Uint("topic_id", topicID), zap.Uint("room_id", room.ID))
			if err := s.participations.UpdateRoom(userID, topicID, room.ID); err != nil {
				s.logger.Error("failed to repoint participation",
					zap.Error(err), zap.Uint("user_id", userID), zap.Uint("topic_id", topicID))
			}
		} else {
			return nil, err
		}
	}

	if err := s.users.AppendDebateHistory(userID, room.ID); err != nil {
		s.logger.Error("failed to append debate history",
			zap.Error(err), zap.Uint("user_id", userID), zap.Uint("room_id", room.ID))
	}

	if added {
		s.wsManager.BroadcastParticipantCount(room.ID, len(room.Participants))
	}

	// 人數到達門檻時交給生命週期排定開始倒數，重複觸發由防重入鎖擋下
	if room.Status == models.RoomStatusPending && len(room.Participants) >= s.cfg.MinParticipantsToStart {
		s.lifecycle.ArmStartTimer(room.ID)
	}

	s.logger.Info("user joined room",
		zap.Uint("user_id", userID), zap.Uint("topic_id", topicID),
		zap.Uint("room_id", room.ID), zap.Int("participants", len(room.Participants)),
		zap.Bool("duplicate", !added))

	return &JoinResult{RoomID: room.ID, IsDuplicateJoin: !added}, nil
}

// findOrCreateAndAppend 選出最舊的可加入房間並以容量條件寫入加人；
// 寫入時前置條件失效（容量被搶、狀態已變）就重新選房
func (s *MatchmakerService) findOrCreateAndAppend(userID uint, topic *models.Topic) (*models.Room, bool, error) {
	for attempt := 0; attempt < maxJoinRetries; attempt++ {
		room, err := s.rooms.FindOldestPending(topic.ID, userID, s.cfg.MaxRoomSize)
		if err != nil {
			return nil, false, err
		}
		if room == nil {
			room = &models.Room{
				TopicID:       topic.ID,
				Participants:  []uint{},
				IsPremiumRoom: topic.IsPremium, // 創建時複製題目的付費標記
				Status:        models.RoomStatusPending,
			}
			if err := s.rooms.Create(room); err != nil {
				return nil, false, err
			}
			s.logger.Info("created new room", zap.Uint("room_id", room.ID), zap.Uint("topic_id", topic.ID))
		}

		if room.ID == 0 || room.TopicID == 0 {
			// 不變量被破壞，記下完整上下文後回報，不允許靜默吞掉
			s.logger.Error("room record missing required fields",
				zap.Uint("room_id", room.ID), zap.Uint("topic_id", room.TopicID),
				zap.String("status", string(room.Status)))
			return nil, false, ErrRoomCorrupted
		}

		room, added, err := s.rooms.AddParticipant(room.ID, userID, s.cfg.MaxRoomSize)
		if err != nil {
			if errors.Is(err, repository.ErrRoomCapacity) || errors.Is(err, repository.ErrRoomNotJoinable) {
				s.logger.Info("join precondition lost, reselecting room",
					zap.Uint("user_id", userID), zap.Uint("topic_id", topic.ID), zap.Error(err))
				continue
			}
			return nil, false, err
		}
		return room, added, nil
	}
	return nil, false, ErrRoomConflict
}

// Leave 把用戶從房間移除。人數歸零轉 closed，
// 等待中的房間掉到門檻以下轉 cancelled
func (s *MatchmakerService) Leave(roomID, userID uint) error {
	room, removed, err := s.rooms.RemoveParticipant(roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	if !removed {
		return nil
	}

	s.logger.Info("user left room",
		zap.Uint("user_id", userID), zap.Uint("room_id", roomID),
		zap.Int("remaining", len(room.Participants)))
	s.wsManager.BroadcastParticipantCount(roomID, len(room.Participants))

	if len(room.Participants) == 0 {
		s.lifecycle.Close(roomID)
	} else if room.Status == models.RoomStatusPending && len(room.Participants) < s.cfg.MinParticipantsToStart {
		s.lifecycle.Cancel(roomID)
	}
	return nil
}

// GetRoom 查詢單一房間
func (s *MatchmakerService) GetRoom(roomID uint) (*models.Room, error) {
	room, err := s.rooms.FindByID(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetRoomTranscripts 查詢房間已持久化的發言記錄
func (s *MatchmakerService) GetRoomTranscripts(roomID uint) ([]models.TranscriptFragment, error) {
	if _, err := s.GetRoom(roomID); err != nil {
		return nil, err
	}
	return s.transcripts.FindByRoomID(roomID)
}
