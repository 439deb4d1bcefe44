package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/repository"
	"debatron/pkg/config"
)

// errNotEnoughParticipants 表示開始前置條件在觸發時刻已不成立
var errNotEnoughParticipants = errors.New("not enough participants to start")

// TimerGuard 保證每個房間的每種轉移只排一次倒數
type TimerGuard interface {
	Acquire(key string, ttl time.Duration) bool
}

type redisTimerGuard struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisTimerGuard(rdb *redis.Client, logger *zap.Logger) TimerGuard {
	return &redisTimerGuard{rdb: rdb, logger: logger}
}

func (g *redisTimerGuard) Acquire(key string, ttl time.Duration) bool {
	ok, err := g.rdb.SetNX(context.Background(), key, 1, ttl).Result()
	if err != nil {
		// 觸發本身是冪等的，鎖不可用時寧可多排一次倒數
		g.logger.Warn("timer guard unavailable, arming anyway", zap.Error(err), zap.String("key", key))
		return true
	}
	return ok
}

// LifecycleService 擁有房間的狀態轉移和驅動轉移的計時器。
// 每個計時器在觸發時刻重新驗證房間狀態和人數，絕不假設排定時的
// 前置條件仍然成立；對已終止或不存在的房間觸發是靜默的 no-op
type LifecycleService struct {
	rooms     repository.RoomRepository
	guard     TimerGuard
	scoring   *ScoringService
	wsManager *WebSocketManager
	cfg       config.DebateConfig
	logger    *zap.Logger
}

func NewLifecycleService(rooms repository.RoomRepository, guard TimerGuard, scoring *ScoringService, wsManager *WebSocketManager, cfg config.DebateConfig, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{
		rooms:     rooms,
		guard:     guard,
		scoring:   scoring,
		wsManager: wsManager,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *LifecycleService) startWait() time.Duration {
	return time.Duration(s.cfg.StartWaitSeconds) * time.Second
}

func (s *LifecycleService) captureWindow() time.Duration {
	return time.Duration(s.cfg.CaptureWindowSeconds) * time.Second
}

// ArmStartTimer 為達到最少人數的房間排定開始倒數，
// 同一個房間不論多少次加入觸發，只會有一個倒數
func (s *LifecycleService) ArmStartTimer(roomID uint) {
	// 先落盤觸發時間再取鎖。落盤失敗就不取鎖，
	// 否則中途崩潰會留下一個沒有觸發時間、恢復掃描找不到、
	// 鎖又擋住重排的房間
	fireAt := time.Now().Add(s.startWait())
	if err := s.rooms.SetStartDeadline(roomID, fireAt); err != nil {
		s.logger.Error("failed to persist start deadline", zap.Error(err), zap.Uint("room_id", roomID))
		return
	}

	ttl := s.startWait() + s.captureWindow() + time.Minute
	if !s.guard.Acquire(fmt.Sprintf("timer:start:%d", roomID), ttl) {
		return
	}

	s.logger.Info("start timer armed", zap.Uint("room_id", roomID), zap.Time("fire_at", fireAt))
	time.AfterFunc(s.startWait(), func() { s.fireStart(roomID) })
}

// fireStart 是開始計時器的觸發點：pending 且人數足夠 → ongoing，
// 否則 pending → cancelled。狀態已變或房間消失時不做任何事
func (s *LifecycleService) fireStart(roomID uint) {
	room, applied, err := s.rooms.UpdateStatusIf(roomID, models.RoomStatusPending, models.RoomStatusOngoing, func(r *models.Room) error {
		if len(r.Participants) < s.cfg.MinParticipantsToStart {
			return errNotEnoughParticipants
		}
		now := time.Now()
		r.StartedAt = &now // 設置一次之後不再變更
		r.StartDeadline = nil
		captureAt := now.Add(s.captureWindow())
		r.CaptureDeadline = &captureAt
		return nil
	})
	if errors.Is(err, errNotEnoughParticipants) {
		s.Cancel(roomID)
		return
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return // 房間已被清理
		}
		s.logger.Error("start transition failed", zap.Error(err), zap.Uint("room_id", roomID))
		return
	}
	if !applied {
		s.logger.Info("start timer fired against non-pending room, ignoring", zap.Uint("room_id", roomID))
		return
	}

	s.logger.Info("room started", zap.Uint("room_id", roomID), zap.Int("participants", len(room.Participants)))
	s.wsManager.BroadcastPhase(roomID, room.Status)
	s.armCaptureTimer(roomID)
}

// armCaptureTimer 排定記錄窗口關閉的倒數，觸發時進入結算
func (s *LifecycleService) armCaptureTimer(roomID uint) {
	ttl := s.captureWindow() + time.Minute
	if !s.guard.Acquire(fmt.Sprintf("timer:capture:%d", roomID), ttl) {
		return
	}
	time.AfterFunc(s.captureWindow(), func() { s.scoring.Finalize(roomID) })
}

// Cancel 把仍在等待的房間轉為 cancelled；配對服務不會再選中它
func (s *LifecycleService) Cancel(roomID uint) {
	room, applied, err := s.rooms.UpdateStatusIf(roomID, models.RoomStatusPending, models.RoomStatusCancelled, func(r *models.Room) error {
		r.StartDeadline = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
		s.logger.Error("cancel transition failed", zap.Error(err), zap.Uint("room_id", roomID))
		return
	}
	if !applied {
		return
	}
	s.logger.Info("room cancelled", zap.Uint("room_id", roomID))
	s.wsManager.BroadcastPhase(roomID, room.Status)
}

// Close 把被清空的房間轉為 closed，之後任何計時器對它都不再生效
func (s *LifecycleService) Close(roomID uint) {
	for _, from := range []models.RoomStatus{models.RoomStatusPending, models.RoomStatusOngoing} {
		room, applied, err := s.rooms.UpdateStatusIf(roomID, from, models.RoomStatusClosed, func(r *models.Room) error {
			r.StartDeadline = nil
			r.CaptureDeadline = nil
			return nil
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return
			}
			s.logger.Error("close transition failed", zap.Error(err), zap.Uint("room_id", roomID))
			return
		}
		if applied {
			s.logger.Info("room closed", zap.Uint("room_id", roomID))
			s.wsManager.BroadcastPhase(roomID, room.Status)
			return
		}
	}
}

// RecoverOverdueTimers 掃描所有帶著預定觸發時間的房間：已過期的立即補發，
// 還沒到期的重建記憶體計時器。進程重啟會丟失記憶體中的計時器，
// 靠持久化的觸發時間把它們找回來
func (s *LifecycleService) RecoverOverdueTimers() {
	rooms, err := s.rooms.ListScheduledTransitions()
	if err != nil {
		s.logger.Error("timer recovery sweep failed", zap.Error(err))
		return
	}
	now := time.Now()
	for _, room := range rooms {
		switch room.Status {
		case models.RoomStatusPending:
			s.recoverTimer(room.ID, room.StartDeadline, now, fmt.Sprintf("timer:start:%d", room.ID), s.fireStart)
		case models.RoomStatusOngoing:
			s.recoverTimer(room.ID, room.CaptureDeadline, now, fmt.Sprintf("timer:capture:%d", room.ID), s.scoring.Finalize)
		}
	}
}

// recoverTimer 補發已過期的轉移，或為尚未到期的轉移重建計時器。
// 過期補發刻意繞過防重入鎖：觸發是冪等的，多發一次無害，
// 但鎖可能還殘留著重啟前的記錄，擋下補發反而造成房間卡死。
// 未到期的重建照常取鎖，同一個觸發時間不會因為每次掃描都疊加計時器；
// 鎖殘留擋下重建時，過期分支最晚在下一次掃描接手
func (s *LifecycleService) recoverTimer(roomID uint, deadline *time.Time, now time.Time, guardKey string, fire func(uint)) {
	if deadline == nil {
		return
	}
	if !deadline.After(now) {
		s.logger.Info("recovering overdue transition", zap.Uint("room_id", roomID), zap.Time("deadline", *deadline))
		fire(roomID)
		return
	}
	remaining := deadline.Sub(now)
	if !s.guard.Acquire(guardKey, remaining+time.Minute) {
		return
	}
	s.logger.Info("rebuilding scheduled transition", zap.Uint("room_id", roomID), zap.Time("fire_at", *deadline))
	time.AfterFunc(remaining, func() { fire(roomID) })
}
