package service

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"debatron/internal/models"
	"debatron/internal/repository"
	"debatron/pkg/config"
)

// testEnv 把服務層組裝在記憶體存儲之上，供各測試共用
type testEnv struct {
	rooms          *fakeRoomRepo
	participations *fakeParticipationRepo
	users          *fakeUserRepo
	topics         *fakeTopicRepo
	transcripts    *fakeTranscriptRepo
	guard          *fakeTimerGuard
	oracle         *fakeOracle

	ws         *WebSocketManager
	scoring    *ScoringService
	lifecycle  *LifecycleService
	matchmaker *MatchmakerService
}

func newTestEnv(cfg config.DebateConfig) *testEnv {
	env := &testEnv{
		rooms:          newFakeRoomRepo(),
		participations: newFakeParticipationRepo(),
		users:          newFakeUserRepo(),
		topics:         newFakeTopicRepo(),
		transcripts:    newFakeTranscriptRepo(),
		guard:          newFakeTimerGuard(),
		oracle:         &fakeOracle{report: &models.ScoreReport{PerUser: map[uint]models.UserScore{}}},
	}

	logger := zap.NewNop()
	captureWindow := time.Duration(cfg.CaptureWindowSeconds) * time.Second

	env.ws = NewWebSocketManager(env.rooms, env.transcripts, captureWindow, logger)
	env.scoring = NewScoringService(env.rooms, env.transcripts, env.oracle, time.Second, env.ws, logger)
	env.lifecycle = NewLifecycleService(env.rooms, env.guard, env.scoring, env.ws, cfg, logger)
	env.matchmaker = NewMatchmakerService(&repository.Repositories{
		User:          env.users,
		Topic:         env.topics,
		Room:          env.rooms,
		Participation: env.participations,
		Transcript:    env.transcripts,
	}, env.lifecycle, env.ws, cfg, logger)

	return env
}

func (env *testEnv) addUser(id uint, premium bool) {
	user := &models.User{Username: "user", IsPremium: premium}
	user.ID = id
	env.users.add(user)
}

func (env *testEnv) addTopic(id uint, premium bool) {
	topic := &models.Topic{Title: "topic", IsPremium: premium}
	topic.ID = id
	env.topics.add(topic)
}

func defaultDebateConfig() config.DebateConfig {
	return config.DebateConfig{
		MaxRoomSize:            6,
		MinParticipantsToStart: 2,
		StartWaitSeconds:       3600, // 測試期間不讓計時器觸發
		CaptureWindowSeconds:   3600,
	}
}

// nextEvent 帶超時地讀取客戶端事件通道
func nextEvent(t *testing.T, ch chan *Event) *Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
