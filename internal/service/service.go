package service

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"debatron/internal/repository"
	"debatron/pkg/config"
)

type Services struct {
	User       *UserService
	Topic      *TopicService
	Matchmaker *MatchmakerService
	Lifecycle  *LifecycleService
	Scoring    *ScoringService
	WebSocket  *WebSocketManager
}

func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	captureWindow := time.Duration(cfg.Debate.CaptureWindowSeconds) * time.Second
	oracleTimeout := time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second

	wsManager := NewWebSocketManager(repos.Room, repos.Transcript, captureWindow, logger)
	oracle := NewHTTPScoreOracle(cfg.Oracle.URL, oracleTimeout)
	scoring := NewScoringService(repos.Room, repos.Transcript, oracle, oracleTimeout, wsManager, logger)
	guard := NewRedisTimerGuard(rdb, logger)
	lifecycle := NewLifecycleService(repos.Room, guard, scoring, wsManager, cfg.Debate, logger)
	matchmaker := NewMatchmakerService(repos, lifecycle, wsManager, cfg.Debate, logger)

	return &Services{
		User:       NewUserService(repos.User),
		Topic:      NewTopicService(repos.Topic),
		Matchmaker: matchmaker,
		Lifecycle:  lifecycle,
		Scoring:    scoring,
		WebSocket:  wsManager,
	}
}
