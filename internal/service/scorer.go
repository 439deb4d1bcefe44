package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/repository"
)

// ScoreOracle 是外部評分服務的邊界。以每位用戶按順序排列的發言為輸入，
// 產出評分報告；可能失敗或超時，由呼叫方決定降級行為
type ScoreOracle interface {
	Score(ctx context.Context, transcriptsByUser map[uint][]string) (*models.ScoreReport, error)
}

// httpScoreOracle 透過 HTTP JSON 呼叫評分服務
type httpScoreOracle struct {
	url    string
	client *http.Client
}

func NewHTTPScoreOracle(url string, timeout time.Duration) ScoreOracle {
	return &httpScoreOracle{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (o *httpScoreOracle) Score(ctx context.Context, transcriptsByUser map[uint][]string) (*models.ScoreReport, error) {
	payload, err := json.Marshal(map[string]interface{}{"transcripts": transcriptsByUser})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("score oracle returned status %d", resp.StatusCode)
	}

	var report models.ScoreReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ScoringService 在記錄窗口關閉時彙整發言並結算房間
type ScoringService struct {
	rooms         repository.RoomRepository
	transcripts   repository.TranscriptRepository
	oracle        ScoreOracle
	oracleTimeout time.Duration
	wsManager     *WebSocketManager
	logger        *zap.Logger
}

func NewScoringService(rooms repository.RoomRepository, transcripts repository.TranscriptRepository, oracle ScoreOracle, oracleTimeout time.Duration, wsManager *WebSocketManager, logger *zap.Logger) *ScoringService {
	return &ScoringService{
		rooms:         rooms,
		transcripts:   transcripts,
		oracle:        oracle,
		oracleTimeout: oracleTimeout,
		wsManager:     wsManager,
		logger:        logger,
	}
}

// Finalize 結算一個房間：讀取發言、呼叫評分服務、寫入報告並轉移到 finished。
// 對重複觸發是冪等的：第二次呼叫時條件轉移不成立，直接返回。
// 評分失敗絕不阻擋房間到達終止狀態
func (s *ScoringService) Finalize(roomID uint) {
	room, err := s.rooms.FindByID(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("finalize: room not found, skipping", zap.Uint("room_id", roomID))
			return
		}
		s.logger.Error("finalize: failed to load room", zap.Error(err), zap.Uint("room_id", roomID))
		return
	}
	if room.Status != models.RoomStatusOngoing {
		// 防禦重複的計時器觸發
		s.logger.Info("finalize: room not ongoing, skipping",
			zap.Uint("room_id", roomID), zap.String("status", string(room.Status)))
		return
	}

	report := s.buildReport(roomID)

	room, applied, err := s.rooms.UpdateStatusIf(roomID, models.RoomStatusOngoing, models.RoomStatusFinished, func(r *models.Room) error {
		r.Scores = report
		r.Winner = report.Winner
		r.CaptureDeadline = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
		s.logger.Error("finalize: failed to persist score report", zap.Error(err), zap.Uint("room_id", roomID))
		return
	}
	if !applied {
		// 另一次結算已經搶先完成
		s.logger.Info("finalize: transition already applied elsewhere", zap.Uint("room_id", roomID))
		return
	}

	s.wsManager.BroadcastFinalScore(roomID, report)
	s.wsManager.BroadcastPhase(roomID, room.Status)
	s.logger.Info("room finalized", zap.Uint("room_id", roomID), zap.Bool("degraded", report.Error != ""))
}

// buildReport 彙整發言並向評分服務要求報告，失敗時回傳降級報告
func (s *ScoringService) buildReport(roomID uint) *models.ScoreReport {
	fragments, err := s.transcripts.FindByRoomID(roomID)
	if err != nil {
		s.logger.Error("finalize: failed to load transcripts", zap.Error(err), zap.Uint("room_id", roomID))
		return degradedReport("failed to load transcripts")
	}

	// 按發送者分組，組內保持發言順序
	byUser := make(map[uint][]string)
	for _, f := range fragments {
		byUser[f.SenderID] = append(byUser[f.SenderID], f.Text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.oracleTimeout)
	defer cancel()

	report, err := s.oracle.Score(ctx, byUser)
	if err != nil {
		s.logger.Error("finalize: score oracle failed", zap.Error(err), zap.Uint("room_id", roomID))
		return degradedReport("scoring failed")
	}
	if report.PerUser == nil {
		report.PerUser = map[uint]models.UserScore{}
	}
	return report
}

func degradedReport(reason string) *models.ScoreReport {
	return &models.ScoreReport{
		PerUser: map[uint]models.UserScore{},
		Error:   reason,
	}
}
