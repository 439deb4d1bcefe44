package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debatron/internal/models"
)

func appendFragment(env *testEnv, roomID, senderID uint, text string) {
	if err := env.transcripts.Append(&models.TranscriptFragment{
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		Timestamp: time.Now(),
	}); err != nil {
		panic(err)
	}
}

func TestFinalizeGroupsTranscriptsBySenderInOrder(t *testing.T) {
	env := newTestEnv(defaultDebateConfig())
	room := newPendingRoom(env, 10, 1, 2)
	startRoom(env, room)

	appendFragment(env, room.ID, 1, "first point")
	appendFragment(env, room.ID, 2, "rebuttal")
	appendFragment(env, room.ID, 1, "second point")

	env.scoring.Finalize(room.ID)

	require.Equal(t, 1, env.oracle.calls)
	assert.Equal(t, []string{"first point", "second point"}, env.oracle.input[1])
	assert.Equal(t, []string{"rebuttal"}, env.oracle.input[2])
}

func TestFinalizePersistsReportAndWinner(t *testing.T) {
	env := newTestEnv(defaultDebateConfig())
	winner := uint(2)
	env.oracle.report = &models.ScoreReport{
		PerUser: map[uint]models.UserScore{
			1: {Logic: 6, Total: 6},
			2: {Logic: 9, Total: 9},
		},
		Winner: &winner,
	}
	room := newPendingRoom(env, 10, 1, 2)
	startRoom(env, room)

	env.scoring.Finalize(room.ID)

	got, err := env.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, got.Status)
	require.NotNil(t, got.Scores)
	assert.Empty(t, got.Scores.Error)
	require.NotNil(t, got.Winner)
	assert.Equal(t, winner, *got.Winner)
	assert.Nil(t, got.CaptureDeadline)
}

func TestFinalizeDegradesWhenOracleFails(t *testing.T) {
	env := newTestEnv(defaultDebateConfig())
	env.oracle.err = errors.New("oracle unreachable")
	room := newPendingRoom(env, 10, 1, 2)
	startRoom(env, room)
	appendFragment(env, room.ID, 1, "hello")

	env.scoring.Finalize(room.ID)

	// 評分失敗不能擋住房間到達終止狀態
	got, err := env.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, got.Status)
	require.NotNil(t, got.Scores)
	assert.Equal(t, "scoring failed", got.Scores.Error)
	assert.Nil(t, got.Winner)
	assert.Empty(t, got.Scores.PerUser)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	env := newTestEnv(defaultDebateConfig())
	room := newPendingRoom(env, 10, 1, 2)
	startRoom(env, room)

	env.scoring.Finalize(room.ID)
	env.scoring.Finalize(room.ID)

	assert.Equal(t, 1, env.oracle.calls)
	got, err := env.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, got.Status)
}

func TestFinalizeSkipsNonOngoingRoom(t *testing.T) {
	env := newTestEnv(defaultDebateConfig())
	room := newPendingRoom(env, 10, 1, 2)

	env.scoring.Finalize(room.ID)

	assert.Equal(t, 0, env.oracle.calls)
	got, err := env.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPending, got.Status)
}

func TestFinalizeSkipsMissingRoom(t *testing.T) {
	env := newTestEnv(defaultDebateConfig())
	env.scoring.Finalize(404)
	assert.Equal(t, 0, env.oracle.calls)
}

func TestHTTPScoreOracle(t *testing.T) {
	winner := uint(7)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload struct {
			Transcripts map[uint][]string `json:"transcripts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, []string{"a", "b"}, payload.Transcripts[7])

		json.NewEncoder(w).Encode(&models.ScoreReport{
			PerUser: map[uint]models.UserScore{7: {Logic: 8, Total: 8}},
			Winner:  &winner,
		})
	}))
	defer server.Close()

	oracle := NewHTTPScoreOracle(server.URL, time.Second)
	report, err := oracle.Score(context.Background(), map[uint][]string{7: {"a", "b"}})
	require.NoError(t, err)
	require.NotNil(t, report.Winner)
	assert.Equal(t, winner, *report.Winner)
	assert.InDelta(t, 8.0, report.PerUser[7].Total, 0.001)
}

func TestHTTPScoreOracleRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	oracle := NewHTTPScoreOracle(server.URL, time.Second)
	_, err := oracle.Score(context.Background(), map[uint][]string{})
	assert.Error(t, err)
}
