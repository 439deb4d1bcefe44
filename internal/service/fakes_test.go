package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"debatron/internal/models"
	"debatron/internal/repository"
)

// 測試用的記憶體存儲，實作與資料庫版相同的條件寫入語義，
// 讓配對與生命週期的併發性質可以在不連資料庫的情況下驗證

type fakeRoomRepo struct {
	mu    sync.Mutex
	seq   uint
	rooms map[uint]*models.Room

	deadlineErr error // 設置後 SetStartDeadline 回傳這個錯誤
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[uint]*models.Room)}
}

func cloneRoom(r *models.Room) *models.Room {
	c := *r
	c.Participants = append([]uint{}, r.Participants...)
	return &c
}

func (f *fakeRoomRepo) Create(room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	room.ID = f.seq
	room.CreatedAt = time.Now()
	if room.Participants == nil {
		room.Participants = []uint{}
	}
	f.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (f *fakeRoomRepo) FindByID(id uint) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneRoom(room), nil
}

func (f *fakeRoomRepo) FindOldestPending(topicID, excludeUserID uint, maxSize int) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *models.Room
	for _, room := range f.rooms {
		if room.TopicID != topicID || room.Status != models.RoomStatusPending {
			continue
		}
		if len(room.Participants) >= maxSize || room.HasParticipant(excludeUserID) {
			continue
		}
		if oldest == nil || room.ID < oldest.ID {
			oldest = room
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return cloneRoom(oldest), nil
}

func (f *fakeRoomRepo) AddParticipant(roomID, userID uint, maxSize int) (*models.Room, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if room.HasParticipant(userID) {
		return cloneRoom(room), false, nil
	}
	if room.Status != models.RoomStatusPending {
		return nil, false, repository.ErrRoomNotJoinable
	}
	if len(room.Participants) >= maxSize {
		return nil, false, repository.ErrRoomCapacity
	}
	room.Participants = append(room.Participants, userID)
	return cloneRoom(room), true, nil
}

func (f *fakeRoomRepo) RemoveParticipant(roomID, userID uint) (*models.Room, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if room.Status.IsTerminal() {
		return cloneRoom(room), false, nil
	}
	remaining := make([]uint, 0, len(room.Participants))
	removed := false
	for _, id := range room.Participants {
		if id == userID {
			removed = true
			continue
		}
		remaining = append(remaining, id)
	}
	if removed {
		room.Participants = remaining
	}
	return cloneRoom(room), removed, nil
}

func (f *fakeRoomRepo) UpdateStatusIf(roomID uint, from, to models.RoomStatus, mutate func(*models.Room) error) (*models.Room, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if room.Status != from {
		return cloneRoom(room), false, nil
	}
	staged := cloneRoom(room)
	if mutate != nil {
		if err := mutate(staged); err != nil {
			return nil, false, err
		}
	}
	staged.Status = to
	f.rooms[roomID] = staged
	return cloneRoom(staged), true, nil
}

func (f *fakeRoomRepo) SetStartDeadline(roomID uint, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadlineErr != nil {
		return f.deadlineErr
	}
	if room, ok := f.rooms[roomID]; ok {
		deadline := t
		room.StartDeadline = &deadline
	}
	return nil
}

func (f *fakeRoomRepo) SetCaptureDeadline(roomID uint, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[roomID]; ok {
		deadline := t
		room.CaptureDeadline = &deadline
	}
	return nil
}

func (f *fakeRoomRepo) ListScheduledTransitions() ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scheduled []models.Room
	for _, room := range f.rooms {
		switch {
		case room.Status == models.RoomStatusPending && room.StartDeadline != nil:
			scheduled = append(scheduled, *cloneRoom(room))
		case room.Status == models.RoomStatusOngoing && room.CaptureDeadline != nil:
			scheduled = append(scheduled, *cloneRoom(room))
		}
	}
	return scheduled, nil
}

func (f *fakeRoomRepo) all() []*models.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := make([]*models.Room, 0, len(f.rooms))
	for _, room := range f.rooms {
		rooms = append(rooms, cloneRoom(room))
	}
	return rooms
}

type participationKey struct {
	userID  uint
	topicID uint
}

type fakeParticipationRepo struct {
	mu      sync.Mutex
	entries map[participationKey]*models.Participation
}

func newFakeParticipationRepo() *fakeParticipationRepo {
	return &fakeParticipationRepo{entries: make(map[participationKey]*models.Participation)}
}

func (f *fakeParticipationRepo) Create(p *models.Participation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := participationKey{p.UserID, p.TopicID}
	if _, exists := f.entries[key]; exists {
		return repository.ErrDuplicateParticipation
	}
	stored := *p
	f.entries[key] = &stored
	return nil
}

func (f *fakeParticipationRepo) FindByUserAndTopic(userID, topicID uint) (*models.Participation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.entries[participationKey{userID, topicID}]; ok {
		stored := *p
		return &stored, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeParticipationRepo) UpdateRoom(userID, topicID, roomID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.entries[participationKey{userID, topicID}]; ok {
		p.RoomID = roomID
		p.JoinedAt = time.Now()
	}
	return nil
}

func (f *fakeParticipationRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uint]*models.User)}
}

func (f *fakeUserRepo) add(user *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

func (f *fakeUserRepo) Create(user *models.User) error {
	f.add(user)
	return nil
}

func (f *fakeUserRepo) FindByID(id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		stored := *user
		return &stored, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByUsername(username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			stored := *user
			return &stored, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) AppendDebateHistory(userID, roomID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, id := range user.DebateHistory {
		if id == roomID {
			return nil
		}
	}
	user.DebateHistory = append(user.DebateHistory, roomID)
	return nil
}

type fakeTopicRepo struct {
	mu     sync.Mutex
	topics map[uint]*models.Topic
}

func newFakeTopicRepo() *fakeTopicRepo {
	return &fakeTopicRepo{topics: make(map[uint]*models.Topic)}
}

func (f *fakeTopicRepo) add(topic *models.Topic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics[topic.ID] = topic
}

func (f *fakeTopicRepo) Create(topic *models.Topic) error {
	f.add(topic)
	return nil
}

func (f *fakeTopicRepo) FindByID(id uint) (*models.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic, ok := f.topics[id]; ok {
		stored := *topic
		return &stored, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTopicRepo) FindByTitle(title string) (*models.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range f.topics {
		if topic.Title == title {
			stored := *topic
			return &stored, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTopicRepo) FindAll() ([]models.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make([]models.Topic, 0, len(f.topics))
	for _, topic := range f.topics {
		topics = append(topics, *topic)
	}
	return topics, nil
}

type fakeTranscriptRepo struct {
	mu        sync.Mutex
	fragments []models.TranscriptFragment
}

func newFakeTranscriptRepo() *fakeTranscriptRepo {
	return &fakeTranscriptRepo{}
}

func (f *fakeTranscriptRepo) Append(fragment *models.TranscriptFragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *fragment
	stored.ID = uint(len(f.fragments) + 1)
	f.fragments = append(f.fragments, stored)
	return nil
}

func (f *fakeTranscriptRepo) FindByRoomID(roomID uint) ([]models.TranscriptFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.TranscriptFragment
	for _, fragment := range f.fragments {
		if fragment.RoomID == roomID {
			result = append(result, fragment)
		}
	}
	return result, nil
}

// fakeTimerGuard 記錄取鎖次數，行為與 SETNX 相同
type fakeTimerGuard struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
}

func newFakeTimerGuard() *fakeTimerGuard {
	return &fakeTimerGuard{held: make(map[string]bool)}
}

func (g *fakeTimerGuard) Acquire(key string, ttl time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return false
	}
	g.held[key] = true
	g.acquired++
	return true
}

// fakeOracle 記錄收到的輸入並回傳預設的報告或錯誤
type fakeOracle struct {
	mu     sync.Mutex
	calls  int
	input  map[uint][]string
	report *models.ScoreReport
	err    error
}

func (o *fakeOracle) Score(_ context.Context, transcriptsByUser map[uint][]string) (*models.ScoreReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.input = transcriptsByUser
	if o.err != nil {
		return nil, o.err
	}
	return o.report, nil
}
