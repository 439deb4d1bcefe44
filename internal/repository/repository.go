package repository

import "debatron/internal/storage"

type Repositories struct {
	User          UserRepository
	Topic         TopicRepository
	Room          RoomRepository
	Participation ParticipationRepository
	Transcript    TranscriptRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Topic:         NewTopicRepository(db),
		Room:          NewRoomRepository(db),
		Participation: NewParticipationRepository(db),
		Transcript:    NewTranscriptRepository(db),
	}
}
