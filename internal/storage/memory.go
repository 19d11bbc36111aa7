package storage

import (
	"context"
	"encoding/json"
	"sync"

	"StoryLoom/server/internal/models"
)

// MemoryStore is an in-process SessionStore used when Redis is not
// configured and by tests. A single mutex serializes updates, which
// gives the same atomicity contract as the Redis transaction without
// retries.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	rooms    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		rooms:    make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[sess.RoomID]; ok {
		return ErrRoomTaken
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.rooms[sess.RoomID] = sess.ID
	s.sessions[sess.ID] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *MemoryStore) get(id string) (*models.Session, error) {
	data, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemoryStore) GetByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(id)
}

func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(sess); err != nil {
		return nil, err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = data
	return sess, nil
}
