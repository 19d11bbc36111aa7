package storage

import (
	"context"
	"errors"

	"StoryLoom/server/internal/models"
)

var (
	// ErrNotFound is returned when no session exists for the given id
	// or room id.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when an optimistic transaction kept
	// aborting and the retry budget ran out.
	ErrConflict = errors.New("session update conflict")
	// ErrRoomTaken is returned when a room id is already in use.
	ErrRoomTaken = errors.New("room id already in use")
)

// SessionStore is the document store holding one session per game room.
// Update is the sole serialization point: it re-reads the document,
// applies mutate, and commits atomically, retrying on concurrent
// writes. An error returned by mutate aborts without retry, so
// precondition failures surface unchanged.
type SessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*models.Session, error)
	Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error)
}
