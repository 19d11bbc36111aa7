package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"StoryLoom/server/internal/config"
	"StoryLoom/server/internal/models"
)

const (
	sessionKeyPrefix = "session:"
	roomKeyPrefix    = "room:"

	// Optimistic transactions abort when the watched key changes
	// between read and commit; maxTxRetries bounds the transparent
	// retry loop before ErrConflict surfaces.
	maxTxRetries = 8
)

// RedisStore keeps each session as one JSON document and implements
// atomic read-modify-write through WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func roomKey(roomID string) string { return roomKeyPrefix + roomID }

func (s *RedisStore) Create(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Claim the room id first so concurrent creates cannot share one.
	ok, err := s.client.SetNX(ctx, roomKey(sess.RoomID), sess.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim room id: %w", err)
	}
	if !ok {
		return ErrRoomTaken
	}

	if err := s.client.Set(ctx, sessionKey(sess.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) GetByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	id, err := s.client.Get(ctx, roomKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve room id: %w", err)
	}
	return s.Get(ctx, id)
}

// Update runs mutate against a fresh snapshot inside a WATCH
// transaction. When a concurrent write invalidates the snapshot the
// commit fails and the whole read-mutate-commit cycle retries with a
// new read. Errors from mutate are returned as-is and never retried.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	key := sessionKey(id)
	var updated *models.Session

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		var sess models.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		if err := mutate(&sess); err != nil {
			return err
		}

		out, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &sess
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}
