package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"StoryLoom/server/internal/models"
)

func newSession(id, room string) *models.Session {
	return &models.Session{
		ID:     id,
		RoomID: room,
		Status: models.StatusLobby,
	}
}

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newSession("s1", "111111")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, newSession("s2", "111111")); !errors.Is(err, ErrRoomTaken) {
		t.Fatalf("duplicate room error = %v, want %v", err, ErrRoomTaken)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RoomID != "111111" {
		t.Fatalf("room = %q", got.RoomID)
	}

	byRoom, err := store.GetByRoomID(ctx, "111111")
	if err != nil {
		t.Fatalf("GetByRoomID: %v", err)
	}
	if byRoom.ID != "s1" {
		t.Fatalf("id = %q", byRoom.ID)
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown error = %v, want %v", err, ErrNotFound)
	}
	if _, err := store.GetByRoomID(ctx, "000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByRoomID unknown error = %v, want %v", err, ErrNotFound)
	}
}

func TestMemoryStoreUpdateAbortsWithoutWriting(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newSession("s1", "111111")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("precondition failed")
	_, err := store.Update(ctx, "s1", func(sess *models.Session) error {
		sess.Status = models.StatusVoting
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want %v", err, boom)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusLobby {
		t.Fatalf("status = %s, aborted mutation leaked", got.Status)
	}
}

func TestMemoryStoreGetReturnsIsolatedCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newSession("s1", "111111")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, _ := store.Get(ctx, "s1")
	first.Status = models.StatusPlaying

	second, _ := store.Get(ctx, "s1")
	if second.Status != models.StatusLobby {
		t.Fatal("mutating a read copy changed the stored session")
	}
}

func TestMemoryStoreConcurrentUpdatesSerialize(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newSession("s1", "111111")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", func(sess *models.Session) error {
				sess.CurrentRound++
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentRound != workers {
		t.Fatalf("round = %d, want %d", got.CurrentRound, workers)
	}
}
