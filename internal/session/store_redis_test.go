package session

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
)

type fakeCodec struct{}

func (fakeCodec) EncodeState(challengeID string, s game.State) (string, error) {
	fs, ok := s.(*fakeState)
	if !ok {
		return "", fmt.Errorf("not a fake state")
	}
	raw, err := json.Marshal(map[string]any{"id": fs.id, "moves": fs.moves})
	return string(raw), err
}

func (fakeCodec) DecodeState(challengeID, raw string) (game.State, error) {
	var rec struct {
		ID    string `json:"id"`
		Moves int    `json:"moves"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &fakeState{id: rec.ID, moves: rec.Moves}, nil
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisStore(rdb, fakeCodec{})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	s := &Session{
		ID:             "sess-1",
		ChallengeID:    "nim",
		Difficulty:     "hard",
		Seed:           "seed-9",
		CreatedAt:      time.Now().Truncate(time.Millisecond),
		LastActivityAt: time.Now().Truncate(time.Millisecond),
		Status:         StatusActive,
		State:          &fakeState{id: "g1", moves: 3},
		Events: []replay.Event{
			{Seq: 0, Type: replay.EventGameStart, Seed: "seed-9"},
			{Seq: 1, Type: replay.EventPlayerMove, Move: "2"},
		},
		MoveCount: 3,
	}
	if err := store.Put(ctx, s, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatalf("Get returned nil for stored session")
	}
	if got.ChallengeID != "nim" || got.MoveCount != 3 || len(got.Events) != 2 {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.State == nil || got.State.GameID() != "g1" || got.State.MoveCount() != 3 {
		t.Fatalf("state did not survive the codec: %+v", got.State)
	}
}

func TestRedisStoreMissingIsNilNil(t *testing.T) {
	store, _ := newRedisStore(t)
	got, err := store.Get(context.Background(), "absent")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for absent key, got (%v, %v)", got, err)
	}
}

func TestRedisStoreTTLReclaims(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	s := &Session{ID: "sess-ttl", ChallengeID: "nim", Status: StatusActive}
	if err := store.Put(ctx, s, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "sess-ttl")
	if err != nil || got != nil {
		t.Fatalf("expected session reclaimed by TTL, got (%v, %v)", got, err)
	}

	// The index entry is dropped lazily during List.
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after TTL, got %d", len(list))
	}
}

func TestRedisStoreDeleteAndList(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := &Session{ID: fmt.Sprintf("sess-%d", i), ChallengeID: "nim", Status: StatusActive}
		if err := store.Put(ctx, s, time.Hour); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	for _, s := range list {
		if s.ID == "sess-1" {
			t.Fatalf("deleted session still listed")
		}
	}
}
