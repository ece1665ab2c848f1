package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
)

// StateCodec bridges opaque engine states and the wire. The orchestrator
// supplies one backed by its engine registry so the store never needs to
// know about concrete game types.
type StateCodec interface {
	EncodeState(challengeID string, s game.State) (string, error)
	DecodeState(challengeID, raw string) (game.State, error)
}

const (
	redisKeyPrefix = "challenge:session:"
	redisIndexKey  = "challenge:sessions"
)

// redisRecord is the JSON payload stored per session.
type redisRecord struct {
	ID             string         `json:"id"`
	ChallengeID    string         `json:"challenge_id"`
	Difficulty     string         `json:"difficulty,omitempty"`
	Seed           string         `json:"seed,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Status         Status         `json:"status"`
	StateRaw       string         `json:"state_raw,omitempty"`
	Events         []replay.Event `json:"events,omitempty"`
	MoveCount      int            `json:"move_count"`
}

// RedisStore keeps live sessions in redis with a native TTL so abandoned
// sessions are reclaimed even without a cleanup sweep.
type RedisStore struct {
	rdb   *redis.Client
	codec StateCodec
}

func NewRedisStore(rdb *redis.Client, codec StateCodec) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("state codec is required")
	}
	return &RedisStore{rdb: rdb, codec: codec}, nil
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) Put(ctx context.Context, s *Session, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	rec := redisRecord{
		ID:             s.ID,
		ChallengeID:    s.ChallengeID,
		Difficulty:     s.Difficulty,
		Seed:           s.Seed,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		Status:         s.Status,
		Events:         s.Events,
		MoveCount:      s.MoveCount,
	}
	if s.State != nil {
		raw, err := r.codec.EncodeState(s.ChallengeID, s.State)
		if err != nil {
			return fmt.Errorf("encode session state: %w", err)
		}
		rec.StateRaw = raw
	}
	payload, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisKey(s.ID), payload, ttl).Err(); err != nil {
		return err
	}
	if err := r.rdb.SAdd(ctx, redisIndexKey, s.ID).Err(); err != nil {
		return err
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.decode(raw)
}

func (r *RedisStore) decode(raw []byte) (*Session, error) {
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	s := &Session{
		ID:             rec.ID,
		ChallengeID:    rec.ChallengeID,
		Difficulty:     rec.Difficulty,
		Seed:           rec.Seed,
		CreatedAt:      rec.CreatedAt,
		LastActivityAt: rec.LastActivityAt,
		Status:         rec.Status,
		Events:         rec.Events,
		MoveCount:      rec.MoveCount,
	}
	if rec.StateRaw != "" {
		state, err := r.codec.DecodeState(rec.ChallengeID, rec.StateRaw)
		if err != nil {
			return nil, fmt.Errorf("decode session state: %w", err)
		}
		s.State = state
	}
	return s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, redisKey(id)).Err(); err != nil {
		return err
	}
	return r.rdb.SRem(ctx, redisIndexKey, id).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	ids, err := r.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		raw, err := r.rdb.Get(ctx, redisKey(id)).Bytes()
		if err == redis.Nil {
			// Key expired under redis TTL; drop the stale index entry.
			_ = r.rdb.SRem(ctx, redisIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		s, derr := r.decode(raw)
		if derr != nil {
			return nil, derr
		}
		out = append(out, s)
	}
	return out, nil
}
