package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/challenge-runtime/internal/replay"
)

const schema = `CREATE TABLE IF NOT EXISTS game_replays (
    replay_id    TEXT PRIMARY KEY,
    challenge_id TEXT NOT NULL,
    game_id      TEXT NOT NULL,
    outcome      TEXT NOT NULL DEFAULT '',
    total_moves  INT NOT NULL DEFAULT 0,
    duration_ms  BIGINT NOT NULL DEFAULT 0,
    recorded_at  BIGINT NOT NULL DEFAULT 0,
    payload      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS game_replays_challenge_idx
    ON game_replays (challenge_id, recorded_at DESC)`

// Postgres stores replays as JSONB rows with denormalized listing
// columns so List never has to unpack payloads.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply replay schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Save(ctx context.Context, rp *replay.GameReplay) error {
	if rp == nil || rp.ReplayID == "" {
		return errors.New("replay has no id")
	}
	payload, err := json.Marshal(rp)
	if err != nil {
		return fmt.Errorf("encode replay: %w", err)
	}
	sum := summarize(rp)

	q := `INSERT INTO game_replays (
	    replay_id, challenge_id, game_id, outcome,
	    total_moves, duration_ms, recorded_at, payload
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	  ON CONFLICT (replay_id) DO NOTHING`
	res, err := p.db.ExecContext(ctx, q,
		sum.ReplayID, sum.ChallengeID, sum.GameID, sum.Outcome,
		sum.TotalMoves, sum.DurationMS, sum.RecordedAt, payload,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, replayID string) (*replay.GameReplay, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM game_replays WHERE replay_id = $1`, replayID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rp replay.GameReplay
	if err := json.Unmarshal(payload, &rp); err != nil {
		return nil, fmt.Errorf("decode replay %s: %w", replayID, err)
	}
	return &rp, nil
}

func (p *Postgres) List(ctx context.Context, challengeID string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT replay_id, challenge_id, game_id, outcome, total_moves, duration_ms, recorded_at
	  FROM game_replays`
	args := []any{}
	if challengeID != "" {
		q += ` WHERE challenge_id = $1`
		args = append(args, challengeID)
	}
	q += fmt.Sprintf(` ORDER BY recorded_at DESC, replay_id LIMIT %d`, limit)

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ReplayID, &s.ChallengeID, &s.GameID, &s.Outcome, &s.TotalMoves, &s.DurationMS, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
