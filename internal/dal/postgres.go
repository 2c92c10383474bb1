package dal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// PostgresStore implements MatchStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL, retrying while the database comes up
func NewPostgresStore(connString string) (*PostgresStore, error) {
	return newPostgresStore(connString, 5, 5*time.Second)
}

func newPostgresStore(connString string, maxRetries int, retryDelay time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	// Connection pool sized for a single match device plus history queries
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if lastErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	p := &PostgresStore{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		players JSONB NOT NULL,
		legs JSONB NOT NULL,
		in_mode TEXT NOT NULL,
		out_mode TEXT NOT NULL,
		bull_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS throws (
		id BIGSERIAL PRIMARY KEY,
		match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		leg INTEGER NOT NULL,
		round INTEGER NOT NULL,
		player_id TEXT NOT NULL,
		dedup_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		segment TEXT NOT NULL DEFAULT '',
		number INTEGER NOT NULL DEFAULT 0,
		multiplier INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		variant TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (match_id, player_id, kind, dedup_key)
	);

	CREATE TABLE IF NOT EXISTS leg_results (
		match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		leg INTEGER NOT NULL,
		variant TEXT NOT NULL,
		starter_id TEXT NOT NULL,
		winner_id TEXT NOT NULL DEFAULT '',
		rounds INTEGER NOT NULL DEFAULT 0,
		tie_break BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, leg)
	);

	CREATE INDEX IF NOT EXISTS idx_throws_match_id ON throws(match_id, id);
	CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) SaveMatch(d *models.MatchDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	players, err := json.Marshal(d.Players)
	if err != nil {
		return err
	}
	legs, err := json.Marshal(d.Legs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = models.StatusAccepted
	}

	_, err = p.db.Exec(`
		INSERT INTO matches (id, players, legs, in_mode, out_mode, bull_mode, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			players = EXCLUDED.players,
			legs = EXCLUDED.legs,
			in_mode = EXCLUDED.in_mode,
			out_mode = EXCLUDED.out_mode,
			bull_mode = EXCLUDED.bull_mode,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, d.ID, players, legs, string(d.InMode), string(d.OutMode), string(d.BullMode), string(d.Status),
		d.CreatedAt, d.UpdatedAt)
	return err
}

func (p *PostgresStore) GetMatch(id string) (*models.MatchDescriptor, error) {
	var (
		d             models.MatchDescriptor
		players, legs []byte
	)
	err := p.db.QueryRow(`
		SELECT id, players, legs, in_mode, out_mode, bull_mode, status, created_at, updated_at
		FROM matches WHERE id = $1
	`, id).Scan(&d.ID, &players, &legs, &d.InMode, &d.OutMode, &d.BullMode, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(players, &d.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	if err := json.Unmarshal(legs, &d.Legs); err != nil {
		return nil, fmt.Errorf("failed to decode legs: %w", err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func (p *PostgresStore) UpdateStatus(id string, status models.MatchStatus) error {
	res, err := p.db.Exec(`UPDATE matches SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) AppendThrow(rec models.ThrowRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
		INSERT INTO throws
			(match_id, leg, round, player_id, dedup_key, kind, segment, number, multiplier, score, variant, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (match_id, player_id, kind, dedup_key) DO NOTHING
	`, rec.MatchID, rec.Leg, rec.Round, rec.PlayerID, rec.Key, rec.Kind, rec.Segment,
		rec.Number, rec.Multiplier, rec.Score, string(rec.Variant), rec.CreatedAt)
	return err
}

func (p *PostgresStore) ListThrows(matchID string) ([]models.ThrowRecord, error) {
	rows, err := p.db.Query(`
		SELECT match_id, leg, round, player_id, dedup_key, kind, segment, number, multiplier, score, variant, created_at
		FROM throws WHERE match_id = $1 ORDER BY id
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ThrowRecord
	for rows.Next() {
		var rec models.ThrowRecord
		if err := rows.Scan(&rec.MatchID, &rec.Leg, &rec.Round, &rec.PlayerID, &rec.Key, &rec.Kind,
			&rec.Segment, &rec.Number, &rec.Multiplier, &rec.Score, &rec.Variant, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) RecordLeg(rec models.LegResult) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
		INSERT INTO leg_results (match_id, leg, variant, starter_id, winner_id, rounds, tie_break, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id, leg) DO UPDATE SET
			variant = EXCLUDED.variant,
			starter_id = EXCLUDED.starter_id,
			winner_id = EXCLUDED.winner_id,
			rounds = EXCLUDED.rounds,
			tie_break = EXCLUDED.tie_break
	`, rec.MatchID, rec.Leg, string(rec.Variant), rec.StarterID, rec.WinnerID, rec.Rounds, rec.TieBreak, rec.CreatedAt)
	return err
}

func (p *PostgresStore) ListLegs(matchID string) ([]models.LegResult, error) {
	rows, err := p.db.Query(`
		SELECT match_id, leg, variant, starter_id, winner_id, rounds, tie_break, created_at
		FROM leg_results WHERE match_id = $1 ORDER BY leg
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LegResult
	for rows.Next() {
		var rec models.LegResult
		if err := rows.Scan(&rec.MatchID, &rec.Leg, &rec.Variant, &rec.StarterID, &rec.WinnerID,
			&rec.Rounds, &rec.TieBreak, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
