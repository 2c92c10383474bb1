package dal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// SQLiteStore implements MatchStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		players TEXT NOT NULL,
		legs TEXT NOT NULL,
		in_mode TEXT NOT NULL,
		out_mode TEXT NOT NULL,
		bull_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS throws (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
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
		created_at INTEGER NOT NULL,
		UNIQUE (match_id, player_id, kind, dedup_key)
	);

	CREATE TABLE IF NOT EXISTS leg_results (
		match_id TEXT NOT NULL,
		leg INTEGER NOT NULL,
		variant TEXT NOT NULL,
		starter_id TEXT NOT NULL,
		winner_id TEXT NOT NULL DEFAULT '',
		rounds INTEGER NOT NULL DEFAULT 0,
		tie_break INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (match_id, leg)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveMatch(d *models.MatchDescriptor) error {
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

	_, err = s.db.Exec(`
		INSERT INTO matches (id, players, legs, in_mode, out_mode, bull_mode, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			players = excluded.players,
			legs = excluded.legs,
			in_mode = excluded.in_mode,
			out_mode = excluded.out_mode,
			bull_mode = excluded.bull_mode,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, d.ID, string(players), string(legs), d.InMode, d.OutMode, d.BullMode, d.Status,
		d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) GetMatch(id string) (*models.MatchDescriptor, error) {
	var (
		d                models.MatchDescriptor
		players, legs    string
		created, updated int64
	)
	err := s.db.QueryRow(`
		SELECT id, players, legs, in_mode, out_mode, bull_mode, status, created_at, updated_at
		FROM matches WHERE id = ?
	`, id).Scan(&d.ID, &players, &legs, &d.InMode, &d.OutMode, &d.BullMode, &d.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(players), &d.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	if err := json.Unmarshal([]byte(legs), &d.Legs); err != nil {
		return nil, fmt.Errorf("failed to decode legs: %w", err)
	}
	d.CreatedAt = time.UnixMilli(created).UTC()
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return &d, nil
}

func (s *SQLiteStore) UpdateStatus(id string, status models.MatchStatus) error {
	res, err := s.db.Exec(`UPDATE matches SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendThrow(rec models.ThrowRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO throws
			(match_id, leg, round, player_id, dedup_key, kind, segment, number, multiplier, score, variant, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MatchID, rec.Leg, rec.Round, rec.PlayerID, rec.Key, rec.Kind, rec.Segment,
		rec.Number, rec.Multiplier, rec.Score, rec.Variant, rec.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) ListThrows(matchID string) ([]models.ThrowRecord, error) {
	rows, err := s.db.Query(`
		SELECT match_id, leg, round, player_id, dedup_key, kind, segment, number, multiplier, score, variant, created_at
		FROM throws WHERE match_id = ? ORDER BY id
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ThrowRecord
	for rows.Next() {
		var (
			rec     models.ThrowRecord
			created int64
		)
		if err := rows.Scan(&rec.MatchID, &rec.Leg, &rec.Round, &rec.PlayerID, &rec.Key, &rec.Kind,
			&rec.Segment, &rec.Number, &rec.Multiplier, &rec.Score, &rec.Variant, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordLeg(rec models.LegResult) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO leg_results (match_id, leg, variant, starter_id, winner_id, rounds, tie_break, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, leg) DO UPDATE SET
			variant = excluded.variant,
			starter_id = excluded.starter_id,
			winner_id = excluded.winner_id,
			rounds = excluded.rounds,
			tie_break = excluded.tie_break
	`, rec.MatchID, rec.Leg, rec.Variant, rec.StarterID, rec.WinnerID, rec.Rounds, rec.TieBreak,
		rec.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) ListLegs(matchID string) ([]models.LegResult, error) {
	rows, err := s.db.Query(`
		SELECT match_id, leg, variant, starter_id, winner_id, rounds, tie_break, created_at
		FROM leg_results WHERE match_id = ? ORDER BY leg
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LegResult
	for rows.Next() {
		var (
			rec     models.LegResult
			created int64
		)
		if err := rows.Scan(&rec.MatchID, &rec.Leg, &rec.Variant, &rec.StarterID, &rec.WinnerID,
			&rec.Rounds, &rec.TieBreak, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
