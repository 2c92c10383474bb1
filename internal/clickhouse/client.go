package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ThrowStat is one dart as recorded for analytics.
type ThrowStat struct {
	MatchID  string
	Leg      int
	Round    int
	PlayerID string
	Variant  string
	Segment  string
	Score    int
	Marks    int
	Bust     bool
	ThrownAt time.Time
}

// Averages are a player's long-run scoring rates.
type Averages struct {
	PlayerID     string  `json:"playerId"`
	X01Darts     int64   `json:"x01Darts"`
	CricketDarts int64   `json:"cricketDarts"`
	PPR          float64 `json:"ppr"`
	MPR          float64 `json:"mpr"`
}

// Compute fills PPR and MPR from raw totals.
func (a *Averages) Compute(points, marks int64) {
	if a.X01Darts > 0 {
		a.PPR = float64(points) / float64(a.X01Darts) * 3
	}
	if a.CricketDarts > 0 {
		a.MPR = float64(marks) / float64(a.CricketDarts) * 3
	}
}

const schema = `
	CREATE TABLE IF NOT EXISTS dart_throws (
		match_id  String,
		leg       UInt8,
		round     UInt16,
		player_id String,
		variant   LowCardinality(String),
		segment   LowCardinality(String),
		score     Int32,
		marks     UInt8,
		bust      Bool,
		thrown_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (player_id, thrown_at)
`

// Client provides ClickHouse integration for dart analytics
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client
func NewClient(addr, database, username, password string) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the analytics table if it does not exist
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create dart_throws: %w", err)
	}
	return nil
}

// RecordThrows writes a batch of darts in a single insert
func (c *Client) RecordThrows(ctx context.Context, stats []ThrowStat) error {
	if len(stats) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO dart_throws")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, s := range stats {
		if err := batch.Append(
			s.MatchID,
			uint8(s.Leg),
			uint16(s.Round),
			s.PlayerID,
			s.Variant,
			s.Segment,
			int32(s.Score),
			uint8(s.Marks),
			s.Bust,
			s.ThrownAt,
		); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append throw: %w", err)
		}
	}
	return batch.Send()
}

// PlayerAverages aggregates a player's PPR and MPR over the last 90 days
func (c *Client) PlayerAverages(ctx context.Context, playerID string) (Averages, error) {
	query := `
		SELECT
			toInt64(countIf(variant IN ('501', '301'))) AS x01_darts,
			toInt64(sumIf(score, variant IN ('501', '301') AND NOT bust)) AS x01_points,
			toInt64(countIf(variant = 'cricket')) AS cricket_darts,
			toInt64(sumIf(marks, variant = 'cricket')) AS cricket_marks
		FROM dart_throws
		WHERE player_id = $1
		AND thrown_at >= now() - INTERVAL 90 DAY
	`

	avg := Averages{PlayerID: playerID}
	var points, marks int64
	row := c.conn.QueryRow(ctx, query, playerID)
	if err := row.Scan(&avg.X01Darts, &points, &avg.CricketDarts, &marks); err != nil {
		return avg, err
	}
	avg.Compute(points, marks)
	return avg, nil
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
