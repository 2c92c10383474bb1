package mocks

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/dartsync/internal/clickhouse"
	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// MockClickHouseClient keeps analytics rows in memory for local development
type MockClickHouseClient struct {
	mu   sync.RWMutex
	rows []clickhouse.ThrowStat
}

// NewMockClickHouseClient creates a mock ClickHouse client
func NewMockClickHouseClient() *MockClickHouseClient {
	logger.Info("Using MOCK ClickHouse client for local development")
	return &MockClickHouseClient{}
}

func (m *MockClickHouseClient) RecordThrows(_ context.Context, stats []clickhouse.ThrowStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, stats...)
	return nil
}

// PlayerAverages aggregates the recorded rows the way the ClickHouse query does
func (m *MockClickHouseClient) PlayerAverages(_ context.Context, playerID string) (clickhouse.Averages, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avg := clickhouse.Averages{PlayerID: playerID}
	var points, marks int64
	for _, r := range m.rows {
		if r.PlayerID != playerID {
			continue
		}
		switch r.Variant {
		case "501", "301":
			avg.X01Darts++
			if !r.Bust {
				points += int64(r.Score)
			}
		case "cricket":
			avg.CricketDarts++
			marks += int64(r.Marks)
		}
	}
	avg.Compute(points, marks)
	return avg, nil
}

// Rows returns a copy of everything recorded so far
func (m *MockClickHouseClient) Rows() []clickhouse.ThrowStat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]clickhouse.ThrowStat(nil), m.rows...)
}

// Close is a no-op for mock client
func (m *MockClickHouseClient) Close() error {
	return nil
}
