package mocks

import (
	"github.com/Billy-Davies-2/dartsync/internal/dal"
	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// MockPostgresStore provides a mock Postgres implementation using SQLite for local development
type MockPostgresStore struct {
	dal.MatchStore
}

// NewMockPostgresStore creates a mock Postgres store using SQLite
func NewMockPostgresStore(sqliteFile string) (*MockPostgresStore, error) {
	logger.Info("Using MOCK Postgres (SQLite) for local development")

	store, err := dal.NewSQLiteStore(sqliteFile)
	if err != nil {
		return nil, err
	}

	return &MockPostgresStore{
		MatchStore: store,
	}, nil
}
