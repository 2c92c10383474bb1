package mocks

import (
	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/pubsub"
)

// MockNATS provides an in-process stand-in for the NATS transport. Both
// seats of a match can join the same MockNATS to play on one machine.
type MockNATS struct {
	*pubsub.Hub
}

// NewMockNATS creates a mock NATS broker backed by the in-memory hub
func NewMockNATS() *MockNATS {
	logger.Info("Using MOCK NATS (in-memory hub) for local development")

	return &MockNATS{
		Hub: pubsub.NewHub(),
	}
}
