package dal

import (
	"errors"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// ErrNotFound is returned when a match does not exist.
var ErrNotFound = errors.New("match not found")

// MatchStore persists match descriptors, the append-only throw log and leg
// results. It is advisory: the session keeps playing when a write fails.
type MatchStore interface {
	SaveMatch(m *models.MatchDescriptor) error
	GetMatch(id string) (*models.MatchDescriptor, error)
	UpdateStatus(id string, status models.MatchStatus) error
	// AppendThrow ignores a record whose match, player, kind and key were
	// already stored.
	AppendThrow(rec models.ThrowRecord) error
	// ListThrows returns a match's log in append order.
	ListThrows(matchID string) ([]models.ThrowRecord, error)
	// RecordLeg inserts or replaces the result row for rec.Leg.
	RecordLeg(rec models.LegResult) error
	ListLegs(matchID string) ([]models.LegResult, error)
	Close() error
}

func throwKey(rec models.ThrowRecord) string {
	return rec.MatchID + "\x00" + rec.PlayerID + "\x00" + rec.Kind + "\x00" + rec.Key
}
