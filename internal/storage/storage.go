package storage

import (
	"context"
	"errors"

	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrEventNotFound   = errors.New("event not found")
	ErrRSVPNotFound    = errors.New("rsvp not found")
	ErrAlreadyReserved = errors.New("user already has an rsvp for this event")
	ErrEventFull       = errors.New("event is already full")
)

// AdmissionTx is the set of reads and writes available inside a single
// reservation transaction. Once EventForUpdate has been called the
// implementation must hold an exclusive lock on that event row until the
// transaction resolves, so that the count-then-insert sequence cannot race
// with another reservation on the same event. InsertRSVP must report
// ErrAlreadyReserved when the (user, event) pair is already taken.
type AdmissionTx interface {
	HasRSVP(ctx context.Context, eventUID, userUID uuid.UUID) (bool, error)
	EventForUpdate(ctx context.Context, eventUID uuid.UUID) (models.Event, error)
	LiveRSVPCount(ctx context.Context, eventUID uuid.UUID) (int, error)
	InsertRSVP(ctx context.Context, rsvp *models.RSVP) error
}
