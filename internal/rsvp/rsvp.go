// Package rsvp is the admission controller for capacity-bounded
// reservations. An (event, user) pair is either Unreserved or Reserved;
// Reserve and Cancel are the only transitions, there is no waitlist.
package rsvp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "github.com/Phatcm/event-management-system/internal/lib/logger"
	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/Phatcm/event-management-system/internal/storage"
	"github.com/google/uuid"
)

// ErrNotOwner is reported when a non-admin caller cancels a reservation
// they did not make.
var ErrNotOwner = errors.New("rsvp does not belong to the caller")

type ReservationStore interface {
	// InAdmissionTx runs fn inside one transaction; the implementation
	// guarantees that once a reservation attempt has locked an event via
	// AdmissionTx.EventForUpdate, no other attempt on that event can run
	// its check sequence until the transaction resolves.
	InAdmissionTx(ctx context.Context, fn func(tx storage.AdmissionTx) error) error
	RSVPsByUser(ctx context.Context, userUID uuid.UUID) ([]models.RSVP, error)
	RSVPByUID(ctx context.Context, uid uuid.UUID) (models.RSVP, error)
	DeleteRSVP(ctx context.Context, uid uuid.UUID) error
}

type Service struct {
	log   *slog.Logger
	store ReservationStore
}

func New(log *slog.Logger, store ReservationStore) *Service {
	return &Service{log: log, store: store}
}

// Reserve admits userUID to eventUID or reports why it cannot. The check
// order is a contract: a duplicate reservation reports ErrAlreadyReserved
// even when the event is also full or would otherwise be reported missing,
// existence is checked before capacity. The whole sequence runs under the
// store's per-event lock so concurrent calls can never overshoot capacity.
func (s *Service) Reserve(ctx context.Context, eventUID, userUID uuid.UUID) (models.RSVP, error) {
	const op = "rsvp.Reserve"

	log := s.log.With(
		slog.String("op", op),
		slog.String("event_uid", eventUID.String()),
		slog.String("user_uid", userUID.String()),
	)

	var created models.RSVP

	err := s.store.InAdmissionTx(ctx, func(tx storage.AdmissionTx) error {
		dup, err := tx.HasRSVP(ctx, eventUID, userUID)
		if err != nil {
			return fmt.Errorf("%s: duplicate check: %w", op, err)
		}
		if dup {
			return storage.ErrAlreadyReserved
		}

		event, err := tx.EventForUpdate(ctx, eventUID)
		if err != nil {
			return err
		}

		count, err := tx.LiveRSVPCount(ctx, eventUID)
		if err != nil {
			return fmt.Errorf("%s: capacity check: %w", op, err)
		}
		if count >= event.Capacity {
			return storage.ErrEventFull
		}

		created = models.RSVP{
			UID:      uuid.New(),
			UserUID:  userUID,
			EventUID: eventUID,
			RSVPDate: time.Now().UTC(),
		}

		return tx.InsertRSVP(ctx, &created)
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyReserved),
			errors.Is(err, storage.ErrEventNotFound),
			errors.Is(err, storage.ErrEventFull):
			log.Info("reservation rejected", sl.Err(err))
		default:
			log.Error("reservation failed", sl.Err(err))
		}

		return models.RSVP{}, err
	}

	log.Info("reservation created", slog.String("rsvp_uid", created.UID.String()))

	return created, nil
}

// Cancel deletes a reservation and returns the deleted record. Only the
// reserving user or an admin may cancel; cancellation fully frees the slot
// and clears the duplicate guard for the pair.
func (s *Service) Cancel(ctx context.Context, rsvpUID uuid.UUID, caller models.User) (models.RSVP, error) {
	const op = "rsvp.Cancel"

	log := s.log.With(slog.String("op", op), slog.String("rsvp_uid", rsvpUID.String()))

	rsvp, err := s.store.RSVPByUID(ctx, rsvpUID)
	if err != nil {
		if errors.Is(err, storage.ErrRSVPNotFound) {
			return models.RSVP{}, err
		}

		log.Error("failed to load rsvp", sl.Err(err))
		return models.RSVP{}, fmt.Errorf("%s: %w", op, err)
	}

	if rsvp.UserUID != caller.UID && caller.Role != models.RoleAdmin {
		return models.RSVP{}, ErrNotOwner
	}

	if err := s.store.DeleteRSVP(ctx, rsvpUID); err != nil {
		if errors.Is(err, storage.ErrRSVPNotFound) {
			return models.RSVP{}, err
		}

		log.Error("failed to delete rsvp", sl.Err(err))
		return models.RSVP{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("reservation canceled")

	return rsvp, nil
}

// ListByUser returns the caller's reservations, newest first.
func (s *Service) ListByUser(ctx context.Context, userUID uuid.UUID) ([]models.RSVP, error) {
	return s.store.RSVPsByUser(ctx, userUID)
}
