// Package events implements event CRUD, search, filter and pagination on
// top of the event store.
package events

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

// ErrNotOwner is reported when a non-admin caller mutates an event they do
// not own.
var ErrNotOwner = errors.New("event does not belong to the caller")

type EventStore interface {
	SaveEvent(ctx context.Context, e *models.Event) error
	Event(ctx context.Context, uid uuid.UUID) (models.Event, error)
	Events(ctx context.Context) ([]models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	DeleteEvent(ctx context.Context, uid uuid.UUID) error
	SearchEvents(ctx context.Context, search string) ([]models.Event, error)
	FilterEvents(ctx context.Context, f models.EventFilter) ([]models.Event, error)
	EventsPage(ctx context.Context, limit, offset int) ([]models.Event, error)
}

// CreateParams carries every persisted event field; updates are a full
// field replace, absent fields are not preserved.
type CreateParams struct {
	Title       string
	Creator     string
	Description string
	Location    string
	Category    string
	Capacity    int
}

type Service struct {
	log   *slog.Logger
	store EventStore
}

func New(log *slog.Logger, store EventStore) *Service {
	return &Service{log: log, store: store}
}

func (s *Service) Create(ctx context.Context, ownerUID uuid.UUID, params CreateParams) (models.Event, error) {
	const op = "events.Create"

	now := time.Now().UTC()
	owner := ownerUID
	event := models.Event{
		UID:         uuid.New(),
		Title:       params.Title,
		OwnerUID:    &owner,
		Creator:     params.Creator,
		Description: params.Description,
		Location:    params.Location,
		Category:    params.Category,
		Capacity:    params.Capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.SaveEvent(ctx, &event); err != nil {
		s.log.Error("failed to save event", slog.String("op", op), sl.Err(err))
		return models.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("event created", slog.String("op", op), slog.String("uid", event.UID.String()))

	return event, nil
}

func (s *Service) List(ctx context.Context) ([]models.Event, error) {
	return s.store.Events(ctx)
}

func (s *Service) Get(ctx context.Context, uid uuid.UUID) (models.Event, error) {
	return s.store.Event(ctx, uid)
}

// Update is a full field replace. Legacy events without an owner may be
// updated by any organizer or admin; owned events only by their owner or
// an admin.
func (s *Service) Update(ctx context.Context, uid uuid.UUID, caller models.User, params CreateParams) (models.Event, error) {
	const op = "events.Update"

	event, err := s.store.Event(ctx, uid)
	if err != nil {
		return models.Event{}, err
	}

	if err := s.checkOwnership(&event, caller); err != nil {
		return models.Event{}, err
	}

	event.Title = params.Title
	event.Creator = params.Creator
	event.Description = params.Description
	event.Location = params.Location
	event.Category = params.Category
	event.Capacity = params.Capacity
	event.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateEvent(ctx, &event); err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			return models.Event{}, err
		}

		s.log.Error("failed to update event", slog.String("op", op), sl.Err(err))
		return models.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	return event, nil
}

// Delete removes the event and, through the store, its reservations.
func (s *Service) Delete(ctx context.Context, uid uuid.UUID, caller models.User) error {
	const op = "events.Delete"

	event, err := s.store.Event(ctx, uid)
	if err != nil {
		return err
	}

	if err := s.checkOwnership(&event, caller); err != nil {
		return err
	}

	if err := s.store.DeleteEvent(ctx, uid); err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			return err
		}

		s.log.Error("failed to delete event", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("event deleted", slog.String("op", op), slog.String("uid", uid.String()))

	return nil
}

func (s *Service) Search(ctx context.Context, query string) ([]models.Event, error) {
	return s.store.SearchEvents(ctx, query)
}

func (s *Service) Filter(ctx context.Context, f models.EventFilter) ([]models.Event, error) {
	return s.store.FilterEvents(ctx, f)
}

// Page returns page p (1-based) of size entries: skip (p-1)*size, take size.
func (s *Service) Page(ctx context.Context, page, size int) ([]models.Event, error) {
	if page < 1 {
		page = 1
	}

	return s.store.EventsPage(ctx, size, (page-1)*size)
}

func (s *Service) checkOwnership(event *models.Event, caller models.User) error {
	if caller.Role == models.RoleAdmin {
		return nil
	}
	if event.OwnerUID == nil || *event.OwnerUID == caller.UID {
		return nil
	}

	return ErrNotOwner
}
