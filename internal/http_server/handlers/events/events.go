// Package events holds the HTTP handlers for the /events routes. The
// guard middleware has already authenticated the caller; handlers only
// translate between JSON and the event service.
package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Phatcm/event-management-system/internal/events"
	resp "github.com/Phatcm/event-management-system/internal/lib/api/response"
	sl "github.com/Phatcm/event-management-system/internal/lib/logger"
	"github.com/Phatcm/event-management-system/internal/middleware/guard"
	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/Phatcm/event-management-system/internal/storage"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type EventService interface {
	Create(ctx context.Context, ownerUID uuid.UUID, params events.CreateParams) (models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
	Get(ctx context.Context, uid uuid.UUID) (models.Event, error)
	Update(ctx context.Context, uid uuid.UUID, caller models.User, params events.CreateParams) (models.Event, error)
	Delete(ctx context.Context, uid uuid.UUID, caller models.User) error
	Search(ctx context.Context, query string) ([]models.Event, error)
	Filter(ctx context.Context, f models.EventFilter) ([]models.Event, error)
	Page(ctx context.Context, page, size int) ([]models.Event, error)
}

// Request carries the full event payload. Updates are a full field
// replace, every field must be supplied each time.
type Request struct {
	Title       string `json:"title" validate:"required"`
	Creator     string `json:"creator" validate:"required"`
	Description string `json:"description" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Capacity    *int   `json:"capacity" validate:"required,gte=0"`
}

type EventResponse struct {
	resp.Response
	Event models.Event `json:"event"`
}

type ListResponse struct {
	resp.Response
	Events []models.Event `json:"events"`
}

func NewList(log *slog.Logger, svc EventService) http.HandlerFunc {
	return listHandler(log, "handlers.events.NewList", func(ctx context.Context, r *http.Request) ([]models.Event, error) {
		return svc.List(ctx)
	})
}

func NewSearch(log *slog.Logger, svc EventService) http.HandlerFunc {
	return listHandler(log, "handlers.events.NewSearch", func(ctx context.Context, r *http.Request) ([]models.Event, error) {
		return svc.Search(ctx, r.URL.Query().Get("query"))
	})
}

func NewFilter(log *slog.Logger, svc EventService) http.HandlerFunc {
	return listHandler(log, "handlers.events.NewFilter", func(ctx context.Context, r *http.Request) ([]models.Event, error) {
		q := r.URL.Query()

		f := models.EventFilter{
			Location: q.Get("location"),
			Category: q.Get("category"),
			Creator:  q.Get("creator"),
		}
		if from := q.Get("from"); from != "" {
			t, err := time.Parse(time.RFC3339, from)
			if err != nil {
				return nil, errBadQuery
			}
			f.CreatedAfter = t
		}
		if to := q.Get("to"); to != "" {
			t, err := time.Parse(time.RFC3339, to)
			if err != nil {
				return nil, errBadQuery
			}
			f.CreatedBefore = t
		}

		return svc.Filter(ctx, f)
	})
}

func NewPagination(log *slog.Logger, svc EventService) http.HandlerFunc {
	return listHandler(log, "handlers.events.NewPagination", func(ctx context.Context, r *http.Request) ([]models.Event, error) {
		q := r.URL.Query()

		page, err := strconv.Atoi(q.Get("page"))
		if err != nil || page < 1 {
			return nil, errBadQuery
		}
		size, err := strconv.Atoi(q.Get("size"))
		if err != nil || size < 1 {
			return nil, errBadQuery
		}

		return svc.Page(ctx, page, size)
	})
}

var errBadQuery = errors.New("malformed query parameters")

func listHandler(log *slog.Logger, op string, fetch func(ctx context.Context, r *http.Request) ([]models.Event, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		list, err := fetch(ctx, r)
		if err != nil {
			if errors.Is(err, errBadQuery) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.KindValidation, err.Error()))

				return
			}

			log.Error("failed to list events", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))

			return
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Events:   list,
		})
	}
}

func NewCreate(log *slog.Logger, validate *validator.Validate, svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.events.NewCreate"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		caller, ok := callerFromContext(r)
		if !ok {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error(resp.KindAccessDenied, "missing token"))

			return
		}

		req, ok := decodeRequest(w, r, log, validate)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		event, err := svc.Create(ctx, caller.UID, toParams(req))
		if err != nil {
			log.Error("failed to create event", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))

			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, EventResponse{
			Response: resp.OK(),
			Event:    event,
		})
	}
}

func NewGet(log *slog.Logger, svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.events.NewGet"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uid, ok := eventUID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		event, err := svc.Get(ctx, uid)
		if err != nil {
			renderEventError(w, r, log, err)

			return
		}

		render.JSON(w, r, EventResponse{
			Response: resp.OK(),
			Event:    event,
		})
	}
}

func NewUpdate(log *slog.Logger, validate *validator.Validate, svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.events.NewUpdate"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		caller, ok := callerFromContext(r)
		if !ok {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error(resp.KindAccessDenied, "missing token"))

			return
		}

		uid, ok := eventUID(w, r)
		if !ok {
			return
		}

		req, ok := decodeRequest(w, r, log, validate)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		event, err := svc.Update(ctx, uid, caller, toParams(req))
		if err != nil {
			renderEventError(w, r, log, err)

			return
		}

		render.JSON(w, r, EventResponse{
			Response: resp.OK(),
			Event:    event,
		})
	}
}

func NewDelete(log *slog.Logger, svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.events.NewDelete"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		caller, ok := callerFromContext(r)
		if !ok {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error(resp.KindAccessDenied, "missing token"))

			return
		}

		uid, ok := eventUID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := svc.Delete(ctx, uid, caller); err != nil {
			renderEventError(w, r, log, err)

			return
		}

		render.NoContent(w, r)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, log *slog.Logger, validate *validator.Validate) (Request, bool) {
	var req Request

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(resp.KindValidation, "failed to decode request"))

		return Request{}, false
	}

	if err := validate.Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.ValidationError(validateErr))

		return Request{}, false
	}

	return req, true
}

func toParams(req Request) events.CreateParams {
	return events.CreateParams{
		Title:       req.Title,
		Creator:     req.Creator,
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
		Capacity:    *req.Capacity,
	}
}

func eventUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	uid, err := uuid.Parse(chi.URLParam(r, "event_uid"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(resp.KindValidation, "malformed event uid"))

		return uuid.Nil, false
	}

	return uid, true
}

// callerFromContext rebuilds the acting user from the guard's claims; only
// the uid and role matter for ownership checks.
func callerFromContext(r *http.Request) (models.User, bool) {
	claims, ok := guard.ClaimsFromContext(r.Context())
	if !ok {
		return models.User{}, false
	}

	uid, err := claims.User.UserUID()
	if err != nil {
		return models.User{}, false
	}

	return models.User{
		UID:   uid,
		Email: claims.User.Email,
		Role:  claims.User.Role,
	}, true
}

func renderEventError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrEventNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error(resp.KindNotFound, "event not found"))
	case errors.Is(err, events.ErrNotOwner):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error(resp.KindAccessDenied, "event does not belong to you"))
	default:
		log.Error("event operation failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))
	}
}
