// Package rsvp holds the HTTP handlers for the /rsvp routes and maps the
// admission controller's outcomes onto the wire: every rejected
// reservation is a 400 whose error_kind says why.
package rsvp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/Phatcm/event-management-system/internal/lib/api/response"
	sl "github.com/Phatcm/event-management-system/internal/lib/logger"
	"github.com/Phatcm/event-management-system/internal/middleware/guard"
	"github.com/Phatcm/event-management-system/internal/models"
	rsvpservice "github.com/Phatcm/event-management-system/internal/rsvp"
	"github.com/Phatcm/event-management-system/internal/storage"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type RSVPService interface {
	Reserve(ctx context.Context, eventUID, userUID uuid.UUID) (models.RSVP, error)
	Cancel(ctx context.Context, rsvpUID uuid.UUID, caller models.User) (models.RSVP, error)
	ListByUser(ctx context.Context, userUID uuid.UUID) ([]models.RSVP, error)
}

type RSVPResponse struct {
	resp.Response
	RSVP models.RSVP `json:"rsvp"`
}

type ListResponse struct {
	resp.Response
	RSVPs []models.RSVP `json:"rsvps"`
}

func NewList(log *slog.Logger, svc RSVPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.rsvp.NewList"

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

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		rsvps, err := svc.ListByUser(ctx, caller.UID)
		if err != nil {
			log.Error("failed to list rsvps", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))

			return
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			RSVPs:    rsvps,
		})
	}
}

func NewReserve(log *slog.Logger, svc RSVPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.rsvp.NewReserve"

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

		eventUID, err := uuid.Parse(chi.URLParam(r, "event_uid"))
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.KindValidation, "malformed event uid"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		reservation, err := svc.Reserve(ctx, eventUID, caller.UID)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrAlreadyReserved):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.KindConflict, "you have already RSVPed for this event"))
			case errors.Is(err, storage.ErrEventNotFound):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.KindNotFound, "event does not exist"))
			case errors.Is(err, storage.ErrEventFull):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.KindCapacity, "event is already full"))
			default:
				log.Error("failed to reserve", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))
			}

			return
		}

		render.JSON(w, r, RSVPResponse{
			Response: resp.OK(),
			RSVP:     reservation,
		})
	}
}

func NewCancel(log *slog.Logger, svc RSVPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.rsvp.NewCancel"

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

		rsvpUID, err := uuid.Parse(chi.URLParam(r, "rsvp_uid"))
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.KindValidation, "malformed rsvp uid"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if _, err := svc.Cancel(ctx, rsvpUID, caller); err != nil {
			switch {
			case errors.Is(err, storage.ErrRSVPNotFound):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.KindNotFound, "rsvp not found"))
			case errors.Is(err, rsvpservice.ErrNotOwner):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error(resp.KindAccessDenied, "rsvp does not belong to you"))
			default:
				log.Error("failed to cancel rsvp", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))
			}

			return
		}

		render.NoContent(w, r)
	}
}

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
