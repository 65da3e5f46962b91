package refresh

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Phatcm/event-management-system/internal/auth"
	resp "github.com/Phatcm/event-management-system/internal/lib/api/response"
	sl "github.com/Phatcm/event-management-system/internal/lib/logger"
	"github.com/Phatcm/event-management-system/internal/middleware/guard"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AccessToken string `json:"access_token"`
}

// New exchanges validated refresh-token claims for a fresh access token.
// The guard has already checked signature, kind and revocation.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		claims, ok := guard.ClaimsFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error(resp.KindAccessDenied, "missing token"))

			return
		}

		if !claims.ExpiresAt.After(time.Now()) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.KindAccessDenied, "refresh token has expired"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		accessToken, err := authService.Refresh(ctx, claims)
		if err != nil {
			log.Error("failed to refresh token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))

			return
		}

		log.Info("access token refreshed")

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			AccessToken: accessToken,
		})
	}
}
