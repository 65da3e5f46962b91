package logout

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
}

// New revokes the presented token's jti. The signature stays valid until
// expiry, so the blacklist entry is what actually ends the session.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.Logout(ctx, claims); err != nil {
			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.KindInfrastructure, "internal error"))

			return
		}

		log.Info("user logged out")

		render.JSON(w, r, Response{
			Response: resp.OK(),
		})
	}
}
