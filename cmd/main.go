package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Phatcm/event-management-system/internal/auth"
	"github.com/Phatcm/event-management-system/internal/config"
	"github.com/Phatcm/event-management-system/internal/events"
	eventshandlers "github.com/Phatcm/event-management-system/internal/http_server/handlers/events"
	"github.com/Phatcm/event-management-system/internal/http_server/handlers/login"
	"github.com/Phatcm/event-management-system/internal/http_server/handlers/logout"
	"github.com/Phatcm/event-management-system/internal/http_server/handlers/me"
	"github.com/Phatcm/event-management-system/internal/http_server/handlers/refresh"
	rsvphandlers "github.com/Phatcm/event-management-system/internal/http_server/handlers/rsvp"
	"github.com/Phatcm/event-management-system/internal/http_server/handlers/signup"
	"github.com/Phatcm/event-management-system/internal/http_server/handlers/verify"
	jwtlib "github.com/Phatcm/event-management-system/internal/lib/jwt"
	"github.com/Phatcm/event-management-system/internal/middleware/guard"
	rateLimit "github.com/Phatcm/event-management-system/internal/middleware/ratelimit"
	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/Phatcm/event-management-system/internal/rabbitmq"
	"github.com/Phatcm/event-management-system/internal/rsvp"
	"github.com/Phatcm/event-management-system/internal/storage/postgres"
	"github.com/Phatcm/event-management-system/internal/storage/redis"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting event management service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	blacklist, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer blacklist.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	tokens := jwtlib.NewService(cfg.Tokens.Secret)

	authService := auth.New(log, storage, storage, blacklist, tokens, cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL)
	eventService := events.New(log, storage)
	rsvpService := rsvp.New(log, storage)

	router := setupRouter(cfg, log, tokens, blacklist, authService, eventService, rsvpService, msgBroker)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("server stopped gracefully")
	}
}

func setupRouter(
	cfg *config.Config,
	log *slog.Logger,
	tokens *jwtlib.Service,
	blacklist guard.RevocationChecker,
	authService *auth.Auth,
	eventService *events.Service,
	rsvpService *rsvp.Service,
	msgBroker *rabbitmq.RabbitMQClient,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	accessGuard := func(roles ...models.Role) func(http.Handler) http.Handler {
		return guard.New(log, tokens, blacklist, jwtlib.KindAccess, roles...)
	}
	refreshGuard := guard.New(log, tokens, blacklist, jwtlib.KindRefresh)

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.Signup()).Post("/signup",
			signup.New(log, validate, authService, msgBroker, cfg.Tokens.VerificationTokenTTL, cfg.Tokens.Secret, cfg.HTTPServer.Address),
		)
		r.With(rateLimit.Login()).Post("/login",
			login.New(log, validate, authService),
		)
		r.With(rateLimit.Refresh(), refreshGuard).Get("/refresh_token",
			refresh.New(log, authService),
		)
		r.With(accessGuard(models.RoleAdmin, models.RoleUser)).Get("/me",
			me.New(log, authService),
		)
		r.With(rateLimit.Logout(), accessGuard()).Get("/logout",
			logout.New(log, authService),
		)
		r.With(rateLimit.Verify()).Get("/verify",
			verify.New(log, authService, cfg.Tokens.Secret),
		)
	})

	r.Route("/events", func(r chi.Router) {
		anyRole := accessGuard(models.RoleAdmin, models.RoleOrganizer, models.RoleUser)
		organizers := accessGuard(models.RoleAdmin, models.RoleOrganizer)

		r.With(anyRole).Get("/", eventshandlers.NewList(log, eventService))
		r.With(organizers).Post("/", eventshandlers.NewCreate(log, validate, eventService))
		r.With(anyRole).Get("/search", eventshandlers.NewSearch(log, eventService))
		r.With(anyRole).Get("/filter", eventshandlers.NewFilter(log, eventService))
		r.With(anyRole).Get("/pagination", eventshandlers.NewPagination(log, eventService))
		r.With(organizers).Get("/{event_uid}", eventshandlers.NewGet(log, eventService))
		r.With(organizers).Patch("/{event_uid}", eventshandlers.NewUpdate(log, validate, eventService))
		r.With(organizers).Delete("/{event_uid}", eventshandlers.NewDelete(log, eventService))
	})

	r.Route("/rsvp", func(r chi.Router) {
		attendees := accessGuard(models.RoleAdmin, models.RoleUser)

		r.With(attendees).Get("/", rsvphandlers.NewList(log, rsvpService))
		r.With(attendees).Post("/{event_uid}", rsvphandlers.NewReserve(log, rsvpService))
		r.With(attendees).Delete("/{rsvp_uid}", rsvphandlers.NewCancel(log, rsvpService))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
