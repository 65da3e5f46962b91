package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jwtlib "github.com/Phatcm/event-management-system/internal/lib/jwt"
	sl "github.com/Phatcm/event-management-system/internal/lib/logger"
	"github.com/Phatcm/event-management-system/internal/lib/verification"
	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/Phatcm/event-management-system/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

// minRevocationTTL keeps a blacklist entry alive even when a token is
// revoked moments before its own expiry.
const minRevocationTTL = time.Minute

type UserSaver interface {
	SaveUser(ctx context.Context, u *models.User) error
	SetEmailVerified(ctx context.Context, uid uuid.UUID) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByUID(ctx context.Context, uid uuid.UUID) (models.User, error)
}

type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type RegisterParams struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	revoker     TokenRevoker
	tokens      *jwtlib.Service
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	revoker TokenRevoker,
	tokens *jwtlib.Service,
	accessTTL, refreshTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		revoker:     revoker,
		tokens:      tokens,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}
}

// Register hashes the password and creates the account with the "user" role.
// A duplicate email reports ErrUserExists and leaves no second row behind.
func (a *Auth) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := models.User{
		UID:          uuid.New(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: string(passHash),
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.usrSaver.SaveUser(ctx, &user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return models.User{}, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("uid", user.UID.String()))

	return user, nil
}

// Login verifies the credentials and returns an access/refresh token pair
// together with the user. Unknown email and wrong password are both
// ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user models.User, err error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err = a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return "", "", models.User{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return "", "", models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return "", "", models.User{}, ErrInvalidCredentials
	}

	accessToken, err = a.tokens.Issue(user, a.accessTTL, jwtlib.KindAccess)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return "", "", models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err = a.tokens.Issue(user, a.refreshTTL, jwtlib.KindRefresh)
	if err != nil {
		log.Error("failed to issue refresh token", sl.Err(err))
		return "", "", models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("uid", user.UID.String()))

	return accessToken, refreshToken, user, nil
}

// Refresh issues a fresh access token for the user named in validated
// refresh-token claims.
func (a *Auth) Refresh(ctx context.Context, claims jwtlib.Claims) (string, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	uid, err := claims.User.UserUID()
	if err != nil {
		log.Warn("malformed user uid in refresh token", sl.Err(err))
		return "", ErrInvalidCredentials
	}

	user, err := a.usrProvider.UserByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}

		log.Error("failed to load user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.tokens.Issue(user, a.accessTTL, jwtlib.KindAccess)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("access token refreshed", slog.String("uid", user.UID.String()))

	return accessToken, nil
}

// Logout blacklists the token's jti for at least its remaining lifetime,
// so a revoked token cannot come back when the blacklist entry expires
// before the token does.
func (a *Auth) Logout(ctx context.Context, claims jwtlib.Claims) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	ttl := time.Until(claims.ExpiresAt)
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}

	if err := a.revoker.RevokeToken(ctx, claims.JTI, ttl); err != nil {
		log.Error("failed to blacklist token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out", slog.String("jti", claims.JTI))

	return nil
}

// Verify marks the account named by a verification token as verified.
func (a *Auth) Verify(ctx context.Context, verificationToken, tokenSecret string) error {
	const op = "auth.Verify"

	log := a.log.With(slog.String("op", op))

	uid, err := verification.ParseVerificationToken(verificationToken, tokenSecret)
	if err != nil {
		log.Warn("invalid verification token", sl.Err(err))
		return err
	}

	if err := a.usrSaver.SetEmailVerified(ctx, uid); err != nil {
		log.Error("failed to mark user verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.String("uid", uid.String()))

	return nil
}

// User loads the account behind validated access-token claims.
func (a *Auth) User(ctx context.Context, claims jwtlib.Claims) (models.User, error) {
	const op = "auth.User"

	uid, err := claims.User.UserUID()
	if err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	user, err := a.usrProvider.UserByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrInvalidCredentials
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}
