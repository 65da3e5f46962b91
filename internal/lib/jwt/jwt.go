// Package jwt issues and validates the service's signed bearer tokens.
// Revocation is deliberately not checked here: signature and expiry are a
// stateless check, the blacklist lookup is layered on top by the caller.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/Phatcm/event-management-system/internal/models"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Kind distinguishes access tokens from refresh tokens. It is carried on
// the wire as the boolean "refresh" claim.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
)

func (k Kind) String() string {
	if k == KindRefresh {
		return "refresh"
	}
	return "access"
}

// UserClaims is the subject payload embedded in every token. UID is the
// string form of the user's uuid so the signed payload stays plain text.
// Role is only set on access tokens.
type UserClaims struct {
	Email string      `json:"email"`
	UID   string      `json:"user_uid"`
	Role  models.Role `json:"role,omitempty"`
}

func (u UserClaims) UserUID() (uuid.UUID, error) {
	return uuid.Parse(u.UID)
}

// Claims is the decoded content of a validated token.
type Claims struct {
	User      UserClaims
	JTI       string
	ExpiresAt time.Time
	Refresh   bool
}

func (c Claims) Kind() Kind {
	if c.Refresh {
		return KindRefresh
	}
	return KindAccess
}

type wireClaims struct {
	User    UserClaims `json:"user"`
	Refresh bool       `json:"refresh"`
	gojwt.RegisteredClaims
}

type Service struct {
	secret []byte
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Issue builds a token with a fresh random jti and an absolute expiry of
// now+ttl, signed with HS256.
func (s *Service) Issue(user models.User, ttl time.Duration, kind Kind) (string, error) {
	const op = "lib.jwt.Issue"

	claims := wireClaims{
		User: UserClaims{
			Email: user.Email,
			UID:   user.UID.String(),
		},
		Refresh: kind == KindRefresh,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	if kind == KindAccess {
		claims.User.Role = user.Role
	}

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// Parse verifies signature and expiry. Every failure mode, including a
// malformed token or an unexpected signing method, collapses into
// ErrInvalidToken.
func (s *Service) Parse(tokenStr string) (Claims, error) {
	const op = "lib.jwt.Parse"

	var claims wireClaims

	parsed, err := gojwt.ParseWithClaims(tokenStr, &claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return s.secret, nil
	}, gojwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		User:      claims.User,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Refresh:   claims.Refresh,
	}, nil
}
