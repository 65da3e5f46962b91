// Package verification builds and parses the email-verification tokens
// published to the mail-sender queue on signup. Delivery itself is another
// service's job; this side only emits the message.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

func SendVerificationLink(
	ctx context.Context,
	log *slog.Logger,
	pub Publisher,
	tokenTTL time.Duration,
	tokenSecret string,
	userUID uuid.UUID,
	address, email string,
) error {
	token, err := generateVerificationToken(userUID, tokenTTL, tokenSecret)
	if err != nil {
		log.Error("failed to generate verification token", slog.Any("err", err))

		return err
	}

	verifyLink := fmt.Sprintf("%s/auth/verify?token=%s", address, token)

	msg := models.Message{
		Email:   email,
		Link:    verifyLink,
		Purpose: "email_verification",
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish verification link", slog.Any("err", err))
	}

	return nil
}

func ParseVerificationToken(tokenStr, secret string) (uuid.UUID, error) {
	const op = "verification.ParseVerificationToken"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsedToken.Valid {
		return uuid.Nil, fmt.Errorf("%s: invalid token", op)
	}

	if purpose, ok := claims["purpose"].(string); !ok || purpose != "email_verification" {
		return uuid.Nil, fmt.Errorf("%s: invalid token purpose", op)
	}

	if expFloat, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(expFloat) {
			return uuid.Nil, fmt.Errorf("%s: token expired", op)
		}
	} else {
		return uuid.Nil, fmt.Errorf("%s: missing exp claim", op)
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%s: missing sub claim", op)
	}

	userUID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: malformed sub claim: %w", op, err)
	}

	return userUID, nil
}

func generateVerificationToken(userUID uuid.UUID, tokenTTL time.Duration, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":     userUID.String(),
		"purpose": "email_verification",
		"exp":     time.Now().Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}
