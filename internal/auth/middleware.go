package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/wichananm65/bible-streak-backend/internal/user"
)

const tokenContextKey = "token"

type UserLookup interface {
	FindByID(ctx context.Context, id int) (*user.User, error)
}

// Middleware lets a request through only when it carries a valid bearer token
// for a user that still exists. Every token problem answers the same 401.
func Middleware(tokens *TokenService, users UserLookup, log zerolog.Logger) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:    tokens.SigningKey(),
		SigningMethod: "HS256",
		ContextKey:    tokenContextKey,
		Claims:        &Claims{},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return Reject(c)
		},
		SuccessHandler: func(c *fiber.Ctx) error {
			claims, ok := claimsFrom(c)
			if !ok {
				return Reject(c)
			}

			current, err := users.FindByID(c.UserContext(), claims.UserID)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					return Reject(c)
				}
				log.Error().Err(err).Int("user_id", claims.UserID).Msg("authentication lookup failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":   "Authentication error",
					"details": err.Error(),
				})
			}

			user.SetCurrentUser(c, current)
			return c.Next()
		},
	})
}

func Reject(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "Unauthorized",
		"message": "Invalid or expired token",
	})
}

// claimsFrom reads the claims jwtware has already verified.
func claimsFrom(c *fiber.Ctx) (*Claims, bool) {
	token, ok := c.Locals(tokenContextKey).(*jwt.Token)
	if !ok || !token.Valid {
		return nil, false
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == 0 {
		return nil, false
	}
	return claims, true
}
