// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"strconv"

	"statescape/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// Tokens are minted by the identity service; this API only verifies them.
const (
	TokenIssuer   = "statescape-api"
	TokenAudience = "statescape-client"
)

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// UserIDFromToken validates the token string and returns the user ID from its
// subject claim. Returns a descriptive message on failure (safe to show clients).
func UserIDFromToken(tokenString string) (uint, string) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithAudience(TokenAudience))

	if err != nil || !token.Valid {
		return 0, "Invalid or expired token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "Invalid token claims"
	}

	// Subject claim per RFC 7519
	subStr, ok := claims["sub"].(string)
	if !ok {
		return 0, "Invalid token subject"
	}

	userIDVal, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return 0, "Invalid user ID in token"
	}

	return uint(userIDVal), ""
}

