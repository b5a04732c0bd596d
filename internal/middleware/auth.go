package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/models"
)

// Claims are the identity provider's access token claims. UID is optional;
// the subject is used when it is missing.
type Claims struct {
	UID     string `json:"uid,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Major   string `json:"major,omitempty"`
	jwt.RegisteredClaims
}

var errNoSubject = errors.New("token has no subject")

// ParseIdentity verifies an HS256 access token and returns the identity it carries.
func ParseIdentity(tokenString string, secret []byte) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = jwt.ErrTokenInvalidClaims
		}
		return models.Identity{}, err
	}

	uid := strings.TrimSpace(claims.UID)
	if uid == "" {
		uid = strings.TrimSpace(claims.Subject)
	}
	if uid == "" {
		return models.Identity{}, errNoSubject
	}
	return models.Identity{
		UserID:      uid,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Major:       claims.Major,
	}, nil
}

// AuthRequired accepts "Authorization: Bearer <token>" or, for WebSocket
// upgrades where browsers cannot set headers, a token query parameter.
func AuthRequired(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		var tokenString string
		if authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return httpx.Unauthorized(c, "invalid_authorization", "Invalid authorization format")
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return httpx.Unauthorized(c, "missing_access_token", "Missing access token")
		}

		identity, err := ParseIdentity(tokenString, key)
		if err != nil {
			return httpx.Unauthorized(c, "invalid_access_token", "Invalid or expired token")
		}

		c.Locals(httpx.IdentityKey, identity)
		return c.Next()
	}
}
