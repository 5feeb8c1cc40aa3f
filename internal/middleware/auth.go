package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stylizr/upload-gateway/internal/models"
	appErrors "github.com/stylizr/upload-gateway/pkg/errors"
	"github.com/stylizr/upload-gateway/pkg/response"
)

const (
	// ContextUserKey holds the authenticated user id, when present.
	ContextUserKey = "auth_user_id"
	// ContextRoleKey holds the authenticated role, when present.
	ContextRoleKey = "auth_role"
)

// OptionalJWT parses a bearer token when one is supplied. Anonymous
// requests pass through; a malformed or expired token is rejected so a
// client cannot shed its per-user limits by sending garbage.
func OptionalJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "malformed authorization header"))
			c.Abort()
			return
		}
		claims, err := parseClaims(token, secret)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token"))
			c.Abort()
			return
		}
		c.Set(ContextUserKey, claims.UserID)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole gates admin-only endpoints.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, _ := c.Get(ContextRoleKey)
		if current != role {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id or empty for anonymous.
func UserID(c *gin.Context) string {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return ""
	}
	id, _ := value.(string)
	return id
}

func parseClaims(token, secret string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}
