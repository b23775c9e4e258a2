package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/pkg/response"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"

	accessTokenCookie = "access_token"
)

var errInvalidToken = errors.New("invalid token")

// RoleSource returns the authoritative role of a user. The role in the token
// is only used when no source is configured.
type RoleSource interface {
	GetRole(ctx context.Context, id uuid.UUID) (string, error)
}

// Identity is what a verified token says about the caller.
type Identity struct {
	UserID string
	Role   string
}

type Authenticator struct {
	secret   []byte
	secure   bool
	roles    RoleSource
	security security.Logger
}

// NewAuthenticator verifies HS256 tokens signed with secret. secure marks
// cookies Secure + SameSite=None for cross-origin production deployments.
func NewAuthenticator(secret []byte, secure bool, roles RoleSource, sec security.Logger) *Authenticator {
	return &Authenticator{secret: secret, secure: secure, roles: roles, security: sec}
}

// Verify parses a token and resolves the caller's current role.
func (a *Authenticator) Verify(ctx context.Context, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, errors.Mark(errors.Wrap(err, "parse token"), errInvalidToken)
	}
	if !token.Valid {
		return Identity{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, errors.Mark(errors.Wrap(err, "subject"), errInvalidToken)
	}
	role, _ := claims["role"].(string)

	if a.roles != nil {
		role, err = a.roles.GetRole(ctx, id)
		if repository.IsNotFound(err) {
			return Identity{}, errors.Mark(errors.Wrap(err, "unknown user"), errInvalidToken)
		}
		if err != nil {
			return Identity{}, errors.Wrap(err, "resolve role")
		}
	}
	return Identity{UserID: id.String(), Role: role}, nil
}

// RequireAuth accepts the access_token cookie first and falls back to the
// Authorization header.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, cookieErr := c.Cookie(accessTokenCookie)
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				a.reject(c, "missing_token")
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				a.reject(c, "malformed_header")
				return
			}
			tokenString = parts[1]
		}

		identity, err := a.Verify(c.Request.Context(), tokenString)
		if err != nil {
			if !errors.Is(err, errInvalidToken) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify session"))
				return
			}
			a.reject(c, "invalid_token")
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextUserRole, identity.Role)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (a *Authenticator) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}
		a.security.LogEvent(security.Event{
			Type:    security.EventPermissionDenied,
			UserID:  c.GetString(ContextUserID),
			Details: map[string]any{"path": c.FullPath(), "role": role},
		})
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

func (a *Authenticator) reject(c *gin.Context, reason string) {
	a.security.LogEvent(security.Event{
		Type:    security.EventAuthFailure,
		Details: map[string]any{"reason": reason, "ip": c.ClientIP(), "path": c.FullPath()},
	})
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
}

// SetTokenCookie stores the access token as an HttpOnly cookie.
func (a *Authenticator) SetTokenCookie(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(a.sameSite())
	c.SetCookie(accessTokenCookie, token, int(ttl.Seconds()), "/", "", a.secure, true)
}

// ClearTokenCookie removes the access token cookie.
func (a *Authenticator) ClearTokenCookie(c *gin.Context) {
	c.SetSameSite(a.sameSite())
	c.SetCookie(accessTokenCookie, "", -1, "/", "", a.secure, true)
}

func (a *Authenticator) sameSite() http.SameSite {
	if a.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
