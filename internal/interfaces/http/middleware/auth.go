package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/auth"
	"github.com/autocrm-inc/autocrm/internal/shared/actor"
	"github.com/autocrm-inc/autocrm/internal/shared/constants"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// accessTokenQuery is accepted on websocket upgrades, where browsers cannot
// set an Authorization header.
const accessTokenQuery = "access_token"

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   logger.Interface
}

func NewAuthMiddleware(verifier TokenVerifier, logger logger.Interface) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid authorization header format")
			c.Abort()
			return
		}
		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "missing authorization token")
			c.Abort()
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Warnw("failed to verify token", "error", err, "ip", c.ClientIP())
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if ok && token != "" {
			if claims, err := m.verifier.Verify(token); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// bearerToken reads the Authorization header, then the access_token query
// parameter. ok is false for a malformed header.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(constants.HeaderAuthorization)
	if header == "" {
		return c.Query(accessTokenQuery), true
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// setIdentity exposes the caller to handlers through the gin context and
// to the repositories through the request context, where audit rows pick
// it up as changed_by.
func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(constants.ContextKeyUserID, claims.UserID())
	c.Set(constants.ContextKeyUserRole, string(claims.Role))
	c.Request = c.Request.WithContext(actor.WithUserID(c.Request.Context(), claims.UserID()))
}

// UserID returns the authenticated caller, or "" outside RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(constants.ContextKeyUserID)
}

// UserRole returns the authenticated caller's role, or "".
func UserRole(c *gin.Context) string {
	return c.GetString(constants.ContextKeyUserRole)
}
