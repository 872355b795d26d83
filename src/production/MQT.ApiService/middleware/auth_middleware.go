package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/jwt"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
)

// Key types for request context
type contextKey string

const (
	UserIDContextKey      contextKey = "user_id"
	ServiceAuthContextKey contextKey = "service_auth"
)

// UserIDHeader carries the end user on requests proxied by the backend
const UserIDHeader = "X-User-ID"

// RequireUser resolves the end user of an alerts subscription. With tokens
// set, a signed token is required in the token query parameter or a Bearer
// header, and any user_id given must match it. Without tokens the user_id
// query parameter or the X-User-ID header is trusted. Browsers cannot set
// headers on a websocket upgrade, so query parameters win.
func RequireUser(tokens *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			userID = c.GetHeader(UserIDHeader)
		}

		if tokens != nil {
			token := extractToken(c)
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
				c.Abort()
				return
			}
			claims, err := tokens.ValidateAlertsToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid alerts token"})
				c.Abort()
				return
			}
			if userID != "" && userID != claims.UserID {
				c.JSON(http.StatusForbidden, gin.H{"error": "Token issued for another user"})
				c.Abort()
				return
			}
			userID = claims.UserID
		}

		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id is required"})
			c.Abort()
			return
		}

		c.Set(string(UserIDContextKey), userID)
		c.Next()
	}
}

// extractToken gets a token from the query string or the Authorization header
func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// RequestLogger logs one line per request through the structured logger
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	httpLog := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := httpLog.Logger.Info()
		if status >= http.StatusInternalServerError {
			event = httpLog.Logger.Error()
		} else if status >= http.StatusBadRequest {
			event = httpLog.Logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// GetUserFromGinContext retrieves user ID from Gin context
func GetUserFromGinContext(c *gin.Context) (string, error) {
	userIDVal, exists := c.Get(string(UserIDContextKey))
	if !exists {
		return "", errors.New("user not found in context")
	}

	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user ID format in context")
	}

	return userID, nil
}
