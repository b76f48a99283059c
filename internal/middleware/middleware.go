package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"staybook/internal/logger"
	"staybook/internal/models"
)

const (
	RequestIDHeader = "X-Request-ID"
	userIDKey       = "user_id"
)

// UserLookup resolves credentials against the user table
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthCache keeps already verified credential pairs
type AuthCache interface {
	GetUserIDByAuth(ctx context.Context, email, passwordHash string) (int64, error)
	SetUserAuth(ctx context.Context, email, passwordHash string, userID int64) error
}

// UserID returns the id BasicAuth stored on the request
func UserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// RequestID reuses the caller's request id or issues a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = logger.NewRequestID()
		}

		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// Timeout puts a deadline on the request context so every store and
// gateway call made on behalf of the request is bounded.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logger middleware для структурированного логирования запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			logFields = append(logFields, "error", c.Errors.String())
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request completed with error", logFields...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", logFields...)
		default:
			log.Debug("Request completed", logFields...)
		}
	}
}

// Recovery middleware для восстановления после паники
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithContext(c.Request.Context()).Error("PANIC recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
		)

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		}
	})
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// BasicAuth аутентифицирует пользователя по HTTP Basic Auth: сначала кеш Redis, затем БД
func BasicAuth(users UserLookup, authCache AuthCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="staybook"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
			return
		}

		ctx := c.Request.Context()
		passwordHash := hashPassword(password)

		if authCache != nil {
			if userID, err := authCache.GetUserIDByAuth(ctx, email, passwordHash); err == nil {
				authenticated(c, userID)
				return
			}
		}

		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to look up user", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
			return
		}
		if user == nil || !user.IsActive ||
			subtle.ConstantTimeCompare([]byte(passwordHash), []byte(user.PasswordHash)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
			return
		}

		if authCache != nil {
			if err := authCache.SetUserAuth(ctx, email, passwordHash, user.UserID); err != nil {
				slog.Warn("Failed to cache credentials", "error", err)
			}
		}

		authenticated(c, user.UserID)
	}
}

func authenticated(c *gin.Context, userID int64) {
	c.Set(userIDKey, userID)
	c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), userID))
	c.Next()
}
