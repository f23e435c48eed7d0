package httpapi

import (
	"net/http"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	applogger "github.com/jeevibe/ale/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userIDHeader = "X-User-ID"

// requestIDMiddleware stamps every request with an X-Request-ID,
// honoring one the caller already set, and attaches it to the
// request's context the way logger.WithRequestID expects — grounded
// on event-service/internal/server/server.go's requestIDMiddleware,
// with uuid replacing its timestamp-pair generator since this service
// already depends on google/uuid elsewhere.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		ctx := applogger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Request-ID, X-Cron-Signature")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// metricsMiddleware records request duration/count/error metrics per
// route, the gin equivalent of database.DB.RecordOperation.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := http.StatusText(c.Writer.Status())
		s.metrics.RecordRequest(route, status, time.Since(start))
		if len(c.Errors) > 0 {
			s.metrics.RecordError(route, "handler_error")
		}
	}
}

// authMiddleware extracts the caller's user ID from X-User-ID. A real
// deployment sits this behind the platform's own auth gateway (out of
// scope per spec.md §1); the ALE only needs an already-authenticated
// identity to key its per-user state on.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			s.respondError(c, apperr.New(apperr.Auth, "MISSING_USER_ID", "X-User-ID header is required"))
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Request = c.Request.WithContext(applogger.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func requestIDOf(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		return v.(string)
	}
	return ""
}

func userIDOf(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		return v.(string)
	}
	return ""
}

// respondOK writes the {success:true, data, requestId} envelope
// spec.md §6 requires.
func (s *Server) respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success":   true,
		"data":      data,
		"requestId": requestIDOf(c),
	})
}

// respondError translates a (possibly untyped) error into the
// {success:false, error:{code,message}, requestId} envelope, logging
// every kind except VALIDATION at error level
// (apperr.Kind.ShouldLogAsError).
func (s *Server) respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.Fatal, "", "internal error", err)
	}
	if appErr.Kind.ShouldLogAsError() {
		s.log.WithContext(c.Request.Context()).WithError(appErr).
			WithField("code", appErr.Code).Error("request failed")
	}
	c.JSON(appErr.Kind.HTTPStatus(), gin.H{
		"success": false,
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		},
		"requestId": requestIDOf(c),
	})
}
