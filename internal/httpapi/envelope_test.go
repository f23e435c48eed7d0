package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/config"
	applogger "github.com/jeevibe/ale/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnvelopeTestServer() *Server {
	return &Server{log: applogger.New(&config.LoggingConfig{Level: "info", Format: "text"})}
}

func newTestGinContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	c.Set("request_id", "req-123")
	return c, w
}

func TestRespondOKEnvelope(t *testing.T) {
	s := newEnvelopeTestServer()
	c, w := newTestGinContext()

	s.respondOK(c, http.StatusOK, gin.H{"foo": "bar"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"foo":"bar"},"requestId":"req-123"}`, w.Body.String())
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperr.New(apperr.Validation, "BAD_REQUEST", "nope"), http.StatusBadRequest},
		{"auth", apperr.New(apperr.Auth, "MISSING_USER_ID", "nope"), http.StatusUnauthorized},
		{"tier denied", apperr.New(apperr.TierDenied, "TIER_DENIED", "nope"), http.StatusForbidden},
		{"quota exhausted", apperr.New(apperr.QuotaExhausted, "QUOTA_EXHAUSTED", "nope"), http.StatusTooManyRequests},
		{"not found", apperr.New(apperr.NotFound, "NOT_FOUND", "nope"), http.StatusNotFound},
		{"state conflict", apperr.New(apperr.StateConflict, "CONFLICT", "nope"), http.StatusConflict},
		{"transient", apperr.New(apperr.Transient, "DB_DOWN", "nope"), http.StatusServiceUnavailable},
		{"fatal", apperr.New(apperr.Fatal, "BOOM", "nope"), http.StatusInternalServerError},
		{"untyped error wraps as fatal", assert.AnError, http.StatusInternalServerError},
	}

	s := newEnvelopeTestServer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newTestGinContext()
			s.respondError(c, tc.err)
			assert.Equal(t, tc.wantStatus, w.Code)

			appErr, ok := apperr.As(tc.err)
			if !ok {
				return
			}
			assert.Contains(t, w.Body.String(), appErr.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestRequestIDMiddlewareHonorsExistingHeader(t *testing.T) {
	s := newEnvelopeTestServer()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(s.requestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caller-supplied-id", w.Header().Get("X-Request-ID"))
}

func TestAuthMiddlewareRejectsMissingUserID(t *testing.T) {
	s := newEnvelopeTestServer()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(s.requestIDMiddleware())
	router.Use(s.authMiddleware())
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_USER_ID")
}
