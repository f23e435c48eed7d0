package httpapi

import (
	"bytes"
	"io"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/events"
	"github.com/jeevibe/ale/internal/secrets"

	"github.com/gin-gonic/gin"
)

const cronSignatureHeader = "X-Cron-Signature"

// cronSignatureMiddleware verifies the external scheduler's
// HMAC-signed request body before any /internal/jobs/* handler runs
// (spec.md §6: "invoked via signed HTTP"), grounded on
// internal/secrets.Verify.
func (s *Server) cronSignatureMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_BODY", "failed to read request body", err))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sig := c.GetHeader(cronSignatureHeader)
		if sig == "" {
			s.respondError(c, apperr.New(apperr.Auth, "MISSING_SIGNATURE", "X-Cron-Signature header is required"))
			c.Abort()
			return
		}

		secret, err := s.resolver.Resolve(c.Request.Context())
		if err != nil {
			s.respondError(c, apperr.Wrap(apperr.Transient, "SECRET_UNAVAILABLE", "cron secret unavailable", err))
			c.Abort()
			return
		}

		if !secrets.Verify(secret, body, sig) {
			s.respondError(c, apperr.New(apperr.Auth, "BAD_SIGNATURE", "cron signature does not match"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) registerJobRoutes(g gin.IRouter) {
	g.POST("/weekly-snapshot", s.handleWeeklySnapshotJob)
	g.POST("/trial-processing", s.handleTrialProcessingJob)
	g.POST("/email-dispatch/daily", s.handleDailyEmailJob)
	g.POST("/email-dispatch/weekly", s.handleWeeklyEmailJob)
	g.POST("/alert-check", s.handleAlertCheckJob)
}

// handleWeeklySnapshotJob implements spec.md §6's Sunday 23:59 IST job.
func (s *Server) handleWeeklySnapshotJob(c *gin.Context) {
	res, err := s.jobs.WeeklySnapshotSweep(c.Request.Context(), time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, 200, res)
}

// handleTrialProcessingJob implements spec.md §6's 02:00 IST job. No
// cached tier is invalidated here, so a flipped user's downgrade shows
// once their 60s tier cache entry expires.
func (s *Server) handleTrialProcessingJob(c *gin.Context) {
	res, err := s.jobs.TrialProcessing(c.Request.Context(), time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, 200, res)
}

// handleDailyEmailJob implements spec.md §6's 08:00 IST job.
func (s *Server) handleDailyEmailJob(c *gin.Context) {
	res, err := s.jobs.EmailDispatch(c.Request.Context(), events.TypeDailyEmailDue)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, 200, res)
}

// handleWeeklyEmailJob implements spec.md §6's Sunday 18:00 IST job.
func (s *Server) handleWeeklyEmailJob(c *gin.Context) {
	res, err := s.jobs.EmailDispatch(c.Request.Context(), events.TypeWeeklyEmailDue)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, 200, res)
}

// handleAlertCheckJob implements spec.md §6's every-6h job.
func (s *Server) handleAlertCheckJob(c *gin.Context) {
	res, err := s.jobs.AlertCheck(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, 200, res)
}
