// Package httpapi is the ALE's external HTTP surface (spec.md §6):
// gin router, the {success, data|error, requestId} envelope, and the
// endpoint families wired over the session coordinator (C9), selection
// planner (C6), quota gate (C8), snapshot/timeline (C10), and
// scheduled jobs (C11). Grounded on the teacher's
// scheduler-service/internal/handlers/onboarding_handler.go envelope
// idiom, ported from gorilla/mux to gin the way event-service/user-service
// already do in this monorepo, and on event-service/internal/server/server.go's
// gin.New()+middleware-stack bootstrap shape.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/events"
	"github.com/jeevibe/ale/internal/jobs"
	applogger "github.com/jeevibe/ale/internal/logger"
	"github.com/jeevibe/ale/internal/metrics"
	"github.com/jeevibe/ale/internal/quota"
	"github.com/jeevibe/ale/internal/secrets"
	"github.com/jeevibe/ale/internal/selection"
	"github.com/jeevibe/ale/internal/session"
	"github.com/jeevibe/ale/internal/snapshot"

	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/jeevibe/ale/internal/cache"
	"github.com/jeevibe/ale/internal/questionindex"
	"gorm.io/gorm"
)

// Server bundles every dependency the route handlers close over.
type Server struct {
	cfg       *config.Config
	db        *database.DB
	redis     *cache.RedisClient
	index     *questionindex.Index
	planner   *selection.Planner
	coord     *session.Coordinator
	snap      *snapshot.Writer
	jobs      *jobs.Runner
	emitter   events.Emitter
	resolver  *secrets.Resolver
	metrics   *metrics.Metrics
	log       *applogger.Logger

	httpServer *http.Server
}

// Deps bundles the constructed components main.go wires together, so
// New takes one struct rather than a long positional parameter list.
type Deps struct {
	Config   *config.Config
	DB       *database.DB
	Redis    *cache.RedisClient
	Index    *questionindex.Index
	Planner  *selection.Planner
	Coord    *session.Coordinator
	Snapshot *snapshot.Writer
	Jobs     *jobs.Runner
	Emitter  events.Emitter
	Resolver *secrets.Resolver
	Metrics  *metrics.Metrics
	Log      *applogger.Logger
}

func New(d Deps) *Server {
	return &Server{
		cfg:      d.Config,
		db:       d.DB,
		redis:    d.Redis,
		index:    d.Index,
		planner:  d.Planner,
		coord:    d.Coord,
		snap:     d.Snapshot,
		jobs:     d.Jobs,
		emitter:  d.Emitter,
		resolver: d.Resolver,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

// Router builds the gin engine with every middleware and route group
// registered, exported so tests can drive it with httptest without
// going through Start/Shutdown.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestIDMiddleware())
	router.Use(s.corsMiddleware())
	router.Use(s.metricsMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(s.authMiddleware())
	s.registerAssessmentRoutes(v1)
	s.registerDailyQuizRoutes(v1)
	s.registerChapterPracticeRoutes(v1)
	s.registerUnlockQuizRoutes(v1)
	s.registerSnapPracticeRoutes(v1)
	s.registerMockTestRoutes(v1)
	s.registerAnalyticsRoutes(v1)
	s.registerSubscriptionRoutes(v1)

	internal := router.Group("/internal/jobs")
	internal.Use(s.cronSignatureMiddleware())
	s.registerJobRoutes(internal)

	return router
}

// Start runs the HTTP server until Shutdown is called, matching the
// teacher's server.Start()/Stop(ctx) lifecycle shape.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Infof("ale http server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	if err := s.redis.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// tierFeatureLimit resolves the calling user's tier and this
// feature's quota limit/period, the shared first step of every
// generate handler (spec.md §4.6).
func (s *Server) tierFeatureLimit(ctx context.Context, userID, feature string, now time.Time) (quota.Tier, int, quota.Period, error) {
	tier, err := quota.ResolveCached(ctx, s.redis, userID, func(ctx context.Context) (quota.Subscription, error) {
		var sub *models.Subscription
		err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row, err := store.GetSubscription(ctx, tx, userID)
			sub = row
			return err
		})
		if err != nil {
			return quota.Subscription{}, err
		}
		return quota.FromRecord(*sub, now), nil
	})
	if err != nil {
		return "", 0, "", err
	}
	limit, period, err := quota.LoadLimit(ctx, s.db, s.redis, string(tier), feature)
	if err != nil {
		return "", 0, "", err
	}
	return tier, limit, period, nil
}
