package httpapi

import (
	"net/http"
	"time"

	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/quota"
	"github.com/jeevibe/ale/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var subscriptionFeatures = []string{
	quota.FeatureSnapSolve,
	quota.FeatureDailyQuiz,
	quota.FeatureAITutor,
	quota.FeatureChapterPractice,
	quota.FeatureMockTests,
}

func (s *Server) registerSubscriptionRoutes(g gin.IRouter) {
	g.GET("/subscriptions/status", s.handleSubscriptionStatus)
}

type featureStatus struct {
	Feature  string      `json:"feature"`
	Limit    int         `json:"limit"`
	Period   quota.Period `json:"period"`
	Used     int         `json:"used"`
	ResetsAt *time.Time  `json:"resets_at,omitempty"`
}

// handleSubscriptionStatus implements spec.md §6: tier + limits +
// features + usage in one call, reusing the same tierFeatureLimit path
// every generate handler's quota check goes through, plus a read of
// each feature's current QuotaCounter for "usage".
func (s *Server) handleSubscriptionStatus(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)
	now := time.Now()

	tier, _, _, err := s.tierFeatureLimit(ctx, userID, quota.FeatureDailyQuiz, now)
	if err != nil {
		s.respondError(c, err)
		return
	}

	features := make([]featureStatus, 0, len(subscriptionFeatures))
	for _, feature := range subscriptionFeatures {
		_, limit, period, err := s.tierFeatureLimit(ctx, userID, feature, now)
		if err != nil {
			s.respondError(c, err)
			return
		}
		periodKey, resetsAt := quota.PeriodKeyFor(feature, period, now)
		fs := featureStatus{Feature: feature, Limit: limit, Period: period, ResetsAt: &resetsAt}

		err = s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var counter models.QuotaCounter
			err := tx.Where("user_id = ? AND feature = ? AND period_key = ?", userID, feature, periodKey).First(&counter).Error
			if err == nil {
				fs.Used = counter.Used
			}
			return nil
		})
		if err != nil {
			s.respondError(c, err)
			return
		}
		features = append(features, fs)
	}

	var sub *models.Subscription
	err = s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := store.GetSubscription(ctx, tx, userID)
		sub = row
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.respondOK(c, http.StatusOK, gin.H{
		"tier":         tier,
		"features":     features,
		"paid_active":  sub.PaidActive,
		"trial_active": sub.TrialActive,
		"trial_ends_at": sub.TrialEndsAt,
	})
}
