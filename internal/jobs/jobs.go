// Package jobs is Scheduled Jobs (C11): weekly snapshot sweep, trial
// expiry processing, email dispatch, and alert checks. spec.md §6
// invokes these "via signed HTTP" rather than an in-process
// scheduler, so each job is a plain context-bound function called
// from internal/httpapi's signed cron handlers (and, when enabled, from
// internal/scheduler's local ticker); the timeout per job
// comes from config.SchedulerConfig, mirroring how
// database.DB.RetryTransaction takes its retry budget from config
// rather than a hardcoded constant.
package jobs

import (
	"context"
	"time"

	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/database"
	applogger "github.com/jeevibe/ale/internal/logger"
	"github.com/jeevibe/ale/internal/snapshot"
	"github.com/jeevibe/ale/internal/store"

	"github.com/jeevibe/ale/internal/events"
)

// Runner holds the dependencies every scheduled job needs.
type Runner struct {
	db        *database.DB
	snapshot  *snapshot.Writer
	events    events.Emitter
	cfg       config.SchedulerConfig
	tierCfg   config.TierConfig
	log       *applogger.Logger
}

func New(db *database.DB, snap *snapshot.Writer, emitter events.Emitter, cfg config.SchedulerConfig, tierCfg config.TierConfig, log *applogger.Logger) *Runner {
	return &Runner{db: db, snapshot: snap, events: emitter, cfg: cfg, tierCfg: tierCfg, log: log}
}

// Result summarizes one job run for the HTTP response and logs.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// WeeklySnapshotSweep implements spec.md §6's Sunday 23:59 IST job:
// page through every user and call CreateWeeklySnapshot, bounded by
// config.SchedulerConfig.WeeklySnapshotTimeout. One user's failure
// does not abort the sweep; it is counted and logged.
func (r *Runner) WeeklySnapshotSweep(ctx context.Context, now time.Time) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WeeklySnapshotTimeout)
	defer cancel()

	var res Result
	cursor := ""
	for {
		ids, next, err := store.ListUserIDsPage(ctx, r.db.DB, cursor, r.cfg.PageSize)
		if err != nil {
			return res, err
		}
		for _, uid := range ids {
			if err := r.snapshot.CreateWeeklySnapshot(ctx, uid, now); err != nil {
				res.Failed++
				r.log.WithContext(ctx).WithField("user_id", uid).WithError(err).
					Error("weekly snapshot failed")
				continue
			}
			res.Processed++
		}
		if next == "" {
			break
		}
		cursor = next
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, nil
}

// TrialProcessing implements spec.md §6's 02:00 IST job: flip expired
// trials to inactive so the next uncached tier resolution falls
// through to free. No cached tier is invalidated (neither here nor by
// the HTTP caller), so a flipped user's cached tier stays in effect
// until its 60s TTL runs out.
func (r *Runner) TrialProcessing(ctx context.Context, now time.Time) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.EmailBatchTimeout)
	defer cancel()

	var res Result
	for {
		expired, err := store.ListExpiredTrials(ctx, r.db.DB, now, r.cfg.PageSize)
		if err != nil {
			return res, err
		}
		if len(expired) == 0 {
			break
		}
		for i := range expired {
			sub := expired[i]
			sub.TrialActive = false
			sub.UpdatedAt = now
			if err := r.db.DB.WithContext(ctx).Save(&sub).Error; err != nil {
				res.Failed++
				r.log.WithContext(ctx).WithField("user_id", sub.UserID).WithError(err).
					Error("trial expiry write failed")
				continue
			}
			res.Processed++
			if r.events != nil {
				_ = r.events.Publish(ctx, events.TypeTrialExpired, sub.UserID, map[string]any{
					"expired_at": now,
				})
			}
		}
		if len(expired) < r.cfg.PageSize {
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, nil
}

// EmailDispatch implements spec.md §6's 08:00 IST daily and 18:00 IST
// Sunday weekly email jobs. Actual delivery is the out-of-scope
// notification collaborator's job (spec.md §1); this only emits one
// "due" event per user for it to consume, in fixed-size pages.
func (r *Runner) EmailDispatch(ctx context.Context, typ events.Type) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.EmailBatchTimeout)
	defer cancel()

	var res Result
	cursor := ""
	for {
		ids, next, err := store.ListUserIDsPage(ctx, r.db.DB, cursor, r.cfg.PageSize)
		if err != nil {
			return res, err
		}
		for _, uid := range ids {
			if r.events == nil {
				res.Processed++
				continue
			}
			if err := r.events.Publish(ctx, typ, uid, nil); err != nil {
				res.Failed++
				continue
			}
			res.Processed++
		}
		if next == "" {
			break
		}
		cursor = next
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, nil
}

// AlertCheck implements spec.md §6's every-6h alert job: emit a
// recovery alert for every user whose consecutive low-score streak
// has reached config.TierConfig.RecoveryQuizConsecutiveLowScores —
// the same threshold C9/proficiency use to trigger recovery-mode
// selection, surfaced here so the (out-of-scope) notification
// collaborator can nudge the student directly.
func (r *Runner) AlertCheck(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AlertCheckTimeout)
	defer cancel()

	var res Result
	candidates, err := store.ListRecoveryAlertCandidates(ctx, r.db.DB, r.tierCfg.RecoveryQuizConsecutiveLowScores, r.cfg.PageSize)
	if err != nil {
		return res, err
	}
	for _, u := range candidates {
		if r.events == nil {
			res.Processed++
			continue
		}
		if err := r.events.Publish(ctx, events.TypeRecoveryAlert, u.UserID, map[string]any{
			"consecutive_low_score_quizzes": u.ConsecutiveLowScoreQuizzes,
		}); err != nil {
			res.Failed++
			continue
		}
		res.Processed++
	}
	return res, nil
}
