// Package questionindex is the Question Index (C5): a read-through
// cache from the catalog keyed by chapter_key, sorted by IRT
// difficulty, grounded on the teacher's cache/redis.go TTL'd
// Get/Set idiom.
package questionindex

import (
	"context"
	"sort"
	"time"

	"github.com/jeevibe/ale/internal/cache"
	"github.com/jeevibe/ale/internal/models"

	"gorm.io/gorm"
)

// Entry is the cached, difficulty-sorted view of one chapter.
type Entry struct {
	ChapterKey string           `json:"chapter_key"`
	Questions  []models.Question `json:"questions"`
}

const defaultTTL = 10 * time.Minute

// Index provides widening-window selection queries over a chapter's
// difficulty-sorted questions.
type Index struct {
	db    *gorm.DB
	redis *cache.RedisClient
}

func New(db *gorm.DB, redis *cache.RedisClient) *Index {
	return &Index{db: db, redis: redis}
}

// loadChapter returns the chapter's questions sorted by difficulty b,
// trying the cache first.
func (idx *Index) loadChapter(ctx context.Context, chapterKey string) ([]models.Question, error) {
	key := cache.QuestionIndexKey(chapterKey)

	var cached Entry
	if err := idx.redis.Get(ctx, key, &cached); err == nil {
		return cached.Questions, nil
	}

	var questions []models.Question
	if err := idx.db.WithContext(ctx).Where("chapter_key = ?", chapterKey).Find(&questions).Error; err != nil {
		return nil, err
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].IRTDifficulty < questions[j].IRTDifficulty })

	_ = idx.redis.Set(ctx, key, Entry{ChapterKey: chapterKey, Questions: questions}, defaultTTL)
	return questions, nil
}

// Invalidate drops the cached index for a chapter, used by the
// tier-config/admin content update path per spec.md §9's "explicit
// caches with TTL and an invalidation hook".
func (idx *Index) Invalidate(ctx context.Context, chapterKey string) error {
	return idx.redis.Delete(ctx, cache.QuestionIndexKey(chapterKey))
}

// Window returns questions in [thetaTarget-W, thetaTarget+W], widening
// W from 0.5 in 0.25 steps until at least requestedCount candidates
// are found or W reaches 2.0, per spec.md §4.3. exclude is a set of
// question IDs never to return.
func (idx *Index) Window(ctx context.Context, chapterKey string, thetaTarget float64, requestedCount int, exclude map[string]bool) ([]models.Question, error) {
	return idx.WindowFrom(ctx, chapterKey, thetaTarget, requestedCount, 0.5, exclude)
}

// WindowFrom is Window with an explicit starting half-width, used by
// C6's recovery mode which tightens the window to ±0.4 instead of the
// default ±0.5 starting point.
func (idx *Index) WindowFrom(ctx context.Context, chapterKey string, thetaTarget float64, requestedCount int, startWidth float64, exclude map[string]bool) ([]models.Question, error) {
	questions, err := idx.loadChapter(ctx, chapterKey)
	if err != nil {
		return nil, err
	}

	const maxWindow = 2.0
	for w := startWidth; ; w += 0.25 {
		candidates := filterWindow(questions, thetaTarget, w, exclude)
		if len(candidates) >= requestedCount || w >= maxWindow {
			return candidates, nil
		}
	}
}

func filterWindow(questions []models.Question, thetaTarget, w float64, exclude map[string]bool) []models.Question {
	lo, hi := thetaTarget-w, thetaTarget+w
	out := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if exclude != nil && exclude[q.QuestionID] {
			continue
		}
		if q.IRTDifficulty >= lo && q.IRTDifficulty <= hi {
			out = append(out, q)
		}
	}
	return out
}

// MarshalCacheKey is exported only so tests can assert on the key
// shape without duplicating the fmt.Sprintf pattern.
func MarshalCacheKey(chapterKey string) string { return cache.QuestionIndexKey(chapterKey) }

// Subjects returns the distinct subjects present in the catalog, used
// by C6's initial-assessment stratified sampling to split the target
// count into equal per-subject shares.
func (idx *Index) Subjects(ctx context.Context) ([]string, error) {
	var subjects []string
	err := idx.db.WithContext(ctx).Model(&models.Question{}).Distinct().Pluck("subject", &subjects).Error
	return subjects, err
}

// ChapterKeys returns the distinct chapter_key values for a subject.
// Bypasses the per-chapter cache since it runs for coverage planning,
// not per-question selection.
func (idx *Index) ChapterKeys(ctx context.Context, subject string) ([]string, error) {
	var keys []string
	err := idx.db.WithContext(ctx).Model(&models.Question{}).
		Where("subject = ?", subject).Distinct().Pluck("chapter_key", &keys).Error
	return keys, err
}

// InitialAssessmentPool returns the catalog's flagged initial-assessment
// questions.
func (idx *Index) InitialAssessmentPool(ctx context.Context) ([]models.Question, error) {
	var qs []models.Question
	err := idx.db.WithContext(ctx).Where("is_initial_assessment = ?", true).Find(&qs).Error
	return qs, err
}
