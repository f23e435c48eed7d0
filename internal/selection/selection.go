// Package selection is the Selection Planner (C6): chooses N questions
// per request according to mode-specific policy, spec.md §4.4.
// Grounded on the teacher's placement.go (weighted, struct-of-tunables
// style algorithm configuration) and irt.go (Fisher information
// tie-breaks), generalized from placement-test-only selection to the
// full mode table the spec requires.
package selection

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/jeevibe/ale/internal/irt"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/questionindex"

	"gonum.org/v1/gonum/stat"
)

// Mode is one of the eight selection policies, spec.md §4.4.
type Mode string

const (
	ModeInitialAssessment Mode = "initial_assessment"
	ModeExploration       Mode = "exploration"
	ModeExploitation      Mode = "exploitation"
	ModeRecovery          Mode = "recovery"
	ModeChapterPractice   Mode = "chapter_practice"
	ModeUnlock            Mode = "unlock"
	ModeSnapPractice      Mode = "snap_practice"
	ModeMockTest          Mode = "mock_test"
)

// Rationale tags why a question was placed at a given position,
// spec.md §4.4's "selection rationale tag per position".
type Rationale string

const (
	RationaleExploration        Rationale = "exploration"
	RationaleDeliberatePractice Rationale = "deliberate_practice"
	RationaleReview             Rationale = "review"
)

// Selected is one entry of the planner's ordered output.
type Selected struct {
	QuestionID string
	Rationale  Rationale
}

// MockSection is one row of a mock test's per-subject composition.
type MockSection struct {
	Subject string
	Count   int
}

// Request carries every input the planner's modes need. Not every
// field applies to every mode; see the per-mode comments below.
type Request struct {
	UserID        string
	Mode          Mode
	Count         int
	Exclusion     map[string]bool
	ChapterKey    string // chapter_practice, unlock, snap_practice
	ChapterStates []models.ChapterState
	DueSet        []models.ReviewInterval // C7 due set, exploitation's review slice
	MockTemplate  []MockSection
	SnapBucket    string // difficulty bucket label for snap_practice fallback matching
}

// Planner implements spec.md §4.4 over the question index (C5).
type Planner struct {
	index *questionindex.Index
}

func New(index *questionindex.Index) *Planner {
	return &Planner{index: index}
}

// Select dispatches to the mode-specific policy. The planner is
// stateless: identical inputs yield identical outputs (spec.md §4.4,
// Testable property 8), since every policy below seeds its shuffling
// from the user_id hash rather than a process-global RNG.
func (p *Planner) Select(ctx context.Context, req Request) ([]Selected, error) {
	switch req.Mode {
	case ModeInitialAssessment:
		return p.selectInitialAssessment(ctx, req)
	case ModeExploration:
		return p.selectExploration(ctx, req)
	case ModeExploitation:
		return p.selectExploitation(ctx, req)
	case ModeRecovery:
		return p.selectRecovery(ctx, req)
	case ModeChapterPractice:
		return p.selectChapterPractice(ctx, req)
	case ModeUnlock:
		return p.selectUnlock(ctx, req)
	case ModeSnapPractice:
		return p.selectSnapPractice(ctx, req)
	case ModeMockTest:
		return p.selectMockTest(ctx, req)
	default:
		return nil, nil
	}
}

// userSeed derives a deterministic int64 seed from the user_id, per
// spec.md §4.4: "the stored seed is the user_id's hash."
func userSeed(userID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return int64(h.Sum64())
}

func newUserRand(userID string) *rand.Rand {
	return rand.New(rand.NewSource(userSeed(userID)))
}

// selectInitialAssessment: stratified random sample, equal share
// across subjects, one question per chapter for as many chapters as
// cover each subject's target count. Deterministic per user.
func (p *Planner) selectInitialAssessment(ctx context.Context, req Request) ([]Selected, error) {
	pool, err := p.index.InitialAssessmentPool(ctx)
	if err != nil {
		return nil, err
	}
	bySubject := make(map[string][]models.Question)
	for _, q := range pool {
		if req.Exclusion[q.QuestionID] {
			continue
		}
		bySubject[q.Subject] = append(bySubject[q.Subject], q)
	}

	subjects := make([]string, 0, len(bySubject))
	for s := range bySubject {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	if len(subjects) == 0 {
		return nil, nil
	}

	r := newUserRand(req.UserID)
	perSubject := req.Count / len(subjects)
	remainder := req.Count % len(subjects)

	out := make([]Selected, 0, req.Count)
	for i, subject := range subjects {
		target := perSubject
		if i < remainder {
			target++
		}
		questions := bySubject[subject]
		sort.Slice(questions, func(a, b int) bool { return questions[a].ChapterKey < questions[b].ChapterKey })
		r.Shuffle(len(questions), func(a, b int) { questions[a], questions[b] = questions[b], questions[a] })

		seenChapter := make(map[string]bool)
		for _, q := range questions {
			if len(out) >= req.Count || target == 0 {
				break
			}
			if seenChapter[q.ChapterKey] {
				continue
			}
			seenChapter[q.ChapterKey] = true
			out = append(out, Selected{QuestionID: q.QuestionID, Rationale: RationaleExploration})
			target--
		}
	}
	return out, nil
}

// selectExploration: maximize chapter coverage — picks chapters with
// lowest attempts, then per chapter one question near θ_target=0
// (cold) or the chapter θ (warm).
func (p *Planner) selectExploration(ctx context.Context, req Request) ([]Selected, error) {
	attempts := make(map[string]int)
	theta := make(map[string]float64)
	for _, cs := range req.ChapterStates {
		attempts[cs.ChapterKey] = cs.Attempts
		theta[cs.ChapterKey] = cs.Theta
	}

	subjects, err := p.index.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(subjects)

	var chapters []string
	for _, s := range subjects {
		keys, err := p.index.ChapterKeys(ctx, s)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, keys...)
	}
	sort.Slice(chapters, func(i, j int) bool {
		if attempts[chapters[i]] != attempts[chapters[j]] {
			return attempts[chapters[i]] < attempts[chapters[j]]
		}
		return chapters[i] < chapters[j]
	})

	out := make([]Selected, 0, req.Count)
	for _, chapterKey := range chapters {
		if len(out) >= req.Count {
			break
		}
		target := theta[chapterKey] // zero value is the cold θ_target=0 case
		q, ok := p.bestByInformation(ctx, chapterKey, target, req.Exclusion)
		if !ok {
			continue
		}
		out = append(out, Selected{QuestionID: q.QuestionID, Rationale: RationaleExploration})
	}
	return out, nil
}

const (
	exploitationDeliberateShare = 0.60
	exploitationReviewShare     = 0.25
	exploitationExplorationShare = 0.15
)

// selectExploitation: weighted mixture of deliberate practice (weakest
// chapters, 60%), spaced-repetition review (25%), under-attempted
// exploration (15%). Per-position tie-break: highest Fisher
// information at current θ.
func (p *Planner) selectExploitation(ctx context.Context, req Request) ([]Selected, error) {
	deliberateCount := roundShare(req.Count, exploitationDeliberateShare)
	reviewCount := roundShare(req.Count, exploitationReviewShare)
	explorationCount := req.Count - deliberateCount - reviewCount

	out := make([]Selected, 0, req.Count)

	weak := weakestChapters(req.ChapterStates)
	for _, chapterKey := range weak {
		if len(out) >= deliberateCount {
			break
		}
		target := thetaFor(req.ChapterStates, chapterKey)
		q, ok := p.bestByInformation(ctx, chapterKey, target, mergedExclusion(req.Exclusion, out))
		if !ok {
			continue
		}
		out = append(out, Selected{QuestionID: q.QuestionID, Rationale: RationaleDeliberatePractice})
	}

	due := append([]models.ReviewInterval(nil), req.DueSet...)
	sort.Slice(due, func(i, j int) bool { return due[i].QuestionID < due[j].QuestionID })
	for _, ri := range due {
		if len(out) >= deliberateCount+reviewCount {
			break
		}
		if req.Exclusion[ri.QuestionID] {
			continue
		}
		out = append(out, Selected{QuestionID: ri.QuestionID, Rationale: RationaleReview})
	}

	explorationReq := req
	explorationReq.Count = explorationCount
	explorationReq.Exclusion = mergedExclusion(req.Exclusion, out)
	rest, err := p.selectExploration(ctx, explorationReq)
	if err != nil {
		return nil, err
	}
	out = append(out, rest...)
	return out, nil
}

func roundShare(count int, share float64) int {
	return int(float64(count)*share + 0.5)
}

// weakestChapters orders chapters by |θ − median θ| on the weak
// (below-median) side only, furthest first. Uses gonum/stat for the
// median over the θ of every chapter state passed in.
func weakestChapters(states []models.ChapterState) []string {
	if len(states) == 0 {
		return nil
	}
	thetas := make([]float64, len(states))
	for i, cs := range states {
		thetas[i] = cs.Theta
	}
	sorted := append([]float64(nil), thetas...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n := len(sorted); n%2 == 0 {
		// Empirical yields the lower middle value for an even count; the
		// median is the mean of the two middle values.
		median = stat.Mean(sorted[n/2-1:n/2+1], nil)
	}

	type weak struct {
		chapterKey string
		gap        float64
	}
	var candidates []weak
	for _, cs := range states {
		if cs.Theta >= median {
			continue
		}
		candidates = append(candidates, weak{chapterKey: cs.ChapterKey, gap: median - cs.Theta})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].gap != candidates[j].gap {
			return candidates[i].gap > candidates[j].gap
		}
		return candidates[i].chapterKey < candidates[j].chapterKey
	})
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.chapterKey
	}
	return out
}

func thetaFor(states []models.ChapterState, chapterKey string) float64 {
	for _, cs := range states {
		if cs.ChapterKey == chapterKey {
			return cs.Theta
		}
	}
	return 0
}

// selectRecovery: triggered by three consecutive low-accuracy quizzes.
// θ_target shifts by −0.3 and the difficulty window tightens to ±0.4.
func (p *Planner) selectRecovery(ctx context.Context, req Request) ([]Selected, error) {
	out := make([]Selected, 0, req.Count)
	chapters := req.ChapterStates
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Attempts < chapters[j].Attempts })
	for _, cs := range chapters {
		if len(out) >= req.Count {
			break
		}
		target := cs.Theta - 0.3
		q, ok := p.pickByInformation(ctx, cs.ChapterKey, target, 0.4, mergedExclusion(req.Exclusion, out))
		if !ok {
			continue
		}
		out = append(out, Selected{QuestionID: q.QuestionID, Rationale: RationaleDeliberatePractice})
	}
	return out, nil
}

// selectChapterPractice: all questions from the requested chapter,
// drawn near the chapter θ, respecting the tier's per-chapter count
// limit (already folded into req.Count by the caller).
func (p *Planner) selectChapterPractice(ctx context.Context, req Request) ([]Selected, error) {
	target := thetaFor(req.ChapterStates, req.ChapterKey)
	candidates, err := p.index.Window(ctx, req.ChapterKey, target, req.Count, req.Exclusion)
	if err != nil {
		return nil, err
	}
	sortByDistanceThenID(candidates, target)
	return toSelected(candidates, req.Count, RationaleDeliberatePractice), nil
}

// selectUnlock: fixed 5 questions from the locked chapter at θ=0.
func (p *Planner) selectUnlock(ctx context.Context, req Request) ([]Selected, error) {
	const unlockCount = 5
	candidates, err := p.index.Window(ctx, req.ChapterKey, 0, unlockCount, req.Exclusion)
	if err != nil {
		return nil, err
	}
	sortByDistanceThenID(candidates, 0)
	return toSelected(candidates, unlockCount, RationaleExploration), nil
}

// selectSnapPractice: up to 5 candidates from DB matching
// (chapter_key, difficulty bucket).
func (p *Planner) selectSnapPractice(ctx context.Context, req Request) ([]Selected, error) {
	const snapCount = 5
	candidates, err := p.index.Window(ctx, req.ChapterKey, 0, snapCount, req.Exclusion)
	if err != nil {
		return nil, err
	}
	sortByDistanceThenID(candidates, 0)
	return toSelected(candidates, snapCount, RationaleExploration), nil
}

// selectMockTest: template-driven per-subject composition, no θ
// targeting.
func (p *Planner) selectMockTest(ctx context.Context, req Request) ([]Selected, error) {
	var out []Selected
	for _, section := range req.MockTemplate {
		keys, err := p.index.ChapterKeys(ctx, section.Subject)
		if err != nil {
			return nil, err
		}
		sort.Strings(keys)
		remaining := section.Count
		for _, chapterKey := range keys {
			if remaining <= 0 {
				break
			}
			candidates, err := p.index.Window(ctx, chapterKey, 0, remaining, mergedExclusion(req.Exclusion, out))
			if err != nil {
				return nil, err
			}
			sortByDistanceThenID(candidates, 0)
			for _, q := range candidates {
				if remaining <= 0 {
					break
				}
				out = append(out, Selected{QuestionID: q.QuestionID, Rationale: RationaleExploration})
				remaining--
			}
		}
	}
	return out, nil
}

// bestByInformation picks the single highest-Fisher-information
// question in the chapter's base window around target, lowest
// question_id winning ties (spec.md §4.4).
func (p *Planner) bestByInformation(ctx context.Context, chapterKey string, target float64, exclusion map[string]bool) (models.Question, bool) {
	return p.pickByInformation(ctx, chapterKey, target, 0.5, exclusion)
}

// pickByInformation fetches a small candidate pool from the window
// starting at startWidth and returns the one with highest Fisher
// information at target, lowest question_id breaking ties.
func (p *Planner) pickByInformation(ctx context.Context, chapterKey string, target, startWidth float64, exclusion map[string]bool) (models.Question, bool) {
	const poolSize = 8
	candidates, err := p.index.WindowFrom(ctx, chapterKey, target, poolSize, startWidth, exclusion)
	if err != nil || len(candidates) == 0 {
		return models.Question{}, false
	}

	best := candidates[0]
	bestInfo := irt.Information(target, best.IRTDiscrimination, best.IRTDifficulty, best.IRTGuessing)
	for _, q := range candidates[1:] {
		info := irt.Information(target, q.IRTDiscrimination, q.IRTDifficulty, q.IRTGuessing)
		if info > bestInfo || (info == bestInfo && q.QuestionID < best.QuestionID) {
			best, bestInfo = q, info
		}
	}
	return best, true
}

func mergedExclusion(base map[string]bool, selected []Selected) map[string]bool {
	out := make(map[string]bool, len(base)+len(selected))
	for k, v := range base {
		out[k] = v
	}
	for _, s := range selected {
		out[s.QuestionID] = true
	}
	return out
}

func sortByDistanceThenID(qs []models.Question, target float64) {
	sort.Slice(qs, func(i, j int) bool {
		di := absf(qs[i].IRTDifficulty - target)
		dj := absf(qs[j].IRTDifficulty - target)
		if di != dj {
			return di < dj
		}
		return qs[i].QuestionID < qs[j].QuestionID
	})
}

func toSelected(qs []models.Question, limit int, rationale Rationale) []Selected {
	if len(qs) > limit {
		qs = qs[:limit]
	}
	out := make([]Selected, len(qs))
	for i, q := range qs {
		out[i] = Selected{QuestionID: q.QuestionID, Rationale: rationale}
	}
	return out
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
