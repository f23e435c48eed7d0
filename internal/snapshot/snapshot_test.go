package snapshot

import (
	"testing"
	"time"

	"github.com/jeevibe/ale/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChapterMapProjectsThetaPercentileAccuracy(t *testing.T) {
	chapters := []models.ChapterState{
		{ChapterKey: "physics_kinematics", Theta: 0.8, Percentile: 70, Attempts: 10, Correct: 7},
	}
	m := buildChapterMap(chapters)
	entry := m["physics_kinematics"].(map[string]any)
	assert.Equal(t, 0.8, entry["theta"])
	assert.Equal(t, 70, entry["percentile"])
	assert.InDelta(t, 0.7, entry["accuracy"].(float64), 1e-9)
}

func TestClampLimitDefaultsAndCaps(t *testing.T) {
	assert.Equal(t, defaultTimelineLimit, clampLimit(0))
	assert.Equal(t, defaultTimelineLimit, clampLimit(-5))
	assert.Equal(t, maxTimelineLimit, clampLimit(500))
	assert.Equal(t, 10, clampLimit(10))
}

func TestExtractPointOverallWhenNoFilter(t *testing.T) {
	now := time.Now()
	snap := models.ThetaSnapshot{OverallTheta: 0.5, OverallPercentile: 60, QuizNumber: 3, CreatedAt: now}
	point, ok := extractPoint(snap, "", "")
	require.True(t, ok)
	assert.Equal(t, 0.5, point.Theta)
	assert.Equal(t, 60, point.Percentile)
	assert.Equal(t, 3, point.QuizNumber)
}

func TestExtractPointSubjectFilterMissingReturnsNotOK(t *testing.T) {
	snap := models.ThetaSnapshot{OverallTheta: 0.5, ThetaBySubject: models.JSONMap{}}
	_, ok := extractPoint(snap, "Chemistry", "")
	assert.False(t, ok)
}

func TestExtractPointSubjectFilterUsesSubjectTheta(t *testing.T) {
	snap := models.ThetaSnapshot{
		OverallTheta: 0.5,
		ThetaBySubject: models.JSONMap{
			"Physics": map[string]any{"theta": 1.2, "percentile": 85.0},
		},
	}
	point, ok := extractPoint(snap, "Physics", "")
	require.True(t, ok)
	assert.Equal(t, 1.2, point.Theta)
	assert.Equal(t, 85, point.Percentile)
}
