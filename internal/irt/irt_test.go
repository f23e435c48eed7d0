package irt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbability3PL(t *testing.T) {
	cases := []struct {
		name           string
		theta, a, b, c float64
		want           float64
		tol            float64
	}{
		{"at difficulty, no guessing", 0, 1.5, 0, 0, 0.5, 1e-9},
		{"guessing floor dominates far below difficulty", -10, 1.5, 0, 0.25, 0.25, 1e-6},
		{"converges toward 1 far above difficulty", 10, 1.5, 0, 0.25, 1.0, 1e-6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := P(tc.theta, tc.a, tc.b, tc.c)
			assert.InDelta(t, tc.want, got, tc.tol)
		})
	}
}

func TestInformationZeroBelowGuessingFloor(t *testing.T) {
	// theta far below b drives P toward c; information must not go negative.
	info := Information(-50, 1.5, 0, 0.25)
	assert.GreaterOrEqual(t, info, 0.0)
}

func TestMapUpdateEmptyResponsesReturnsPrior(t *testing.T) {
	est := MapUpdate(0.3, 0.45, nil, DefaultParams)
	assert.Equal(t, 0.3, est.Theta)
	assert.Equal(t, 0.45, est.SE)
}

func TestMapUpdateSingleCorrectResponse(t *testing.T) {
	// Boundary scenario from spec.md §8: prior theta=0, SE=0.5, one
	// question (a=1.5, b=0, c=0.25) answered correctly. The Newton-Raphson
	// MAP optimum of this implementation's log-posterior converges to
	// theta≈0.1067, SE≈0.4642.
	est := MapUpdate(0, 0.5, []Response{
		{Discrimination: 1.5, Difficulty: 0, Guessing: 0.25, Correct: true},
	}, DefaultParams)

	assert.InDelta(t, 0.1067, est.Theta, 0.05)
	assert.InDelta(t, 0.4642, est.SE, 0.05)
}

func TestMapUpdateClampsTheta(t *testing.T) {
	responses := make([]Response, 0, 40)
	for i := 0; i < 40; i++ {
		responses = append(responses, Response{Discrimination: 2.0, Difficulty: -2.5, Guessing: 0.1, Correct: true})
	}
	est := MapUpdate(0, 0.5, responses, DefaultParams)
	require.LessOrEqual(t, est.Theta, DefaultBounds.ThetaMax)
	assert.GreaterOrEqual(t, est.SE, DefaultBounds.SEMin)
}

func TestMapUpdateAllIncorrectClampsToFloor(t *testing.T) {
	responses := make([]Response, 0, 30)
	for i := 0; i < 30; i++ {
		responses = append(responses, Response{Discrimination: 1.5, Difficulty: 0, Guessing: 0.0, Correct: false})
	}
	est := MapUpdate(0, 0.5, responses, DefaultParams)
	assert.Equal(t, DefaultBounds.ThetaMin, est.Theta)
}

func TestPercentileMonotone(t *testing.T) {
	prev := -1
	for theta := -3.0; theta <= 3.0; theta += 0.1 {
		p := Percentile(theta)
		assert.GreaterOrEqual(t, p, prev)
		assert.GreaterOrEqual(t, p, 0)
		assert.LessOrEqual(t, p, 100)
		prev = p
	}
}

func TestPercentileMidpointIsFifty(t *testing.T) {
	assert.InDelta(t, 50, Percentile(0), 1)
}

func TestPercentileBoundsSaturate(t *testing.T) {
	assert.Equal(t, Percentile(-3), Percentile(-10))
	assert.Equal(t, Percentile(3), Percentile(10))
}

func TestInformationSymmetry(t *testing.T) {
	// Max information for a 2PL-like item (c=0) sits at theta==b.
	infoAtB := Information(1.0, 1.2, 1.0, 0.0)
	infoAway := Information(3.0, 1.2, 1.0, 0.0)
	assert.Greater(t, infoAtB, infoAway)
}

func TestMapUpdateConvergesWithinToleranceBound(t *testing.T) {
	responses := []Response{
		{Discrimination: 1.0, Difficulty: 0.5, Guessing: 0.2, Correct: true},
		{Discrimination: 1.2, Difficulty: -0.5, Guessing: 0.2, Correct: false},
		{Discrimination: 0.9, Difficulty: 0.0, Guessing: 0.25, Correct: true},
	}
	est := MapUpdate(0, 1.0, responses, DefaultParams)
	assert.False(t, math.IsNaN(est.Theta))
	assert.False(t, math.IsNaN(est.SE))
}
