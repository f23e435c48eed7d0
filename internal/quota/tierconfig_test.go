package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeLimitRoundTrip(t *testing.T) {
	s := encodeLimit(20, PeriodDaily)
	limit, period, ok := decodeLimit(s)
	assert.True(t, ok)
	assert.Equal(t, 20, limit)
	assert.Equal(t, PeriodDaily, period)
}

func TestDecodeLimitRejectsMalformed(t *testing.T) {
	_, _, ok := decodeLimit("no-separator")
	assert.False(t, ok)
}

func TestEncodeDecodeLimitNegativeUnlimited(t *testing.T) {
	s := encodeLimit(Unlimited, PeriodMonthly)
	limit, period, ok := decodeLimit(s)
	assert.True(t, ok)
	assert.Equal(t, Unlimited, limit)
	assert.Equal(t, PeriodMonthly, period)
}
