package secrets

import (
	"context"
	"testing"

	"github.com/jeevibe/ale/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"job":"weekly_snapshot"}`)
	sig := Sign("shh", body)
	assert.True(t, Verify("shh", body, sig))
	assert.False(t, Verify("shh", body, "deadbeef"))
	assert.False(t, Verify("other-secret", body, sig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	sig := Sign("shh", []byte(`{"job":"weekly_snapshot"}`))
	assert.False(t, Verify("shh", []byte(`{"job":"trial_processing"}`), sig))
}

func TestResolveFallsBackToEnv(t *testing.T) {
	t.Setenv("CRON_SECRET", "env-secret")
	r, err := New(config.VaultConfig{})
	require.NoError(t, err)

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-secret", got)
}

func TestResolveErrorsWithNoSecretAvailable(t *testing.T) {
	t.Setenv("CRON_SECRET", "")
	r, err := New(config.VaultConfig{})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background())
	assert.Error(t, err)
}
