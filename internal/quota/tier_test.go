package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePrecedence(t *testing.T) {
	cases := []struct {
		name string
		sub  Subscription
		want Tier
	}{
		{"paid wins over everything", Subscription{HasActivePaidSubscription: true, HasActiveTrial: true, HasAdminOverride: true}, TierPaid},
		{"trial wins over admin override", Subscription{HasActiveTrial: true, HasAdminOverride: true}, TierTrial},
		{"admin override wins over free", Subscription{HasAdminOverride: true}, TierAdminOverride},
		{"free is the default", Subscription{}, TierFree},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.sub))
		})
	}
}
