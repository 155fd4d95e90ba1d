package rewards_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/rewards"
)

func TestPointsFor(t *testing.T) {
	tests := []struct {
		tier   rewards.TierID
		amount string
		want   int64
	}{
		{rewards.TierBronze, "10", 10},
		{rewards.TierSilver, "10", 20},
		{rewards.TierGold, "10", 30},
		{rewards.TierBronze, "9.99", 9},
		{rewards.TierSilver, "0.49", 0},
		{rewards.TierGold, "0", 0},
		{rewards.TierGold, "-5", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+"/"+tt.amount, func(t *testing.T) {
			tier, ok := rewards.Lookup(tt.tier)
			require.True(t, ok)
			assert.Equal(t, tt.want, tier.PointsFor(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := rewards.Lookup("platinum")
	assert.False(t, ok)
}

func TestAll_OrderedByRate(t *testing.T) {
	tiers := rewards.All()
	require.GreaterOrEqual(t, len(tiers), 3)

	for i := 1; i < len(tiers); i++ {
		assert.False(t, tiers[i].PointsPerUnit.LessThan(tiers[i-1].PointsPerUnit))
	}
}
