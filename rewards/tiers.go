/*
Package rewards defines the loyalty reward tiers.

PURPOSE:
  A rewards account belongs to one tier. The tier decides how many points a
  sale is worth; the rewards ledger (ledger/rewards.go) only stores and adds
  points and does not interpret the tier.

TIERS:
  bronze: 1 point per currency unit spent
  silver: 2 points per currency unit spent
  gold:   3 points per currency unit spent

  Points are always whole: PointsFor rounds down.

EXAMPLE:
  tier, _ := rewards.Lookup(rewards.TierSilver)
  pts := tier.PointsFor(decimal.NewFromInt(10)) // 20

SEE ALSO:
  - ledger/rewards.go: the Rewards Ledger
  - api/handlers.go: computes points for the post-sale reward call
*/
package rewards

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// TierID identifies a reward tier.
type TierID string

const (
	TierBronze TierID = "bronze"
	TierSilver TierID = "silver"
	TierGold   TierID = "gold"
)

// Tier is a loyalty level with its earn rate.
type Tier struct {
	ID            TierID
	Name          string
	PointsPerUnit decimal.Decimal
}

// PointsFor returns the whole points earned for spending amount.
func (t Tier) PointsFor(amount decimal.Decimal) int64 {
	if !amount.IsPositive() || !t.PointsPerUnit.IsPositive() {
		return 0
	}
	return amount.Mul(t.PointsPerUnit).Floor().IntPart()
}

// =============================================================================
// REGISTRY
// =============================================================================

var (
	registryMu sync.RWMutex
	registry   = make(map[TierID]Tier)
)

func init() {
	Register(Tier{ID: TierBronze, Name: "Bronze", PointsPerUnit: decimal.NewFromInt(1)})
	Register(Tier{ID: TierSilver, Name: "Silver", PointsPerUnit: decimal.NewFromInt(2)})
	Register(Tier{ID: TierGold, Name: "Gold", PointsPerUnit: decimal.NewFromInt(3)})
}

// Register adds or replaces a tier.
func Register(t Tier) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t.ID] = t
}

// Lookup returns the tier registered under id.
func Lookup(id TierID) (Tier, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[id]
	return t, ok
}

// All returns every registered tier, lowest earn rate first.
func All() []Tier {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tiers := make([]Tier, 0, len(registry))
	for _, t := range registry {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].PointsPerUnit.Equal(tiers[j].PointsPerUnit) {
			return tiers[i].ID < tiers[j].ID
		}
		return tiers[i].PointsPerUnit.LessThan(tiers[j].PointsPerUnit)
	})
	return tiers
}
