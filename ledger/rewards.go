package ledger

import (
	"context"
	"fmt"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/rewards"
)

// Rewards owns the loyalty points of each customer.
//
// AddPoints is additive and NOT idempotent: two calls add twice. Callers
// invoke it at most once per reward event; nothing here deduplicates.
type Rewards struct {
	store Reader
}

func NewRewards(store Reader) *Rewards {
	return &Rewards{store: store}
}

// Account returns the customer's rewards account. found is false before the
// first accrual.
func (l *Rewards) Account(ctx context.Context, customerID catalog.CustomerID) (RewardsAccount, bool, error) {
	if _, err := l.store.GetCustomer(ctx, customerID); err != nil {
		return RewardsAccount{}, false, customerError(customerID, err)
	}
	acct, found, err := l.store.GetRewardsAccount(ctx, customerID)
	if err != nil {
		return RewardsAccount{}, false, fmt.Errorf("read rewards of %s: %w", customerID, err)
	}
	return acct, found, nil
}

// AddPoints creates the account with tier and points, or adds points to the
// existing total. The tier must be known only when the account is created;
// afterwards it is ignored. Returns the new total.
func (l *Rewards) AddPoints(ctx context.Context, uow UnitOfWork, customerID catalog.CustomerID, tier rewards.TierID, points int64) (int64, error) {
	if points < 0 {
		return 0, &InvalidInputError{Field: "points", Reason: "must not be negative"}
	}
	if _, err := uow.GetCustomer(ctx, customerID); err != nil {
		return 0, customerError(customerID, err)
	}

	_, found, err := uow.GetRewardsAccount(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("read rewards of %s: %w", customerID, err)
	}
	if !found {
		if tier == "" {
			return 0, &InvalidInputError{Field: "reward_tier_id", Reason: "required to open an account"}
		}
		if _, ok := rewards.Lookup(tier); !ok {
			return 0, &InvalidInputError{Field: "reward_tier_id", Reason: "unknown tier " + string(tier)}
		}
	}

	total, err := uow.AddRewardPoints(ctx, customerID, tier, points)
	if err != nil {
		return 0, fmt.Errorf("add reward points for %s: %w", customerID, err)
	}
	return total, nil
}
