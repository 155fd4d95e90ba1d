/*
Package ledger provides the three ledgers of the store and the records
they write.

PURPOSE:
  A ledger owns the authoritative value and the only mutation path for one
  numeric quantity tied to an entity:

    Inventory: Product.Quantity (stock on hand)
    Credit:    the outstanding credit balance of a customer
    Rewards:   the loyalty points of a customer

  The sales package coordinates them into one atomic unit of work per sale.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: an immutable sale record (append-only)
  - TransactionType: credit or cash
  - CreditBalance, RewardsAccount: per-customer running totals
  - Money helpers: decimal amounts, never floats

DESIGN PRINCIPLES:
  1. Append-only sales: a Transaction is never updated or deleted
  2. Precision: decimal.Decimal for all money
  3. Additive accruals: balances only grow by addition inside this package
  4. The store is the only synchronization point (see store.go)

SEE ALSO:
  - store.go: Store and UnitOfWork interfaces
  - errors.go: error kinds
  - sales/: the transaction orchestrator
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/rewards"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyScale is the number of decimal places amounts carry. Prices are
// validated to the same scale, so Amount never has to drop a fraction.
const MoneyScale = catalog.PriceScale

// Amount returns price × quantity. The Round is a no-op for any price that
// passed catalog validation.
func Amount(price decimal.Decimal, quantity int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity)).Round(MoneyScale)
}

// ParseMoney parses a decimal string such as "12.50".
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return d, nil
}

// =============================================================================
// TRANSACTION - Immutable sale record
// =============================================================================

type TransactionID string

type TransactionType string

const (
	TxCredit TransactionType = "credit" // sold on the customer's credit account
	TxCash   TransactionType = "cash"   // paid at the till
)

// ParseTransactionType accepts the recognized types, case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case TxCredit:
		return TxCredit, nil
	case TxCash:
		return TxCash, nil
	}
	return "", &InvalidInputError{Field: "type", Reason: fmt.Sprintf("unrecognized transaction type %q", s)}
}

// Valid reports whether t is one of the recognized types.
func (t TransactionType) Valid() bool {
	return t == TxCredit || t == TxCash
}

// AccruesCredit reports whether the sale is charged to the credit ledger.
func (t TransactionType) AccruesCredit() bool {
	return t == TxCredit
}

// Transaction is one recorded sale. Never updated, never deleted.
type Transaction struct {
	ID         TransactionID
	CustomerID catalog.CustomerID
	ProductID  catalog.ProductID
	Type       TransactionType
	Quantity   int64
	Amount     decimal.Decimal
	CreatedAt  time.Time
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	CustomerID catalog.CustomerID // empty = all customers
	Limit      int                // <= 0 = DefaultListLimit
}

const DefaultListLimit = 100

func (f TransactionFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// =============================================================================
// PER-CUSTOMER TOTALS
// =============================================================================

type CreditBalance struct {
	CustomerID catalog.CustomerID
	Balance    decimal.Decimal
}

type RewardsAccount struct {
	CustomerID catalog.CustomerID
	TierID     rewards.TierID
	Points     int64
}
