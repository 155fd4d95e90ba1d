/*
store.go - Persistence interfaces for the ledgers

PURPOSE:
  Defines the boundary between ledger logic and the relational store.
  The store is the ONLY synchronization primitive: ledgers hold no locks
  of their own.

KEY INTERFACES:
  Reader:     Point reads, usable inside or outside a unit of work
  UnitOfWork: The view handed to fn by WithTx; all writes go through it
  Store:      Reader + WithTx + the append-only transaction listing

ATOMIC UNITS:
  WithTx(ctx, fn) runs fn against one database transaction on one pooled
  connection. fn returning nil commits; fn returning an error (or
  panicking) rolls back everything fn did. There is no partial commit.

LOCKING CONTRACT:
  LockProduct re-reads the product row under a write lock held until the
  unit ends (SELECT ... FOR UPDATE on Postgres, an immediate transaction on
  SQLite). AddCredit and AddRewardPoints are single-statement upserts, so
  concurrent accruals for one customer serialize on the row and never lose
  an increment.

IMPLEMENTATIONS:
  - store/sqlite:   SQLite via database/sql
  - store/postgres: PostgreSQL via pgxpool
  - store/memory:   in-memory, for tests and demos
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/rewards"
)

// Reader reads ledger-relevant rows. Not-found catalog rows return
// catalog.ErrNotFound; absent balance rows return found == false.
type Reader interface {
	GetProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error)
	GetCustomer(ctx context.Context, id catalog.CustomerID) (catalog.Customer, error)
	GetCreditBalance(ctx context.Context, id catalog.CustomerID) (balance CreditBalance, found bool, err error)
	GetRewardsAccount(ctx context.Context, id catalog.CustomerID) (account RewardsAccount, found bool, err error)
}

// UnitOfWork is the transactional view passed to Store.WithTx.
type UnitOfWork interface {
	Reader

	// LockProduct reads the product and holds its row lock until the unit ends.
	LockProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error)

	// SetProductQuantity writes the stock of a product locked in this unit.
	SetProductQuantity(ctx context.Context, id catalog.ProductID, quantity int64) error

	// InsertTransaction appends a sale record. This is the ONLY write to
	// the transactions relation.
	InsertTransaction(ctx context.Context, tx Transaction) error

	// AddCredit creates the balance row with delta, or adds delta to it.
	// Returns the resulting balance.
	AddCredit(ctx context.Context, id catalog.CustomerID, delta decimal.Decimal) (decimal.Decimal, error)

	// AddRewardPoints creates the rewards row with tier and points, or adds
	// points to it leaving the tier unchanged. Returns the resulting total.
	AddRewardPoints(ctx context.Context, id catalog.CustomerID, tier rewards.TierID, points int64) (int64, error)
}

// Store is the ledger persistence root.
type Store interface {
	Reader

	// ListTransactions returns sale records, newest first. Read-only.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// WithTx executes fn within one atomic unit of work.
	WithTx(ctx context.Context, fn func(UnitOfWork) error) error
}
