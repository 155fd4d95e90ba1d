package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
	"github.com/warp/retail-ledger/sales"
)

// newTestStore connects to TEST_DATABASE_URL and empties every table.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := New(ctx, Config{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.pool.Exec(ctx,
		"TRUNCATE transactions, credit, rewards, products, vendors, customers, coupons CASCADE")
	require.NoError(t, err)
	return store
}

func seed(t *testing.T, s *Store, stock int64) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateCustomer(ctx, catalog.Customer{ID: "C1", FirstName: "Ada"})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{ID: "P1", Name: "Lamp", Price: decimal.NewFromInt(5), Quantity: stock})
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ledger.ErrConflictRetryable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ledger.ErrConflictRetryable},
		{"connection exception", &pgconn.PgError{Code: "08006"}, ledger.ErrStoreUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ledger.ErrStoreUnavailable},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ledger.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.True(t, ledger.IsRetryable(got))
		})
	}

	unique := &pgconn.PgError{Code: "23505"}
	assert.False(t, ledger.IsRetryable(classify(unique)))
	assert.ErrorIs(t, writeError(unique), catalog.ErrDuplicate)
	assert.Nil(t, classify(nil))
	plain := errors.New("syntax error")
	assert.Same(t, plain, classify(plain))
}

func TestScenario(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, 3)
	svc := sales.NewService(s)
	ctx := context.Background()

	r, err := svc.Submit(ctx, sales.SubmitRequest{CustomerID: "C1", ProductID: "P1", Type: ledger.TxCredit, Quantity: 2})
	require.NoError(t, err)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1), r.RemainingStock)

	_, err = svc.Submit(ctx, sales.SubmitRequest{CustomerID: "C1", ProductID: "P1", Type: ledger.TxCash, Quantity: 2})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	bal, err := svc.CreditBalance(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(10)))

	require.NoError(t, s.UpdateProduct(ctx, catalog.Product{ID: "P1", Name: "Lamp", Price: decimal.NewFromInt(6), Quantity: 50}))
	stock, err := svc.Stock(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stock, "catalog update never moves stock")
}

func TestConcurrentSubmits_NoOversell(t *testing.T) {
	const n = 5
	s := newTestStore(t)
	seed(t, s, n)
	svc := sales.NewService(s)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(ctx, sales.SubmitRequest{CustomerID: "C1", ProductID: "P1", Type: ledger.TxCash, Quantity: n})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)

	stock, err := svc.Stock(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stock)
}

func TestConcurrentAccruals_LoseNothing(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, 1000)
	svc := sales.NewService(s)
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, sales.SubmitRequest{CustomerID: "C1", ProductID: "P1", Type: ledger.TxCredit, Quantity: 1})
			assert.NoError(t, err)
			_, err = svc.AddRewardPoints(ctx, "C1", rewards.TierGold, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	bal, err := svc.CreditBalance(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(5*workers)), "got %s", bal)

	acct, found, err := svc.RewardsAccount(ctx, "C1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(3*workers), acct.Points)
}
