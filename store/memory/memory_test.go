package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	_, err := s.CreateCustomer(ctx, catalog.Customer{ID: "c1", FirstName: "Ada"})
	require.NoError(t, err)
	_, err = s.CreateVendor(ctx, catalog.Vendor{ID: "v1", Name: "Orchard"})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{ID: "p1", Name: "Apples", VendorID: "v1", Price: decimal.NewFromInt(5), Quantity: 3})
	require.NoError(t, err)
	return s
}

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: a unit that decrements stock, records a sale, then fails
	// WHEN: the unit returns an error
	// THEN: none of its writes are visible

	s := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(uow ledger.UnitOfWork) error {
		require.NoError(t, uow.SetProductQuantity(ctx, "p1", 1))
		require.NoError(t, uow.InsertTransaction(ctx, ledger.Transaction{
			ID: "t1", CustomerID: "c1", ProductID: "p1", Type: ledger.TxCash, Quantity: 2,
		}))
		_, err := uow.AddCredit(ctx, "c1", decimal.NewFromInt(10))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Quantity)

	txs, err := s.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, found, err := s.GetCreditBalance(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(uow ledger.UnitOfWork) error {
			_ = uow.SetProductQuantity(ctx, "p1", 0)
			panic("mid-unit")
		})
	})

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Quantity)
}

func TestWithTx_CancelledContext(t *testing.T) {
	s := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(ledger.UnitOfWork) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	assert.False(t, called)
}

func TestListTransactions_NewestFirstWithFilter(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	_, err := s.CreateCustomer(ctx, catalog.Customer{ID: "c2", FirstName: "Bob"})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithTx(ctx, func(uow ledger.UnitOfWork) error {
		for i, c := range []catalog.CustomerID{"c1", "c2", "c1"} {
			err := uow.InsertTransaction(ctx, ledger.Transaction{
				ID:         ledger.TransactionID(catalog.NewID()),
				CustomerID: c,
				ProductID:  "p1",
				Type:       ledger.TxCash,
				Quantity:   int64(i + 1),
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := s.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].Quantity)

	mine, err := s.ListTransactions(ctx, ledger.TransactionFilter{CustomerID: "c1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(3), mine[0].Quantity)
}

func TestInsertTransaction_RejectsDanglingReferences(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(uow ledger.UnitOfWork) error {
		return uow.InsertTransaction(ctx, ledger.Transaction{ID: "t1", CustomerID: "ghost", ProductID: "p1"})
	})
	assert.Error(t, err)
}

func TestCatalog_Lifecycle(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	// Generated IDs.
	c, err := s.CreateCustomer(ctx, catalog.Customer{FirstName: "Grace"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	// Duplicates.
	_, err = s.CreateProduct(ctx, catalog.Product{ID: "p1", Name: "Dup", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, catalog.ErrDuplicate)

	// Unknown vendor.
	_, err = s.CreateProduct(ctx, catalog.Product{Name: "Pears", VendorID: "nope", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, catalog.ErrInvalidRecord)

	// Update keeps quantity.
	require.NoError(t, s.UpdateProduct(ctx, catalog.Product{ID: "p1", Name: "Green apples", VendorID: "v1", Price: decimal.NewFromInt(6), Quantity: 999}))
	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Green apples", p.Name)
	assert.Equal(t, int64(3), p.Quantity)

	// Referenced records cannot be deleted.
	assert.ErrorIs(t, s.DeleteVendor(ctx, "v1"), catalog.ErrInUse)
	require.NoError(t, s.DeleteProduct(ctx, "p1"))
	require.NoError(t, s.DeleteVendor(ctx, "v1"))
	assert.ErrorIs(t, s.DeleteVendor(ctx, "v1"), catalog.ErrNotFound)
}

func TestCoupons_UniqueCode(t *testing.T) {
	s := New()
	ctx := context.Background()
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.CreateCoupon(ctx, catalog.Coupon{Code: "SPRING", Discount: decimal.NewFromInt(10), ExpiresOn: exp})
	require.NoError(t, err)

	_, err = s.CreateCoupon(ctx, catalog.Coupon{Code: "SPRING", Discount: decimal.NewFromInt(5), ExpiresOn: exp})
	assert.ErrorIs(t, err, catalog.ErrDuplicate)

	second, err := s.CreateCoupon(ctx, catalog.Coupon{Code: "SUMMER", Discount: decimal.NewFromInt(5), ExpiresOn: exp})
	require.NoError(t, err)

	second.Code = first.Code
	assert.ErrorIs(t, s.UpdateCoupon(ctx, second), catalog.ErrDuplicate)

	list, err := s.ListCoupons(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
