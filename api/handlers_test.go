/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Sale submission, receipts and the post-sale reward accrual
- Error kind to HTTP status mapping
- Ledger reads and catalog CRUD
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
	"github.com/warp/retail-ledger/sales"
	"github.com/warp/retail-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	store  *memory.Store
	router http.Handler
}

// newTestServer seeds customer C1 and product P1 (price 5, stock 3).
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := seedStore(t)
	return serve(store, store)
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	_, err := store.CreateCustomer(ctx, catalog.Customer{ID: "C1", FirstName: "Ada"})
	require.NoError(t, err)
	_, err = store.CreateProduct(ctx, catalog.Product{ID: "P1", Name: "Lamp", Price: decimal.NewFromInt(5), Quantity: 3})
	require.NoError(t, err)
	return store
}

// serve runs the router over ls for the sales side and over the memory
// store for the catalog side.
func serve(mem *memory.Store, ls ledger.Store) *testServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := sales.NewService(ls, sales.WithLogger(logger))
	h := NewHandler(svc, mem, logger)
	return &testServer{store: mem, router: NewRouter(h, []string{"*"})}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitTransaction_CreditReceipt(t *testing.T) {
	// GIVEN: stock 3 at price 5
	ts := newTestServer(t)

	// WHEN: a credit sale of 2 is submitted
	rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
		CustomerID: "C1", ProductID: "P1", Type: "credit", Quantity: 2,
	})

	// THEN: the receipt reports amount, remaining stock and credit balance
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[ReceiptDTO](t, rec)
	assert.NotEmpty(t, r.TransactionID)
	assert.True(t, r.Amount.Equal(dec("10")), "amount %s", r.Amount)
	assert.True(t, r.UnitPrice.Equal(dec("5")))
	assert.Equal(t, int64(1), r.RemainingStock)
	require.NotNil(t, r.CreditBalance)
	assert.True(t, r.CreditBalance.Equal(dec("10")))
	assert.Empty(t, r.RewardsError)
}

func TestSubmitTransaction_CashHasNoCreditBalance(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
		CustomerID: "C1", ProductID: "P1", Type: "CASH", Quantity: 1,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "credit_balance")
	assert.Equal(t, "cash", decode[ReceiptDTO](t, rec).Type)
}

func TestSubmitTransaction_WithRewardTier(t *testing.T) {
	// GIVEN: a silver customer buying for 10
	ts := newTestServer(t)

	// WHEN
	rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
		CustomerID: "C1", ProductID: "P1", Type: "cash", Quantity: 2, RewardTierID: "silver",
	})

	// THEN: 2 points per unit spent were added after the sale
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[ReceiptDTO](t, rec)
	assert.Equal(t, int64(20), r.RewardPoints)
	assert.Equal(t, int64(20), r.RewardPointsTotal)

	acct := decode[RewardsDTO](t, ts.do(t, http.MethodGet, "/api/customers/C1/rewards", nil))
	assert.True(t, acct.Found)
	assert.Equal(t, "silver", acct.TierID)
	assert.Equal(t, int64(20), acct.Points)
}

// rewardsDownStore fails every rewards write while sales commit normally.
type rewardsDownStore struct {
	*memory.Store
}

type rewardsDownUnit struct {
	ledger.UnitOfWork
}

func (rewardsDownUnit) AddRewardPoints(context.Context, catalog.CustomerID, rewards.TierID, int64) (int64, error) {
	return 0, fmt.Errorf("%w: disk full", ledger.ErrStoreUnavailable)
}

func (s *rewardsDownStore) WithTx(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
	return s.Store.WithTx(ctx, func(uow ledger.UnitOfWork) error {
		return fn(rewardsDownUnit{UnitOfWork: uow})
	})
}

func TestSubmitTransaction_RewardsFailureKeepsSale(t *testing.T) {
	// GIVEN: a store whose rewards unit fails
	mem := seedStore(t)
	ts := serve(mem, &rewardsDownStore{Store: mem})

	// WHEN: a silver credit sale of 2
	rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
		CustomerID: "C1", ProductID: "P1", Type: "credit", Quantity: 2, RewardTierID: "silver",
	})

	// THEN: the sale is still created and the receipt reports the rewards failure
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[ReceiptDTO](t, rec)
	assert.Contains(t, r.RewardsError, "disk full")
	assert.Zero(t, r.RewardPoints)
	assert.Zero(t, r.RewardPointsTotal)
	assert.Equal(t, int64(1), r.RemainingStock)

	stock := decode[StockDTO](t, ts.do(t, http.MethodGet, "/api/products/P1/stock", nil))
	assert.Equal(t, int64(1), stock.Quantity)

	credit := decode[CreditBalanceDTO](t, ts.do(t, http.MethodGet, "/api/customers/C1/credit", nil))
	assert.True(t, credit.Balance.Equal(dec("10")))

	txs := decode[[]TransactionDTO](t, ts.do(t, http.MethodGet, "/api/transactions?customer_id=C1", nil))
	require.Len(t, txs, 1)
	assert.Equal(t, r.TransactionID, txs[0].ID)

	acct := decode[RewardsDTO](t, ts.do(t, http.MethodGet, "/api/customers/C1/rewards", nil))
	assert.False(t, acct.Found)
}

func TestSubmitTransaction_UnknownTierRejectedBeforeSale(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
		CustomerID: "C1", ProductID: "P1", Type: "cash", Quantity: 1, RewardTierID: "platinum",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	stock := decode[StockDTO](t, ts.do(t, http.MethodGet, "/api/products/P1/stock", nil))
	assert.Equal(t, int64(3), stock.Quantity, "no sale was made")
}

func TestSubmitTransaction_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		status    int
		kind      string
		state     string
		retryable bool
	}{
		{
			name:   "zero quantity",
			body:   SubmitTransactionRequest{CustomerID: "C1", ProductID: "P1", Type: "cash", Quantity: 0},
			status: http.StatusBadRequest, kind: ledger.KindInvalidInput, state: "rejected",
		},
		{
			name:   "unrecognized type",
			body:   SubmitTransactionRequest{CustomerID: "C1", ProductID: "P1", Type: "barter", Quantity: 1},
			status: http.StatusBadRequest, kind: ledger.KindInvalidInput,
		},
		{
			name:   "unknown product",
			body:   SubmitTransactionRequest{CustomerID: "C1", ProductID: "P9", Type: "cash", Quantity: 1},
			status: http.StatusNotFound, kind: ledger.KindUnknownProduct, state: "rejected",
		},
		{
			name:   "unknown customer",
			body:   SubmitTransactionRequest{CustomerID: "C9", ProductID: "P1", Type: "credit", Quantity: 1},
			status: http.StatusNotFound, kind: ledger.KindUnknownCustomer, state: "rejected",
		},
		{
			name:   "insufficient stock",
			body:   SubmitTransactionRequest{CustomerID: "C1", ProductID: "P1", Type: "cash", Quantity: 4},
			status: http.StatusConflict, kind: ledger.KindInsufficientStock, state: "rejected",
		},
		{
			name:   "malformed body",
			body:   `{"quantity": "two"`,
			status: http.StatusBadRequest, kind: ledger.KindInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(t, http.MethodPost, "/api/transactions", tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, tt.state, resp.State)
			assert.Equal(t, tt.retryable, resp.Retryable)

			txs := decode[[]TransactionDTO](t, ts.do(t, http.MethodGet, "/api/transactions", nil))
			assert.Empty(t, txs, "nothing recorded")
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("%w: busy", ledger.ErrConflictRetryable), http.StatusConflict, ledger.KindConflictRetryable},
		{fmt.Errorf("%w: down", ledger.ErrStoreUnavailable), http.StatusServiceUnavailable, ledger.KindStoreUnavailable},
		{&sales.SubmitError{State: sales.StateRolledBack, Err: ledger.ErrConflictRetryable}, http.StatusConflict, ledger.KindConflictRetryable},
		{catalog.ErrDuplicate, http.StatusConflict, KindDuplicate},
		{catalog.ErrInUse, http.StatusConflict, KindInUse},
		{fmt.Errorf("get: %w", catalog.ErrNotFound), http.StatusNotFound, KindNotFound},
		{&catalog.ValidationError{Field: "name", Reason: "required"}, http.StatusBadRequest, KindInvalidRecord},
		{context.Canceled, http.StatusRequestTimeout, KindCanceled},
		{errors.New("boom"), http.StatusInternalServerError, ledger.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			status, kind := classifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestWriteError_RetryableFlag(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &sales.SubmitError{State: sales.StateRolledBack, Err: fmt.Errorf("%w: x", ledger.ErrStoreUnavailable)})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.True(t, resp.Retryable)
	assert.Equal(t, "rolled_back", resp.State)
}

// =============================================================================
// LEDGER READS
// =============================================================================

func TestLedgerReads(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
			CustomerID: "C1", ProductID: "P1", Type: "credit", Quantity: 1,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	credit := decode[CreditBalanceDTO](t, ts.do(t, http.MethodGet, "/api/customers/C1/credit", nil))
	assert.True(t, credit.Balance.Equal(dec("10")))

	stock := decode[StockDTO](t, ts.do(t, http.MethodGet, "/api/products/P1/stock", nil))
	assert.Equal(t, int64(1), stock.Quantity)

	txs := decode[[]TransactionDTO](t, ts.do(t, http.MethodGet, "/api/transactions?customer_id=C1&limit=1", nil))
	assert.Len(t, txs, 1)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/customers/C9/credit", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/products/P9/stock", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/transactions?limit=ten", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/transactions?limit=-1", nil).Code)
}

func TestAddRewardPoints_KeepsExistingTier(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/customers/C1/rewards", AddRewardPointsRequest{TierID: "platinum", Points: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown tier cannot open an account")

	rec = ts.do(t, http.MethodPost, "/api/customers/C1/rewards", AddRewardPointsRequest{TierID: "gold", Points: 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/customers/C1/rewards", AddRewardPointsRequest{TierID: "bronze", Points: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decode[RewardsDTO](t, rec)
	assert.Equal(t, int64(15), acct.Points)
	assert.Equal(t, "gold", acct.TierID)

	rec = ts.do(t, http.MethodPost, "/api/customers/C1/rewards", AddRewardPointsRequest{Points: 5})
	require.Equal(t, http.StatusOK, rec.Code, "tier may be omitted once the account exists")
	assert.Equal(t, int64(20), decode[RewardsDTO](t, rec).Points)

	rec = ts.do(t, http.MethodPost, "/api/customers/C1/rewards", AddRewardPointsRequest{TierID: "gold", Points: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/customers/C9/rewards", AddRewardPointsRequest{TierID: "gold", Points: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestCatalogCRUD(t *testing.T) {
	ts := newTestServer(t)

	// Vendors and products
	rec := ts.do(t, http.MethodPost, "/api/vendors", VendorDTO{ID: "V1", Name: "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/products", ProductDTO{ID: "P2", Name: "Desk", VendorID: "V1", Price: dec("120.50"), Quantity: 4})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/products", ProductDTO{ID: "P2", Name: "Desk", Price: dec("1")})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, KindDuplicate, decode[ErrorResponse](t, rec).Kind)

	// Update changes the price but never the stock
	rec = ts.do(t, http.MethodPut, "/api/products/P2", ProductDTO{Name: "Desk XL", VendorID: "V1", Price: dec("130"), Quantity: 99})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[ProductDTO](t, rec)
	assert.Equal(t, "Desk XL", p.Name)
	assert.Equal(t, int64(4), p.Quantity)

	// Vendor referenced by a product
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodDelete, "/api/vendors/V1", nil).Code)

	// Customers
	rec = ts.do(t, http.MethodPost, "/api/customers", CustomerDTO{FirstName: "Grace", LastName: "Hopper"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[CustomerDTO](t, rec)
	assert.NotEmpty(t, created.ID, "id assigned")

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/customers", CustomerDTO{}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/customers/nobody", nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/customers/"+created.ID, nil).Code)

	customers := decode[[]CustomerDTO](t, ts.do(t, http.MethodGet, "/api/customers", nil))
	assert.Len(t, customers, 1)
}

func TestDeleteCustomerWithSales_InUse(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/transactions", SubmitTransactionRequest{
		CustomerID: "C1", ProductID: "P1", Type: "cash", Quantity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/customers/C1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, KindInUse, decode[ErrorResponse](t, rec).Kind)
}

func TestCoupons(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/coupons", CouponDTO{ID: "K1", Code: "SPRING10", Discount: dec("10"), ExpirationDate: "2030-04-30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2030-04-30", decode[CouponDTO](t, rec).ExpirationDate)

	rec = ts.do(t, http.MethodPost, "/api/coupons", CouponDTO{Code: "BAD", Discount: dec("10"), ExpirationDate: "30/04/2030"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/coupons", CouponDTO{Code: "HUGE", Discount: dec("150"), ExpirationDate: "2030-04-30"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/coupons/K1", CouponDTO{Code: "SPRING15", Discount: dec("15"), ExpirationDate: "2030-05-31"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[CouponDTO](t, rec).Discount.Equal(dec("15")))

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/coupons/K1", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/coupons/K1", nil).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthDTO](t, rec).Status)
}
