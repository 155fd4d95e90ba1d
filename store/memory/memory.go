// Package memory provides an in-memory implementation of catalog.Store and
// ledger.Store, for tests and demos.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
)

var (
	_ catalog.Store = (*Store)(nil)
	_ ledger.Store  = (*Store)(nil)
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps every relation in maps behind one RWMutex. A unit of work
// holds the write lock for its whole lifetime, which gives the same
// all-or-nothing, one-writer-at-a-time behaviour as an immediate SQLite
// transaction.
type Store struct {
	mu sync.RWMutex
	state
}

type state struct {
	customers    map[catalog.CustomerID]catalog.Customer
	vendors      map[catalog.VendorID]catalog.Vendor
	products     map[catalog.ProductID]catalog.Product
	coupons      map[catalog.CouponID]catalog.Coupon
	credit       map[catalog.CustomerID]decimal.Decimal
	rewards      map[catalog.CustomerID]ledger.RewardsAccount
	transactions []ledger.Transaction
}

func New() *Store {
	return &Store{state: newState()}
}

func newState() state {
	return state{
		customers: make(map[catalog.CustomerID]catalog.Customer),
		vendors:   make(map[catalog.VendorID]catalog.Vendor),
		products:  make(map[catalog.ProductID]catalog.Product),
		coupons:   make(map[catalog.CouponID]catalog.Coupon),
		credit:    make(map[catalog.CustomerID]decimal.Decimal),
		rewards:   make(map[catalog.CustomerID]ledger.RewardsAccount),
	}
}

func now() time.Time { return time.Now().UTC() }

// =============================================================================
// LEDGER READS (ledger.Reader)
// =============================================================================

func (s *Store) GetProduct(_ context.Context, id catalog.ProductID) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProduct(id)
}

func (s *Store) GetCustomer(_ context.Context, id catalog.CustomerID) (catalog.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCustomer(id)
}

func (s *Store) GetCreditBalance(_ context.Context, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCredit(id)
}

func (s *Store) GetRewardsAccount(_ context.Context, id catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.rewards[id]
	return acct, ok, nil
}

func (s *Store) ListTransactions(_ context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.EffectiveLimit()
	var result []ledger.Transaction
	for i := len(s.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		tx := s.transactions[i]
		if filter.CustomerID != "" && tx.CustomerID != filter.CustomerID {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

func (st *state) getProduct(id catalog.ProductID) (catalog.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (st *state) getCustomer(id catalog.CustomerID) (catalog.Customer, error) {
	c, ok := st.customers[id]
	if !ok {
		return catalog.Customer{}, catalog.ErrNotFound
	}
	return c, nil
}

func (st *state) getCredit(id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	b, ok := st.credit[id]
	if !ok {
		return ledger.CreditBalance{}, false, nil
	}
	return ledger.CreditBalance{CustomerID: id, Balance: b}, true, nil
}

// =============================================================================
// UNIT OF WORK (ledger.Store.WithTx)
// =============================================================================

// WithTx runs fn under the write lock. On error or panic the state is
// restored from a snapshot taken before fn ran.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.UnitOfWork) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()

	return fn(&unit{st: &s.state})
}

func (st *state) clone() state {
	c := newState()
	for k, v := range st.customers {
		c.customers[k] = v
	}
	for k, v := range st.vendors {
		c.vendors[k] = v
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.coupons {
		c.coupons[k] = v
	}
	for k, v := range st.credit {
		c.credit[k] = v
	}
	for k, v := range st.rewards {
		c.rewards[k] = v
	}
	c.transactions = append([]ledger.Transaction(nil), st.transactions...)
	return c
}

// unit is the view handed to fn. The parent lock is already held.
type unit struct {
	st *state
}

func (u *unit) GetProduct(_ context.Context, id catalog.ProductID) (catalog.Product, error) {
	return u.st.getProduct(id)
}

func (u *unit) GetCustomer(_ context.Context, id catalog.CustomerID) (catalog.Customer, error) {
	return u.st.getCustomer(id)
}

func (u *unit) GetCreditBalance(_ context.Context, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	return u.st.getCredit(id)
}

func (u *unit) GetRewardsAccount(_ context.Context, id catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	acct, ok := u.st.rewards[id]
	return acct, ok, nil
}

func (u *unit) LockProduct(_ context.Context, id catalog.ProductID) (catalog.Product, error) {
	return u.st.getProduct(id)
}

func (u *unit) SetProductQuantity(_ context.Context, id catalog.ProductID, quantity int64) error {
	p, err := u.st.getProduct(id)
	if err != nil {
		return err
	}
	if quantity < 0 {
		return errors.New("memory: product quantity must not be negative")
	}
	p.Quantity = quantity
	u.st.products[id] = p
	return nil
}

func (u *unit) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	if _, ok := u.st.customers[tx.CustomerID]; !ok {
		return fmt.Errorf("memory: transaction references missing customer %s", tx.CustomerID)
	}
	if _, ok := u.st.products[tx.ProductID]; !ok {
		return fmt.Errorf("memory: transaction references missing product %s", tx.ProductID)
	}
	for _, existing := range u.st.transactions {
		if existing.ID == tx.ID {
			return fmt.Errorf("memory: duplicate transaction id %s", tx.ID)
		}
	}
	u.st.transactions = append(u.st.transactions, tx)
	return nil
}

func (u *unit) AddCredit(_ context.Context, id catalog.CustomerID, delta decimal.Decimal) (decimal.Decimal, error) {
	balance := u.st.credit[id].Add(delta)
	u.st.credit[id] = balance
	return balance, nil
}

func (u *unit) AddRewardPoints(_ context.Context, id catalog.CustomerID, tier rewards.TierID, points int64) (int64, error) {
	acct, ok := u.st.rewards[id]
	if !ok {
		acct = ledger.RewardsAccount{CustomerID: id, TierID: tier}
	}
	acct.Points += points
	u.st.rewards[id] = acct
	return acct.Points, nil
}

// =============================================================================
// CATALOG (catalog.Store)
// =============================================================================

func (s *Store) CreateCustomer(_ context.Context, c catalog.Customer) (catalog.Customer, error) {
	if err := c.Validate(); err != nil {
		return catalog.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = catalog.CustomerID(catalog.NewID())
	}
	if _, ok := s.customers[c.ID]; ok {
		return catalog.Customer{}, catalog.ErrDuplicate
	}
	c.CreatedAt = now()
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]catalog.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c catalog.Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.customers[c.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	c.CreatedAt = existing.CreatedAt
	s.customers[c.ID] = c
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, id catalog.CustomerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return catalog.ErrNotFound
	}
	if _, ok := s.credit[id]; ok {
		return catalog.ErrInUse
	}
	if _, ok := s.rewards[id]; ok {
		return catalog.ErrInUse
	}
	for _, tx := range s.transactions {
		if tx.CustomerID == id {
			return catalog.ErrInUse
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) CreateVendor(_ context.Context, v catalog.Vendor) (catalog.Vendor, error) {
	if err := v.Validate(); err != nil {
		return catalog.Vendor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = catalog.VendorID(catalog.NewID())
	}
	if _, ok := s.vendors[v.ID]; ok {
		return catalog.Vendor{}, catalog.ErrDuplicate
	}
	v.CreatedAt = now()
	s.vendors[v.ID] = v
	return v, nil
}

func (s *Store) GetVendor(_ context.Context, id catalog.VendorID) (catalog.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[id]
	if !ok {
		return catalog.Vendor{}, catalog.ErrNotFound
	}
	return v, nil
}

func (s *Store) ListVendors(_ context.Context) ([]catalog.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateVendor(_ context.Context, v catalog.Vendor) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.vendors[v.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	v.CreatedAt = existing.CreatedAt
	s.vendors[v.ID] = v
	return nil
}

func (s *Store) DeleteVendor(_ context.Context, id catalog.VendorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, p := range s.products {
		if p.VendorID == id {
			return catalog.ErrInUse
		}
	}
	delete(s.vendors, id)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.VendorID != "" {
		if _, ok := s.vendors[p.VendorID]; !ok {
			return catalog.Product{}, &catalog.ValidationError{Field: "vendor_id", Reason: "unknown vendor"}
		}
	}
	if p.ID == "" {
		p.ID = catalog.ProductID(catalog.NewID())
	}
	if _, ok := s.products[p.ID]; ok {
		return catalog.Product{}, catalog.ErrDuplicate
	}
	p.CreatedAt = now()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateProduct rewrites name, vendor and price. Quantity is kept.
func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[p.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.VendorID != "" {
		if _, ok := s.vendors[p.VendorID]; !ok {
			return &catalog.ValidationError{Field: "vendor_id", Reason: "unknown vendor"}
		}
	}
	existing.Name = p.Name
	existing.VendorID = p.VendorID
	existing.Price = p.Price
	s.products[p.ID] = existing
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id catalog.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, tx := range s.transactions {
		if tx.ProductID == id {
			return catalog.ErrInUse
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateCoupon(_ context.Context, c catalog.Coupon) (catalog.Coupon, error) {
	if err := c.Validate(); err != nil {
		return catalog.Coupon{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = catalog.CouponID(catalog.NewID())
	}
	if _, ok := s.coupons[c.ID]; ok {
		return catalog.Coupon{}, catalog.ErrDuplicate
	}
	for _, existing := range s.coupons {
		if existing.Code == c.Code {
			return catalog.Coupon{}, catalog.ErrDuplicate
		}
	}
	c.CreatedAt = now()
	s.coupons[c.ID] = c
	return c, nil
}

func (s *Store) GetCoupon(_ context.Context, id catalog.CouponID) (catalog.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[id]
	if !ok {
		return catalog.Coupon{}, catalog.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]catalog.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateCoupon(_ context.Context, c catalog.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.coupons[c.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	for id, other := range s.coupons {
		if id != c.ID && other.Code == c.Code {
			return catalog.ErrDuplicate
		}
	}
	c.CreatedAt = existing.CreatedAt
	s.coupons[c.ID] = c
	return nil
}

func (s *Store) DeleteCoupon(_ context.Context, id catalog.CouponID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.coupons, id)
	return nil
}
