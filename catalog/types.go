/*
Package catalog holds the reference records of the store: customers,
vendors, products and coupons.

PURPOSE:
  These are plain single-row records. Creating a vendor or editing a
  coupon's discount has no consistency coupling with anything else, so the
  catalog is a thin create/read/update/delete layer over the relational
  store.

OWNERSHIP:
  Product.Quantity is created here (initial stock) but is NEVER changed by
  a catalog update. The inventory ledger owns every later mutation of it.
  See ledger/inventory.go.

SEE ALSO:
  - store.go: Store interface
  - ledger/: the ledgers that reference these records
*/
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type VendorID string
type ProductID string
type CouponID string

// NewID returns a fresh identifier for records created without one.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// RECORDS
// =============================================================================

type Customer struct {
	ID        CustomerID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
}

func (c Customer) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Vendor struct {
	ID        VendorID
	Name      string
	Phone     string
	Email     string
	Address   string
	CreatedAt time.Time
}

// Product is a sellable item. Price is per unit, in the store currency.
type Product struct {
	ID        ProductID
	Name      string
	VendorID  VendorID
	Price     decimal.Decimal
	Quantity  int64
	CreatedAt time.Time
}

// Coupon is a percentage discount code.
type Coupon struct {
	ID        CouponID
	Code      string
	Discount  decimal.Decimal // percent, 0..100
	ExpiresOn time.Time
	CreatedAt time.Time
}

// Expired reports whether the coupon is past its expiration day at t.
func (c Coupon) Expired(t time.Time) bool {
	y, m, d := c.ExpiresOn.Date()
	end := time.Date(y, m, d, 23, 59, 59, 0, t.Location())
	return t.After(end)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("catalog: record not found")

	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("catalog: duplicate record")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("catalog: invalid record")

	// ErrInUse is returned when deleting a record other rows still reference.
	ErrInUse = errors.New("catalog: record is referenced")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

// =============================================================================
// VALIDATION
// =============================================================================

var hundred = decimal.NewFromInt(100)

// PriceScale is the number of decimal places a unit price may carry. Sale
// amounts are price × quantity and stay exact at this scale.
const PriceScale = 2

func (c Customer) Validate() error {
	if strings.TrimSpace(c.FirstName) == "" {
		return &ValidationError{Field: "first_name", Reason: "required"}
	}
	return nil
}

func (v Vendor) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	return nil
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if !p.Price.Equal(p.Price.Truncate(PriceScale)) {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("at most %d decimal places", PriceScale)}
	}
	if p.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

func (c Coupon) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if c.Discount.IsNegative() || c.Discount.GreaterThan(hundred) {
		return &ValidationError{Field: "discount", Reason: "must be between 0 and 100"}
	}
	if c.ExpiresOn.IsZero() {
		return &ValidationError{Field: "expiration_date", Reason: "required"}
	}
	return nil
}
