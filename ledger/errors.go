/*
errors.go - Error kinds for the ledgers and the orchestrator

ERROR CATEGORIES:
  1. Terminal (client) errors: InvalidInput, UnknownProduct,
     UnknownCustomer, InsufficientStock. Surfaced, never retried, and no
     partial effect remains.
  2. Transient errors: StoreUnavailable, ConflictRetryable. Surfaced too;
     the caller may re-submit the whole request (never a single step).

USAGE:
  if errors.Is(err, ledger.ErrInsufficientStock) { ... }

  var stockErr *ledger.InsufficientStockError
  if errors.As(err, &stockErr) {
      fmt.Println(stockErr.Available)
  }

Stores translate driver errors into ErrStoreUnavailable and
ErrConflictRetryable; see store/sqlite and store/postgres.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/warp/retail-ledger/catalog"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for a malformed quantity, type, amount or id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownProduct is returned when the product does not exist.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrUnknownCustomer is returned when the customer does not exist.
	ErrUnknownCustomer = errors.New("unknown customer")

	// ErrInsufficientStock is returned when a sale exceeds the stock on hand.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStoreUnavailable is returned when the store cannot be reached or a
	// unit of work ran past its deadline.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflictRetryable is returned when the store aborted a unit of work
	// because of concurrent access (serialization failure, deadlock, busy).
	ErrConflictRetryable = errors.New("conflict, retry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID catalog.ProductID
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidInputError names the rejected field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

type UnknownProductError struct {
	ProductID catalog.ProductID
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %s", e.ProductID)
}

func (e *UnknownProductError) Unwrap() error {
	return ErrUnknownProduct
}

type UnknownCustomerError struct {
	CustomerID catalog.CustomerID
}

func (e *UnknownCustomerError) Error() string {
	return fmt.Sprintf("unknown customer %s", e.CustomerID)
}

func (e *UnknownCustomerError) Unwrap() error {
	return ErrUnknownCustomer
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind names, as reported to callers.
const (
	KindInvalidInput      = "invalid_input"
	KindUnknownProduct    = "unknown_product"
	KindUnknownCustomer   = "unknown_customer"
	KindInsufficientStock = "insufficient_stock"
	KindStoreUnavailable  = "store_unavailable"
	KindConflictRetryable = "conflict_retryable"
	KindInternal          = "internal"
)

// Kind classifies err into one of the Kind* names.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnknownProduct):
		return KindUnknownProduct
	case errors.Is(err, ErrUnknownCustomer):
		return KindUnknownCustomer
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrConflictRetryable):
		return KindConflictRetryable
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	}
	return KindInternal
}

// IsRetryable returns true if re-submitting the whole request might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflictRetryable) || errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is terminal for the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrUnknownCustomer) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrUnknownCustomer) ||
		errors.Is(err, catalog.ErrNotFound)
}
