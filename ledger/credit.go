package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
)

// Credit owns the outstanding credit balance of each customer. The balance
// row is created on the first accrual and only ever grows by addition.
type Credit struct {
	store Reader
}

func NewCredit(store Reader) *Credit {
	return &Credit{store: store}
}

// Balance returns the outstanding balance; zero when the customer has never
// bought on credit.
func (l *Credit) Balance(ctx context.Context, customerID catalog.CustomerID) (decimal.Decimal, error) {
	if _, err := l.store.GetCustomer(ctx, customerID); err != nil {
		return decimal.Zero, customerError(customerID, err)
	}
	b, found, err := l.store.GetCreditBalance(ctx, customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read credit of %s: %w", customerID, err)
	}
	if !found {
		return decimal.Zero, nil
	}
	return b.Balance, nil
}

// Accrue adds amount to the customer's balance inside uow and returns the
// new balance.
func (l *Credit) Accrue(ctx context.Context, uow UnitOfWork, customerID catalog.CustomerID, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, &InvalidInputError{Field: "amount", Reason: "must not be negative"}
	}
	if _, err := uow.GetCustomer(ctx, customerID); err != nil {
		return decimal.Zero, customerError(customerID, err)
	}

	balance, err := uow.AddCredit(ctx, customerID, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("accrue credit of %s: %w", customerID, err)
	}
	return balance, nil
}

// RequireCustomer returns an *UnknownCustomerError unless the customer exists.
func RequireCustomer(ctx context.Context, r Reader, customerID catalog.CustomerID) error {
	if _, err := r.GetCustomer(ctx, customerID); err != nil {
		return customerError(customerID, err)
	}
	return nil
}

func customerError(id catalog.CustomerID, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return &UnknownCustomerError{CustomerID: id}
	}
	return fmt.Errorf("read customer %s: %w", id, err)
}
