/*
inventory.go - Inventory Ledger

PURPOSE:
  Owns the stock level of every product. Nothing else writes
  Product.Quantity after the product is created.

INVARIANT:
  Quantity never goes negative.

TWO CHECKS:
  CheckAvailability is advisory. It reads the committed stock with no lock
  so the orchestrator can reject an obviously impossible sale before it
  opens a unit of work.

  Decrement is authoritative. It re-reads the row under the unit's write
  lock and only then subtracts. Two sales racing for the last units both
  pass the advisory check, but only one of them finds enough stock here.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
)

type Inventory struct {
	store Reader
}

func NewInventory(store Reader) *Inventory {
	return &Inventory{store: store}
}

// Stock returns the quantity on hand.
func (l *Inventory) Stock(ctx context.Context, productID catalog.ProductID) (int64, error) {
	p, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		return 0, productError(productID, err)
	}
	return p.Quantity, nil
}

// UnitPrice resolves the current price of one unit.
func (l *Inventory) UnitPrice(ctx context.Context, productID catalog.ProductID) (decimal.Decimal, error) {
	p, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, productError(productID, err)
	}
	return p.Price, nil
}

// CheckAvailability reports whether quantity <= stock. Side-effect free.
func (l *Inventory) CheckAvailability(ctx context.Context, productID catalog.ProductID, quantity int64) (bool, error) {
	if quantity <= 0 {
		return false, &InvalidInputError{Field: "quantity", Reason: "must be a positive integer"}
	}
	stock, err := l.Stock(ctx, productID)
	if err != nil {
		return false, err
	}
	return quantity <= stock, nil
}

// Decrement re-checks the stock under the unit's lock and subtracts
// quantity. Returns the remaining stock.
func (l *Inventory) Decrement(ctx context.Context, uow UnitOfWork, productID catalog.ProductID, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, &InvalidInputError{Field: "quantity", Reason: "must be a positive integer"}
	}

	p, err := uow.LockProduct(ctx, productID)
	if err != nil {
		return 0, productError(productID, err)
	}

	if quantity > p.Quantity {
		return 0, &InsufficientStockError{
			ProductID: productID,
			Available: p.Quantity,
			Requested: quantity,
		}
	}

	remaining := p.Quantity - quantity
	if err := uow.SetProductQuantity(ctx, productID, remaining); err != nil {
		return 0, fmt.Errorf("decrement stock of %s: %w", productID, err)
	}
	return remaining, nil
}

func productError(id catalog.ProductID, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return &UnknownProductError{ProductID: id}
	}
	return fmt.Errorf("read product %s: %w", id, err)
}
