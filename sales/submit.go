package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
)

// =============================================================================
// REQUEST / RECEIPT
// =============================================================================

type SubmitRequest struct {
	CustomerID catalog.CustomerID
	ProductID  catalog.ProductID
	Type       ledger.TransactionType
	Quantity   int64
}

// Receipt describes a committed sale.
type Receipt struct {
	TransactionID  ledger.TransactionID
	CustomerID     catalog.CustomerID
	ProductID      catalog.ProductID
	Type           ledger.TransactionType
	Quantity       int64
	UnitPrice      decimal.Decimal
	Amount         decimal.Decimal
	RemainingStock int64
	CreditBalance  decimal.NullDecimal // Valid only for credit sales
	CreatedAt      time.Time
}

// State is a point in the lifecycle of one submission.
type State string

const (
	StateReceived      State = "received"
	StateValidated     State = "validated"
	StatePriceResolved State = "price_resolved"
	StateStockChecked  State = "stock_checked"
	StateCommitted     State = "committed"
	StateRejected      State = "rejected"
	StateRolledBack    State = "rolled_back"
)

// SubmitError reports where a submission stopped. It unwraps to the ledger
// error, so errors.Is(err, ledger.ErrInsufficientStock) keeps working.
type SubmitError struct {
	State State // StateRejected or StateRolledBack
	Err   error
}

func (e *SubmitError) Error() string { return e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// StateOf returns the terminal state carried by err, or StateCommitted for nil.
func StateOf(err error) State {
	if err == nil {
		return StateCommitted
	}
	var se *SubmitError
	if errors.As(err, &se) {
		return se.State
	}
	return ""
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit records one sale. On success the transaction record, the stock
// decrement and (for credit sales) the credit accrual are all committed;
// on any error none of them are.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "sales.Submit", trace.WithAttributes(
		attribute.String("customer.id", string(req.CustomerID)),
		attribute.String("product.id", string(req.ProductID)),
		attribute.String("transaction.type", string(req.Type)),
		attribute.Int64("quantity", req.Quantity),
	))
	defer span.End()

	receipt, state, err := s.submit(ctx, req)

	outcome := string(StateCommitted)
	if err != nil {
		outcome = ledger.Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(attribute.String("transaction.id", string(receipt.TransactionID)))
	}
	span.SetAttributes(attribute.String("state", string(state)))
	s.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("type", string(req.Type)),
	))
	s.logOutcome(ctx, req, receipt, state, err)

	if err != nil {
		return Receipt{}, &SubmitError{State: state, Err: err}
	}
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (Receipt, State, error) {
	// Validated
	if err := validate(req); err != nil {
		return Receipt{}, StateRejected, err
	}

	// PriceResolved
	price, err := s.inventory.UnitPrice(ctx, req.ProductID)
	if err != nil {
		return Receipt{}, StateRejected, err
	}
	if err := ledger.RequireCustomer(ctx, s.store, req.CustomerID); err != nil {
		return Receipt{}, StateRejected, err
	}
	amount := ledger.Amount(price, req.Quantity)

	// StockChecked (advisory)
	ok, err := s.inventory.CheckAvailability(ctx, req.ProductID, req.Quantity)
	if err != nil {
		return Receipt{}, StateRejected, err
	}
	if !ok {
		available, err := s.inventory.Stock(ctx, req.ProductID)
		if err != nil {
			return Receipt{}, StateRejected, err
		}
		return Receipt{}, StateRejected, &ledger.InsufficientStockError{
			ProductID: req.ProductID,
			Available: available,
			Requested: req.Quantity,
		}
	}

	// Last point where the caller may walk away.
	if err := ctx.Err(); err != nil {
		return Receipt{}, StateRejected, fmt.Errorf("submit abandoned before commit: %w", err)
	}

	receipt := Receipt{
		TransactionID: ledger.TransactionID(s.newID()),
		CustomerID:    req.CustomerID,
		ProductID:     req.ProductID,
		Type:          req.Type,
		Quantity:      req.Quantity,
		UnitPrice:     price,
		Amount:        amount,
		CreatedAt:     s.now(),
	}

	err = s.inUnit(ctx, "sales.unit", func(ctx context.Context, uow ledger.UnitOfWork) error {
		// The row lock is taken before the record insert references the
		// product, so concurrent sales queue on the lock instead of
		// deadlocking on the foreign key.
		remaining, err := s.inventory.Decrement(ctx, uow, req.ProductID, req.Quantity)
		if err != nil {
			return err
		}
		receipt.RemainingStock = remaining

		if err := uow.InsertTransaction(ctx, ledger.Transaction{
			ID:         receipt.TransactionID,
			CustomerID: req.CustomerID,
			ProductID:  req.ProductID,
			Type:       req.Type,
			Quantity:   req.Quantity,
			Amount:     amount,
			CreatedAt:  receipt.CreatedAt,
		}); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		if req.Type.AccruesCredit() {
			balance, err := s.credit.Accrue(ctx, uow, req.CustomerID, amount)
			if err != nil {
				return err
			}
			receipt.CreditBalance = decimal.NewNullDecimal(balance)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, StateRolledBack, err
	}
	return receipt, StateCommitted, nil
}

func validate(req SubmitRequest) error {
	if strings.TrimSpace(string(req.CustomerID)) == "" {
		return &ledger.InvalidInputError{Field: "customer_id", Reason: "required"}
	}
	if strings.TrimSpace(string(req.ProductID)) == "" {
		return &ledger.InvalidInputError{Field: "product_id", Reason: "required"}
	}
	if !req.Type.Valid() {
		return &ledger.InvalidInputError{Field: "type", Reason: fmt.Sprintf("unrecognized transaction type %q", req.Type)}
	}
	if req.Quantity <= 0 {
		return &ledger.InvalidInputError{Field: "quantity", Reason: "must be a positive integer"}
	}
	return nil
}

// inUnit runs fn in one store unit detached from the caller's cancellation
// and bounded by the unit timeout.
func (s *Service) inUnit(ctx context.Context, name string, fn func(context.Context, ledger.UnitOfWork) error) error {
	unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.unitTimeout)
	defer cancel()

	unitCtx, span := s.tracer.Start(unitCtx, name)
	defer span.End()

	start := time.Now()
	err := s.store.WithTx(unitCtx, func(uow ledger.UnitOfWork) error {
		return fn(unitCtx, uow)
	})
	s.unitDuration.Record(unitCtx, float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(attribute.String("unit", name), attribute.Bool("committed", err == nil)))

	if err != nil && errors.Is(err, context.DeadlineExceeded) && !ledger.IsRetryable(err) {
		err = fmt.Errorf("%w: unit exceeded %s: %v", ledger.ErrStoreUnavailable, s.unitTimeout, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ledger.Kind(err))
	}
	return err
}

func (s *Service) logOutcome(ctx context.Context, req SubmitRequest, r Receipt, state State, err error) {
	attrs := []slog.Attr{
		slog.String("customer_id", string(req.CustomerID)),
		slog.String("product_id", string(req.ProductID)),
		slog.String("type", string(req.Type)),
		slog.Int64("quantity", req.Quantity),
		slog.String("state", string(state)),
	}
	switch {
	case err == nil:
		attrs = append(attrs,
			slog.String("transaction_id", string(r.TransactionID)),
			slog.String("amount", r.Amount.StringFixed(ledger.MoneyScale)))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "sale committed", attrs...)
	case ledger.IsClientError(err):
		attrs = append(attrs, slog.String("kind", ledger.Kind(err)), slog.String("error", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelWarn, "sale rejected", attrs...)
	default:
		attrs = append(attrs, slog.String("kind", ledger.Kind(err)), slog.String("error", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelError, "sale failed", attrs...)
	}
}
