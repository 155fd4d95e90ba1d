package sales

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
)

// =============================================================================
// REWARDS
// =============================================================================

// AddRewardPoints accrues points in a unit of its own. Call it at most once
// per committed sale; two calls add twice.
func (s *Service) AddRewardPoints(ctx context.Context, customerID catalog.CustomerID, tier rewards.TierID, points int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "sales.AddRewardPoints", trace.WithAttributes(
		attribute.String("customer.id", string(customerID)),
		attribute.String("tier.id", string(tier)),
		attribute.Int64("points", points),
	))
	defer span.End()

	if err := requireID("customer_id", string(customerID)); err != nil {
		return 0, s.fail(ctx, span, "add reward points", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, s.fail(ctx, span, "add reward points", err)
	}

	var total int64
	err := s.inUnit(ctx, "rewards.unit", func(ctx context.Context, uow ledger.UnitOfWork) error {
		var err error
		total, err = s.rewards.AddPoints(ctx, uow, customerID, tier, points)
		return err
	})
	if err != nil {
		return 0, s.fail(ctx, span, "add reward points", err)
	}

	s.pointsAdded.Add(ctx, points, metric.WithAttributes(attribute.String("tier", string(tier))))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "reward points added",
		slog.String("customer_id", string(customerID)),
		slog.String("tier", string(tier)),
		slog.Int64("points", points),
		slog.Int64("total", total))
	return total, nil
}

// RewardsAccount returns the customer's account; found is false before the
// first accrual.
func (s *Service) RewardsAccount(ctx context.Context, customerID catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	if err := requireID("customer_id", string(customerID)); err != nil {
		return ledger.RewardsAccount{}, false, err
	}
	return s.rewards.Account(ctx, customerID)
}

// =============================================================================
// READS
// =============================================================================

// CreditBalance returns the committed credit balance, zero if none.
func (s *Service) CreditBalance(ctx context.Context, customerID catalog.CustomerID) (decimal.Decimal, error) {
	if err := requireID("customer_id", string(customerID)); err != nil {
		return decimal.Zero, err
	}
	return s.credit.Balance(ctx, customerID)
}

// Stock returns the committed quantity on hand.
func (s *Service) Stock(ctx context.Context, productID catalog.ProductID) (int64, error) {
	if err := requireID("product_id", string(productID)); err != nil {
		return 0, err
	}
	return s.inventory.Stock(ctx, productID)
}

// Transactions lists recorded sales, newest first.
func (s *Service) Transactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	if filter.Limit < 0 {
		return nil, &ledger.InvalidInputError{Field: "limit", Reason: "must not be negative"}
	}
	if filter.CustomerID != "" {
		if err := ledger.RequireCustomer(ctx, s.store, filter.CustomerID); err != nil {
			return nil, err
		}
	}
	return s.store.ListTransactions(ctx, filter)
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ledger.InvalidInputError{Field: field, Reason: "required"}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, ledger.Kind(err))
	level := slog.LevelError
	if ledger.IsClientError(err) {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, op+" failed",
		slog.String("kind", ledger.Kind(err)),
		slog.String("error", err.Error()))
	return err
}
