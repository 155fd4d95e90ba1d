/*
Package sales is the transaction orchestrator: the only entry point that
mutates the three ledgers.

PURPOSE:
  A sale touches three ledgers (inventory, credit, the transaction log) that
  must move together. Service.Submit sequences the checks and runs every
  write in one atomic unit of work. Reward accrual is a separate call the
  caller makes after a committed sale, in its own unit.

REQUEST LIFECYCLE:

    Received ──validate──► Validated ──price──► PriceResolved ──stock──► StockChecked
        │                      │                     │                       │
        └──────────────────────┴───── Rejected ◄─────┘                 open unit
                                                                             │
                                                    RolledBack ◄──fail── in unit ──ok──► Committed

  Rejected and RolledBack both leave no trace in the store.

CANCELLATION:
  The caller's context may abandon a request up to the moment the unit
  opens. After that the unit runs on a detached context bounded by
  UnitTimeout and always ends in commit or full rollback.

SEE ALSO:
  - submit.go: Submit and the Receipt
  - ledger/: Inventory, Credit, Rewards
*/
package sales

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
)

const instrumentationName = "github.com/warp/retail-ledger/sales"

// DefaultUnitTimeout bounds one atomic unit of work.
const DefaultUnitTimeout = 5 * time.Second

// Service coordinates the ledgers. Safe for concurrent use; it holds no
// locks, the store serializes conflicting units.
type Service struct {
	store     ledger.Store
	inventory *ledger.Inventory
	credit    *ledger.Credit
	rewards   *ledger.Rewards

	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
	unitTimeout time.Duration

	submissions  metric.Int64Counter
	unitDuration metric.Float64Histogram
	pointsAdded  metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider records submission counters and unit latency.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.initMetrics(mp.Meter(instrumentationName)) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the transaction id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithUnitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.unitTimeout = d
		}
	}
}

// NewService builds a Service over store. Telemetry defaults to the global
// otel providers.
func NewService(store ledger.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		inventory:   ledger.NewInventory(store),
		credit:      ledger.NewCredit(store),
		rewards:     ledger.NewRewards(store),
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       catalog.NewID,
		unitTimeout: DefaultUnitTimeout,
	}
	s.initMetrics(otel.Meter(instrumentationName))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) initMetrics(m metric.Meter) {
	var err error
	nop := noop.NewMeterProvider().Meter(instrumentationName)

	s.submissions, err = m.Int64Counter("sales.submissions",
		metric.WithDescription("Submitted sales by outcome"))
	if err != nil {
		s.submissions, _ = nop.Int64Counter("sales.submissions")
	}
	s.unitDuration, err = m.Float64Histogram("sales.unit.duration",
		metric.WithDescription("Duration of the atomic unit of a sale"),
		metric.WithUnit("ms"))
	if err != nil {
		s.unitDuration, _ = nop.Float64Histogram("sales.unit.duration")
	}
	s.pointsAdded, err = m.Int64Counter("rewards.points_added",
		metric.WithDescription("Reward points accrued"))
	if err != nil {
		s.pointsAdded, _ = nop.Int64Counter("rewards.points_added")
	}
}
