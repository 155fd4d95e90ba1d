/*
Package postgres provides a PostgreSQL implementation of catalog.Store and
ledger.Store on a pgx connection pool.

CONCURRENCY:
  Each unit of work is one READ COMMITTED transaction on one pooled
  connection.

    LockProduct:      SELECT ... FOR UPDATE. A second unit selling the same
                      product blocks here until the first commits, then
                      re-reads the committed quantity.
    AddCredit:        INSERT ... ON CONFLICT DO UPDATE SET balance =
                      credit.balance + excluded.balance. One statement, so
                      concurrent accruals serialize on the row.
    AddRewardPoints:  same upsert shape on rewards.points.

  Serialization failures and deadlocks abort the unit and surface as
  ledger.ErrConflictRetryable. Nothing is retried here.

MONEY:
  NUMERIC(14,2) columns. Values cross the wire as text (::text on the way
  out, ::numeric on the way in) and are parsed with shopspring/decimal.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite: the same contract on SQLite
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
)

var (
	_ catalog.Store = (*Store)(nil)
	_ ledger.Store  = (*Store)(nil)
)

// Store implements catalog.Store and ledger.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config tunes the pool.
type Config struct {
	DSN      string
	MaxConns int32
	// ConnectAttempts is how many one-second-spaced pings New makes before
	// giving up on a database that is still starting.
	ConnectAttempts int
}

// New connects, waits for the database and migrates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; ; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		if i+1 >= attempts {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, classify(err))
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, classify(ctx.Err())
		case <-time.After(time.Second):
		}
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.pool.Ping(ctx))
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		vendor_id TEXT REFERENCES vendors(id),
		price NUMERIC(14,2) NOT NULL CHECK (price >= 0),
		quantity BIGINT NOT NULL CHECK (quantity >= 0),
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		discount NUMERIC(5,2) NOT NULL,
		expires_on DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		tx_type TEXT NOT NULL CHECK (tx_type IN ('credit', 'cash')),
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		amount NUMERIC(14,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		seq BIGSERIAL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_customer_created
		ON transactions(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at DESC);

	CREATE OR REPLACE FUNCTION transactions_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'transactions are append-only';
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS transactions_append_only ON transactions;
	CREATE TRIGGER transactions_append_only
		BEFORE UPDATE OR DELETE ON transactions
		FOR EACH ROW EXECUTE FUNCTION transactions_append_only();

	CREATE TABLE IF NOT EXISTS credit (
		customer_id TEXT PRIMARY KEY REFERENCES customers(id),
		balance NUMERIC(14,2) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rewards (
		customer_id TEXT PRIMARY KEY REFERENCES customers(id),
		tier_id TEXT NOT NULL,
		points BIGINT NOT NULL CHECK (points >= 0),
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// LEDGER READS (ledger.Reader)
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return getProduct(ctx, s.pool, id, "")
}

func (s *Store) GetCustomer(ctx context.Context, id catalog.CustomerID) (catalog.Customer, error) {
	return getCustomer(ctx, s.pool, id)
}

func (s *Store) GetCreditBalance(ctx context.Context, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	return getCredit(ctx, s.pool, id)
}

func (s *Store) GetRewardsAccount(ctx context.Context, id catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	return getRewards(ctx, s.pool, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT id, customer_id, product_id, tx_type, quantity, amount::text, created_at
		FROM transactions
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, string(filter.CustomerID), filter.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx     ledger.Transaction
			amount string
		)
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.ProductID, &tx.Type, &tx.Quantity, &amount, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", classify(err))
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount for transaction %s: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, classify(rows.Err())
}

// getProduct reads one product. lock is appended to the statement
// (e.g. "FOR UPDATE").
func getProduct(ctx context.Context, q querier, id catalog.ProductID, lock string) (catalog.Product, error) {
	query := `SELECT id, name, COALESCE(vendor_id, ''), price::text, quantity, created_at
		FROM products WHERE id = $1 ` + lock
	return scanProduct(q.QueryRow(ctx, query, string(id)))
}

func getCustomer(ctx context.Context, q querier, id catalog.CustomerID) (catalog.Customer, error) {
	var c catalog.Customer
	err := q.QueryRow(ctx,
		"SELECT id, first_name, last_name, email, phone, address, created_at FROM customers WHERE id = $1",
		string(id),
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Customer{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Customer{}, classify(err)
	}
	return c, nil
}

func getCredit(ctx context.Context, q querier, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	var balance string
	err := q.QueryRow(ctx, "SELECT balance::text FROM credit WHERE customer_id = $1", string(id)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.CreditBalance{}, false, nil
	}
	if err != nil {
		return ledger.CreditBalance{}, false, classify(err)
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return ledger.CreditBalance{}, false, fmt.Errorf("corrupt credit balance for %s: %w", id, err)
	}
	return ledger.CreditBalance{CustomerID: id, Balance: d}, true, nil
}

func getRewards(ctx context.Context, q querier, id catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	acct := ledger.RewardsAccount{CustomerID: id}
	err := q.QueryRow(ctx, "SELECT tier_id, points FROM rewards WHERE customer_id = $1", string(id)).
		Scan(&acct.TierID, &acct.Points)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.RewardsAccount{}, false, nil
	}
	if err != nil {
		return ledger.RewardsAccount{}, false, classify(err)
	}
	return acct, true, nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p     catalog.Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &p.VendorID, &price, &p.Quantity, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, classify(err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, fmt.Errorf("corrupt price for product %s: %w", p.ID, err)
	}
	return p, nil
}

// =============================================================================
// UNIT OF WORK (ledger.Store.WithTx)
// =============================================================================

// WithTx runs fn in one READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin unit: %w", classify(err))
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&unit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unit: %w", classify(err))
	}
	return nil
}

type unit struct {
	tx pgx.Tx
}

func (u *unit) GetProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return getProduct(ctx, u.tx, id, "")
}

func (u *unit) GetCustomer(ctx context.Context, id catalog.CustomerID) (catalog.Customer, error) {
	return getCustomer(ctx, u.tx, id)
}

func (u *unit) GetCreditBalance(ctx context.Context, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	return getCredit(ctx, u.tx, id)
}

func (u *unit) GetRewardsAccount(ctx context.Context, id catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	return getRewards(ctx, u.tx, id)
}

func (u *unit) LockProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return getProduct(ctx, u.tx, id, "FOR UPDATE")
}

func (u *unit) SetProductQuantity(ctx context.Context, id catalog.ProductID, quantity int64) error {
	tag, err := u.tx.Exec(ctx, "UPDATE products SET quantity = $1 WHERE id = $2", quantity, string(id))
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (u *unit) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions (id, customer_id, product_id, tx_type, quantity, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
	`
	_, err := u.tx.Exec(ctx, query,
		string(tx.ID),
		string(tx.CustomerID),
		string(tx.ProductID),
		string(tx.Type),
		tx.Quantity,
		tx.Amount.String(),
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", classify(err))
	}
	return nil
}

func (u *unit) AddCredit(ctx context.Context, id catalog.CustomerID, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		INSERT INTO credit (customer_id, balance, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (customer_id) DO UPDATE SET
			balance = credit.balance + excluded.balance,
			updated_at = NOW()
		RETURNING balance::text
	`
	var balance string
	if err := u.tx.QueryRow(ctx, query, string(id), delta.String()).Scan(&balance); err != nil {
		return decimal.Zero, classify(err)
	}
	return decimal.NewFromString(balance)
}

func (u *unit) AddRewardPoints(ctx context.Context, id catalog.CustomerID, tier rewards.TierID, points int64) (int64, error) {
	query := `
		INSERT INTO rewards (customer_id, tier_id, points, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (customer_id) DO UPDATE SET
			points = rewards.points + excluded.points,
			updated_at = NOW()
		RETURNING points
	`
	var total int64
	if err := u.tx.QueryRow(ctx, query, string(id), string(tier), points).Scan(&total); err != nil {
		return 0, classify(err)
	}
	return total, nil
}
