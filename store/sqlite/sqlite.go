/*
Package sqlite provides a SQLite-backed implementation of catalog.Store and
ledger.Store.

KEY TABLES:
  customers, vendors, products, coupons: catalog records
  transactions: immutable sale records (append-only, enforced by triggers)
  credit:       one outstanding balance per customer
  rewards:      one tier + points total per customer

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on the transactions table anywhere
  - BEFORE UPDATE / BEFORE DELETE triggers abort any that slip through

CONCURRENCY:
  Units of work run in IMMEDIATE transactions (_txlock=immediate), so a unit
  takes the database write lock when it begins and holds it to commit or
  rollback. That is the row lock of LockProduct: no other writer can touch
  the product between the re-check and the decrement.

  The pool is limited to one connection. Every statement issued inside a
  unit MUST go through the unit's *sql.Tx; a statement on the pool would
  wait for the unit that is waiting for it.

WAL MODE:
  Opened with WAL and a busy timeout. Other processes sharing the file get
  SQLITE_BUSY after the timeout, surfaced as ledger.ErrConflictRetryable.

MONEY:
  Prices, amounts and balances are stored as decimal TEXT and parsed with
  shopspring/decimal. SQLite arithmetic on them would go through REAL, so
  credit accrual adds in Go while holding the write lock.

USAGE:
  store, err := sqlite.New("./data/retail.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := sales.NewService(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/postgres: the same contract on PostgreSQL
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
)

var (
	_ catalog.Store = (*Store)(nil)
	_ ledger.Store  = (*Store)(nil)
)

// BusyTimeout is how long a statement waits on a lock held by another
// connection before failing with SQLITE_BUSY.
const BusyTimeout = 5 * time.Second

// timeLayout is fixed-width so that TEXT ordering is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements catalog.Store and ledger.Store using SQLite.
type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (creating if needed) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=%d",
		dbPath, BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT,
		phone TEXT,
		address TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		address TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		vendor_id TEXT REFERENCES vendors(id),
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_vendor
		ON products(vendor_id);

	CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		discount TEXT NOT NULL,
		expires_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Sale records (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		tx_type TEXT NOT NULL CHECK (tx_type IN ('credit', 'cash')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_customer_created
		ON transactions(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_product
		ON transactions(product_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at DESC);

	CREATE TRIGGER IF NOT EXISTS transactions_no_update
		BEFORE UPDATE ON transactions
		BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END;
	CREATE TRIGGER IF NOT EXISTS transactions_no_delete
		BEFORE DELETE ON transactions
		BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END;

	CREATE TABLE IF NOT EXISTS credit (
		customer_id TEXT PRIMARY KEY REFERENCES customers(id),
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rewards (
		customer_id TEXT PRIMARY KEY REFERENCES customers(id),
		tier_id TEXT NOT NULL,
		points INTEGER NOT NULL CHECK (points >= 0),
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// LEDGER READS (ledger.Reader)
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return getProduct(ctx, s.db, id)
}

func (s *Store) GetCustomer(ctx context.Context, id catalog.CustomerID) (catalog.Customer, error) {
	return getCustomer(ctx, s.db, id)
}

func (s *Store) GetCreditBalance(ctx context.Context, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	return getCredit(ctx, s.db, id)
}

func (s *Store) GetRewardsAccount(ctx context.Context, id catalog.CustomerID) (ledger.RewardsAccount, bool, error) {
	return getRewards(ctx, s.db, id)
}

// ListTransactions returns sale records, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT id, customer_id, product_id, tx_type, quantity, amount, created_at
		FROM transactions
		WHERE (? = '' OR customer_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		string(filter.CustomerID), string(filter.CustomerID), filter.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, classify(rows.Err())
}

func getProduct(ctx context.Context, q querier, id catalog.ProductID) (catalog.Product, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, name, vendor_id, price, quantity, created_at FROM products WHERE id = ?", id)
	return scanProduct(row)
}

func getCustomer(ctx context.Context, q querier, id catalog.CustomerID) (catalog.Customer, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, first_name, last_name, email, phone, address, created_at FROM customers WHERE id = ?", id)
	return scanCustomer(row)
}

func getCredit(ctx context.Context, q querier, id catalog.CustomerID) (ledger.CreditBalance, bool, error) {
	var balance string
	err := q.QueryRowContext(ctx, "SELECT balance FROM credit WHERE customer_id = ?", id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := q.QueryRowContext(ctx, "SELECT tier_id, points FROM rewards WHERE customer_id = ?", id).
		Scan(&acct.TierID, &acct.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.RewardsAccount{}, false, nil
	}
	if err != nil {
		return ledger.RewardsAccount{}, false, classify(err)
	}
	return acct, true, nil
}

// =============================================================================
// UNIT OF WORK (ledger.Store.WithTx)
// =============================================================================

// WithTx executes fn within one IMMEDIATE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin unit: %w", classify(err))
	}
	defer sqlTx.Rollback()

	if err := fn(&unit{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unit: %w", classify(err))
	}
	return nil
}

type unit struct {
	tx *sql.Tx
}

func (u *unit) GetProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return getProduct(ctx, u.tx, id)
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

// LockProduct reads the product. The IMMEDIATE transaction already holds
// the write lock.
func (u *unit) LockProduct(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return getProduct(ctx, u.tx, id)
}

func (u *unit) SetProductQuantity(ctx context.Context, id catalog.ProductID, quantity int64) error {
	res, err := u.tx.ExecContext(ctx, "UPDATE products SET quantity = ? WHERE id = ?", quantity, id)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

func (u *unit) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, customer_id, product_id, tx_type, quantity, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := u.tx.ExecContext(ctx, query,
		tx.ID,
		tx.CustomerID,
		tx.ProductID,
		tx.Type,
		tx.Quantity,
		tx.Amount.String(),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", classify(err))
	}
	return nil
}

// AddCredit reads, adds in decimal and upserts. Safe because the unit holds
// the database write lock.
func (u *unit) AddCredit(ctx context.Context, id catalog.CustomerID, delta decimal.Decimal) (decimal.Decimal, error) {
	current, _, err := getCredit(ctx, u.tx, id)
	if err != nil {
		return decimal.Zero, err
	}
	balance := current.Balance.Add(delta)

	query := `
		INSERT INTO credit (customer_id, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`
	if _, err := u.tx.ExecContext(ctx, query, id, balance.String(), formatTime(time.Now())); err != nil {
		return decimal.Zero, classify(err)
	}
	return balance, nil
}

func (u *unit) AddRewardPoints(ctx context.Context, id catalog.CustomerID, tier rewards.TierID, points int64) (int64, error) {
	query := `
		INSERT INTO rewards (customer_id, tier_id, points, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			points = rewards.points + excluded.points,
			updated_at = excluded.updated_at
		RETURNING points
	`
	var total int64
	err := u.tx.QueryRowContext(ctx, query, id, tier, points, formatTime(time.Now())).Scan(&total)
	if err != nil {
		return 0, classify(err)
	}
	return total, nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (catalog.Product, error) {
	var (
		p         catalog.Product
		vendorID  sql.NullString
		price     string
		createdAt string
	)
	err := row.Scan(&p.ID, &p.Name, &vendorID, &price, &p.Quantity, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, classify(err)
	}
	p.VendorID = catalog.VendorID(vendorID.String)
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, fmt.Errorf("corrupt price for product %s: %w", p.ID, err)
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func scanCustomer(row scanner) (catalog.Customer, error) {
	var (
		c                     catalog.Customer
		email, phone, address sql.NullString
		createdAt             string
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &email, &phone, &address, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Customer{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Customer{}, classify(err)
	}
	c.Email, c.Phone, c.Address = email.String, phone.String, address.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func scanTransaction(rows scanner) (ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		amount    string
		createdAt string
	)
	err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.ProductID, &tx.Type, &tx.Quantity, &amount, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", classify(err))
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("corrupt amount for transaction %s: %w", tx.ID, err)
	}
	tx.CreatedAt = parseTime(createdAt)
	return tx, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
