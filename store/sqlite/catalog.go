package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *Store) CreateCustomer(ctx context.Context, c catalog.Customer) (catalog.Customer, error) {
	if err := c.Validate(); err != nil {
		return catalog.Customer{}, err
	}
	if c.ID == "" {
		c.ID = catalog.CustomerID(catalog.NewID())
	}
	c.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO customers (id, first_name, last_name, email, phone, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.FirstName, c.LastName,
		nullString(c.Email), nullString(c.Phone), nullString(c.Address),
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return catalog.Customer{}, writeError(err)
	}
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]catalog.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, first_name, last_name, email, phone, address, created_at FROM customers ORDER BY id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []catalog.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, classify(rows.Err())
}

func (s *Store) UpdateCustomer(ctx context.Context, c catalog.Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE customers
		SET first_name = ?, last_name = ?, email = ?, phone = ?, address = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		c.FirstName, c.LastName, nullString(c.Email), nullString(c.Phone), nullString(c.Address), c.ID)
	if err != nil {
		return writeError(err)
	}
	return expectOneRow(res)
}

func (s *Store) DeleteCustomer(ctx context.Context, id catalog.CustomerID) error {
	return s.deleteRow(ctx, "DELETE FROM customers WHERE id = ?", id)
}

// =============================================================================
// VENDORS
// =============================================================================

func (s *Store) CreateVendor(ctx context.Context, v catalog.Vendor) (catalog.Vendor, error) {
	if err := v.Validate(); err != nil {
		return catalog.Vendor{}, err
	}
	if v.ID == "" {
		v.ID = catalog.VendorID(catalog.NewID())
	}
	v.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO vendors (id, name, phone, email, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.Name, nullString(v.Phone), nullString(v.Email), nullString(v.Address),
		formatTime(v.CreatedAt),
	)
	if err != nil {
		return catalog.Vendor{}, writeError(err)
	}
	return v, nil
}

func (s *Store) GetVendor(ctx context.Context, id catalog.VendorID) (catalog.Vendor, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, phone, email, address, created_at FROM vendors WHERE id = ?", id)
	return scanVendor(row)
}

func (s *Store) ListVendors(ctx context.Context) ([]catalog.Vendor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, phone, email, address, created_at FROM vendors ORDER BY id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []catalog.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, classify(rows.Err())
}

func (s *Store) UpdateVendor(ctx context.Context, v catalog.Vendor) error {
	if err := v.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE vendors SET name = ?, phone = ?, email = ?, address = ? WHERE id = ?",
		v.Name, nullString(v.Phone), nullString(v.Email), nullString(v.Address), v.ID)
	if err != nil {
		return writeError(err)
	}
	return expectOneRow(res)
}

func (s *Store) DeleteVendor(ctx context.Context, id catalog.VendorID) error {
	return s.deleteRow(ctx, "DELETE FROM vendors WHERE id = ?", id)
}

func scanVendor(row scanner) (catalog.Vendor, error) {
	var (
		v                     catalog.Vendor
		phone, email, address sql.NullString
		createdAt             string
	)
	err := row.Scan(&v.ID, &v.Name, &phone, &email, &address, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Vendor{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Vendor{}, classify(err)
	}
	v.Phone, v.Email, v.Address = phone.String, email.String, address.String
	v.CreatedAt = parseTime(createdAt)
	return v, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct inserts the product with its initial stock.
func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	if p.ID == "" {
		p.ID = catalog.ProductID(catalog.NewID())
	}
	p.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO products (id, name, vendor_id, price, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, nullString(string(p.VendorID)), p.Price.String(), p.Quantity,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return catalog.Product{}, &catalog.ValidationError{Field: "vendor_id", Reason: "unknown vendor"}
		}
		return catalog.Product{}, writeError(err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, vendor_id, price, quantity, created_at FROM products ORDER BY id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

// UpdateProduct rewrites name, vendor and price. The quantity column is not
// in the statement: stock moves only through the inventory ledger.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET name = ?, vendor_id = ?, price = ? WHERE id = ?",
		p.Name, nullString(string(p.VendorID)), p.Price.String(), p.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &catalog.ValidationError{Field: "vendor_id", Reason: "unknown vendor"}
		}
		return writeError(err)
	}
	return expectOneRow(res)
}

func (s *Store) DeleteProduct(ctx context.Context, id catalog.ProductID) error {
	return s.deleteRow(ctx, "DELETE FROM products WHERE id = ?", id)
}

// =============================================================================
// COUPONS
// =============================================================================

const couponDateLayout = "2006-01-02"

func (s *Store) CreateCoupon(ctx context.Context, c catalog.Coupon) (catalog.Coupon, error) {
	if err := c.Validate(); err != nil {
		return catalog.Coupon{}, err
	}
	if c.ID == "" {
		c.ID = catalog.CouponID(catalog.NewID())
	}
	c.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO coupons (id, code, discount, expires_on, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Code, c.Discount.String(), c.ExpiresOn.Format(couponDateLayout), formatTime(c.CreatedAt))
	if err != nil {
		return catalog.Coupon{}, writeError(err)
	}
	return c, nil
}

func (s *Store) GetCoupon(ctx context.Context, id catalog.CouponID) (catalog.Coupon, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, code, discount, expires_on, created_at FROM coupons WHERE id = ?", id)
	return scanCoupon(row)
}

func (s *Store) ListCoupons(ctx context.Context) ([]catalog.Coupon, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, discount, expires_on, created_at FROM coupons ORDER BY id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []catalog.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, classify(rows.Err())
}

func (s *Store) UpdateCoupon(ctx context.Context, c catalog.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE coupons SET code = ?, discount = ?, expires_on = ? WHERE id = ?",
		c.Code, c.Discount.String(), c.ExpiresOn.Format(couponDateLayout), c.ID)
	if err != nil {
		return writeError(err)
	}
	return expectOneRow(res)
}

func (s *Store) DeleteCoupon(ctx context.Context, id catalog.CouponID) error {
	return s.deleteRow(ctx, "DELETE FROM coupons WHERE id = ?", id)
}

func scanCoupon(row scanner) (catalog.Coupon, error) {
	var (
		c                   catalog.Coupon
		discount, expiresOn string
		createdAt           string
	)
	err := row.Scan(&c.ID, &c.Code, &discount, &expiresOn, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Coupon{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Coupon{}, classify(err)
	}
	if c.Discount, err = decimal.NewFromString(discount); err != nil {
		return catalog.Coupon{}, fmt.Errorf("corrupt discount for coupon %s: %w", c.ID, err)
	}
	c.ExpiresOn, _ = time.Parse(couponDateLayout, expiresOn)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) deleteRow(ctx context.Context, query string, id any) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return catalog.ErrInUse
		}
		return classify(err)
	}
	return expectOneRow(res)
}

func writeError(err error) error {
	if isUniqueViolation(err) {
		return catalog.ErrDuplicate
	}
	return classify(err)
}
