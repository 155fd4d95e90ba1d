package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, first_name, last_name, email, phone, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(c.ID), c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.CreatedAt)
	if err != nil {
		return catalog.Customer{}, writeError(err)
	}
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]catalog.Customer, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, first_name, last_name, email, phone, address, created_at FROM customers ORDER BY id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []catalog.Customer
	for rows.Next() {
		var c catalog.Customer
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, c)
	}
	return out, classify(rows.Err())
}

func (s *Store) UpdateCustomer(ctx context.Context, c catalog.Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE customers SET first_name = $1, last_name = $2, email = $3, phone = $4, address = $5
		WHERE id = $6`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Address, string(c.ID))
	if err != nil {
		return writeError(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id catalog.CustomerID) error {
	return s.deleteRow(ctx, "DELETE FROM customers WHERE id = $1", string(id))
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO vendors (id, name, phone, email, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(v.ID), v.Name, v.Phone, v.Email, v.Address, v.CreatedAt)
	if err != nil {
		return catalog.Vendor{}, writeError(err)
	}
	return v, nil
}

func (s *Store) GetVendor(ctx context.Context, id catalog.VendorID) (catalog.Vendor, error) {
	var v catalog.Vendor
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, phone, email, address, created_at FROM vendors WHERE id = $1", string(id),
	).Scan(&v.ID, &v.Name, &v.Phone, &v.Email, &v.Address, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Vendor{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Vendor{}, classify(err)
	}
	return v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]catalog.Vendor, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, phone, email, address, created_at FROM vendors ORDER BY id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []catalog.Vendor
	for rows.Next() {
		var v catalog.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Email, &v.Address, &v.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, v)
	}
	return out, classify(rows.Err())
}

func (s *Store) UpdateVendor(ctx context.Context, v catalog.Vendor) error {
	if err := v.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE vendors SET name = $1, phone = $2, email = $3, address = $4 WHERE id = $5",
		v.Name, v.Phone, v.Email, v.Address, string(v.ID))
	if err != nil {
		return writeError(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteVendor(ctx context.Context, id catalog.VendorID) error {
	return s.deleteRow(ctx, "DELETE FROM vendors WHERE id = $1", string(id))
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	if p.ID == "" {
		p.ID = catalog.ProductID(catalog.NewID())
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, vendor_id, price, quantity, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4::numeric, $5, $6)`,
		string(p.ID), p.Name, string(p.VendorID), p.Price.String(), p.Quantity, p.CreatedAt)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return catalog.Product{}, &catalog.ValidationError{Field: "vendor_id", Reason: "unknown vendor"}
		}
		return catalog.Product{}, writeError(err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(vendor_id, ''), price::text, quantity, created_at
		FROM products ORDER BY id`)
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

// UpdateProduct rewrites name, vendor and price, never quantity.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE products SET name = $1, vendor_id = NULLIF($2, ''), price = $3::numeric WHERE id = $4",
		p.Name, string(p.VendorID), p.Price.String(), string(p.ID))
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return &catalog.ValidationError{Field: "vendor_id", Reason: "unknown vendor"}
		}
		return writeError(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id catalog.ProductID) error {
	return s.deleteRow(ctx, "DELETE FROM products WHERE id = $1", string(id))
}

// =============================================================================
// COUPONS
// =============================================================================

func (s *Store) CreateCoupon(ctx context.Context, c catalog.Coupon) (catalog.Coupon, error) {
	if err := c.Validate(); err != nil {
		return catalog.Coupon{}, err
	}
	if c.ID == "" {
		c.ID = catalog.CouponID(catalog.NewID())
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO coupons (id, code, discount, expires_on, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5)`,
		string(c.ID), c.Code, c.Discount.String(), c.ExpiresOn, c.CreatedAt)
	if err != nil {
		return catalog.Coupon{}, writeError(err)
	}
	return c, nil
}

func (s *Store) GetCoupon(ctx context.Context, id catalog.CouponID) (catalog.Coupon, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, code, discount::text, expires_on, created_at FROM coupons WHERE id = $1", string(id))
	return scanCoupon(row)
}

func (s *Store) ListCoupons(ctx context.Context) ([]catalog.Coupon, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, code, discount::text, expires_on, created_at FROM coupons ORDER BY id")
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
	tag, err := s.pool.Exec(ctx,
		"UPDATE coupons SET code = $1, discount = $2::numeric, expires_on = $3 WHERE id = $4",
		c.Code, c.Discount.String(), c.ExpiresOn, string(c.ID))
	if err != nil {
		return writeError(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, id catalog.CouponID) error {
	return s.deleteRow(ctx, "DELETE FROM coupons WHERE id = $1", string(id))
}

func scanCoupon(row pgx.Row) (catalog.Coupon, error) {
	var (
		c        catalog.Coupon
		discount string
	)
	err := row.Scan(&c.ID, &c.Code, &discount, &c.ExpiresOn, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Coupon{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Coupon{}, classify(err)
	}
	if c.Discount, err = decimal.NewFromString(discount); err != nil {
		return catalog.Coupon{}, fmt.Errorf("corrupt discount for coupon %s: %w", c.ID, err)
	}
	return c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) deleteRow(ctx context.Context, query string, id string) error {
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return catalog.ErrInUse
		}
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func writeError(err error) error {
	if hasCode(err, codeUniqueViolation) {
		return catalog.ErrDuplicate
	}
	return classify(err)
}
