package catalog

import "context"

// Store is the persistence boundary for catalog records.
//
// Create* assigns an ID when the record has none and returns the stored
// record. Update* rewrites the editable fields of an existing record and
// returns ErrNotFound if it does not exist. UpdateProduct never touches
// Quantity.
type Store interface {
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id CustomerID) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) error
	DeleteCustomer(ctx context.Context, id CustomerID) error

	CreateVendor(ctx context.Context, v Vendor) (Vendor, error)
	GetVendor(ctx context.Context, id VendorID) (Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	UpdateVendor(ctx context.Context, v Vendor) error
	DeleteVendor(ctx context.Context, id VendorID) error

	CreateProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id ProductID) error

	CreateCoupon(ctx context.Context, c Coupon) (Coupon, error)
	GetCoupon(ctx context.Context, id CouponID) (Coupon, error)
	ListCoupons(ctx context.Context) ([]Coupon, error)
	UpdateCoupon(ctx context.Context, c Coupon) error
	DeleteCoupon(ctx context.Context, id CouponID) error
}
