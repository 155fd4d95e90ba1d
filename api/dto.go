/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the domain
  records from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as decimal strings ("12.50"), never floats.
  decimal.Decimal also accepts a bare JSON number on input.

SEE ALSO:
  - handlers.go, catalog_handlers.go: Use these types
  - client/: The POS client decodes the same shapes
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/sales"
)

const dateLayout = "2006-01-02"

// =============================================================================
// SALES
// =============================================================================

// SubmitTransactionRequest is the body of POST /api/transactions.
// RewardTierID is optional; when set, points for the sale are added after
// the sale commits.
type SubmitTransactionRequest struct {
	CustomerID   string `json:"customer_id"`
	ProductID    string `json:"product_id"`
	Type         string `json:"type"`
	Quantity     int64  `json:"quantity"`
	RewardTierID string `json:"reward_tier_id,omitempty"`
}

// ReceiptDTO is the response to a committed sale.
type ReceiptDTO struct {
	TransactionID  string           `json:"transaction_id"`
	CustomerID     string           `json:"customer_id"`
	ProductID      string           `json:"product_id"`
	Type           string           `json:"type"`
	Quantity       int64            `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	Amount         decimal.Decimal  `json:"amount"`
	RemainingStock int64            `json:"remaining_stock"`
	CreditBalance  *decimal.Decimal `json:"credit_balance,omitempty"`
	CreatedAt      string           `json:"created_at"`

	// Post-sale reward accrual. The sale stands even if this failed.
	RewardPoints      int64  `json:"reward_points,omitempty"`
	RewardPointsTotal int64  `json:"reward_points_total,omitempty"`
	RewardsError      string `json:"rewards_error,omitempty"`
}

func toReceiptDTO(r sales.Receipt) ReceiptDTO {
	dto := ReceiptDTO{
		TransactionID:  string(r.TransactionID),
		CustomerID:     string(r.CustomerID),
		ProductID:      string(r.ProductID),
		Type:           string(r.Type),
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		Amount:         r.Amount,
		RemainingStock: r.RemainingStock,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339Nano),
	}
	if r.CreditBalance.Valid {
		bal := r.CreditBalance.Decimal
		dto.CreditBalance = &bal
	}
	return dto
}

// TransactionDTO represents a recorded sale.
type TransactionDTO struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	ProductID  string          `json:"product_id"`
	Type       string          `json:"type"`
	Quantity   int64           `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  string          `json:"created_at"`
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			ID:         string(tx.ID),
			CustomerID: string(tx.CustomerID),
			ProductID:  string(tx.ProductID),
			Type:       string(tx.Type),
			Quantity:   tx.Quantity,
			Amount:     tx.Amount,
			CreatedAt:  tx.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	return dtos
}

// =============================================================================
// LEDGER READS
// =============================================================================

type CreditBalanceDTO struct {
	CustomerID string          `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
}

type StockDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// AddRewardPointsRequest is the body of POST /api/customers/{id}/rewards.
type AddRewardPointsRequest struct {
	TierID string `json:"reward_tier_id"`
	Points int64  `json:"points"`
}

// RewardsDTO is a rewards account. Found is false before the first accrual.
type RewardsDTO struct {
	CustomerID string `json:"customer_id"`
	TierID     string `json:"reward_tier_id,omitempty"`
	Points     int64  `json:"points"`
	Found      bool   `json:"found"`
}

// =============================================================================
// CATALOG
// =============================================================================

type CustomerDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toCustomerDTO(c catalog.Customer) CustomerDTO {
	return CustomerDTO{
		ID:        string(c.ID),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		CreatedAt: formatCreated(c.CreatedAt),
	}
}

func (d CustomerDTO) record() catalog.Customer {
	return catalog.Customer{
		ID:        catalog.CustomerID(d.ID),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Phone:     d.Phone,
		Address:   d.Address,
	}
}

type VendorDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toVendorDTO(v catalog.Vendor) VendorDTO {
	return VendorDTO{
		ID:        string(v.ID),
		Name:      v.Name,
		Phone:     v.Phone,
		Email:     v.Email,
		Address:   v.Address,
		CreatedAt: formatCreated(v.CreatedAt),
	}
}

func (d VendorDTO) record() catalog.Vendor {
	return catalog.Vendor{
		ID:      catalog.VendorID(d.ID),
		Name:    d.Name,
		Phone:   d.Phone,
		Email:   d.Email,
		Address: d.Address,
	}
}

// ProductDTO is a catalog product. Quantity is honoured on create only;
// an update never changes stock.
type ProductDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	VendorID  string          `json:"vendor_id,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	CreatedAt string          `json:"created_at,omitempty"`
}

func toProductDTO(p catalog.Product) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		VendorID:  string(p.VendorID),
		Price:     p.Price,
		Quantity:  p.Quantity,
		CreatedAt: formatCreated(p.CreatedAt),
	}
}

func (d ProductDTO) record() catalog.Product {
	return catalog.Product{
		ID:       catalog.ProductID(d.ID),
		Name:     d.Name,
		VendorID: catalog.VendorID(d.VendorID),
		Price:    d.Price,
		Quantity: d.Quantity,
	}
}

type CouponDTO struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Discount       decimal.Decimal `json:"discount"`
	ExpirationDate string          `json:"expiration_date"` // YYYY-MM-DD
	CreatedAt      string          `json:"created_at,omitempty"`
}

func toCouponDTO(c catalog.Coupon) CouponDTO {
	return CouponDTO{
		ID:             string(c.ID),
		Code:           c.Code,
		Discount:       c.Discount,
		ExpirationDate: c.ExpiresOn.Format(dateLayout),
		CreatedAt:      formatCreated(c.CreatedAt),
	}
}

func (d CouponDTO) record() (catalog.Coupon, error) {
	expires, err := time.Parse(dateLayout, d.ExpirationDate)
	if err != nil {
		return catalog.Coupon{}, &catalog.ValidationError{Field: "expiration_date", Reason: "use YYYY-MM-DD"}
	}
	return catalog.Coupon{
		ID:        catalog.CouponID(d.ID),
		Code:      d.Code,
		Discount:  d.Discount,
		ExpiresOn: expires,
	}, nil
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	State     string `json:"state,omitempty"`
}

// HealthDTO is the body of GET /health.
type HealthDTO struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
