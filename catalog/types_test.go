package catalog_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/retail-ledger/catalog"
)

func TestProduct_Validate(t *testing.T) {
	tests := []struct {
		name    string
		product catalog.Product
		field   string
	}{
		{"valid", catalog.Product{Name: "Milk", Price: decimal.NewFromInt(2), Quantity: 10}, ""},
		{"missing name", catalog.Product{Price: decimal.NewFromInt(2)}, "name"},
		{"negative price", catalog.Product{Name: "Milk", Price: decimal.NewFromInt(-1)}, "price"},
		{"cent price", catalog.Product{Name: "Milk", Price: decimal.RequireFromString("0.99")}, ""},
		{"trailing zero scale", catalog.Product{Name: "Milk", Price: decimal.RequireFromString("1.2500")}, ""},
		{"sub-cent price", catalog.Product{Name: "Milk", Price: decimal.RequireFromString("0.125")}, "price"},
		{"fractional cent price", catalog.Product{Name: "Milk", Price: decimal.RequireFromString("0.001")}, "price"},
		{"negative quantity", catalog.Product{Name: "Milk", Quantity: -1}, "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *catalog.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tt.field, verr.Field)
			}
			assert.ErrorIs(t, err, catalog.ErrInvalidRecord)
		})
	}
}

func TestCoupon_Validate(t *testing.T) {
	expires := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, catalog.Coupon{Code: "SPRING", Discount: decimal.NewFromInt(15), ExpiresOn: expires}.Validate())
	assert.Error(t, catalog.Coupon{Code: "SPRING", Discount: decimal.NewFromInt(120), ExpiresOn: expires}.Validate())
	assert.Error(t, catalog.Coupon{Code: "", Discount: decimal.NewFromInt(5), ExpiresOn: expires}.Validate())
	assert.Error(t, catalog.Coupon{Code: "SPRING", Discount: decimal.NewFromInt(5)}.Validate())
}

func TestCoupon_Expired(t *testing.T) {
	c := catalog.Coupon{ExpiresOn: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}

	assert.False(t, c.Expired(time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)), "valid through the whole last day")
	assert.True(t, c.Expired(time.Date(2026, time.March, 2, 0, 0, 1, 0, time.UTC)))
}

func TestCustomer_Name(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", catalog.Customer{FirstName: "Ada", LastName: "Lovelace"}.Name())
	assert.Equal(t, "Ada", catalog.Customer{FirstName: "Ada"}.Name())
}
