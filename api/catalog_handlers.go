package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/retail-ledger/catalog"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

// ListCustomers returns all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Catalog.ListCustomers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.GetCustomer(r.Context(), catalog.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerDTO
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Catalog.CreateCustomer(r.Context(), req.record())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerDTO
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	if err := h.Catalog.UpdateCustomer(r.Context(), req.record()); err != nil {
		writeError(w, err)
		return
	}
	h.GetCustomer(w, r)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteCustomer(r.Context(), catalog.CustomerID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// VENDORS
// =============================================================================

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.Catalog.ListVendors(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]VendorDTO, len(vendors))
	for i, v := range vendors {
		dtos[i] = toVendorDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.GetVendor(r.Context(), catalog.VendorID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorDTO(v))
}

func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var req VendorDTO
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := h.Catalog.CreateVendor(r.Context(), req.record())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVendorDTO(v))
}

func (h *Handler) UpdateVendor(w http.ResponseWriter, r *http.Request) {
	var req VendorDTO
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	if err := h.Catalog.UpdateVendor(r.Context(), req.record()); err != nil {
		writeError(w, err)
		return
	}
	h.GetVendor(w, r)
}

func (h *Handler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteVendor(r.Context(), catalog.VendorID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.GetProduct(r.Context(), catalog.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// CreateProduct stores a product with its initial stock.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductDTO
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Catalog.CreateProduct(r.Context(), req.record())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// UpdateProduct rewrites name, vendor and price. A quantity in the body is
// ignored: stock only moves through sales.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductDTO
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	if err := h.Catalog.UpdateProduct(r.Context(), req.record()); err != nil {
		writeError(w, err)
		return
	}
	h.GetProduct(w, r)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteProduct(r.Context(), catalog.ProductID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COUPONS
// =============================================================================

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Catalog.ListCoupons(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = toCouponDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.GetCoupon(r.Context(), catalog.CouponID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponDTO(c))
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponDTO
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := req.record()
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Catalog.CreateCoupon(r.Context(), rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponDTO(c))
}

func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponDTO
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	rec, err := req.record()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Catalog.UpdateCoupon(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	h.GetCoupon(w, r)
}

func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteCoupon(r.Context(), catalog.CouponID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
