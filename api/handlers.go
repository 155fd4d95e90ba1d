/*
handlers.go - HTTP API handlers for the retail ledger

PURPOSE:
  Exposes the sales orchestrator and the ledger reads via REST API. Handles
  HTTP request/response and JSON serialization, and delegates to the sales
  service.

ENDPOINTS:
  Sales:
    POST   /api/transactions                 Submit a sale (201 + receipt)
    GET    /api/transactions                 List sales (?customer_id=&limit=)

  Ledgers:
    GET    /api/customers/{id}/credit        Credit balance
    GET    /api/customers/{id}/rewards       Rewards account
    POST   /api/customers/{id}/rewards       Add reward points
    GET    /api/products/{id}/stock          Stock on hand

  Catalog CRUD lives in catalog_handlers.go.

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the sales service (it validates)
  3. Serialize response
  4. Map errors via writeError

ERROR HANDLING:
  Errors are returned as ErrorResponse with a stable kind:
  - 400: invalid_input, invalid_record
  - 404: unknown_product, unknown_customer, not_found
  - 409: insufficient_stock, duplicate, in_use
  - 409: conflict_retryable (retryable: true)
  - 503: store_unavailable (retryable: true)
  - 500: internal

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/rewards"
	"github.com/warp/retail-ledger/sales"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Sales   *sales.Service
	Catalog catalog.Store
	Logger  *slog.Logger
}

// NewHandler creates a handler. The catalog is usually the same store the
// sales service runs on.
func NewHandler(svc *sales.Service, cat catalog.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Sales: svc, Catalog: cat, Logger: logger}
}

// =============================================================================
// SALES
// =============================================================================

// SubmitTransaction records one sale.
// POST /api/transactions
//
// With reward_tier_id set, points for the amount are added in a separate
// unit after the sale commits. A failure there is reported in
// rewards_error; the sale is not undone.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	txType, err := ledger.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	var tier rewards.Tier
	if req.RewardTierID != "" {
		var ok bool
		if tier, ok = rewards.Lookup(rewards.TierID(req.RewardTierID)); !ok {
			writeError(w, &ledger.InvalidInputError{Field: "reward_tier_id", Reason: "unknown tier " + req.RewardTierID})
			return
		}
	}

	receipt, err := h.Sales.Submit(r.Context(), sales.SubmitRequest{
		CustomerID: catalog.CustomerID(req.CustomerID),
		ProductID:  catalog.ProductID(req.ProductID),
		Type:       txType,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	dto := toReceiptDTO(receipt)
	if req.RewardTierID != "" {
		if points := tier.PointsFor(receipt.Amount); points > 0 {
			total, err := h.Sales.AddRewardPoints(r.Context(), receipt.CustomerID, tier.ID, points)
			if err != nil {
				dto.RewardsError = err.Error()
			} else {
				dto.RewardPoints = points
				dto.RewardPointsTotal = total
			}
		}
	}

	writeJSON(w, http.StatusCreated, dto)
}

// ListTransactions returns recorded sales, newest first.
// GET /api/transactions?customer_id=C1&limit=20
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := ledger.TransactionFilter{
		CustomerID: catalog.CustomerID(r.URL.Query().Get("customer_id")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, &ledger.InvalidInputError{Field: "limit", Reason: "must be an integer"})
			return
		}
		filter.Limit = n
	}

	txs, err := h.Sales.Transactions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// LEDGER READS
// =============================================================================

// GetCreditBalance returns the customer's outstanding credit.
// GET /api/customers/{id}/credit
func (h *Handler) GetCreditBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := h.Sales.CreditBalance(r.Context(), catalog.CustomerID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditBalanceDTO{CustomerID: id, Balance: bal})
}

// GetStock returns the product's quantity on hand.
// GET /api/products/{id}/stock
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	qty, err := h.Sales.Stock(r.Context(), catalog.ProductID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StockDTO{ProductID: id, Quantity: qty})
}

// GetRewards returns the customer's rewards account.
// GET /api/customers/{id}/rewards
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acct, found, err := h.Sales.RewardsAccount(r.Context(), catalog.CustomerID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RewardsDTO{
		CustomerID: id,
		TierID:     string(acct.TierID),
		Points:     acct.Points,
		Found:      found,
	})
}

// AddRewardPoints accrues points for the customer.
// POST /api/customers/{id}/rewards
func (h *Handler) AddRewardPoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req AddRewardPointsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	total, err := h.Sales.AddRewardPoints(r.Context(), catalog.CustomerID(id), rewards.TierID(req.TierID), req.Points)
	if err != nil {
		writeError(w, err)
		return
	}

	// The tier reported is the account's, which differs from the request
	// when the account already existed.
	acct, _, err := h.Sales.RewardsAccount(r.Context(), catalog.CustomerID(id))
	if err != nil {
		h.Logger.WarnContext(r.Context(), "read back rewards account", slog.String("error", err.Error()))
		acct.TierID = rewards.TierID(req.TierID)
	}
	writeJSON(w, http.StatusOK, RewardsDTO{
		CustomerID: id,
		TierID:     string(acct.TierID),
		Points:     total,
		Found:      true,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, when the store supports it, reachability.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Catalog.(Pinger)
	if !ok {
		writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Store: "ok"})
		return
	}
	if err := p.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "degraded", Store: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Store: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Kind:    ledger.KindInvalidInput,
			Details: err.Error(),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Catalog error kinds.
const (
	KindNotFound      = "not_found"
	KindDuplicate     = "duplicate"
	KindInvalidRecord = "invalid_record"
	KindInUse         = "in_use"
	KindCanceled      = "canceled"
)

// classifyError maps err to its HTTP status and reported kind.
func classifyError(err error) (int, string) {
	switch kind := ledger.Kind(err); kind {
	case ledger.KindInvalidInput:
		return http.StatusBadRequest, kind
	case ledger.KindUnknownProduct, ledger.KindUnknownCustomer:
		return http.StatusNotFound, kind
	case ledger.KindInsufficientStock, ledger.KindConflictRetryable:
		return http.StatusConflict, kind
	case ledger.KindStoreUnavailable:
		return http.StatusServiceUnavailable, kind
	}
	switch {
	case errors.Is(err, catalog.ErrInvalidRecord):
		return http.StatusBadRequest, KindInvalidRecord
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, catalog.ErrDuplicate):
		return http.StatusConflict, KindDuplicate
	case errors.Is(err, catalog.ErrInUse):
		return http.StatusConflict, KindInUse
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, KindCanceled
	}
	return http.StatusInternalServerError, ledger.KindInternal
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := classifyError(err)
	resp := ErrorResponse{
		Error:     http.StatusText(status),
		Kind:      kind,
		Details:   err.Error(),
		Retryable: ledger.IsRetryable(err),
	}
	if state := sales.StateOf(err); state != "" && state != sales.StateCommitted {
		resp.State = string(state)
	}
	writeJSON(w, status, resp)
}
