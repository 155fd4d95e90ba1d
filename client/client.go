/*
client.go - HTTP client for point-of-sale terminals

PURPOSE:
  Typed access to the retail ledger API. A terminal submits sales, reads
  balances and stock, and adds reward points through this client.

RETRIES:
  Only responses flagged retryable (conflict_retryable, store_unavailable)
  are retried, with bounded exponential backoff. Such a response guarantees
  the request had no effect, so re-sending the whole request is safe. A
  transport error is NOT retried: the sale may have committed before the
  connection dropped.

TRACING:
  The caller's span context is injected as W3C traceparent, so a terminal
  span and the server's sale span share one trace.

SEE ALSO:
  - api/dto.go: wire types shared with the server
*/
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/warp/retail-ledger/api"
)

// Defaults for New.
const (
	DefaultRetries      = 3
	DefaultRetryWait    = 50 * time.Millisecond
	DefaultRetryMaxWait = 1 * time.Second
	DefaultTimeout      = 10 * time.Second
)

// APIError is a non-2xx response.
type APIError struct {
	Status    int
	Kind      string
	Message   string
	Retryable bool
	State     string // lifecycle state of a failed submit, if reported
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
}

// IsRetryable reports whether err is an APIError the server marked retryable.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// Client talks to one retail ledger server.
type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

// WithRetries sets how often a retryable response is re-sent and the
// backoff bounds between attempts.
func WithRetries(count int, wait, maxWait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(DefaultTimeout).
		SetRetryCount(DefaultRetries).
		SetRetryWaitTime(DefaultRetryWait).
		SetRetryMaxWaitTime(DefaultRetryMaxWait).
		AddRetryCondition(retryableResponse).
		OnBeforeRequest(injectTrace)
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Submit records one sale and returns its receipt.
func (c *Client) Submit(ctx context.Context, req api.SubmitTransactionRequest) (api.ReceiptDTO, error) {
	var receipt api.ReceiptDTO
	err := c.do(ctx, http.MethodPost, "/api/transactions", req, &receipt)
	return receipt, err
}

// AddRewardPoints adds points to the customer's rewards account.
func (c *Client) AddRewardPoints(ctx context.Context, customerID, tierID string, points int64) (api.RewardsDTO, error) {
	var acct api.RewardsDTO
	err := c.do(ctx, http.MethodPost, "/api/customers/"+url.PathEscape(customerID)+"/rewards",
		api.AddRewardPointsRequest{TierID: tierID, Points: points}, &acct)
	return acct, err
}

func (c *Client) Rewards(ctx context.Context, customerID string) (api.RewardsDTO, error) {
	var acct api.RewardsDTO
	err := c.do(ctx, http.MethodGet, "/api/customers/"+url.PathEscape(customerID)+"/rewards", nil, &acct)
	return acct, err
}

func (c *Client) CreditBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var dto api.CreditBalanceDTO
	if err := c.do(ctx, http.MethodGet, "/api/customers/"+url.PathEscape(customerID)+"/credit", nil, &dto); err != nil {
		return decimal.Zero, err
	}
	return dto.Balance, nil
}

func (c *Client) Stock(ctx context.Context, productID string) (int64, error) {
	var dto api.StockDTO
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(productID)+"/stock", nil, &dto); err != nil {
		return 0, err
	}
	return dto.Quantity, nil
}

// Transactions lists sales, newest first. Empty customerID lists all;
// limit <= 0 uses the server default.
func (c *Client) Transactions(ctx context.Context, customerID string, limit int) ([]api.TransactionDTO, error) {
	path := "/api/transactions"
	q := url.Values{}
	if customerID != "" {
		q.Set("customer_id", customerID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var txs []api.TransactionDTO
	err := c.do(ctx, http.MethodGet, path, nil, &txs)
	return txs, err
}

// =============================================================================
// PLUMBING
// =============================================================================

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.http.R().SetContext(ctx).SetResult(result)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode(), Kind: "unknown", Message: resp.Status()}
	var body api.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Kind != "" {
		apiErr.Kind = body.Kind
		apiErr.Message = body.Details
		apiErr.Retryable = body.Retryable
		apiErr.State = body.State
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}

func retryableResponse(resp *resty.Response, err error) bool {
	if err != nil || resp == nil || !resp.IsError() {
		return false
	}
	var body api.ErrorResponse
	if json.Unmarshal(resp.Body(), &body) != nil {
		return false
	}
	return body.Retryable
}

func injectTrace(_ *resty.Client, req *resty.Request) error {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return nil
}
