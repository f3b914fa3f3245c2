package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_checkout/pkg/idempotency"
)

var ErrStockChanged = errors.New("stock changed during checkout")

// TransientError marks order-service failures where nothing definitive is
// known about whether the order was created.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient order failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Client is the backend order service.
type Client interface {
	Create(ctx context.Context, req CreateRequest) (*Order, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, client: client}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (c *HTTPClient) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	idempotency.Set(httpReq, req.IdempotencyKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var o Order
		if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
			return nil, fmt.Errorf("decode order response: %w", err)
		}
		return &o, nil
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("order service returned status %d", resp.StatusCode)}
	default:
		var er errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		if er.Code == "stock_changed" {
			return nil, ErrStockChanged
		}
		return nil, fmt.Errorf("order service rejected request: status %d code %q", resp.StatusCode, er.Code)
	}
}
