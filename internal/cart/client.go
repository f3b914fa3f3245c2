package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated    = errors.New("no active session")
	ErrOutOfStock         = errors.New("product out of stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrItemNotFound       = errors.New("cart item not found")
)

// TransientError marks failures worth retrying (timeouts, 5xx), as opposed
// to definitive rejections.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient cart failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Client is the remote cart service. Every mutation returns the full
// replacement cart; the store treats that response as ground truth. The
// coupon lives on the server-side cart like any other line: apply and
// remove are wire mutations, so it survives refreshes.
type Client interface {
	Get(ctx context.Context) (*Cart, error)
	AddItem(ctx context.Context, productID string, variant *Variant, quantity int) (*Cart, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, itemID string) (*Cart, error)
	Clear(ctx context.Context) (*Cart, error)
	ApplyCoupon(ctx context.Context, code string) (*Cart, error)
	RemoveCoupon(ctx context.Context) (*Cart, error)
}

type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient builds a cart client bound to one session token.
func NewHTTPClient(baseURL, sessionToken string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, token: sessionToken, client: client}
}

type addItemRequest struct {
	ProductID string   `json:"product_id"`
	Variant   *Variant `json:"variant,omitempty"`
	Quantity  int      `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (c *HTTPClient) Get(ctx context.Context) (*Cart, error) {
	return c.do(ctx, http.MethodGet, "/cart", nil)
}

func (c *HTTPClient) AddItem(ctx context.Context, productID string, variant *Variant, quantity int) (*Cart, error) {
	return c.do(ctx, http.MethodPost, "/cart/items", addItemRequest{
		ProductID: productID,
		Variant:   variant,
		Quantity:  quantity,
	})
}

func (c *HTTPClient) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*Cart, error) {
	return c.do(ctx, http.MethodPut, "/cart/items/"+itemID, updateQuantityRequest{Quantity: quantity})
}

func (c *HTTPClient) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	return c.do(ctx, http.MethodDelete, "/cart/items/"+itemID, nil)
}

func (c *HTTPClient) Clear(ctx context.Context) (*Cart, error) {
	return c.do(ctx, http.MethodDelete, "/cart", nil)
}

func (c *HTTPClient) ApplyCoupon(ctx context.Context, code string) (*Cart, error) {
	return c.do(ctx, http.MethodPost, "/cart/coupon", applyCouponRequest{Code: code})
}

func (c *HTTPClient) RemoveCoupon(ctx context.Context) (*Cart, error) {
	return c.do(ctx, http.MethodDelete, "/cart/coupon", nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (*Cart, error) {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var cart Cart
		if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
			return nil, fmt.Errorf("decode cart response: %w", err)
		}
		return &cart, nil
	}

	var er errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&er)
	return nil, mapRemoteError(resp.StatusCode, er.Code)
}

func mapRemoteError(status int, code string) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusNotFound:
		return ErrItemNotFound
	case code == "out_of_stock":
		return ErrOutOfStock
	case code == "product_unavailable":
		return ErrProductUnavailable
	case status >= 500:
		return &TransientError{Err: fmt.Errorf("cart service returned status %d", status)}
	default:
		return fmt.Errorf("cart service rejected request: status %d code %q", status, code)
	}
}
