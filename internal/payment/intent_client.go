package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/pkg/idempotency"
)

// IntentRequest asks the marketplace backend for a processor payment
// intent. SnapshotKey is derived from the order draft contents; the backend
// returns an existing open intent when the key matches, so retries after a
// failure never stack up duplicate intents.
type IntentRequest struct {
	Amount      money.Money `json:"amount"`
	Currency    string      `json:"currency"`
	SnapshotKey string      `json:"-"`
}

// IntentClient is the backend endpoint that issues payment intents.
type IntentClient interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

type HTTPIntentClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPIntentClient(baseURL string, client *http.Client) *HTTPIntentClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPIntentClient{baseURL: baseURL, client: client}
}

func (c *HTTPIntentClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments/intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	idempotency.Set(httpReq, req.SnapshotKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment backend returned status %d", resp.StatusCode)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	return &intent, nil
}
