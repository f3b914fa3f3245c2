package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPProcessor confirms intents against the processor's API. This is the
// only component that ever serializes card details.
type HTTPProcessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProcessor(baseURL, apiKey string, client *http.Client) *HTTPProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProcessor{baseURL: baseURL, apiKey: apiKey, client: client}
}

type confirmRequest struct {
	ClientSecret string `json:"client_secret"`
	CardNumber   string `json:"card_number"`
	ExpMonth     int    `json:"exp_month"`
	ExpYear      int    `json:"exp_year"`
	CVC          string `json:"cvc"`
	HolderName   string `json:"holder_name,omitempty"`
	BillingName  string `json:"billing_name,omitempty"`
	BillingEmail string `json:"billing_email,omitempty"`
}

type confirmResponse struct {
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

func (p *HTTPProcessor) ConfirmIntent(ctx context.Context, clientSecret string, card CardDetails, billing BillingDetails) (ConfirmResult, error) {
	body, err := json.Marshal(confirmRequest{
		ClientSecret: clientSecret,
		CardNumber:   card.Number,
		ExpMonth:     card.ExpMonth,
		ExpYear:      card.ExpYear,
		CVC:          card.CVC,
		HolderName:   card.HolderName,
		BillingName:  billing.Name,
		BillingEmail: billing.Email,
	})
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("marshal confirm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/intents/confirm", bytes.NewReader(body))
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("build confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("processor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ConfirmResult{}, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	var cr confirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return ConfirmResult{}, fmt.Errorf("decode confirm response: %w", err)
	}

	switch cr.Status {
	case "succeeded":
		return ConfirmResult{Status: ConfirmSucceeded, Reference: cr.Reference}, nil
	case "requires_action":
		return ConfirmResult{Status: ConfirmRequiresAction}, nil
	default:
		return ConfirmResult{Status: ConfirmDeclined, DeclineReason: cr.DeclineReason}, nil
	}
}
