package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidToken = errors.New("session token rejected")

// HTTPProvider resolves tokens against the identity service.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{baseURL: baseURL, client: client}
}

type identityResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	BillingName string `json:"billing_name"`
}

func (p *HTTPProvider) Identity(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/sessions/me", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Identity{}, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var ir identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return Identity{}, fmt.Errorf("decode identity response: %w", err)
	}
	return Identity{
		Status:      StatusAuthenticated,
		UserID:      ir.UserID,
		Email:       ir.Email,
		BillingName: ir.BillingName,
	}, nil
}
