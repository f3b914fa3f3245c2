package coupon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Validator checks a coupon code against a cart snapshot. The server holds
// the authoritative coupon rules; there is no client-side allow-list.
type Validator interface {
	Validate(ctx context.Context, code string, snapshot Snapshot) (*Descriptor, error)
}

type HTTPValidator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPValidator(baseURL string, client *http.Client) *HTTPValidator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPValidator{baseURL: baseURL, client: client}
}

type validateRequest struct {
	Code     string   `json:"code"`
	Snapshot Snapshot `json:"cart"`
}

type validateResponse struct {
	Coupon    *Descriptor `json:"coupon,omitempty"`
	Rejection string      `json:"rejection,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, code string, snapshot Snapshot) (*Descriptor, error) {
	body, err := json.Marshal(validateRequest{Code: code, Snapshot: snapshot})
	if err != nil {
		return nil, fmt.Errorf("marshal validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/coupons/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coupon service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var out validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode validate response: %w", err)
		}
		if out.Coupon == nil {
			return nil, fmt.Errorf("coupon service returned no coupon for %q", code)
		}
		return out.Coupon, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var out validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode rejection response: %w", err)
		}
		return nil, &RejectionError{Reason: rejectionFromCode(out.Rejection)}
	default:
		return nil, fmt.Errorf("coupon service returned status %d", resp.StatusCode)
	}
}

// rejectionFromCode maps the wire code onto the closed rejection set.
// Unknown codes degrade to NOT_FOUND rather than leaking server internals.
func rejectionFromCode(code string) RejectionReason {
	switch RejectionReason(code) {
	case ReasonExpired, ReasonUsageLimitReached, ReasonMinimumOrderNotMet, ReasonAlreadyApplied:
		return RejectionReason(code)
	default:
		return ReasonNotFound
	}
}
