package coupon

import (
	"fmt"

	"github.com/fjod/go_checkout/internal/money"
)

type Kind string

const (
	KindPercentage  Kind = "PERCENTAGE"
	KindFixedAmount Kind = "FIXED_AMOUNT"
)

// Descriptor is the discount returned by a successful validation. Value is a
// whole percentage for KindPercentage and a minor-unit amount for
// KindFixedAmount.
type Descriptor struct {
	Code         string      `json:"code"`
	Kind         Kind        `json:"kind"`
	Value        int64       `json:"value"`
	MinimumOrder money.Money `json:"minimum_order"`
}

type RejectionReason string

const (
	ReasonNotFound           RejectionReason = "NOT_FOUND"
	ReasonExpired            RejectionReason = "EXPIRED"
	ReasonUsageLimitReached  RejectionReason = "USAGE_LIMIT_REACHED"
	ReasonMinimumOrderNotMet RejectionReason = "MINIMUM_ORDER_NOT_MET"
	ReasonAlreadyApplied     RejectionReason = "ALREADY_APPLIED"
)

// RejectionError is a definitive server-side refusal of a coupon code.
// It is distinct from transport failures, which surface as plain errors.
type RejectionError struct {
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Reason)
}

// SnapshotItem is the cart line view sent along with a validation request.
type SnapshotItem struct {
	ProductID string      `json:"product_id"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Snapshot is the cart state the coupon is validated against. AppliedCode
// lets the server reject a code that is already attached to the cart.
type Snapshot struct {
	Items       []SnapshotItem `json:"items"`
	Subtotal    money.Money    `json:"subtotal"`
	AppliedCode string         `json:"applied_code,omitempty"`
}
