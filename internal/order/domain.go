package order

import (
	"time"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
)

// Address is a complete shipping destination. Validation happens at the
// checkout step that collects it; by the time an Address reaches this
// package it is assumed complete.
type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Order is the immutable terminal artifact of checkout. The backend order
// service owns it after creation; this layer only reads it back for the
// confirmation view.
type Order struct {
	ID                string          `json:"id"`
	Number            string          `json:"order_number"`
	Items             []cart.LineItem `json:"items"`
	TotalAmount       money.Money     `json:"total_amount"`
	ShippingAddress   Address         `json:"shipping_address"`
	PaymentMethod     payment.Method  `json:"payment_method"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
}

// CreateRequest is the single order-creation payload. IdempotencyKey is the
// draft id: two submissions of the same draft must yield one order.
type CreateRequest struct {
	DraftID          string             `json:"draft_id"`
	UserID           string             `json:"user_id,omitempty"`
	GuestEmail       string             `json:"guest_email,omitempty"`
	Items            []cart.LineItem    `json:"items"`
	ShippingAddress  Address            `json:"shipping_address"`
	PaymentMethod    payment.Method     `json:"payment_method"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	CouponCode       string             `json:"coupon_code,omitempty"`
	Breakdown        pricing.Breakdown  `json:"breakdown"`
	IdempotencyKey   string             `json:"-"`
}
