package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
)

// Draft accumulates checkout inputs until an Order exists. It is mutated
// only by the state machine's own transition handlers and discarded once
// the order is placed or the session is abandoned.
type Draft struct {
	ID         string
	Items      []cart.LineItem
	Coupon     *coupon.Descriptor
	Shipping   *order.Address
	Method     payment.Method
	Card       *payment.CardDetails
	GuestEmail string
	PaymentRef string
	CreatedAt  time.Time
}

func newDraft(c *cart.Cart) *Draft {
	d := &Draft{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	d.seedFromCart(c)
	return d
}

// seedFromCart re-snapshots the priced lines and coupon. Called at draft
// creation and again whenever checkout re-reads the cart, so the draft
// never prices lines the server no longer has.
func (d *Draft) seedFromCart(c *cart.Cart) {
	d.Items = nil
	d.Coupon = nil
	if c == nil {
		return
	}
	d.Items = make([]cart.LineItem, len(c.Items))
	copy(d.Items, c.Items)
	if c.AppliedCoupon != nil {
		desc := *c.AppliedCoupon
		d.Coupon = &desc
	}
}

func (d *Draft) CouponCode() string {
	if d.Coupon == nil {
		return ""
	}
	return d.Coupon.Code
}

func (d *Draft) pricingItems() []pricing.Item {
	items := make([]pricing.Item, len(d.Items))
	for i, it := range d.Items {
		items[i] = pricing.Item{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return items
}

type snapshotLine struct {
	ProductID string `json:"p"`
	UnitPrice int64  `json:"u"`
	Quantity  int    `json:"q"`
}

// SnapshotKey is a stable digest of everything that determines the charge.
// It keys payment-intent creation: an unchanged draft retries onto the same
// backend intent, a mutated draft gets a fresh one.
func (d *Draft) SnapshotKey() string {
	lines := make([]snapshotLine, len(d.Items))
	for i, it := range d.Items {
		lines[i] = snapshotLine{ProductID: it.ProductID, UnitPrice: int64(it.UnitPrice), Quantity: it.Quantity}
	}
	payload, _ := json.Marshal(struct {
		DraftID string         `json:"d"`
		Lines   []snapshotLine `json:"l"`
		Coupon  string         `json:"c,omitempty"`
		Method  payment.Method `json:"m,omitempty"`
	}{
		DraftID: d.ID,
		Lines:   lines,
		Coupon:  d.CouponCode(),
		Method:  d.Method,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
