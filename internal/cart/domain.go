package cart

import (
	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/internal/pricing"
)

type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// LineItem is one cart line. UnitPrice is snapshotted at add time by the
// cart service; the client never recomputes it.
type LineItem struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	Variant   *Variant    `json:"variant,omitempty"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Cart is the last server-confirmed cart state. Totals are never stored on
// it; they are derived through the pricing engine on demand.
type Cart struct {
	Items         []LineItem         `json:"items"`
	AppliedCoupon *coupon.Descriptor `json:"applied_coupon,omitempty"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// PricingItems adapts the cart lines for the pricing engine.
func (c *Cart) PricingItems() []pricing.Item {
	if c == nil {
		return nil
	}
	items := make([]pricing.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = pricing.Item{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return items
}

// Snapshot builds the view sent to coupon validation.
func (c *Cart) Snapshot() coupon.Snapshot {
	snap := coupon.Snapshot{}
	if c == nil {
		return snap
	}
	for _, it := range c.Items {
		snap.Items = append(snap.Items, coupon.SnapshotItem{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
		snap.Subtotal += it.UnitPrice.Mul(it.Quantity)
	}
	if c.AppliedCoupon != nil {
		snap.AppliedCode = c.AppliedCoupon.Code
	}
	return snap
}

// Clone returns a deep copy so callers can hold a cart without racing the
// store's replacement on the next mutation.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := &Cart{Items: make([]LineItem, len(c.Items))}
	copy(out.Items, c.Items)
	for i, it := range c.Items {
		if it.Variant != nil {
			v := *it.Variant
			out.Items[i].Variant = &v
		}
	}
	if c.AppliedCoupon != nil {
		d := *c.AppliedCoupon
		out.AppliedCoupon = &d
	}
	return out
}
