package pricing

import (
	"fmt"

	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/money"
)

// Item is the priced view of a cart line. Quantity must be >= 1; the cart
// layer enforces that before items ever reach the engine.
type Item struct {
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// ShippingPolicy derives the shipping cost from the cart subtotal.
type ShippingPolicy func(subtotal money.Money) money.Money

func FreeShipping() ShippingPolicy {
	return func(money.Money) money.Money { return 0 }
}

func FlatRate(fee money.Money) ShippingPolicy {
	return func(money.Money) money.Money { return fee }
}

// FreeOverThreshold charges fee below the threshold and nothing at or above it.
func FreeOverThreshold(fee, threshold money.Money) ShippingPolicy {
	return func(subtotal money.Money) money.Money {
		if subtotal >= threshold {
			return 0
		}
		return fee
	}
}

// TaxPolicy is the injected jurisdiction rate. Tax is computed on the
// pre-discount subtotal and excludes shipping.
type TaxPolicy struct {
	RateBasisPoints int64
	Rounding        money.Rounding
}

// Breakdown is derived state. It is recomputed from inputs every time and
// never stored on the cart or the draft.
type Breakdown struct {
	Subtotal money.Money `json:"subtotal"`
	Shipping money.Money `json:"shipping"`
	Tax      money.Money `json:"tax"`
	Discount money.Money `json:"discount"`
	Total    money.Money `json:"total"`
}

// Price turns cart lines plus the injected policies into a priced breakdown.
// It is pure: no I/O, no failure modes. Malformed input is a bug upstream,
// so it panics instead of quietly pricing garbage.
func Price(items []Item, applied *coupon.Descriptor, shipping ShippingPolicy, tax TaxPolicy) Breakdown {
	var subtotal money.Money
	for _, it := range items {
		if it.Quantity < 1 {
			panic(fmt.Sprintf("pricing: item quantity %d, cart must reject this upstream", it.Quantity))
		}
		subtotal += it.UnitPrice.Mul(it.Quantity)
	}

	shippingCost := shipping(subtotal)
	taxAmount := subtotal.ApplyRate(tax.RateBasisPoints, tax.Rounding)
	discount := discountAmount(subtotal, applied)

	return Breakdown{
		Subtotal: subtotal,
		Shipping: shippingCost,
		Tax:      taxAmount,
		Discount: discount,
		Total:    money.Max(0, subtotal+shippingCost+taxAmount-discount),
	}
}

func discountAmount(subtotal money.Money, applied *coupon.Descriptor) money.Money {
	if applied == nil || subtotal < applied.MinimumOrder {
		return 0
	}
	switch applied.Kind {
	case coupon.KindPercentage:
		return subtotal.Percent(applied.Value)
	case coupon.KindFixedAmount:
		return money.Min(money.Money(applied.Value), subtotal)
	default:
		panic(fmt.Sprintf("pricing: unknown discount kind %q", applied.Kind))
	}
}
