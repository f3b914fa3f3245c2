package money

import "fmt"

// Money is an amount in minor currency units (cents). All cart and order
// arithmetic happens in minor units so repeated additions stay exact.
type Money int64

// Rounding selects how fractional minor units are resolved by rate math.
type Rounding int

const (
	RoundHalfUp Rounding = iota
	RoundDown
	RoundUp
)

// FromMajor converts whole currency units to Money, e.g. FromMajor(20) == 2000.
func FromMajor(units int64) Money {
	return Money(units * 100)
}

// Mul scales the amount by an item quantity.
func (m Money) Mul(qty int) Money {
	return m * Money(qty)
}

// Percent returns pct% of the amount, rounded half up.
// Percent must be non-negative.
func (m Money) Percent(pct int64) Money {
	return m.ApplyRate(pct*100, RoundHalfUp)
}

// ApplyRate multiplies the amount by a basis-point rate (800 = 8%) and
// rounds the fractional remainder according to r.
func (m Money) ApplyRate(basisPoints int64, r Rounding) Money {
	raw := int64(m) * basisPoints
	q := raw / 10000
	rem := raw % 10000
	if rem == 0 {
		return Money(q)
	}
	switch r {
	case RoundDown:
		return Money(q)
	case RoundUp:
		return Money(q + 1)
	default:
		if rem*2 >= 10000 {
			return Money(q + 1)
		}
		return Money(q)
	}
}

func Min(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

// String renders the amount as major units with two decimals, e.g. "35.20".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
