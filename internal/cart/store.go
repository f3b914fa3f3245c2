package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/pricing"
)

// ErrBusy is returned when a mutation is requested while another one is
// still in flight for the same store. Callers retry after the first one
// settles; the store never lets two mutations race.
var ErrBusy = errors.New("cart mutation already in flight")

// Store owns the canonical cart for one session. Every mutation is a remote
// round trip and the server response wholesale-replaces the local cart, so
// the client never diverges from server truth.
type Store struct {
	client    Client
	cache     SnapshotCache
	validator coupon.Validator
	key       string
	log       *zap.Logger
	sfg       singleflight.Group // collapses concurrent refreshes

	mu       sync.Mutex
	inFlight bool
	cart     *Cart
}

func NewStore(client Client, cache SnapshotCache, validator coupon.Validator, sessionKey string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:    client,
		cache:     cache,
		validator: validator,
		key:       sessionKey,
		log:       log,
	}
}

// Current returns a copy of the last server-confirmed cart, which may be
// nil before the first Refresh.
func (s *Store) Current() *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Refresh loads the cart, preferring the snapshot cache and collapsing
// concurrent callers onto one remote read.
func (s *Store) Refresh(ctx context.Context) (*Cart, error) {
	v, err, _ := s.sfg.Do(s.key, func() (interface{}, error) {
		if s.cache != nil {
			cached, err := s.cache.Get(ctx, s.key)
			if err == nil {
				return cached, nil
			}
			if !errors.Is(err, ErrCacheMiss) {
				s.log.Warn("cart cache get failed", zap.Error(err))
			}
		}

		fresh, err := s.client.Get(ctx)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			go func(c *Cart) {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := s.cache.Set(ctx, s.key, c); err != nil {
					s.log.Warn("cart cache set failed", zap.Error(err))
				}
			}(fresh.Clone())
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	cart := v.(*Cart)
	s.mu.Lock()
	s.cart = cart.Clone()
	s.mu.Unlock()
	return cart.Clone(), nil
}

func (s *Store) AddItem(ctx context.Context, productID string, variant *Variant, quantity int) (*Cart, error) {
	return s.mutate(ctx, true, func(ctx context.Context) (*Cart, error) {
		return s.client.AddItem(ctx, productID, variant, quantity)
	})
}

// SetQuantity updates a line's quantity. A quantity below one means the
// item is gone; it is rewritten to a removal and never sent to the backend
// as a literal zero.
func (s *Store) SetQuantity(ctx context.Context, itemID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, itemID)
	}
	return s.mutate(ctx, true, func(ctx context.Context) (*Cart, error) {
		return s.client.UpdateQuantity(ctx, itemID, quantity)
	})
}

// RemoveItem is idempotent: removing an item the server no longer has
// succeeds with the cart unchanged.
func (s *Store) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	return s.mutate(ctx, true, func(ctx context.Context) (*Cart, error) {
		next, err := s.client.RemoveItem(ctx, itemID)
		if errors.Is(err, ErrItemNotFound) {
			s.mu.Lock()
			current := s.cart.Clone()
			s.mu.Unlock()
			if current == nil {
				current = &Cart{}
			}
			return current, nil
		}
		return next, err
	})
}

func (s *Store) Clear(ctx context.Context) (*Cart, error) {
	return s.mutate(ctx, true, func(ctx context.Context) (*Cart, error) {
		return s.client.Clear(ctx)
	})
}

// ApplyCoupon validates the code against the current cart and, on
// acceptance, attaches it through the cart service so the coupon lives on
// the server cart and survives refreshes. On rejection the cart is
// untouched and the typed rejection is returned for the caller to display.
func (s *Store) ApplyCoupon(ctx context.Context, code string) (*Cart, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	s.mu.Lock()
	current := s.cart.Clone()
	s.mu.Unlock()
	if current == nil {
		current = &Cart{}
	}

	if current.AppliedCoupon != nil && current.AppliedCoupon.Code == code {
		return nil, &coupon.RejectionError{Reason: coupon.ReasonAlreadyApplied}
	}

	if _, err := s.validator.Validate(ctx, code, current.Snapshot()); err != nil {
		return nil, err
	}

	next, err := s.client.ApplyCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	s.replace(next)
	s.log.Info("coupon applied", zap.String("code", code))
	return next.Clone(), nil
}

// RemoveCoupon detaches the applied coupon through the cart service.
func (s *Store) RemoveCoupon(ctx context.Context) (*Cart, error) {
	return s.mutate(ctx, false, func(ctx context.Context) (*Cart, error) {
		return s.client.RemoveCoupon(ctx)
	})
}

// Totals derives the priced breakdown from the current cart. Never cached.
func (s *Store) Totals(shipping pricing.ShippingPolicy, tax pricing.TaxPolicy) pricing.Breakdown {
	s.mu.Lock()
	current := s.cart.Clone()
	s.mu.Unlock()
	var applied *coupon.Descriptor
	if current != nil {
		applied = current.AppliedCoupon
	}
	return pricing.Price(current.PricingItems(), applied, shipping, tax)
}

func (s *Store) mutate(ctx context.Context, itemMutation bool, call func(ctx context.Context) (*Cart, error)) (*Cart, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	next, err := call(ctx)
	if err != nil {
		return nil, err
	}

	if itemMutation && next.AppliedCoupon != nil {
		// items changed under the coupon; the discount is stale until the
		// code is re-applied, so clear it server-side too
		cleared, err := s.client.RemoveCoupon(ctx)
		if err != nil {
			next.AppliedCoupon = nil
			s.log.Warn("coupon removal after cart mutation failed", zap.Error(err))
		} else {
			next = cleared
		}
		s.log.Info("coupon dropped after cart mutation")
	}

	s.replace(next)
	return next.Clone(), nil
}

func (s *Store) replace(next *Cart) {
	s.mu.Lock()
	s.cart = next.Clone()
	s.mu.Unlock()
	s.invalidateCache()
}

func (s *Store) invalidateCache() {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, s.key); err != nil {
		s.log.Warn("cart cache invalidate failed", zap.Error(err))
	}
}

func (s *Store) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrBusy
	}
	s.inFlight = true
	return nil
}

func (s *Store) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}
