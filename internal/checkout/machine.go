package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/session"
)

type State string

const (
	StateGuestEntry      State = "GUEST_ENTRY"
	StateCartReview      State = "CART_REVIEW"
	StateShippingAddress State = "SHIPPING_ADDRESS"
	StatePayment         State = "PAYMENT"
	StateReviewConfirm   State = "REVIEW_CONFIRM"
	StateConfirmed       State = "CONFIRMED"
)

func (s State) String() string { return string(s) }

// prevState is the controlled backward edge for each step. Backward moves
// never discard draft data.
var prevState = map[State]State{
	StateShippingAddress: StateCartReview,
	StatePayment:         StateShippingAddress,
	StateReviewConfirm:   StatePayment,
}

var (
	ErrEmptyCart         = errors.New("cart is empty, nothing to check out")
	ErrIllegalTransition = errors.New("illegal checkout transition")
	ErrPaymentInFlight   = errors.New("payment attempt already in flight")
	ErrPlacementInFlight = errors.New("order placement already in flight")
	ErrPaymentIncomplete = errors.New("payment has not completed")
)

// FieldErrors maps input field names to human-readable problems. Returned
// by step commits that fail local validation; the machine stays put.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("invalid fields: %s", strings.Join(keys, ", "))
}

// CartAccess is the slice of the cart store checkout reads from.
type CartAccess interface {
	Current() *cart.Cart
	Refresh(ctx context.Context) (*cart.Cart, error)
}

type Payer interface {
	Pay(ctx context.Context, req payment.PayRequest) (payment.Outcome, error)
}

type Assembler interface {
	Assemble(ctx context.Context, req order.CreateRequest, outcome payment.Outcome) (*order.Order, error)
}

// Config wires a machine for one checkout session. Identity is injected
// once and re-read at step entry, never pulled from ambient state.
type Config struct {
	Carts     CartAccess
	Coupons   coupon.Validator
	Payer     Payer
	Assembler Assembler
	Identity  session.Identity
	Shipping  pricing.ShippingPolicy
	Tax       pricing.TaxPolicy
	Currency  string
	Logger    *zap.Logger
}

// Machine walks one buyer through checkout. It is the single owner of the
// draft; every mutation happens inside a transition handler under the lock.
type Machine struct {
	mu sync.Mutex

	state    State
	draft    *Draft
	identity session.Identity

	carts     CartAccess
	coupons   coupon.Validator
	payer     Payer
	assembler Assembler
	shipping  pricing.ShippingPolicy
	tax       pricing.TaxPolicy
	currency  string
	log       *zap.Logger

	lastOutcome *payment.Outcome
	paying      bool
	placing     bool
	placed      *order.Order
}

// Begin starts a checkout session from the live cart. An empty cart
// short-circuits: the machine is never constructed with zero items.
func Begin(ctx context.Context, cfg Config) (*Machine, error) {
	c, err := cfg.Carts.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart for checkout: %w", err)
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	state := StateCartReview
	if !cfg.Identity.Authenticated() {
		state = StateGuestEntry
	}

	m := &Machine{
		state:     state,
		draft:     newDraft(c),
		identity:  cfg.Identity,
		carts:     cfg.Carts,
		coupons:   cfg.Coupons,
		payer:     cfg.Payer,
		assembler: cfg.Assembler,
		shipping:  cfg.Shipping,
		tax:       cfg.Tax,
		currency:  cfg.Currency,
		log:       log,
	}
	log.Info("checkout started",
		zap.String("draft_id", m.draft.ID),
		zap.String("state", state.String()),
		zap.Int("items", len(m.draft.Items)))
	return m, nil
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Draft() Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.draft
}

func (m *Machine) PlacedOrder() *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placed
}

// Totals recomputes the priced breakdown from the draft snapshot. Derived
// state, never stored.
func (m *Machine) Totals() pricing.Breakdown {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pricing.Price(m.draft.pricingItems(), m.draft.Coupon, m.shipping, m.tax)
}

// SubmitGuestEmail moves an unauthenticated session into the numbered
// steps. Guests are tracked by email until they create an account.
func (m *Machine) SubmitGuestEmail(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateGuestEntry {
		return fmt.Errorf("%w: guest entry from %s", ErrIllegalTransition, m.state)
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return FieldErrors{"email": "a valid email address is required"}
	}

	m.draft.GuestEmail = email
	m.state = StateCartReview
	return nil
}

// ConfirmCart re-reads the cart and advances to shipping. The fresh read
// re-seeds the draft so a cart mutated mid-checkout reprices here.
func (m *Machine) ConfirmCart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateCartReview {
		return fmt.Errorf("%w: confirm cart from %s", ErrIllegalTransition, m.state)
	}

	c, err := m.carts.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}
	if c.IsEmpty() {
		return ErrEmptyCart
	}

	m.draft.seedFromCart(c)
	m.state = StateShippingAddress
	return nil
}

// CommitShipping validates and records the address. Validation failures
// keep the machine at the shipping step with a field error map.
func (m *Machine) CommitShipping(addr order.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateShippingAddress {
		return fmt.Errorf("%w: commit shipping from %s", ErrIllegalTransition, m.state)
	}
	if errs := validateAddress(addr); len(errs) > 0 {
		return errs
	}

	m.draft.Shipping = &addr
	m.state = StatePayment
	return nil
}

// CommitPayment records the method, runs the payment attempt and advances
// on success. RequiresAction and failures keep the machine at the payment
// step; the entered details stay on the draft for the retry.
func (m *Machine) CommitPayment(ctx context.Context, method payment.Method, card *payment.CardDetails) (payment.Outcome, error) {
	m.mu.Lock()

	if m.state != StatePayment {
		m.mu.Unlock()
		return payment.Outcome{}, fmt.Errorf("%w: commit payment from %s", ErrIllegalTransition, m.state)
	}
	if !method.Known() {
		m.mu.Unlock()
		return payment.Outcome{}, FieldErrors{"method": "unknown payment method"}
	}
	if method.RequiresCapture() && card == nil {
		m.mu.Unlock()
		return payment.Outcome{}, FieldErrors{"card": "card details are required"}
	}
	if m.paying {
		m.mu.Unlock()
		return payment.Outcome{}, ErrPaymentInFlight
	}
	m.paying = true
	defer func() {
		m.mu.Lock()
		m.paying = false
		m.mu.Unlock()
	}()

	m.draft.Method = method
	m.draft.Card = card
	breakdown := pricing.Price(m.draft.pricingItems(), m.draft.Coupon, m.shipping, m.tax)
	req := payment.PayRequest{
		Amount:      breakdown.Total,
		Currency:    m.currency,
		Method:      method,
		Card:        card,
		Billing:     payment.BillingDetails{Name: m.identity.BillingName, Email: m.billingEmail()},
		SnapshotKey: m.draft.SnapshotKey(),
	}
	m.mu.Unlock()

	// the pay call runs outside the lock; once a confirmation is in
	// flight it must not be interrupted client-side
	outcome, err := m.payer.Pay(ctx, req)
	if err != nil {
		return payment.Outcome{}, fmt.Errorf("payment attempt: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOutcome = &outcome

	if outcome.Status == payment.OutcomeSucceeded {
		m.draft.PaymentRef = outcome.Reference
		m.state = StateReviewConfirm
		return outcome, nil
	}

	m.log.Info("payment did not complete",
		zap.String("draft_id", m.draft.ID),
		zap.String("status", outcome.Status.String()),
		zap.Bool("may_have_succeeded", outcome.MayHaveSucceeded))
	return outcome, nil
}

// Prev steps backward without discarding anything already collected.
func (m *Machine) Prev() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := prevState[m.state]
	if !ok {
		return fmt.Errorf("%w: no previous step from %s", ErrIllegalTransition, m.state)
	}
	m.state = prev
	return nil
}

// PlaceOrder commits the draft. It re-validates the cart and coupon, then
// invokes the assembler exactly once per user action: a failure leaves the
// machine at ReviewConfirm and is never retried automatically.
func (m *Machine) PlaceOrder(ctx context.Context) (*order.Order, error) {
	m.mu.Lock()
	if m.state == StateConfirmed {
		placed := m.placed
		m.mu.Unlock()
		return placed, nil
	}
	if m.state != StateReviewConfirm {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: place order from %s", ErrIllegalTransition, m.state)
	}
	if m.placing {
		m.mu.Unlock()
		return nil, ErrPlacementInFlight
	}
	m.placing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.placing = false
		m.mu.Unlock()
	}()

	c, err := m.carts.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh cart before order: %w", err)
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	m.mu.Lock()
	draft := *m.draft
	outcome := m.lastOutcome
	m.mu.Unlock()

	if draft.Coupon != nil {
		if err := m.revalidateCoupon(ctx, &draft); err != nil {
			return nil, err
		}
	}

	if draft.Method.RequiresCapture() {
		if outcome == nil || outcome.Status != payment.OutcomeSucceeded {
			return nil, ErrPaymentIncomplete
		}
	} else if outcome == nil {
		outcome = &payment.Outcome{Status: payment.OutcomeSucceeded}
	}

	breakdown := pricing.Price(draft.pricingItems(), draft.Coupon, m.shipping, m.tax)
	req := order.CreateRequest{
		DraftID:         draft.ID,
		UserID:          m.identity.UserID,
		GuestEmail:      draft.GuestEmail,
		Items:           draft.Items,
		ShippingAddress: *draft.Shipping,
		PaymentMethod:   draft.Method,
		CouponCode:      draft.CouponCode(),
		Breakdown:       breakdown,
		IdempotencyKey:  draft.ID,
	}

	created, err := m.assembler.Assemble(ctx, req, *outcome)
	if err != nil {
		// stay at ReviewConfirm; the user retries explicitly
		return nil, err
	}

	m.mu.Lock()
	m.placed = created
	m.state = StateConfirmed
	m.mu.Unlock()
	m.log.Info("checkout confirmed",
		zap.String("draft_id", draft.ID),
		zap.String("order_id", created.ID))
	return created, nil
}

// revalidateCoupon re-checks an applied coupon against the server right
// before order creation. A rejection drops the stale discount from the
// draft and surfaces it as a field error.
func (m *Machine) revalidateCoupon(ctx context.Context, draft *Draft) error {
	snap := coupon.Snapshot{}
	for _, it := range draft.Items {
		snap.Items = append(snap.Items, coupon.SnapshotItem{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
		snap.Subtotal += it.UnitPrice.Mul(it.Quantity)
	}

	_, err := m.coupons.Validate(ctx, draft.Coupon.Code, snap)
	if err == nil {
		return nil
	}

	var rej *coupon.RejectionError
	if errors.As(err, &rej) && rej.Reason != coupon.ReasonAlreadyApplied {
		m.mu.Lock()
		m.draft.Coupon = nil
		m.mu.Unlock()
		draft.Coupon = nil
		return FieldErrors{"coupon": fmt.Sprintf("coupon is no longer valid (%s)", rej.Reason)}
	}
	if errors.As(err, &rej) {
		// the applied code is still attached server-side; that is exactly
		// what we expected
		return nil
	}
	return fmt.Errorf("re-validate coupon: %w", err)
}

func (m *Machine) billingEmail() string {
	if m.identity.Email != "" {
		return m.identity.Email
	}
	return m.draft.GuestEmail
}

func validateAddress(addr order.Address) FieldErrors {
	errs := FieldErrors{}
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs[field] = field + " is required"
		}
	}
	check("full_name", addr.FullName)
	check("line1", addr.Line1)
	check("city", addr.City)
	check("postal_code", addr.PostalCode)
	check("country", addr.Country)
	if len(errs) == 0 {
		return nil
	}
	return errs
}
