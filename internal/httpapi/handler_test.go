package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/metrics"
	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/session"
)

type fakeCartStore struct {
	cart      *cart.Cart
	err       error
	couponErr error
	lastOp    string
}

func (f *fakeCartStore) Refresh(ctx context.Context) (*cart.Cart, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCartStore) AddItem(ctx context.Context, productID string, variant *cart.Variant, quantity int) (*cart.Cart, error) {
	f.lastOp = "add"
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCartStore) SetQuantity(ctx context.Context, itemID string, quantity int) (*cart.Cart, error) {
	f.lastOp = "set_quantity"
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCartStore) RemoveItem(ctx context.Context, itemID string) (*cart.Cart, error) {
	f.lastOp = "remove"
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCartStore) Clear(ctx context.Context) (*cart.Cart, error) {
	f.lastOp = "clear"
	if f.err != nil {
		return nil, f.err
	}
	return &cart.Cart{}, nil
}

func (f *fakeCartStore) ApplyCoupon(ctx context.Context, code string) (*cart.Cart, error) {
	f.lastOp = "apply_coupon"
	if f.couponErr != nil {
		return nil, f.couponErr
	}
	f.cart.AppliedCoupon = &coupon.Descriptor{Code: code, Kind: coupon.KindPercentage, Value: 20}
	return f.cart, nil
}

func (f *fakeCartStore) RemoveCoupon(ctx context.Context) (*cart.Cart, error) {
	f.lastOp = "remove_coupon"
	f.cart.AppliedCoupon = nil
	return f.cart, nil
}

func (f *fakeCartStore) Totals(shipping pricing.ShippingPolicy, tax pricing.TaxPolicy) pricing.Breakdown {
	if f.cart == nil {
		return pricing.Breakdown{}
	}
	return pricing.Price(f.cart.PricingItems(), f.cart.AppliedCoupon, shipping, tax)
}

type fakeStores struct {
	stores map[string]*fakeCartStore
	keys   []string
}

func (f *fakeStores) For(sessionKey string) CartStore {
	f.keys = append(f.keys, sessionKey)
	if s, ok := f.stores[sessionKey]; ok {
		return s
	}
	s := &fakeCartStore{cart: &cart.Cart{}}
	if f.stores == nil {
		f.stores = make(map[string]*fakeCartStore)
	}
	f.stores[sessionKey] = s
	return s
}

type stubProvider struct {
	identity session.Identity
	err      error
}

func (p *stubProvider) Identity(ctx context.Context, token string) (session.Identity, error) {
	if p.err != nil {
		return session.Identity{}, p.err
	}
	return p.identity, nil
}

func twoShirtsCart() *cart.Cart {
	return &cart.Cart{Items: []cart.LineItem{{
		ID:        "line-1",
		ProductID: "shirt-1",
		UnitPrice: money.FromMajor(20),
		Quantity:  2,
	}}}
}

func newCartServer(t *testing.T, stores *fakeStores) *httptest.Server {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	h := NewCartHandler(stores, pricing.FreeShipping(), pricing.TaxPolicy{RateBasisPoints: 800, Rounding: money.RoundHalfUp}, 5*time.Second, m, nil)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(&stubProvider{}))
	Routes(r, h, NewCheckoutHandler(checkout.NewRegistry(time.Minute, nil), nil, 5*time.Second, m, nil))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("X-Session-ID", "sess-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestGetCart_ReturnsDerivedTotals(t *testing.T) {
	stores := &fakeStores{stores: map[string]*fakeCartStore{
		"sess-1": {cart: twoShirtsCart()},
	}}
	srv := newCartServer(t, stores)

	resp := doJSON(t, http.MethodGet, srv.URL+"/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view cartViewDTO
	decode(t, resp, &view)
	assert.Equal(t, money.Money(4000), view.Totals.Subtotal)
	assert.Equal(t, money.Money(320), view.Totals.Tax)
	assert.Equal(t, money.Money(4320), view.Totals.Total)
}

func TestAddItem_ValidatesInput(t *testing.T) {
	srv := newCartServer(t, &fakeStores{})

	tests := []struct {
		name string
		body addItemRequestDTO
		code string
	}{
		{"missing product", addItemRequestDTO{Quantity: 1}, "invalid_product_id"},
		{"zero quantity", addItemRequestDTO{ProductID: "shirt-1"}, "invalid_quantity"},
		{"negative quantity", addItemRequestDTO{ProductID: "shirt-1", Quantity: -2}, "invalid_quantity"},
		{"absurd quantity", addItemRequestDTO{ProductID: "shirt-1", Quantity: 100}, "invalid_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/cart/items", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var errResp ErrorResponse
			decode(t, resp, &errResp)
			assert.Equal(t, tt.code, errResp.Code)
		})
	}
}

func TestAddItem_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"out of stock", cart.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
		{"unavailable", cart.ErrProductUnavailable, http.StatusConflict, "product_unavailable"},
		{"busy", cart.ErrBusy, http.StatusTooManyRequests, "busy"},
		{"unauthenticated", cart.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"transient", &cart.TransientError{Err: fmt.Errorf("gateway timeout")}, http.StatusServiceUnavailable, "service_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stores := &fakeStores{stores: map[string]*fakeCartStore{
				"sess-1": {err: tt.err},
			}}
			srv := newCartServer(t, stores)

			resp := doJSON(t, http.MethodPost, srv.URL+"/cart/items", addItemRequestDTO{ProductID: "shirt-1", Quantity: 1})
			require.Equal(t, tt.status, resp.StatusCode)
			var errResp ErrorResponse
			decode(t, resp, &errResp)
			assert.Equal(t, tt.code, errResp.Code)
		})
	}
}

func TestApplyCoupon_DiscountInResponseTotals(t *testing.T) {
	stores := &fakeStores{stores: map[string]*fakeCartStore{
		"sess-1": {cart: twoShirtsCart()},
	}}
	srv := newCartServer(t, stores)

	resp := doJSON(t, http.MethodPost, srv.URL+"/cart/coupon", applyCouponRequestDTO{Code: "SAVE20"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view cartViewDTO
	decode(t, resp, &view)
	require.NotNil(t, view.Cart.AppliedCoupon)
	assert.Equal(t, "SAVE20", view.Cart.AppliedCoupon.Code)
	assert.Equal(t, money.Money(800), view.Totals.Discount)
	assert.Equal(t, money.Money(3520), view.Totals.Total)
}

func TestApplyCoupon_RejectionIsUnprocessable(t *testing.T) {
	stores := &fakeStores{stores: map[string]*fakeCartStore{
		"sess-1": {cart: twoShirtsCart(), couponErr: &coupon.RejectionError{Reason: coupon.ReasonExpired}},
	}}
	srv := newCartServer(t, stores)

	resp := doJSON(t, http.MethodPost, srv.URL+"/cart/coupon", applyCouponRequestDTO{Code: "OLD10"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "coupon_rejected", errResp.Code)
	assert.Equal(t, string(coupon.ReasonExpired), errResp.Fields["coupon"])
}

func TestGuestRequest_RequiresSessionHeader(t *testing.T) {
	srv := newCartServer(t, &fakeStores{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/cart", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "missing_session", errResp.Code)
}

func TestAuthenticatedRequest_KeyedByUserID(t *testing.T) {
	stores := &fakeStores{}
	m := metrics.New(prometheus.NewRegistry())
	h := NewCartHandler(stores, pricing.FreeShipping(), pricing.TaxPolicy{}, 5*time.Second, m, nil)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(&stubProvider{identity: session.Identity{
		Status: session.StatusAuthenticated,
		UserID: "user-42",
	}}))
	Routes(r, h, NewCheckoutHandler(checkout.NewRegistry(time.Minute, nil), nil, 5*time.Second, m, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/cart", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token-abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"user-42"}, stores.keys)
}

// --- checkout handler ---

type checkoutCartAccess struct {
	cart *cart.Cart
}

func (c *checkoutCartAccess) Current() *cart.Cart { return c.cart }

func (c *checkoutCartAccess) Refresh(ctx context.Context) (*cart.Cart, error) {
	return c.cart, nil
}

type stubPayer struct {
	outcome payment.Outcome
}

func (p *stubPayer) Pay(ctx context.Context, req payment.PayRequest) (payment.Outcome, error) {
	return p.outcome, nil
}

type stubAssembler struct {
	order *order.Order
}

func (a *stubAssembler) Assemble(ctx context.Context, req order.CreateRequest, outcome payment.Outcome) (*order.Order, error) {
	a.order = &order.Order{
		ID:              "ord-1",
		Number:          "2026-000123",
		Items:           req.Items,
		TotalAmount:     req.Breakdown.Total,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       time.Now().UTC(),
	}
	return a.order, nil
}

func newCheckoutServer(t *testing.T, identity session.Identity, c *cart.Cart) *httptest.Server {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	registry := checkout.NewRegistry(time.Minute, nil)

	begin := func(ctx context.Context, id session.Identity, sessionKey string) (*checkout.Machine, error) {
		return checkout.Begin(ctx, checkout.Config{
			Carts:     &checkoutCartAccess{cart: c},
			Payer:     &stubPayer{outcome: payment.Outcome{Status: payment.OutcomeSucceeded, Reference: "pi_1"}},
			Assembler: &stubAssembler{},
			Identity:  id,
			Shipping:  pricing.FreeShipping(),
			Tax:       pricing.TaxPolicy{RateBasisPoints: 800, Rounding: money.RoundHalfUp},
			Currency:  "USD",
		})
	}

	ch := NewCheckoutHandler(registry, begin, 5*time.Second, m, nil)
	carts := NewCartHandler(&fakeStores{}, pricing.FreeShipping(), pricing.TaxPolicy{}, 5*time.Second, m, nil)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(&stubProvider{identity: identity}))
	Routes(r, carts, ch)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func validAddress() order.Address {
	return order.Address{
		FullName:   "Ada Lovelace",
		Line1:      "12 Analytical Way",
		City:       "London",
		PostalCode: "N1 7AA",
		Country:    "GB",
	}
}

func TestCheckout_GuestFlowToOrder(t *testing.T) {
	srv := newCheckoutServer(t, session.Identity{Status: session.StatusGuest}, twoShirtsCart())

	resp := doJSON(t, http.MethodPost, srv.URL+"/checkout", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var state checkoutStateDTO
	decode(t, resp, &state)
	require.NotEmpty(t, state.CheckoutID)
	require.Equal(t, "GUEST_ENTRY", state.State)

	base := srv.URL + "/checkout/" + state.CheckoutID

	resp = doJSON(t, http.MethodPost, base+"/guest", guestEmailRequestDTO{Email: "ada@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &state)
	require.Equal(t, "CART_REVIEW", state.State)
	assert.Equal(t, "ada@example.com", state.GuestEmail)

	resp = doJSON(t, http.MethodPost, base+"/cart/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &state)
	require.Equal(t, "SHIPPING_ADDRESS", state.State)

	resp = doJSON(t, http.MethodPost, base+"/shipping", validAddress())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &state)
	require.Equal(t, "PAYMENT", state.State)
	require.NotNil(t, state.Shipping)

	resp = doJSON(t, http.MethodPost, base+"/payment", paymentRequestDTO{
		Method: "CARD",
		Card:   &cardRequestDTO{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123", HolderName: "Ada Lovelace"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payResp paymentResponseDTO
	decode(t, resp, &payResp)
	require.Equal(t, "REVIEW_CONFIRM", payResp.State)
	assert.Equal(t, "SUCCEEDED", payResp.Outcome.Status)
	assert.Equal(t, "pi_1", payResp.Outcome.Reference)
	assert.True(t, payResp.CardOnDraft)

	resp = doJSON(t, http.MethodPost, base+"/order", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var placed order.Order
	decode(t, resp, &placed)
	assert.Equal(t, "ord-1", placed.ID)
	assert.Equal(t, money.Money(4320), placed.TotalAmount)
}

func TestCheckout_PaymentResponseNeverEchoesCard(t *testing.T) {
	srv := newCheckoutServer(t, session.Identity{
		Status: session.StatusAuthenticated, UserID: "user-1", Email: "u@example.com",
	}, twoShirtsCart())

	resp := doJSON(t, http.MethodPost, srv.URL+"/checkout", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var state checkoutStateDTO
	decode(t, resp, &state)
	require.Equal(t, "CART_REVIEW", state.State)

	base := srv.URL + "/checkout/" + state.CheckoutID
	doJSON(t, http.MethodPost, base+"/cart/confirm", nil)
	doJSON(t, http.MethodPost, base+"/shipping", validAddress())

	resp = doJSON(t, http.MethodPost, base+"/payment", paymentRequestDTO{
		Method: "CARD",
		Card:   &cardRequestDTO{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	decode(t, resp, &raw)
	_, hasCard := raw["card"]
	assert.False(t, hasCard)
	body, _ := json.Marshal(raw)
	assert.NotContains(t, string(body), "4242424242424242")
}

func TestCheckout_UnknownSessionIs404(t *testing.T) {
	srv := newCheckoutServer(t, session.Identity{Status: session.StatusGuest}, twoShirtsCart())

	resp := doJSON(t, http.MethodGet, srv.URL+"/checkout/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "checkout_not_found", errResp.Code)
}

func TestCheckout_WrongStepIsConflict(t *testing.T) {
	srv := newCheckoutServer(t, session.Identity{Status: session.StatusGuest}, twoShirtsCart())

	resp := doJSON(t, http.MethodPost, srv.URL+"/checkout", nil)
	var state checkoutStateDTO
	decode(t, resp, &state)

	resp = doJSON(t, http.MethodPost, srv.URL+"/checkout/"+state.CheckoutID+"/order", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "wrong_step", errResp.Code)
}

func TestCheckout_ShippingFieldErrorsKeepState(t *testing.T) {
	srv := newCheckoutServer(t, session.Identity{
		Status: session.StatusAuthenticated, UserID: "user-1",
	}, twoShirtsCart())

	resp := doJSON(t, http.MethodPost, srv.URL+"/checkout", nil)
	var state checkoutStateDTO
	decode(t, resp, &state)
	base := srv.URL + "/checkout/" + state.CheckoutID
	doJSON(t, http.MethodPost, base+"/cart/confirm", nil)

	resp = doJSON(t, http.MethodPost, base+"/shipping", order.Address{FullName: "Ada Lovelace"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "validation_failed", errResp.Code)
	assert.Contains(t, errResp.Fields, "line1")
	assert.Contains(t, errResp.Fields, "country")

	resp = doJSON(t, http.MethodGet, base, nil)
	decode(t, resp, &state)
	assert.Equal(t, "SHIPPING_ADDRESS", state.State)
}

func TestCheckout_EmptyCartCannotBegin(t *testing.T) {
	srv := newCheckoutServer(t, session.Identity{Status: session.StatusGuest}, &cart.Cart{})

	resp := doJSON(t, http.MethodPost, srv.URL+"/checkout", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "cart_empty", errResp.Code)
}
