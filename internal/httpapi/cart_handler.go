package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/metrics"
	"github.com/fjod/go_checkout/internal/pricing"
)

// CartStore is the slice of the cart store the handlers drive.
type CartStore interface {
	Refresh(ctx context.Context) (*cart.Cart, error)
	AddItem(ctx context.Context, productID string, variant *cart.Variant, quantity int) (*cart.Cart, error)
	SetQuantity(ctx context.Context, itemID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, itemID string) (*cart.Cart, error)
	Clear(ctx context.Context) (*cart.Cart, error)
	ApplyCoupon(ctx context.Context, code string) (*cart.Cart, error)
	RemoveCoupon(ctx context.Context) (*cart.Cart, error)
	Totals(shipping pricing.ShippingPolicy, tax pricing.TaxPolicy) pricing.Breakdown
}

// Stores resolves the per-session cart store.
type Stores interface {
	For(sessionKey string) CartStore
}

type CartHandler struct {
	stores   Stores
	shipping pricing.ShippingPolicy
	tax      pricing.TaxPolicy
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewCartHandler(stores Stores, shipping pricing.ShippingPolicy, tax pricing.TaxPolicy, timeout time.Duration, m *metrics.Metrics, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		stores:   stores,
		shipping: shipping,
		tax:      tax,
		timeout:  timeout,
		metrics:  m,
		log:      log,
	}
}

type addItemRequestDTO struct {
	ProductID string        `json:"product_id"`
	Variant   *cart.Variant `json:"variant,omitempty"`
	Quantity  int           `json:"quantity"`
}

type updateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequestDTO struct {
	Code string `json:"code"`
}

type cartViewDTO struct {
	Cart   *cart.Cart        `json:"cart"`
	Totals pricing.Breakdown `json:"totals"`
}

func (h *CartHandler) view(store CartStore, c *cart.Cart) cartViewDTO {
	return cartViewDTO{Cart: c, Totals: store.Totals(h.shipping, h.tax)}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.Refresh(ctx)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(store, c))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req addItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.AddItem(ctx, req.ProductID, req.Variant, req.Quantity)
	h.count("add", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.view(store, c))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	var req updateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	// quantity < 1 is a removal, handled inside the store
	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.SetQuantity(ctx, itemID, req.Quantity)
	h.count("set_quantity", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(store, c))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.RemoveItem(ctx, itemID)
	h.count("remove", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(store, c))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.Clear(ctx)
	h.count("clear", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(store, c))
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req applyCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_code", "code is required")
		return
	}

	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.ApplyCoupon(ctx, req.Code)
	h.count("apply_coupon", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(store, c))
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.stores.For(sessionKeyFromContext(r.Context()))
	c, err := store.RemoveCoupon(ctx)
	h.count("remove_coupon", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(store, c))
}

func (h *CartHandler) count(op string, err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.metrics.CartMutations.WithLabelValues(op, result).Inc()
}
