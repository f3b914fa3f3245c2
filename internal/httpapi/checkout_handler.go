package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/metrics"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/session"
)

// Beginner constructs a checkout machine for the caller's session. Wired
// in main so the handler never sees cart pools or payment plumbing.
type Beginner func(ctx context.Context, identity session.Identity, sessionKey string) (*checkout.Machine, error)

type CheckoutHandler struct {
	registry *checkout.Registry
	begin    Beginner
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewCheckoutHandler(registry *checkout.Registry, begin Beginner, timeout time.Duration, m *metrics.Metrics, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{
		registry: registry,
		begin:    begin,
		timeout:  timeout,
		metrics:  m,
		log:      log,
	}
}

type guestEmailRequestDTO struct {
	Email string `json:"email"`
}

type cardRequestDTO struct {
	Number     string `json:"number"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holder_name"`
}

type paymentRequestDTO struct {
	Method string          `json:"method"`
	Card   *cardRequestDTO `json:"card,omitempty"`
}

// checkoutStateDTO is the session view the UI renders. Card details never
// appear here.
type checkoutStateDTO struct {
	CheckoutID  string            `json:"checkout_id"`
	State       string            `json:"state"`
	Totals      pricing.Breakdown `json:"totals"`
	GuestEmail  string            `json:"guest_email,omitempty"`
	CouponCode  string            `json:"coupon_code,omitempty"`
	Shipping    *order.Address    `json:"shipping_address,omitempty"`
	Method      string            `json:"payment_method,omitempty"`
	CardOnDraft bool              `json:"card_entered"`
}

type paymentResponseDTO struct {
	checkoutStateDTO
	Outcome outcomeDTO `json:"outcome"`
}

type outcomeDTO struct {
	Status           string `json:"status"`
	Reference        string `json:"reference,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Transient        bool   `json:"transient"`
	MayHaveSucceeded bool   `json:"may_have_succeeded"`
}

func stateView(m *checkout.Machine) checkoutStateDTO {
	draft := m.Draft()
	dto := checkoutStateDTO{
		CheckoutID:  draft.ID,
		State:       m.State().String(),
		Totals:      m.Totals(),
		GuestEmail:  draft.GuestEmail,
		CouponCode:  draft.CouponCode(),
		Shipping:    draft.Shipping,
		CardOnDraft: draft.Card != nil,
	}
	if draft.Method != "" {
		dto.Method = string(draft.Method)
	}
	return dto
}

func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity := identityFromContext(r.Context())
	m, err := h.begin(ctx, identity, sessionKeyFromContext(r.Context()))
	h.step("begin", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.registry.Put(m)
	respondJSON(w, http.StatusCreated, stateView(m))
}

func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stateView(m))
}

func (h *CheckoutHandler) SubmitGuestEmail(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req guestEmailRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err = m.SubmitGuestEmail(req.Email)
	h.step("guest_email", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stateView(m))
}

func (h *CheckoutHandler) ConfirmCart(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err = m.ConfirmCart(ctx)
	h.step("confirm_cart", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stateView(m))
}

func (h *CheckoutHandler) CommitShipping(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var addr order.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err = m.CommitShipping(addr)
	h.step("shipping", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stateView(m))
}

func (h *CheckoutHandler) CommitPayment(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req paymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var card *payment.CardDetails
	if req.Card != nil {
		card = &payment.CardDetails{
			Number:     req.Card.Number,
			ExpMonth:   req.Card.ExpMonth,
			ExpYear:    req.Card.ExpYear,
			CVC:        req.Card.CVC,
			HolderName: req.Card.HolderName,
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	outcome, err := m.CommitPayment(ctx, payment.Method(req.Method), card)
	h.step("payment", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Payments.WithLabelValues(req.Method, outcome.Status.String()).Inc()
	}

	respondJSON(w, http.StatusOK, paymentResponseDTO{
		checkoutStateDTO: stateView(m),
		Outcome: outcomeDTO{
			Status:           outcome.Status.String(),
			Reference:        outcome.Reference,
			Reason:           outcome.Reason,
			Transient:        outcome.Transient,
			MayHaveSucceeded: outcome.MayHaveSucceeded,
		},
	})
}

func (h *CheckoutHandler) Prev(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	err = m.Prev()
	h.step("prev", err)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stateView(m))
}

func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	m, err := h.machine(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	placed, err := m.PlaceOrder(ctx)
	h.step("place_order", err)
	if h.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		h.metrics.OrderPlacement.WithLabelValues(result).Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		h.log.Warn("order placement failed",
			zap.String("checkout_id", chi.URLParam(r, "checkout_id")),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, placed)
}

func (h *CheckoutHandler) machine(r *http.Request) (*checkout.Machine, error) {
	id := chi.URLParam(r, "checkout_id")
	return h.registry.Get(id)
}

func (h *CheckoutHandler) step(step string, err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.metrics.CheckoutSteps.WithLabelValues(step, result).Inc()
}
