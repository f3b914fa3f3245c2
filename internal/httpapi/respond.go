package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/order"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondDomainError maps engine errors onto HTTP statuses without leaking
// internals. Transient failures get statuses the UI reads as "retry";
// rejections as "fix your input".
func respondDomainError(w http.ResponseWriter, err error) {
	var fields checkout.FieldErrors
	if errors.As(err, &fields) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "some fields are invalid",
			Code:   "validation_failed",
			Fields: fields,
		})
		return
	}

	var rejection *coupon.RejectionError
	if errors.As(err, &rejection) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "this coupon cannot be applied",
			Code:  "coupon_rejected",
			Fields: map[string]string{
				"coupon": string(rejection.Reason),
			},
		})
		return
	}

	var assembly *order.AssemblyError
	if errors.As(err, &assembly) {
		if assembly.PaymentCaptured {
			// the charge landed but the order did not; never invite a
			// fresh payment here
			respondError(w, http.StatusBadGateway, "order_unconfirmed_payment_received",
				"your payment was received but the order could not be confirmed, please contact support")
			return
		}
		respondError(w, http.StatusBadGateway, "order_failed", "the order could not be placed, please try again")
		return
	}

	var cartTransient *cart.TransientError
	var orderTransient *order.TransientError
	switch {
	case errors.Is(err, cart.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "sign in to continue")
	case errors.Is(err, cart.ErrBusy), errors.Is(err, checkout.ErrPaymentInFlight), errors.Is(err, checkout.ErrPlacementInFlight):
		respondError(w, http.StatusTooManyRequests, "busy", "another update is still in progress")
	case errors.Is(err, cart.ErrOutOfStock):
		respondError(w, http.StatusConflict, "out_of_stock", "this product is out of stock")
	case errors.Is(err, cart.ErrProductUnavailable):
		respondError(w, http.StatusConflict, "product_unavailable", "this product is no longer available")
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", "cart item not found")
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusConflict, "cart_empty", "your cart is empty")
	case errors.Is(err, checkout.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "checkout_not_found", "checkout session not found")
	case errors.Is(err, checkout.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "wrong_step", "this action is not available at the current step")
	case errors.Is(err, checkout.ErrPaymentIncomplete):
		respondError(w, http.StatusConflict, "payment_incomplete", "complete payment before placing the order")
	case errors.As(err, &cartTransient), errors.As(err, &orderTransient):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "a backend service is unavailable, please retry")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
