package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/payment"
)

// AssemblyError is a failed order creation. PaymentCaptured tells the
// caller the charge already landed, so the user must see "payment received
// but order not confirmed" instead of being offered a fresh payment.
type AssemblyError struct {
	Err             error
	PaymentCaptured bool
	Transient       bool
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("order assembly failed (payment captured: %v): %v", e.PaymentCaptured, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// CartClearer is the slice of the cart store the assembler needs.
type CartClearer interface {
	Clear(ctx context.Context) (*cart.Cart, error)
}

// Assembler turns a finished draft plus a payment outcome into a created
// Order: one creation request, then cart clearing and the confirmed event,
// both best effort.
type Assembler struct {
	client Client
	carts  CartClearer
	pub    Publisher
	log    *zap.Logger
}

func NewAssembler(client Client, carts CartClearer, pub Publisher, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{client: client, carts: carts, pub: pub, log: log}
}

func (a *Assembler) Assemble(ctx context.Context, req CreateRequest, outcome payment.Outcome) (*Order, error) {
	if req.PaymentMethod.RequiresCapture() && outcome.Status != payment.OutcomeSucceeded {
		return nil, fmt.Errorf("order assembly requires a succeeded payment, got %s", outcome.Status)
	}
	captured := req.PaymentMethod.RequiresCapture()
	req.PaymentReference = outcome.Reference

	created, err := a.client.Create(ctx, req)
	if err != nil {
		var transient *TransientError
		a.log.Error("order creation failed",
			zap.String("draft_id", req.DraftID),
			zap.Bool("payment_captured", captured),
			zap.Error(err))
		return nil, &AssemblyError{
			Err:             err,
			PaymentCaptured: captured,
			Transient:       errors.As(err, &transient),
		}
	}

	a.log.Info("order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.Number))

	// cart and event are best effort; the order exists either way
	clearCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := a.carts.Clear(clearCtx); err != nil {
		a.log.Warn("cart clear after order failed", zap.Error(err))
	}

	if a.pub != nil {
		if err := a.pub.OrderConfirmed(ctx, created); err != nil {
			a.log.Warn("order confirmed event publish failed",
				zap.String("order_id", created.ID), zap.Error(err))
		}
	}

	return created, nil
}
