package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/money"
)

// ConfirmStatus is what the processor SDK reports after a client-side
// confirmation attempt.
type ConfirmStatus int

const (
	ConfirmSucceeded ConfirmStatus = iota
	ConfirmRequiresAction
	ConfirmDeclined
)

type ConfirmResult struct {
	Status        ConfirmStatus
	Reference     string
	DeclineReason string
}

// Processor is the external payment processor SDK. Card details go here
// and nowhere else.
type Processor interface {
	ConfirmIntent(ctx context.Context, clientSecret string, card CardDetails, billing BillingDetails) (ConfirmResult, error)
}

// PayRequest carries everything the coordinator needs for one attempt.
// SnapshotKey must be stable for an unchanged draft so a retried intent
// creation dedupes server-side.
type PayRequest struct {
	Amount      money.Money
	Currency    string
	Method      Method
	Card        *CardDetails
	Billing     BillingDetails
	SnapshotKey string
}

// Coordinator bridges checkout to the payment processor: backend intent
// first, then client-side confirmation. Intent creation runs behind a
// circuit breaker so a struggling payment backend fails fast.
type Coordinator struct {
	processor    Processor
	breaker      *gobreaker.CircuitBreaker[*Intent]
	createIntent func(ctx context.Context, req IntentRequest) (*Intent, error)
	log          *zap.Logger
}

func NewCoordinator(intents IntentClient, processor Processor, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker[*Intent](gobreaker.Settings{
		Name:    "payment-intents",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c := &Coordinator{processor: processor, breaker: breaker, log: log}
	c.createIntent = func(ctx context.Context, req IntentRequest) (*Intent, error) {
		return c.breaker.Execute(func() (*Intent, error) {
			return intents.CreateIntent(ctx, req)
		})
	}
	return c
}

// Pay executes one payment attempt and reports a tri-state outcome. Only
// caller misuse (unknown method, card method without card details) is an
// error; every remote result is encoded in the Outcome.
func (c *Coordinator) Pay(ctx context.Context, req PayRequest) (Outcome, error) {
	if !req.Method.Known() {
		return Outcome{}, fmt.Errorf("unknown payment method %q", req.Method)
	}

	if !req.Method.RequiresCapture() {
		// method choice is recorded; settlement happens on delivery
		c.log.Info("payment recorded without capture", zap.String("method", string(req.Method)))
		return Outcome{Status: OutcomeSucceeded}, nil
	}

	if req.Card == nil {
		return Outcome{}, errors.New("card payment requested without card details")
	}

	intent, err := c.createIntent(ctx, IntentRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		SnapshotKey: req.SnapshotKey,
	})
	if err != nil {
		c.log.Warn("payment intent creation failed", zap.Error(err))
		return Outcome{
			Status:    OutcomeFailed,
			Reason:    "payment service unavailable",
			Transient: true,
		}, nil
	}

	result, err := c.processor.ConfirmIntent(ctx, intent.ClientSecret, *req.Card, req.Billing)
	if err != nil {
		// the confirmation died in transit; the charge may have landed
		c.log.Warn("payment confirmation ambiguous",
			zap.String("intent_id", intent.ID), zap.Error(err))
		return Outcome{
			Status:           OutcomeFailed,
			Reason:           "payment confirmation interrupted",
			Transient:        true,
			MayHaveSucceeded: true,
		}, nil
	}

	switch result.Status {
	case ConfirmSucceeded:
		c.log.Info("payment confirmed",
			zap.String("intent_id", intent.ID), zap.String("reference", result.Reference))
		return Outcome{Status: OutcomeSucceeded, Reference: result.Reference}, nil
	case ConfirmRequiresAction:
		return Outcome{Status: OutcomeRequiresAction}, nil
	default:
		return Outcome{Status: OutcomeFailed, Reason: result.DeclineReason}, nil
	}
}
