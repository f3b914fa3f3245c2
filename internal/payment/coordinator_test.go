package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/money"
)

type mockIntents struct {
	intent  *Intent
	err     error
	lastReq IntentRequest
	calls   int
}

func (m *mockIntents) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.intent, nil
}

type mockProcessor struct {
	result     ConfirmResult
	err        error
	lastSecret string
	lastCard   CardDetails
	calls      int
}

func (m *mockProcessor) ConfirmIntent(_ context.Context, clientSecret string, card CardDetails, _ BillingDetails) (ConfirmResult, error) {
	m.calls++
	m.lastSecret = clientSecret
	m.lastCard = card
	if m.err != nil {
		return ConfirmResult{}, m.err
	}
	return m.result, nil
}

var testCard = &CardDetails{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123", HolderName: "J Doe"}

func cardRequest() PayRequest {
	return PayRequest{
		Amount:      money.Money(3520),
		Currency:    "USD",
		Method:      MethodCard,
		Card:        testCard,
		Billing:     BillingDetails{Name: "J Doe", Email: "j@example.com"},
		SnapshotKey: "snap-abc",
	}
}

func TestPay_CashOnDeliverySucceedsWithoutProcessor(t *testing.T) {
	intents := &mockIntents{}
	proc := &mockProcessor{}
	c := NewCoordinator(intents, proc, nil)

	out, err := c.Pay(context.Background(), PayRequest{
		Amount: money.Money(3520),
		Method: MethodCashOnDelivery,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, out.Status)
	assert.Empty(t, out.Reference)
	assert.Zero(t, intents.calls)
	assert.Zero(t, proc.calls)
}

func TestPay_CardSucceeds(t *testing.T) {
	intents := &mockIntents{intent: &Intent{ID: "pi_1", ClientSecret: "secret_1", Amount: money.Money(3520)}}
	proc := &mockProcessor{result: ConfirmResult{Status: ConfirmSucceeded, Reference: "pi_1"}}
	c := NewCoordinator(intents, proc, nil)

	out, err := c.Pay(context.Background(), cardRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, out.Status)
	assert.Equal(t, "pi_1", out.Reference)
	assert.Equal(t, "secret_1", proc.lastSecret)
	assert.Equal(t, *testCard, proc.lastCard)
}

func TestPay_IntentKeyedOnDraftSnapshot(t *testing.T) {
	intents := &mockIntents{intent: &Intent{ID: "pi_1", ClientSecret: "s"}}
	proc := &mockProcessor{result: ConfirmResult{Status: ConfirmSucceeded, Reference: "pi_1"}}
	c := NewCoordinator(intents, proc, nil)

	_, err := c.Pay(context.Background(), cardRequest())

	require.NoError(t, err)
	assert.Equal(t, "snap-abc", intents.lastReq.SnapshotKey)
	assert.Equal(t, money.Money(3520), intents.lastReq.Amount)
}

func TestPay_RequiresAction(t *testing.T) {
	intents := &mockIntents{intent: &Intent{ID: "pi_1", ClientSecret: "s"}}
	proc := &mockProcessor{result: ConfirmResult{Status: ConfirmRequiresAction}}
	c := NewCoordinator(intents, proc, nil)

	out, err := c.Pay(context.Background(), cardRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeRequiresAction, out.Status)
}

func TestPay_Declined(t *testing.T) {
	intents := &mockIntents{intent: &Intent{ID: "pi_1", ClientSecret: "s"}}
	proc := &mockProcessor{result: ConfirmResult{Status: ConfirmDeclined, DeclineReason: "insufficient funds"}}
	c := NewCoordinator(intents, proc, nil)

	out, err := c.Pay(context.Background(), cardRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, "insufficient funds", out.Reason)
	assert.False(t, out.MayHaveSucceeded)
}

func TestPay_IntentBackendDownIsTransientFailure(t *testing.T) {
	intents := &mockIntents{err: errors.New("connection refused")}
	proc := &mockProcessor{}
	c := NewCoordinator(intents, proc, nil)

	out, err := c.Pay(context.Background(), cardRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.True(t, out.Transient)
	assert.False(t, out.MayHaveSucceeded)
	assert.Zero(t, proc.calls)
}

func TestPay_ConfirmTransportErrorMayHaveSucceeded(t *testing.T) {
	intents := &mockIntents{intent: &Intent{ID: "pi_1", ClientSecret: "s"}}
	proc := &mockProcessor{err: errors.New("connection reset")}
	c := NewCoordinator(intents, proc, nil)

	out, err := c.Pay(context.Background(), cardRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.True(t, out.MayHaveSucceeded)
	assert.True(t, out.Transient)
}

func TestPay_RetryAfterFailureReusesSameKey(t *testing.T) {
	intents := &mockIntents{intent: &Intent{ID: "pi_1", ClientSecret: "s"}}
	proc := &mockProcessor{result: ConfirmResult{Status: ConfirmDeclined, DeclineReason: "declined"}}
	c := NewCoordinator(intents, proc, nil)

	req := cardRequest()
	_, err := c.Pay(context.Background(), req)
	require.NoError(t, err)
	first := intents.lastReq.SnapshotKey

	_, err = c.Pay(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, intents.calls)
	assert.Equal(t, first, intents.lastReq.SnapshotKey)
}

func TestPay_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	intents := &mockIntents{err: errors.New("boom")}
	proc := &mockProcessor{}
	c := NewCoordinator(intents, proc, nil)

	for i := 0; i < 6; i++ {
		out, err := c.Pay(context.Background(), cardRequest())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, out.Status)
	}

	// breaker is open; the backend no longer sees requests
	assert.LessOrEqual(t, intents.calls, 5)
}

func TestPay_UnknownMethodIsCallerError(t *testing.T) {
	c := NewCoordinator(&mockIntents{}, &mockProcessor{}, nil)

	_, err := c.Pay(context.Background(), PayRequest{Method: "IOU"})

	require.Error(t, err)
}

func TestPay_CardWithoutDetailsIsCallerError(t *testing.T) {
	c := NewCoordinator(&mockIntents{}, &mockProcessor{}, nil)

	req := cardRequest()
	req.Card = nil
	_, err := c.Pay(context.Background(), req)

	require.Error(t, err)
}
