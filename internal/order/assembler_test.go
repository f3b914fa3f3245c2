package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/internal/payment"
)

type mockOrderClient struct {
	order   *Order
	err     error
	lastReq CreateRequest
	calls   int
}

func (m *mockOrderClient) Create(_ context.Context, req CreateRequest) (*Order, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

type mockClearer struct {
	calls int
	err   error
}

func (m *mockClearer) Clear(context.Context) (*cart.Cart, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &cart.Cart{}, nil
}

type mockPublisher struct {
	calls int
	last  *Order
	err   error
}

func (m *mockPublisher) OrderConfirmed(_ context.Context, o *Order) error {
	m.calls++
	m.last = o
	return m.err
}

func cardDraftRequest() CreateRequest {
	return CreateRequest{
		DraftID:        "draft-1",
		Items:          []cart.LineItem{{ID: "li-1", ProductID: "p1", UnitPrice: money.FromMajor(20), Quantity: 2}},
		PaymentMethod:  payment.MethodCard,
		IdempotencyKey: "draft-1",
	}
}

func TestAssemble_Success(t *testing.T) {
	created := &Order{ID: "o-1", Number: "1001", TotalAmount: money.Money(3520)}
	client := &mockOrderClient{order: created}
	clearer := &mockClearer{}
	pub := &mockPublisher{}
	a := NewAssembler(client, clearer, pub, nil)

	got, err := a.Assemble(context.Background(), cardDraftRequest(), payment.Outcome{
		Status:    payment.OutcomeSucceeded,
		Reference: "pi_1",
	})

	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, "pi_1", client.lastReq.PaymentReference)
	assert.Equal(t, 1, clearer.calls)
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, created, pub.last)
}

func TestAssemble_RequiresSucceededPaymentForCard(t *testing.T) {
	client := &mockOrderClient{}
	a := NewAssembler(client, &mockClearer{}, nil, nil)

	for _, outcome := range []payment.Outcome{
		{Status: payment.OutcomeFailed},
		{Status: payment.OutcomeRequiresAction},
	} {
		_, err := a.Assemble(context.Background(), cardDraftRequest(), outcome)
		require.Error(t, err)
	}
	assert.Zero(t, client.calls)
}

func TestAssemble_CashOnDeliveryNeedsNoCapture(t *testing.T) {
	client := &mockOrderClient{order: &Order{ID: "o-1"}}
	a := NewAssembler(client, &mockClearer{}, nil, nil)

	req := cardDraftRequest()
	req.PaymentMethod = payment.MethodCashOnDelivery

	got, err := a.Assemble(context.Background(), req, payment.Outcome{Status: payment.OutcomeSucceeded})

	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)
	assert.Empty(t, client.lastReq.PaymentReference)
}

func TestAssemble_FailureAfterCaptureFlagsPaymentCaptured(t *testing.T) {
	client := &mockOrderClient{err: ErrStockChanged}
	clearer := &mockClearer{}
	a := NewAssembler(client, clearer, nil, nil)

	_, err := a.Assemble(context.Background(), cardDraftRequest(), payment.Outcome{
		Status:    payment.OutcomeSucceeded,
		Reference: "pi_1",
	})

	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.True(t, ae.PaymentCaptured)
	assert.False(t, ae.Transient)
	assert.ErrorIs(t, err, ErrStockChanged)
	assert.Zero(t, clearer.calls, "cart must survive a failed order")
}

func TestAssemble_TransientFailureMarked(t *testing.T) {
	client := &mockOrderClient{err: &TransientError{Err: errors.New("timeout")}}
	a := NewAssembler(client, &mockClearer{}, nil, nil)

	_, err := a.Assemble(context.Background(), cardDraftRequest(), payment.Outcome{
		Status:    payment.OutcomeSucceeded,
		Reference: "pi_1",
	})

	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.True(t, ae.Transient)
	assert.True(t, ae.PaymentCaptured)
}

func TestAssemble_ClearAndPublishFailuresDoNotFailOrder(t *testing.T) {
	created := &Order{ID: "o-1"}
	client := &mockOrderClient{order: created}
	clearer := &mockClearer{err: errors.New("cart service down")}
	pub := &mockPublisher{err: errors.New("broker down")}
	a := NewAssembler(client, clearer, pub, nil)

	got, err := a.Assemble(context.Background(), cardDraftRequest(), payment.Outcome{
		Status:    payment.OutcomeSucceeded,
		Reference: "pi_1",
	})

	require.NoError(t, err)
	assert.Equal(t, created, got)
}
