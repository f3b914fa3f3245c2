package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/session"
)

func newRegisteredMachine(t *testing.T) *Machine {
	t.Helper()
	f := newFixture(twoShirtsCart())
	f.cfg.Shipping = pricing.FreeShipping()
	f.cfg.Tax = pricing.TaxPolicy{RateBasisPoints: 800, Rounding: money.RoundHalfUp}
	f.cfg.Identity = session.Identity{Status: session.StatusAuthenticated, UserID: "u-1"}
	m, err := Begin(context.Background(), f.cfg)
	require.NoError(t, err)
	return m
}

func TestRegistry_PutGetDelete(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	m := newRegisteredMachine(t)

	id := r.Put(m)
	assert.Equal(t, m.Draft().ID, id)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Same(t, m, got)

	r.Delete(id)
	_, err = r.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SweepExpiresAbandonedSessions(t *testing.T) {
	r := NewRegistry(time.Nanosecond, nil)
	id := r.Put(newRegisteredMachine(t))

	time.Sleep(time.Millisecond)
	r.sweep()

	_, err := r.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
