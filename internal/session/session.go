package session

import "context"

type Status int

const (
	StatusGuest Status = iota
	StatusAuthenticated
)

// Identity is the session snapshot injected into checkout at construction.
// Components re-read it at step entry instead of consulting ambient state.
type Identity struct {
	Status      Status
	UserID      string
	Email       string
	BillingName string
}

func (i Identity) Authenticated() bool {
	return i.Status == StatusAuthenticated
}

// Provider resolves the identity behind an opaque session token. Consumed
// read-only; this layer never writes back to the identity service.
type Provider interface {
	Identity(ctx context.Context, token string) (Identity, error)
}
