package cart

import (
	"context"
	"errors"
)

// SnapshotCache keeps the last server-confirmed cart per session so repeated
// reads do not hammer the cart service. It is a read cache only; mutations
// always go to the wire and invalidate the entry.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (*Cart, error)
	Set(ctx context.Context, key string, cart *Cart) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
