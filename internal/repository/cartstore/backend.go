// Package cartstore holds the durable key/value backends that cart snapshots
// are written to. Payloads are opaque bytes; the cart service owns the format.
package cartstore

import "context"

// Backend is the storage contract for cart snapshots. Load returns
// domain.ErrNotFound when nothing is stored under key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}
