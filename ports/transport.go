package ports

import (
	"context"

	"github.com/layer-3/mercuria/core"
)

// Transport executes a single backend call. Non-2xx replies and transport
// failures are returned as *core.APIError.
type Transport interface {
	RoundTrip(ctx context.Context, req core.Request) (*core.Response, error)
}

// KeyGenerator mints idempotency keys.
type KeyGenerator interface {
	Generate() string
}
