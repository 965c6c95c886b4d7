package mercuria

import (
	"context"

	"github.com/layer-3/mercuria/core"
)

// Authenticator represents the session surface of the client
type Authenticator interface {
	// Bootstrap resumes a persisted session, if any
	Bootstrap(ctx context.Context) (core.Session, error)

	// Login exchanges email and password for a new session
	Login(ctx context.Context, in core.LoginInput) (core.Session, error)

	// Register creates an account and signs in
	Register(ctx context.Context, in core.RegisterInput) (core.Session, error)

	// Logout ends the session locally and revokes it on the backend
	Logout(ctx context.Context) error

	// Session returns the current authentication snapshot
	Session() core.Session
}

var _ Authenticator = (*Client)(nil)
