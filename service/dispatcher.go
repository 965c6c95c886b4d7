package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
)

// Refresher renews the access credential after the backend rejected stale
type Refresher interface {
	RefreshAfter(ctx context.Context, stale string) (string, error)
}

// Dispatcher attaches the access credential to backend calls and replays a
// call exactly once after a successful refresh
type Dispatcher struct {
	transport ports.Transport
	creds     *CredentialStore
	refresher Refresher
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher sharing creds with the auth service
func NewDispatcher(transport ports.Transport, creds *CredentialStore, refresher Refresher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		creds:     creds,
		refresher: refresher,
		logger:    logger,
	}
}

// Send issues req with the current access credential
func (d *Dispatcher) Send(ctx context.Context, req core.Request) (*core.Response, error) {
	if req.IdempotencyKey != "" {
		ctx = logger.WithIdempotencyKey(ctx, req.IdempotencyKey)
	}

	used := d.creds.GetAccess()
	req.Bearer = used

	resp, err := d.transport.RoundTrip(ctx, req)
	if err == nil || !errors.Is(err, core.ErrAuth) {
		d.count(req, err)
		return resp, err
	}

	access, rerr := d.refresher.RefreshAfter(ctx, used)
	if rerr != nil {
		logger.WithContext(ctx, d.logger).InfoContext(ctx, "request not replayed, refresh failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", rerr.Error()),
		)
		d.count(req, err)
		// The call itself was refused, so a network failure of the refresh is
		// what the caller can act on
		if errors.Is(rerr, core.ErrAuth) || errors.Is(rerr, core.ErrNetwork) {
			return nil, rerr
		}
		return nil, err
	}

	authRetryTotal.Inc()
	logger.WithContext(ctx, d.logger).DebugContext(ctx, "replaying request with refreshed credential",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	req.Bearer = access
	resp, err = d.transport.RoundTrip(ctx, req)
	d.count(req, err)
	return resp, err
}

func (d *Dispatcher) count(req core.Request, err error) {
	dispatchTotal.WithLabelValues(req.Method, errorClass(err)).Inc()
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrAuth):
		return string(core.KindAuth)
	case errors.Is(err, core.ErrValidation):
		return string(core.KindValidation)
	case errors.Is(err, core.ErrNetwork):
		return string(core.KindNetwork)
	case errors.Is(err, core.ErrConflict):
		return string(core.KindConflict)
	default:
		return string(core.KindRejected)
	}
}
