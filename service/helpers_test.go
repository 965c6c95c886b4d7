package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/mercuria/adapters/store"
	"github.com/layer-3/mercuria/adapters/tokenizer"
	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
	transport "github.com/layer-3/mercuria/transport/http"
	"github.com/stretchr/testify/require"
)

const refreshKey = "mercuria_rt"

type handlerFunc func(ctx context.Context, req core.Request) (*core.Response, error)

// fakeTransport routes requests by path and records every call.
type fakeTransport struct {
	mu       sync.Mutex
	routes   map[string]handlerFunc
	requests []core.Request
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string]handlerFunc{}}
}

func (f *fakeTransport) handle(path string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = h
}

func (f *fakeTransport) RoundTrip(ctx context.Context, req core.Request) (*core.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	h, ok := f.routes[req.Path]
	f.mu.Unlock()

	if !ok {
		return nil, transport.ParseResponseError(404, []byte(`{"error":"not found"}`))
	}
	return h(ctx, req)
}

func (f *fakeTransport) calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeTransport) sent(path string) []core.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Request
	for _, r := range f.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func reply(t *testing.T, v any) *core.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &core.Response{Status: 200, Body: raw}
}

func reject(status int, msg string) error {
	return transport.ParseResponseError(status, []byte(`{"error":"`+msg+`"}`))
}

func tokens(access, refresh string) core.TokenPair {
	return core.TokenPair{AccessToken: access, RefreshToken: refresh}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (p *recordingPublisher) PublishSessionEvent(_ context.Context, e core.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []core.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.SessionEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type authFixture struct {
	transport  *fakeTransport
	persistent ports.CredentialStore
	creds      *CredentialStore
	events     *recordingPublisher
	auth       *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		transport:  newFakeTransport(),
		persistent: store.NewMemoryStore(),
		events:     &recordingPublisher{},
	}
	f.creds = NewCredentialStore(f.persistent, refreshKey, 7*24*time.Hour)
	f.auth = NewAuthService(f.transport, f.creds, tokenizer.NewJWTTokenizer(nil), f.events, logger.Discard())
	t.Cleanup(f.auth.Wait)
	return f
}

// seed stores a session as if a previous login happened.
func (f *authFixture) seed(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, f.creds.SetSession(context.Background(), access, refresh))
}

func (f *authFixture) storedRefresh(t *testing.T) string {
	t.Helper()
	v, err := f.persistent.Get(context.Background(), refreshKey)
	if err != nil {
		return ""
	}
	return v
}
