package mercuria

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/mercuria/adapters/store"
	"github.com/layer-3/mercuria/config"
	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
	"github.com/layer-3/mercuria/sandbox"
	"github.com/layer-3/mercuria/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct horse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// countingTransport counts requests per path and can drop the response of
// the first matching write after it reached the backend.
type countingTransport struct {
	next http.RoundTripper

	mu    sync.Mutex
	paths map[string]int
	drop  string
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	if t.paths == nil {
		t.paths = map[string]int{}
	}
	t.paths[req.URL.Path]++
	drop := t.drop != "" && strings.HasSuffix(req.URL.Path, t.drop)
	if drop {
		t.drop = ""
	}
	t.mu.Unlock()

	resp, err := t.next.RoundTrip(req)
	if err != nil || !drop {
		return resp, err
	}
	resp.Body.Close()
	return nil, errors.New("connection reset by peer")
}

func (t *countingTransport) dropNext(suffix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drop = suffix
}

func (t *countingTransport) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.paths {
		n += c
	}
	return n
}

type env struct {
	backend *sandbox.Server
	server  *httptest.Server
	store   ports.CredentialStore
	wire    *countingTransport
	user    *core.User
	wallet  *core.Wallet
}

func setup(t *testing.T) *env {
	t.Helper()

	backend := sandbox.New(sandbox.Config{
		JWTSecret:  []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
	})
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	user, err := backend.Ledger().Register(testEmail, testPassword, "Ada", "Lovelace")
	require.NoError(t, err)
	wallet, err := backend.Ledger().OpenWallet(user.ID, "USD", decimal.NewFromInt(50))
	require.NoError(t, err)

	return &env{
		backend: backend,
		server:  srv,
		store:   store.NewMemoryStore(),
		wire:    &countingTransport{next: http.DefaultTransport},
		user:    user,
		wallet:  wallet,
	}
}

func (e *env) config() *config.ClientConfig {
	return &config.ClientConfig{
		LogLevel:          "info",
		APIURL:            e.server.URL + "/api/v1",
		AnalyticsURL:      e.server.URL + "/api/v1",
		RequestTimeout:    5 * time.Second,
		CredentialStore:   config.StoreMemory,
		RefreshCookieName: "mercuria_rt",
		RefreshTTLDays:    7,
	}
}

func (e *env) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(e.config(),
		WithCredentialStore(e.store),
		WithHTTPClient(&http.Client{Transport: e.wire, Timeout: 5 * time.Second}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (e *env) login(t *testing.T) *Client {
	t.Helper()
	c := e.client(t)
	session, err := c.Login(context.Background(), core.LoginInput{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.True(t, session.Authenticated())
	return c
}

func TestClient_WithdrawEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	c := e.login(t)

	// the access credential lives in memory, only the refresh credential is persisted
	access := c.Credentials().GetAccess()
	require.NotEmpty(t, access)
	persisted, err := e.store.Get(ctx, "mercuria_rt")
	require.NoError(t, err)
	assert.NotEqual(t, access, persisted)

	wallets, err := c.Wallets().ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 1)

	form := c.NewWithdrawForm(wallets[0])
	var states []service.FormState
	form.OnStateChange(func(s service.FormState) { states = append(states, s) })

	tx, err := form.Submit(ctx, core.MovementInput{Amount: "10.00", Description: "rent"})
	require.NoError(t, err)
	assert.Equal(t, core.TransactionWithdrawal, tx.Type)
	assert.Equal(t, core.StatusCompleted, tx.Status)
	assert.Equal(t, form.LastKey(), tx.IdempotencyKey)
	assert.Equal(t, []service.FormState{service.FormValidating, service.FormSubmitting, service.FormSuccess}, states)
	assert.False(t, form.IsOpen())
	assert.Equal(t, core.MovementInput{}, form.Input())

	refreshed, err := c.Wallets().GetWallet(ctx, e.wallet.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(refreshed.Balance))

	form.SetWallet(*refreshed)
	form.Open()
	before := e.wire.total()

	_, err = form.Submit(ctx, core.MovementInput{Amount: "45.00"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, service.MsgInsufficient, form.FieldErrors()["amount"])
	assert.Equal(t, "45.00", form.Input().Amount)
	assert.Equal(t, before, e.wire.total())
	assert.Equal(t, 1, e.backend.Ledger().Entries())
}

func TestClient_ExpiredAccessRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	c := e.login(t)

	e.backend.ExpireAccessTokens()
	e.backend.SetRefreshDelay(50 * time.Millisecond)
	before := e.backend.RefreshCalls()

	const callers = 10
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Wallets().ListWallets(ctx); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.EqualValues(t, 1, e.backend.RefreshCalls()-before)
	assert.Equal(t, core.StateAuthenticated, c.Session().State)
}

func TestClient_DuplicateDeliveryAppliesOnce(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	c := e.login(t)

	wallets, err := c.Wallets().ListWallets(ctx)
	require.NoError(t, err)
	form := c.NewWithdrawForm(wallets[0])

	// the write lands but its response is lost
	e.wire.dropNext("/withdraw")
	_, err = form.Submit(ctx, core.MovementInput{Amount: "10.00"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.True(t, form.CanRetry())
	key := form.LastKey()

	tx, err := form.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, tx.IdempotencyKey)
	assert.Equal(t, key, form.LastKey())

	assert.Equal(t, 1, e.backend.Ledger().Entries())
	assert.Equal(t, 1, e.backend.IdempotencyRecords())
	got, err := e.backend.Ledger().Wallet(e.user.ID, e.wallet.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(got.Balance))
}

func TestClient_BootstrapResumesPersistedSession(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	e.login(t)

	// a second process sharing the persistent store
	c := e.client(t)
	session, err := c.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StateAuthenticated, session.State)
	assert.Equal(t, e.user.ID, session.Subject)

	user, err := c.Wallets().Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)
}

func TestClient_LogoutRevokesRefreshCredential(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	c := e.login(t)

	refresh, err := e.store.Get(ctx, "mercuria_rt")
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Credentials().GetAccess())
	assert.False(t, c.Credentials().HasRefresh(ctx))
	assert.Equal(t, core.StateAnonymous, c.Session().State)
	require.NoError(t, c.Close())

	body, err := json.Marshal(map[string]string{"refresh_token": refresh})
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+"/api/v1/auth/refresh", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// nothing left to resume
	session, err := e.client(t).Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StateAnonymous, session.State)
}

func TestClient_LoginRejected(t *testing.T) {
	e := setup(t)
	c := e.client(t)

	session, err := c.Login(context.Background(), core.LoginInput{Email: testEmail, Password: "wrong password"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAuth)
	assert.Equal(t, core.StateError, session.State)
	assert.Equal(t, "Invalid email or password", session.Message)
	assert.Empty(t, c.Credentials().GetAccess())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&config.ClientConfig{APIURL: "not a url", AnalyticsURL: "not a url"})
	assert.Error(t, err)
}
