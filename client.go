package mercuria

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/layer-3/mercuria/adapters/events"
	"github.com/layer-3/mercuria/adapters/keygen"
	"github.com/layer-3/mercuria/adapters/store"
	"github.com/layer-3/mercuria/adapters/tokenizer"
	"github.com/layer-3/mercuria/config"
	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
	"github.com/layer-3/mercuria/service"
	transport "github.com/layer-3/mercuria/transport/http"
	"github.com/redis/go-redis/v9"
)

// Client is a wallet backend client with a managed session
type Client struct {
	logger    *slog.Logger
	creds     *service.CredentialStore
	auth      *service.AuthService
	wallets   *service.WalletService
	analytics *service.AnalyticsService
	closers   []func() error
}

type options struct {
	logger     *slog.Logger
	store      ports.CredentialStore
	httpClient *http.Client
	publisher  ports.EventPublisher
	keys       ports.KeyGenerator
}

// Option configures a Client
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCredentialStore overrides the store selected by configuration
func WithCredentialStore(s ports.CredentialStore) Option {
	return func(o *options) { o.store = s }
}

// WithHTTPClient replaces the HTTP client used for backend calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithEventPublisher publishes session transitions
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithKeyGenerator replaces the idempotency key generator
func WithKeyGenerator(k ports.KeyGenerator) Option {
	return func(o *options) { o.keys = k }
}

// New creates a client from cfg
func New(cfg *config.ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		logger:    logger.Discard(),
		publisher: events.NopPublisher{},
		keys:      keygen.NewUUIDGenerator(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{logger: o.logger}

	var topts []transport.Option
	topts = append(topts, transport.WithLogger(o.logger))

	persistent := o.store
	if persistent == nil {
		s, jar, err := c.openStore(cfg)
		if err != nil {
			return nil, err
		}
		persistent = s
		// The cookie store shares its jar with the client that talks to the backend
		if jar != nil && o.httpClient == nil {
			o.httpClient = &http.Client{Jar: jar, Timeout: cfg.RequestTimeout}
		}
	}
	if o.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(o.httpClient))
	}

	tcfg := transport.DefaultConfig()
	tcfg.APIURL = cfg.APIURL
	tcfg.AnalyticsURL = cfg.AnalyticsURL
	tcfg.Timeout = cfg.RequestTimeout
	tcfg.MaxRetries = cfg.ReadRetries
	if cfg.BreakerEnabled {
		tcfg.Breaker.Timeout = cfg.BreakerTimeout
		tcfg.Breaker.MinRequests = cfg.BreakerMinCalls
	} else {
		tcfg.Breaker = nil
	}
	api := transport.NewAPIClient(tcfg, topts...)

	c.creds = service.NewCredentialStore(persistent, cfg.RefreshCookieName, cfg.RefreshTTL())
	c.auth = service.NewAuthService(api, c.creds, tokenizer.NewJWTTokenizer(nil), o.publisher, o.logger)
	dispatcher := service.NewDispatcher(api, c.creds, c.auth, o.logger)
	c.wallets = service.NewWalletService(dispatcher, o.keys)
	c.analytics = service.NewAnalyticsService(dispatcher)

	return c, nil
}

// openStore builds the persistent store named by cfg. The returned jar is
// non-nil for the cookie store.
func (c *Client) openStore(cfg *config.ClientConfig) (ports.CredentialStore, http.CookieJar, error) {
	switch cfg.CredentialStore {
	case config.StoreRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		c.closers = append(c.closers, rdb.Close)
		return store.NewRedisStore(rdb, "client"), nil, nil
	case config.StoreCookie:
		jar, err := store.NewCookieJar()
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewCookieStore(jar, cfg.CookieOrigin, store.CookieOptions{HTTPOnly: cfg.CookieHTTPOnly})
		if err != nil {
			return nil, nil, err
		}
		return s, jar, nil
	default:
		return store.NewMemoryStore(), nil, nil
	}
}

// Bootstrap resumes a session from the persisted refresh credential
func (c *Client) Bootstrap(ctx context.Context) (core.Session, error) {
	return c.auth.Bootstrap(ctx)
}

// Login signs in with email and password
func (c *Client) Login(ctx context.Context, in core.LoginInput) (core.Session, error) {
	return c.auth.Login(ctx, in)
}

// Register creates an account and signs in
func (c *Client) Register(ctx context.Context, in core.RegisterInput) (core.Session, error) {
	return c.auth.Register(ctx, in)
}

// Logout clears local credentials and revokes the session in the background
func (c *Client) Logout(ctx context.Context) error {
	return c.auth.Logout(ctx)
}

// Session returns the current authentication snapshot
func (c *Client) Session() core.Session {
	return c.auth.Session()
}

// ClearError dismisses a failed login or registration
func (c *Client) ClearError() {
	c.auth.ClearError()
}

// Credentials exposes the credential store
func (c *Client) Credentials() *service.CredentialStore {
	return c.creds
}

// Wallets returns the wallet API
func (c *Client) Wallets() *service.WalletService {
	return c.wallets
}

// Analytics returns the analytics API
func (c *Client) Analytics() *service.AnalyticsService {
	return c.analytics
}

// NewWithdrawForm creates a withdrawal form bound to wallet's last known balance
func (c *Client) NewWithdrawForm(wallet core.Wallet) *service.WithdrawForm {
	return c.wallets.NewWithdrawForm(wallet, c.logger)
}

// NewDepositForm creates a deposit form for walletID
func (c *Client) NewDepositForm(walletID string) *service.Form[core.MovementInput, core.Transaction] {
	return c.wallets.NewDepositForm(walletID, c.logger)
}

// NewTransferForm creates a transfer form over wallets
func (c *Client) NewTransferForm(wallets []core.Wallet) *service.TransferForm {
	return c.wallets.NewTransferForm(wallets, c.logger)
}

// Close waits for background revocations and releases connections
func (c *Client) Close() error {
	c.auth.Wait()

	var firstErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
