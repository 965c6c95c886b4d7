package sandbox

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/mercuria/adapters/store"
	"github.com/layer-3/mercuria/adapters/tokenizer"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
	"golang.org/x/crypto/bcrypt"
)

// Config configures a sandbox backend
type Config struct {
	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
	// Store keeps refresh records. Defaults to an in-memory store.
	Store  ports.CredentialStore
	Logger *slog.Logger
}

// Server is an in-process wallet backend for development and tests
type Server struct {
	ledger   *Ledger
	sessions *Sessions
	idem     *IdempotencyStore
	logger   *slog.Logger
	router   *gin.Engine

	accessTTL    time.Duration
	refreshCalls atomic.Int64
	refreshDelay atomic.Int64
}

// New creates a sandbox backend
func New(cfg Config) *Server {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}

	s := &Server{
		ledger:    NewLedger(cfg.BcryptCost),
		sessions:  NewSessions(tokenizer.NewJWTTokenizer(cfg.JWTSecret), cfg.Store, cfg.AccessTTL, cfg.RefreshTTL),
		idem:      NewIdempotencyStore(24 * time.Hour),
		logger:    cfg.Logger,
		accessTTL: cfg.AccessTTL,
	}
	s.router = SetupRouter(s)
	return s
}

// Handler serves the API under /api/v1
func (s *Server) Handler() http.Handler {
	return s.router
}

// Ledger exposes the backing ledger for seeding and inspection
func (s *Server) Ledger() *Ledger {
	return s.ledger
}

// RefreshCalls counts refresh exchanges received
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// SetRefreshDelay slows down every refresh exchange by d
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// ExpireAccessTokens makes every issued access token fail with 401
func (s *Server) ExpireAccessTokens() {
	s.sessions.ExpireAccessTokens()
}

// IdempotencyRecords counts stored keyed outcomes
func (s *Server) IdempotencyRecords() int {
	return s.idem.Len()
}
