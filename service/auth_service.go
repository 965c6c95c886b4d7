package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
)

// Banner messages for failures that carry no backend message.
const (
	MsgLoginFailed    = "Login failed"
	MsgRegisterFailed = "Registration failed"
	MsgUnreachable    = "Unable to reach Mercuria. Check your connection and try again."
	MsgStoreFailed    = "Could not save your session"
	MsgOutcomeUnknown = "The request was received but its result could not be read. Retry to confirm."
)

// pendingRefresh is the single in-flight refresh exchange. Every caller that
// joins it observes the same outcome once done is closed.
type pendingRefresh struct {
	done   chan struct{}
	gen    uint64
	prev   core.SessionState
	access string
	err    error
}

// AuthService owns the client session: login, registration, logout and the
// coalesced refresh of the access credential.
type AuthService struct {
	transport ports.Transport
	creds     *CredentialStore
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	logger    *slog.Logger

	refreshTimeout time.Duration
	revokeTimeout  time.Duration

	mu      sync.Mutex
	state   core.SessionState
	user    *core.User
	message string
	pending *pendingRefresh

	revocations sync.WaitGroup
}

// NewAuthService creates a new authentication service
func NewAuthService(
	transport ports.Transport,
	creds *CredentialStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		transport:      transport,
		creds:          creds,
		tokenizer:      tokenizer,
		eventPub:       eventPub,
		logger:         logger,
		refreshTimeout: 30 * time.Second,
		revokeTimeout:  10 * time.Second,
		state:          core.StateAnonymous,
	}
}

// Credentials returns the store the service writes to
func (s *AuthService) Credentials() *CredentialStore {
	return s.creds
}

// Session returns a snapshot of the current session
func (s *AuthService) Session() core.Session {
	s.mu.Lock()
	session := core.Session{State: s.state, User: s.user, Message: s.message}
	s.mu.Unlock()

	if access := s.creds.GetAccess(); access != "" && s.tokenizer != nil {
		if claims, err := s.tokenizer.AccessTokenClaims(access); err == nil {
			session.Subject = claims.Subject
			session.Expiry = claims.ExpiresAt
		}
	}
	return session
}

// Login validates the form locally, then exchanges the credentials for a session
func (s *AuthService) Login(ctx context.Context, in core.LoginInput) (core.Session, error) {
	if err := ValidateLogin(in); err != nil {
		return s.Session(), err
	}
	return s.authenticate(ctx, "/auth/login", in, MsgLoginFailed)
}

// Register validates the sign-up form locally, then creates the account and
// its session
func (s *AuthService) Register(ctx context.Context, in core.RegisterInput) (core.Session, error) {
	if err := ValidateRegister(in); err != nil {
		return s.Session(), err
	}
	return s.authenticate(ctx, "/auth/register", in, MsgRegisterFailed)
}

func (s *AuthService) authenticate(ctx context.Context, path string, body any, fallback string) (core.Session, error) {
	req, err := core.NewRequest(http.MethodPost, path, body)
	if err != nil {
		return s.Session(), fmt.Errorf("failed to encode request: %w", err)
	}

	s.transition(core.StateAuthenticating, nil, "")

	resp, err := s.transport.RoundTrip(ctx, req)
	if err != nil {
		s.fail(bannerMessage(err, fallback))
		return s.Session(), err
	}

	var pair core.TokenPair
	if err := resp.Decode(&pair); err != nil || pair.AccessToken == "" {
		err = &core.APIError{Kind: core.KindRejected, Status: resp.Status, Message: fallback, Err: err}
		s.fail(fallback)
		return s.Session(), err
	}

	if err := s.creds.SetSession(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		s.logger.ErrorContext(ctx, "failed to store session", slog.String("error", err.Error()))
		s.fail(MsgStoreFailed)
		return s.Session(), err
	}

	s.transition(core.StateAuthenticated, pair.User, "")
	session := s.Session()
	s.publish(ctx, core.EventLogin, session)
	s.logger.InfoContext(ctx, "session established", slog.String("subject", session.Subject))
	return session, nil
}

// Logout drops the session immediately and revokes the refresh credential
// on the backend in the background
func (s *AuthService) Logout(ctx context.Context) error {
	refresh, err := s.creds.GetRefresh(ctx)
	if err != nil && !notFound(err) {
		s.logger.WarnContext(ctx, "failed to read refresh credential", slog.String("error", err.Error()))
	}

	subject := s.Session().Subject
	clearErr := s.creds.Clear(ctx)
	if clearErr != nil {
		s.logger.WarnContext(ctx, "failed to clear session", slog.String("error", clearErr.Error()))
	}

	s.transition(core.StateAnonymous, nil, "")
	s.publish(ctx, core.EventLogout, core.Session{State: core.StateAnonymous, Subject: subject})

	if refresh != "" {
		s.revocations.Add(1)
		go s.revoke(context.WithoutCancel(ctx), refresh)
	}

	return clearErr
}

func (s *AuthService) revoke(ctx context.Context, refresh string) {
	defer s.revocations.Done()

	ctx, cancel := context.WithTimeout(ctx, s.revokeTimeout)
	defer cancel()

	req, err := core.NewRequest(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": refresh})
	if err == nil {
		_, err = s.transport.RoundTrip(ctx, req)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to revoke refresh credential", slog.String("error", err.Error()))
	}
}

// Wait blocks until background revocations finished
func (s *AuthService) Wait() {
	s.revocations.Wait()
}

// ClearError moves from the error state back to anonymous
func (s *AuthService) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == core.StateError {
		s.state = core.StateAnonymous
		s.message = ""
	}
}

// Bootstrap restores a persisted session. A rejected refresh credential ends
// in the anonymous state without an error.
func (s *AuthService) Bootstrap(ctx context.Context) (core.Session, error) {
	if !s.creds.HasRefresh(ctx) {
		return s.Session(), nil
	}

	if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, core.ErrAuth) {
		return s.Session(), err
	}
	return s.Session(), nil
}

// Refresh exchanges the refresh credential for a new access credential.
// Concurrent callers share one backend exchange.
func (s *AuthService) Refresh(ctx context.Context) (string, error) {
	return s.join(ctx, "", false)
}

// RefreshAfter refreshes unless the access credential already changed from
// stale, in which case the current credential is returned without a backend
// call
func (s *AuthService) RefreshAfter(ctx context.Context, stale string) (string, error) {
	return s.join(ctx, stale, true)
}

func (s *AuthService) join(ctx context.Context, stale string, checkStale bool) (string, error) {
	s.mu.Lock()
	if checkStale {
		if current := s.creds.GetAccess(); current != "" && current != stale {
			s.mu.Unlock()
			return current, nil
		}
	}

	p := s.pending
	if p == nil {
		// gen is read under s.mu so a logout after this point is always seen
		p = &pendingRefresh{done: make(chan struct{}), gen: s.creds.Generation(), prev: s.state}
		s.pending = p
		s.state = core.StateRefreshing
		go s.runRefresh(p)
	}
	s.mu.Unlock()

	select {
	case <-p.done:
		return p.access, p.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for refresh: %w", ctx.Err())
	}
}

// runRefresh performs the exchange detached from any caller's context
func (s *AuthService) runRefresh(p *pendingRefresh) {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	gen := p.gen
	pair, err := s.exchange(ctx)

	var event core.SessionEventType

	s.mu.Lock()
	s.pending = nil
	superseded := s.creds.Generation() != gen

	switch {
	case err == nil:
		committed, cerr := s.creds.CommitIf(ctx, gen, pair.AccessToken, pair.RefreshToken)
		switch {
		case cerr != nil:
			p.err = cerr
			s.restore(p.prev)
			refreshTotal.WithLabelValues("store_error").Inc()
		case !committed:
			p.err = core.ErrSessionEnded
			refreshTotal.WithLabelValues("superseded").Inc()
		default:
			p.access = pair.AccessToken
			if pair.User != nil {
				s.user = pair.User
			}
			s.state = core.StateAuthenticated
			s.message = ""
			event = core.EventRefreshed
			refreshTotal.WithLabelValues("success").Inc()
		}

	case superseded:
		p.err = core.ErrSessionEnded
		refreshTotal.WithLabelValues("superseded").Inc()

	case refreshRejected(err):
		if cerr := s.creds.Clear(ctx); cerr != nil {
			s.logger.Warn("failed to clear rejected session", slog.String("error", cerr.Error()))
		}
		s.state = core.StateAnonymous
		s.user = nil
		s.message = ""
		p.err = rejectedRefresh(err)
		event = core.EventExpired
		refreshTotal.WithLabelValues("rejected").Inc()

	default:
		p.err = err
		s.restore(p.prev)
		refreshTotal.WithLabelValues("failed").Inc()
	}
	s.mu.Unlock()

	close(p.done)

	if p.err != nil {
		s.logger.Info("session refresh failed", slog.String("error", p.err.Error()))
	}
	if event != "" {
		s.publish(ctx, event, s.Session())
	}
}

func (s *AuthService) exchange(ctx context.Context) (core.TokenPair, error) {
	var pair core.TokenPair

	refresh, err := s.creds.GetRefresh(ctx)
	if notFound(err) {
		return pair, core.ErrNoRefreshCredential
	}
	if err != nil {
		return pair, fmt.Errorf("failed to read refresh credential: %w", err)
	}

	req, err := core.NewRequest(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh})
	if err != nil {
		return pair, err
	}
	resp, err := s.transport.RoundTrip(ctx, req)
	if err != nil {
		return pair, err
	}
	if err := resp.Decode(&pair); err != nil || pair.AccessToken == "" {
		return pair, &core.APIError{Kind: core.KindRejected, Status: resp.Status, Message: "malformed refresh response", Err: err}
	}
	return pair, nil
}

// restore puts back the state held before refreshing unless another
// transition happened meanwhile. Caller holds s.mu.
func (s *AuthService) restore(prev core.SessionState) {
	if s.state == core.StateRefreshing {
		s.state = prev
	}
}

func (s *AuthService) transition(state core.SessionState, user *core.User, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.user = user
	s.message = message
}

func (s *AuthService) fail(message string) {
	s.transition(core.StateError, nil, message)
}

func (s *AuthService) publish(ctx context.Context, typ core.SessionEventType, session core.Session) {
	event := core.SessionEvent{
		Type:       typ,
		Subject:    session.Subject,
		State:      session.State,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.eventPub.PublishSessionEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish session event",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}

// refreshRejected reports whether the backend proved the refresh credential
// invalid
func refreshRejected(err error) bool {
	return errors.Is(err, core.ErrAuth) || errors.Is(err, core.ErrValidation)
}

func rejectedRefresh(err error) error {
	if errors.Is(err, core.ErrAuth) {
		return err
	}
	return fmt.Errorf("refresh credential rejected: %w: %w", core.ErrAuth, err)
}

func bannerMessage(err error, fallback string) string {
	if errors.Is(err, core.ErrNetwork) {
		return MsgUnreachable
	}
	return core.UserMessage(err, fallback)
}
