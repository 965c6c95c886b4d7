package core

import "time"

// SessionState is the authentication state of a client.
type SessionState string

const (
	StateAnonymous      SessionState = "anonymous"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
	StateRefreshing     SessionState = "refreshing"
	StateError          SessionState = "error"
)

// User is the profile returned by the backend.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a read-only snapshot of the authentication state.
type Session struct {
	State   SessionState
	User    *User
	Subject string    // subject claim of the access credential, when it is a JWT
	Expiry  time.Time // advisory only, the backend enforces expiry
	Message string    // user-facing message while in StateError
}

// Authenticated reports whether the snapshot is a rest authenticated state.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// AccessClaims are the claims a client may read from an access credential.
type AccessClaims struct {
	Subject   string
	ID        string
	RefreshID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is the body of a login, register or refresh response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"-" form:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name,omitempty" validate:"max=100"`
	LastName        string `json:"last_name,omitempty" validate:"max=100"`
}

// SessionEventType names a session transition published to subscribers.
type SessionEventType string

const (
	EventLogin     SessionEventType = "session.login"
	EventLogout    SessionEventType = "session.logout"
	EventRefreshed SessionEventType = "session.refreshed"
	EventExpired   SessionEventType = "session.expired"
)

// SessionEvent describes a session transition.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	Subject    string           `json:"subject,omitempty"`
	State      SessionState     `json:"state"`
	OccurredAt time.Time        `json:"occurred_at"`
}
