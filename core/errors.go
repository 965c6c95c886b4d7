package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error classes. Every error returned by the client wraps exactly one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("not authenticated")
	ErrNetwork    = errors.New("network failure")
	ErrConflict   = errors.New("idempotency conflict")
	ErrRejected   = errors.New("request rejected")
)

var (
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrNoRefreshCredential  = fmt.Errorf("no refresh credential: %w", ErrAuth)
	ErrSessionEnded         = fmt.Errorf("session ended while refreshing: %w", ErrAuth)
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrNothingToRetry       = errors.New("no failed submission to retry")
	ErrInvalidToken         = errors.New("invalid token")
)

// Kind names the class of an APIError.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNetwork    Kind = "network"
	KindConflict   Kind = "conflict"
	KindRejected   Kind = "rejected"
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuth:
		return ErrAuth
	case KindNetwork:
		return ErrNetwork
	case KindConflict:
		return ErrConflict
	default:
		return ErrRejected
	}
}

// APIError is a failure reported by the backend or by the transport.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: "network request failed", Err: err}
}

// FieldErrors carries field-level validation messages keyed by field name.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Unwrap() error {
	return ErrValidation
}

// Err returns nil when no field failed.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

// UserMessage returns the text a caller should surface for err.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
