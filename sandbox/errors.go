package sandbox

import "errors"

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTokenInvalidated    = errors.New("refresh token has been invalidated")
	ErrTokenRevoked        = errors.New("access token revoked")
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrSameWallet          = errors.New("cannot transfer to same wallet")
	ErrCurrencyMismatch    = errors.New("wallet currencies differ")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrWalletExists        = errors.New("wallet already exists for currency")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
)
