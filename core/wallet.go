package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a single-currency balance owned by a user.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WalletEvent is an entry of a wallet's activity feed.
type WalletEvent struct {
	ID        string          `json:"id"`
	WalletID  string          `json:"wallet_id"`
	EventType string          `json:"event_type"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Credit reports whether the event increased the balance.
func (e WalletEvent) Credit() bool {
	return e.EventType == EventTypeDeposit || e.EventType == EventTypeCredit
}

const (
	EventTypeDeposit    = "wallet.deposit"
	EventTypeWithdrawal = "wallet.withdrawal"
	EventTypeCredit     = "wallet.credit"
	EventTypeDebit      = "wallet.debit"
)

// TransactionType distinguishes money movements.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
)

// TransactionStatus is the backend processing status of a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusReversed  TransactionStatus = "reversed"
)

// Label is the human readable status name.
func (s TransactionStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusReversed:
		return "Reversed"
	default:
		return string(s)
	}
}

// Transaction is a money movement recorded by the backend.
type Transaction struct {
	ID             string            `json:"id"`
	Type           TransactionType   `json:"type"`
	FromWalletID   string            `json:"from_wallet_id,omitempty"`
	ToWalletID     string            `json:"to_wallet_id,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description,omitempty"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Outgoing reports whether the transaction debits walletID.
func (t Transaction) Outgoing(walletID string) bool {
	return t.FromWalletID == walletID
}

// MovementRequest is the body of a deposit or withdrawal.
type MovementRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// TransferRequest is the body of a wallet to wallet transfer.
type TransferRequest struct {
	FromWalletID   string          `json:"from_wallet_id"`
	ToWalletID     string          `json:"to_wallet_id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Currency is a supported wallet currency.
type Currency struct {
	Code   string
	Name   string
	Symbol string
}

// Currencies lists the currencies a wallet can be opened in.
var Currencies = []Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$"},
	{Code: "EUR", Name: "Euro", Symbol: "€"},
	{Code: "GBP", Name: "British Pound", Symbol: "£"},
	{Code: "JPY", Name: "Japanese Yen", Symbol: "¥"},
	{Code: "CHF", Name: "Swiss Franc", Symbol: "CHF"},
	{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$"},
}

// SupportedCurrency reports whether code is in Currencies.
func SupportedCurrency(code string) bool {
	for _, c := range Currencies {
		if c.Code == code {
			return true
		}
	}
	return false
}

// MovementInput is the raw deposit or withdrawal form.
type MovementInput struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// TransferInput is the raw transfer form.
type TransferInput struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
}
