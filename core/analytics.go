package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyMetric aggregates activity for one day.
type DailyMetric struct {
	Date             string          `json:"date"`
	TransactionCount int64           `json:"transaction_count"`
	DepositVolume    decimal.Decimal `json:"deposit_volume"`
	WithdrawalVolume decimal.Decimal `json:"withdrawal_volume"`
	TransferVolume   decimal.Decimal `json:"transfer_volume"`
	ActiveUsers      int64           `json:"active_users"`
}

// HourlyMetric aggregates activity for one hour.
type HourlyMetric struct {
	Hour             time.Time       `json:"hour"`
	TransactionCount int64           `json:"transaction_count"`
	Volume           decimal.Decimal `json:"volume"`
}

// MetricsSummary aggregates activity over a period.
type MetricsSummary struct {
	Period           string          `json:"period"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	TransactionCount int64           `json:"transaction_count"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	DepositVolume    decimal.Decimal `json:"deposit_volume"`
	WithdrawalVolume decimal.Decimal `json:"withdrawal_volume"`
	TransferVolume   decimal.Decimal `json:"transfer_volume"`
}

// UserAnalytics aggregates one user's activity.
type UserAnalytics struct {
	UserID           string          `json:"user_id"`
	TransactionCount int64           `json:"transaction_count"`
	TotalDeposited   decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
	TotalSent        decimal.Decimal `json:"total_sent"`
	TotalReceived    decimal.Decimal `json:"total_received"`
}

// UserSnapshot is a user's balance position on a given day.
type UserSnapshot struct {
	UserID       string          `json:"user_id"`
	Date         string          `json:"date"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	WalletCount  int             `json:"wallet_count"`
}
