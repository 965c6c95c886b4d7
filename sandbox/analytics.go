package sandbox

import (
	"fmt"
	"time"

	"github.com/layer-3/mercuria/core"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// analytics aggregates a point-in-time copy of the ledger
type analytics struct {
	txs     []core.Transaction
	wallets map[string]core.Wallet
}

func (s *Server) analytics() *analytics {
	txs, wallets := s.ledger.snapshot()
	return &analytics{txs: txs, wallets: wallets}
}

// owner resolves the user a transaction is attributed to
func (a *analytics) owner(tx core.Transaction) string {
	id := tx.FromWalletID
	if id == "" {
		id = tx.ToWalletID
	}
	return a.wallets[id].UserID
}

func (a *analytics) daily(days int, now time.Time) []core.DailyMetric {
	start := now.Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	out := make([]core.DailyMetric, days)
	users := make([]map[string]struct{}, days)
	for i := range out {
		out[i] = core.DailyMetric{
			Date:             start.AddDate(0, 0, i).Format(dateLayout),
			DepositVolume:    decimal.Zero,
			WithdrawalVolume: decimal.Zero,
			TransferVolume:   decimal.Zero,
		}
		users[i] = map[string]struct{}{}
	}

	for _, tx := range a.txs {
		if tx.CreatedAt.Before(start) {
			continue
		}
		i := int(tx.CreatedAt.Sub(start) / (24 * time.Hour))
		if i >= days {
			continue
		}
		m := &out[i]
		m.TransactionCount++
		switch tx.Type {
		case core.TransactionDeposit:
			m.DepositVolume = m.DepositVolume.Add(tx.Amount)
		case core.TransactionWithdrawal:
			m.WithdrawalVolume = m.WithdrawalVolume.Add(tx.Amount)
		case core.TransactionTransfer:
			m.TransferVolume = m.TransferVolume.Add(tx.Amount)
		}
		users[i][a.owner(tx)] = struct{}{}
	}
	for i := range out {
		out[i].ActiveUsers = int64(len(users[i]))
	}
	return out
}

func (a *analytics) hourly(hours int, now time.Time) []core.HourlyMetric {
	start := now.Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)

	out := make([]core.HourlyMetric, hours)
	for i := range out {
		out[i] = core.HourlyMetric{Hour: start.Add(time.Duration(i) * time.Hour), Volume: decimal.Zero}
	}
	for _, tx := range a.txs {
		if tx.CreatedAt.Before(start) {
			continue
		}
		i := int(tx.CreatedAt.Sub(start) / time.Hour)
		if i >= hours {
			continue
		}
		out[i].TransactionCount++
		out[i].Volume = out[i].Volume.Add(tx.Amount)
	}
	return out
}

func (a *analytics) summary(period string, now time.Time) (*core.MetricsSummary, error) {
	var start time.Time
	switch period {
	case "day":
		start = now.AddDate(0, 0, -1)
	case "week":
		start = now.AddDate(0, 0, -7)
	case "month":
		start = now.AddDate(0, -1, 0)
	default:
		return nil, fmt.Errorf("unknown period %q", period)
	}

	out := &core.MetricsSummary{
		Period:           period,
		StartDate:        start.Format(dateLayout),
		EndDate:          now.Format(dateLayout),
		TotalVolume:      decimal.Zero,
		DepositVolume:    decimal.Zero,
		WithdrawalVolume: decimal.Zero,
		TransferVolume:   decimal.Zero,
	}
	for _, tx := range a.txs {
		if tx.CreatedAt.Before(start) || tx.CreatedAt.After(now) {
			continue
		}
		out.TransactionCount++
		out.TotalVolume = out.TotalVolume.Add(tx.Amount)
		switch tx.Type {
		case core.TransactionDeposit:
			out.DepositVolume = out.DepositVolume.Add(tx.Amount)
		case core.TransactionWithdrawal:
			out.WithdrawalVolume = out.WithdrawalVolume.Add(tx.Amount)
		case core.TransactionTransfer:
			out.TransferVolume = out.TransferVolume.Add(tx.Amount)
		}
	}
	return out, nil
}

func (a *analytics) user(userID string) *core.UserAnalytics {
	out := &core.UserAnalytics{
		UserID:         userID,
		TotalDeposited: decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		TotalSent:      decimal.Zero,
		TotalReceived:  decimal.Zero,
	}
	for _, tx := range a.txs {
		from := a.wallets[tx.FromWalletID].UserID == userID && tx.FromWalletID != ""
		to := a.wallets[tx.ToWalletID].UserID == userID && tx.ToWalletID != ""
		if !from && !to {
			continue
		}
		out.TransactionCount++
		switch tx.Type {
		case core.TransactionDeposit:
			out.TotalDeposited = out.TotalDeposited.Add(tx.Amount)
		case core.TransactionWithdrawal:
			out.TotalWithdrawn = out.TotalWithdrawn.Add(tx.Amount)
		case core.TransactionTransfer:
			if from {
				out.TotalSent = out.TotalSent.Add(tx.Amount)
			}
			if to {
				out.TotalReceived = out.TotalReceived.Add(tx.Amount)
			}
		}
	}
	return out
}

// snapshots walks balances back from the current position one day at a time
func (a *analytics) snapshots(userID string, days int, now time.Time) []core.UserSnapshot {
	balance := decimal.Zero
	count := 0
	for _, w := range a.wallets {
		if w.UserID == userID {
			balance = balance.Add(w.Balance)
			count++
		}
	}

	// net change per day, attributed to userID
	delta := map[string]decimal.Decimal{}
	for _, tx := range a.txs {
		day := tx.CreatedAt.Format(dateLayout)
		if tx.ToWalletID != "" && a.wallets[tx.ToWalletID].UserID == userID {
			delta[day] = delta[day].Add(tx.Amount)
		}
		if tx.FromWalletID != "" && a.wallets[tx.FromWalletID].UserID == userID {
			delta[day] = delta[day].Sub(tx.Amount)
		}
	}

	out := make([]core.UserSnapshot, days)
	day := now.Truncate(24 * time.Hour)
	for i := days - 1; i >= 0; i-- {
		date := day.Format(dateLayout)
		out[i] = core.UserSnapshot{UserID: userID, Date: date, TotalBalance: balance, WalletCount: count}
		balance = balance.Sub(delta[date])
		day = day.AddDate(0, 0, -1)
	}
	return out
}
