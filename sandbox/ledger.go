package sandbox

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/mercuria/core"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user core.User
	hash []byte
}

// Ledger keeps users, wallets and money movements in memory
type Ledger struct {
	mu           sync.RWMutex
	accounts     map[string]*account // by email
	wallets      map[string]*core.Wallet
	transactions []core.Transaction
	events       []core.WalletEvent
	entries      int
	bcryptCost   int
	now          func() time.Time
}

// NewLedger creates an empty ledger
func NewLedger(bcryptCost int) *Ledger {
	return &Ledger{
		accounts:   map[string]*account{},
		wallets:    map[string]*core.Wallet{},
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account
func (l *Ledger) Register(email, password, firstName, lastName string) (*core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.bcryptCost)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[email]; ok {
		return nil, ErrEmailTaken
	}
	acc := &account{
		user: core.User{
			ID:        uuid.NewString(),
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
			CreatedAt: l.now(),
		},
		hash: hash,
	}
	l.accounts[email] = acc

	user := acc.user
	return &user, nil
}

// Authenticate checks a password
func (l *Ledger) Authenticate(email, password string) (*core.User, error) {
	l.mu.RLock()
	acc, ok := l.accounts[strings.ToLower(strings.TrimSpace(email))]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	user := acc.user
	return &user, nil
}

// User returns an account by id
func (l *Ledger) User(id string) (*core.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, acc := range l.accounts {
		if acc.user.ID == id {
			user := acc.user
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

// CreateWallet opens a wallet with a zero balance
func (l *Ledger) CreateWallet(userID, currency string) (*core.Wallet, error) {
	return l.OpenWallet(userID, currency, decimal.Zero)
}

// OpenWallet opens a wallet with an initial balance
func (l *Ledger) OpenWallet(userID, currency string, balance decimal.Decimal) (*core.Wallet, error) {
	currency = strings.ToUpper(currency)
	if !core.SupportedCurrency(currency) {
		return nil, ErrUnsupportedCurrency
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, w := range l.wallets {
		if w.UserID == userID && w.Currency == currency {
			return nil, ErrWalletExists
		}
	}

	now := l.now()
	w := &core.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.wallets[w.ID] = w

	out := *w
	return &out, nil
}

// Wallets lists the wallets of a user
func (l *Ledger) Wallets(userID string) []core.Wallet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []core.Wallet{}
	for _, w := range l.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wallet returns a wallet owned by userID
func (l *Ledger) Wallet(userID, walletID string) (*core.Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.wallets[walletID]
	if !ok || w.UserID != userID {
		return nil, ErrNotFound
	}
	out := *w
	return &out, nil
}

// Events returns the activity feed of a wallet owned by userID
func (l *Ledger) Events(userID, walletID string) ([]core.WalletEvent, error) {
	if _, err := l.Wallet(userID, walletID); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []core.WalletEvent{}
	for _, e := range l.events {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Transactions returns the transactions touching a wallet owned by userID
func (l *Ledger) Transactions(userID, walletID string) ([]core.Transaction, error) {
	if _, err := l.Wallet(userID, walletID); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []core.Transaction{}
	for _, tx := range l.transactions {
		if tx.FromWalletID == walletID || tx.ToWalletID == walletID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Transaction returns a transaction visible to userID
func (l *Ledger) Transaction(userID, id string) (*core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, tx := range l.transactions {
		if tx.ID != id {
			continue
		}
		if l.owns(userID, tx.FromWalletID) || l.owns(userID, tx.ToWalletID) {
			out := tx
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (l *Ledger) owns(userID, walletID string) bool {
	w, ok := l.wallets[walletID]
	return ok && w.UserID == userID
}

// Deposit credits a wallet
func (l *Ledger) Deposit(userID, walletID string, mv core.MovementRequest) (*core.Transaction, error) {
	if !mv.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[walletID]
	if !ok || w.UserID != userID {
		return nil, ErrNotFound
	}

	w.Balance = w.Balance.Add(mv.Amount)
	return l.record(core.Transaction{
		Type:           core.TransactionDeposit,
		ToWalletID:     w.ID,
		Amount:         mv.Amount,
		Currency:       w.Currency,
		Description:    mv.Description,
		IdempotencyKey: mv.IdempotencyKey,
	}, core.WalletEvent{WalletID: w.ID, EventType: core.EventTypeDeposit, Amount: mv.Amount}), nil
}

// Withdraw debits a wallet
func (l *Ledger) Withdraw(userID, walletID string, mv core.MovementRequest) (*core.Transaction, error) {
	if !mv.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[walletID]
	if !ok || w.UserID != userID {
		return nil, ErrNotFound
	}
	if w.Balance.LessThan(mv.Amount) {
		return nil, ErrInsufficientFunds
	}

	w.Balance = w.Balance.Sub(mv.Amount)
	return l.record(core.Transaction{
		Type:           core.TransactionWithdrawal,
		FromWalletID:   w.ID,
		Amount:         mv.Amount,
		Currency:       w.Currency,
		Description:    mv.Description,
		IdempotencyKey: mv.IdempotencyKey,
	}, core.WalletEvent{WalletID: w.ID, EventType: core.EventTypeWithdrawal, Amount: mv.Amount}), nil
}

// Transfer moves funds from a wallet owned by userID to any wallet of the
// same currency
func (l *Ledger) Transfer(userID string, tr core.TransferRequest) (*core.Transaction, error) {
	if !tr.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if tr.FromWalletID == tr.ToWalletID {
		return nil, ErrSameWallet
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.wallets[tr.FromWalletID]
	if !ok || from.UserID != userID {
		return nil, ErrNotFound
	}
	to, ok := l.wallets[tr.ToWalletID]
	if !ok {
		return nil, ErrNotFound
	}
	if from.Currency != to.Currency {
		return nil, ErrCurrencyMismatch
	}
	if from.Balance.LessThan(tr.Amount) {
		return nil, ErrInsufficientFunds
	}

	from.Balance = from.Balance.Sub(tr.Amount)
	to.Balance = to.Balance.Add(tr.Amount)
	return l.record(core.Transaction{
		Type:           core.TransactionTransfer,
		FromWalletID:   from.ID,
		ToWalletID:     to.ID,
		Amount:         tr.Amount,
		Currency:       from.Currency,
		Description:    tr.Description,
		IdempotencyKey: tr.IdempotencyKey,
	},
		core.WalletEvent{WalletID: from.ID, EventType: core.EventTypeDebit, Amount: tr.Amount},
		core.WalletEvent{WalletID: to.ID, EventType: core.EventTypeCredit, Amount: tr.Amount},
	), nil
}

// record appends a completed transaction. Caller holds l.mu.
func (l *Ledger) record(tx core.Transaction, events ...core.WalletEvent) *core.Transaction {
	now := l.now()
	tx.ID = uuid.NewString()
	tx.Status = core.StatusCompleted
	tx.CreatedAt = now
	l.transactions = append(l.transactions, tx)

	for _, e := range events {
		e.ID = uuid.NewString()
		e.CreatedAt = now
		l.events = append(l.events, e)
		if w, ok := l.wallets[e.WalletID]; ok {
			w.UpdatedAt = now
		}
	}
	l.entries++

	out := tx
	return &out
}

// Entries counts applied money movements
func (l *Ledger) Entries() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries
}

// snapshot copies the transactions and wallets for read-only aggregation
func (l *Ledger) snapshot() ([]core.Transaction, map[string]core.Wallet) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txs := append([]core.Transaction(nil), l.transactions...)
	wallets := make(map[string]core.Wallet, len(l.wallets))
	for id, w := range l.wallets {
		wallets[id] = *w
	}
	return txs, wallets
}
