package service

import (
	"log/slog"
	"sync"

	"github.com/layer-3/mercuria/core"
)

// WithdrawForm checks withdrawals against the last known balance of its wallet
type WithdrawForm struct {
	*Form[core.MovementInput, core.Transaction]

	mu     sync.RWMutex
	wallet core.Wallet
}

// NewWithdrawForm creates a withdrawal form for wallet
func (s *WalletService) NewWithdrawForm(wallet core.Wallet, logger *slog.Logger) *WithdrawForm {
	wf := &WithdrawForm{wallet: wallet}
	wf.Form = NewForm(FormSpec[core.MovementInput, core.Transaction]{
		Name: "withdraw",
		Prepare: func(in core.MovementInput) (RequestBuilder, error) {
			w := wf.Wallet()
			mv, err := ValidateWithdrawal(in, w)
			if err != nil {
				return nil, err
			}
			return withdrawRequest(w.ID, mv), nil
		},
		Decode: decodeTransaction,
	}, s.keys, s.sender, logger)
	return wf
}

// SetWallet replaces the balance snapshot, e.g. after a refetch
func (f *WithdrawForm) SetWallet(w core.Wallet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallet = w
}

// Wallet returns the balance snapshot withdrawals are checked against
func (f *WithdrawForm) Wallet() core.Wallet {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.wallet
}

// NewDepositForm creates a deposit form for walletID. Deposits have no
// balance bound.
func (s *WalletService) NewDepositForm(walletID string, logger *slog.Logger) *Form[core.MovementInput, core.Transaction] {
	return NewForm(FormSpec[core.MovementInput, core.Transaction]{
		Name: "deposit",
		Prepare: func(in core.MovementInput) (RequestBuilder, error) {
			mv, err := ValidateDeposit(in)
			if err != nil {
				return nil, err
			}
			return depositRequest(walletID, mv), nil
		},
		Decode: decodeTransaction,
	}, s.keys, s.sender, logger)
}

// TransferForm checks transfers against the last known wallet balances
type TransferForm struct {
	*Form[core.TransferInput, core.Transaction]

	mu      sync.RWMutex
	wallets []core.Wallet
}

// NewTransferForm creates a transfer form over the user's wallets
func (s *WalletService) NewTransferForm(wallets []core.Wallet, logger *slog.Logger) *TransferForm {
	tf := &TransferForm{wallets: wallets}
	tf.Form = NewForm(FormSpec[core.TransferInput, core.Transaction]{
		Name: "transfer",
		Prepare: func(in core.TransferInput) (RequestBuilder, error) {
			tr, err := ValidateTransfer(in, tf.Wallets())
			if err != nil {
				return nil, err
			}
			return transferRequest(tr), nil
		},
		Decode: decodeTransaction,
	}, s.keys, s.sender, logger)
	return tf
}

// SetWallets replaces the balance snapshots
func (f *TransferForm) SetWallets(wallets []core.Wallet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets = wallets
}

// Wallets returns the balance snapshots transfers are checked against
func (f *TransferForm) Wallets() []core.Wallet {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.wallets
}
