package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
)

var errMissingTransaction = errors.New("response carries no transaction")

// WalletService reads wallets and transactions and submits money movements
// through the dispatcher
type WalletService struct {
	sender Sender
	keys   ports.KeyGenerator
}

// NewWalletService creates a new wallet service
func NewWalletService(sender Sender, keys ports.KeyGenerator) *WalletService {
	return &WalletService{sender: sender, keys: keys}
}

// Me returns the profile of the signed in user
func (s *WalletService) Me(ctx context.Context) (*core.User, error) {
	var out struct {
		User core.User `json:"user"`
	}
	if err := s.get(ctx, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ListWallets returns every wallet of the signed in user
func (s *WalletService) ListWallets(ctx context.Context) ([]core.Wallet, error) {
	var out struct {
		Wallets []core.Wallet `json:"wallets"`
	}
	if err := s.get(ctx, "/wallets", nil, &out); err != nil {
		return nil, err
	}
	return out.Wallets, nil
}

// GetWallet returns one wallet with its current balance
func (s *WalletService) GetWallet(ctx context.Context, walletID string) (*core.Wallet, error) {
	var out struct {
		Wallet core.Wallet `json:"wallet"`
	}
	if err := s.get(ctx, "/wallets/"+url.PathEscape(walletID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Wallet, nil
}

// CreateWallet opens a wallet in a supported currency
func (s *WalletService) CreateWallet(ctx context.Context, currency string) (*core.Wallet, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !core.SupportedCurrency(currency) {
		return nil, core.FieldErrors{"currency": fmt.Sprintf("Unsupported currency %q", currency)}
	}

	req, err := core.NewRequest(http.MethodPost, "/wallets", map[string]string{"currency": currency})
	if err != nil {
		return nil, err
	}
	resp, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	var out struct {
		Wallet core.Wallet `json:"wallet"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode wallet: %w", err)
	}
	return &out.Wallet, nil
}

// WalletEvents returns the activity feed of a wallet
func (s *WalletService) WalletEvents(ctx context.Context, walletID string) ([]core.WalletEvent, error) {
	var out struct {
		Events []core.WalletEvent `json:"events"`
	}
	if err := s.get(ctx, "/wallets/"+url.PathEscape(walletID)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// ListTransactions returns the transactions touching a wallet
func (s *WalletService) ListTransactions(ctx context.Context, walletID string) ([]core.Transaction, error) {
	var out struct {
		Transactions []core.Transaction `json:"transactions"`
	}
	if err := s.get(ctx, "/wallets/"+url.PathEscape(walletID)+"/transactions", nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// GetTransaction returns one transaction
func (s *WalletService) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	var out struct {
		Transaction core.Transaction `json:"transaction"`
	}
	if err := s.get(ctx, "/transactions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

// Deposit credits a wallet. An empty idempotency key is minted.
func (s *WalletService) Deposit(ctx context.Context, walletID string, mv core.MovementRequest) (*core.Transaction, error) {
	return s.move(ctx, depositRequest(walletID, mv), mv.IdempotencyKey)
}

// Withdraw debits a wallet. An empty idempotency key is minted.
func (s *WalletService) Withdraw(ctx context.Context, walletID string, mv core.MovementRequest) (*core.Transaction, error) {
	return s.move(ctx, withdrawRequest(walletID, mv), mv.IdempotencyKey)
}

// Transfer moves funds between two wallets. An empty idempotency key is minted.
func (s *WalletService) Transfer(ctx context.Context, tr core.TransferRequest) (*core.Transaction, error) {
	return s.move(ctx, transferRequest(tr), tr.IdempotencyKey)
}

func (s *WalletService) move(ctx context.Context, build RequestBuilder, key string) (*core.Transaction, error) {
	if key == "" {
		key = s.keys.Generate()
	}
	req, err := build(key)
	if err != nil {
		return nil, err
	}
	req.IdempotencyKey = key

	resp, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	tx, err := decodeTransaction(resp)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *WalletService) get(ctx context.Context, path string, query url.Values, dst any) error {
	resp, err := s.sender.Send(ctx, core.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	if err := resp.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func depositRequest(walletID string, mv core.MovementRequest) RequestBuilder {
	return movementRequest("/wallets/"+url.PathEscape(walletID)+"/deposit", mv)
}

func withdrawRequest(walletID string, mv core.MovementRequest) RequestBuilder {
	return movementRequest("/wallets/"+url.PathEscape(walletID)+"/withdraw", mv)
}

func movementRequest(path string, mv core.MovementRequest) RequestBuilder {
	return func(key string) (core.Request, error) {
		mv.IdempotencyKey = key
		return core.NewRequest(http.MethodPost, path, mv)
	}
}

func transferRequest(tr core.TransferRequest) RequestBuilder {
	return func(key string) (core.Request, error) {
		tr.IdempotencyKey = key
		return core.NewRequest(http.MethodPost, "/transactions", tr)
	}
}

func decodeTransaction(resp *core.Response) (core.Transaction, error) {
	var out struct {
		Transaction core.Transaction `json:"transaction"`
	}
	if err := resp.Decode(&out); err != nil {
		return core.Transaction{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if out.Transaction.ID == "" {
		return core.Transaction{}, errMissingTransaction
	}
	return out.Transaction, nil
}
