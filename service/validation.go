package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/layer-3/mercuria/core"
	"github.com/shopspring/decimal"
)

// Field messages shown next to the amount input.
const (
	MsgAmountRequired     = "Amount is required"
	MsgAmountNotNumber    = "Amount must be a number"
	MsgAmountNotPositive  = "Amount must be greater than zero"
	MsgAmountNegative     = "Amount cannot be negative"
	MsgInsufficient       = "Insufficient balance"
	MsgSourceRequired     = "Select a source wallet"
	MsgRecipientRequired  = "Recipient wallet is required"
	MsgSameWallet         = "Cannot transfer to same wallet"
	MsgPasswordsDontMatch = "Passwords do not match"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and returns core.FieldErrors keyed by
// the wire name of each field.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	fields := core.FieldErrors{}
	for _, fe := range verrs {
		fields[fe.Field()] = msgForTag(fe)
	}
	return fields
}

func msgForTag(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "eqfield":
		return MsgPasswordsDontMatch
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}

func fieldLabel(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// ValidateLogin checks the login form
func ValidateLogin(in core.LoginInput) error {
	return validateStruct(in)
}

// ValidateRegister checks the sign-up form
func ValidateRegister(in core.RegisterInput) error {
	return validateStruct(in)
}

// ParseAmount parses a user-entered amount. msg is empty when the amount is a
// positive decimal.
func ParseAmount(raw string) (amount decimal.Decimal, msg string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, MsgAmountRequired
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, MsgAmountNotNumber
	}
	switch {
	case d.IsNegative():
		return decimal.Zero, MsgAmountNegative
	case d.IsZero():
		return decimal.Zero, MsgAmountNotPositive
	}
	return d, ""
}

// ValidateDeposit checks a deposit form. Deposits have no balance bound.
func ValidateDeposit(in core.MovementInput) (core.MovementRequest, error) {
	amount, msg := ParseAmount(in.Amount)
	if msg != "" {
		return core.MovementRequest{}, core.FieldErrors{"amount": msg}
	}
	return core.MovementRequest{Amount: amount, Description: strings.TrimSpace(in.Description)}, nil
}

// ValidateWithdrawal checks a withdrawal against the last known balance of wallet
func ValidateWithdrawal(in core.MovementInput, wallet core.Wallet) (core.MovementRequest, error) {
	amount, msg := ParseAmount(in.Amount)
	if msg == "" && amount.GreaterThan(wallet.Balance) {
		msg = MsgInsufficient
	}
	if msg != "" {
		return core.MovementRequest{}, core.FieldErrors{"amount": msg}
	}
	return core.MovementRequest{Amount: amount, Description: strings.TrimSpace(in.Description)}, nil
}

// ValidateTransfer checks a transfer against the last known wallet snapshots
func ValidateTransfer(in core.TransferInput, wallets []core.Wallet) (core.TransferRequest, error) {
	fields := core.FieldErrors{}

	from := strings.TrimSpace(in.FromWalletID)
	to := strings.TrimSpace(in.ToWalletID)

	if from == "" {
		fields["from_wallet_id"] = MsgSourceRequired
	}
	switch {
	case to == "":
		fields["to_wallet_id"] = MsgRecipientRequired
	case to == from:
		fields["to_wallet_id"] = MsgSameWallet
	}

	amount, msg := ParseAmount(in.Amount)
	if msg == "" && from != "" {
		if source, ok := findWallet(wallets, from); ok && amount.GreaterThan(source.Balance) {
			msg = MsgInsufficient
		}
	}
	if msg != "" {
		fields["amount"] = msg
	}

	if err := fields.Err(); err != nil {
		return core.TransferRequest{}, err
	}
	return core.TransferRequest{
		FromWalletID: from,
		ToWalletID:   to,
		Amount:       amount,
		Description:  strings.TrimSpace(in.Description),
	}, nil
}

func findWallet(wallets []core.Wallet, id string) (core.Wallet, bool) {
	for _, w := range wallets {
		if w.ID == id {
			return w, true
		}
	}
	return core.Wallet{}, false
}
