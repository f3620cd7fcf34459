package sim

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// Token is a fungible ledger kept in the host store.
type Token struct {
	denom string
	host  *Host
}

var _ types.TokenClient = (*Token)(nil)

func (t *Token) namespace() string {
	return "token/" + t.denom + "/"
}

// Denom returns the asset address of the token.
func (t *Token) Denom() string {
	return t.denom
}

func (t *Token) Balance(ctx context.Context, holder string) (sdkmath.Int, error) {
	balance := sdkmath.ZeroInt()
	if _, err := store.GetJSON(t.host.svc.Prefixed(ctx, t.namespace()), "balance/"+holder, &balance); err != nil {
		return sdkmath.Int{}, err
	}
	return utils.OrZero(balance), nil
}

func (t *Token) setBalance(ctx context.Context, holder string, balance sdkmath.Int) error {
	return store.SetJSON(t.host.svc.Prefixed(ctx, t.namespace()), "balance/"+holder, balance)
}

func (t *Token) Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%s: invalid transfer amount %v", t.denom, amount)
	}
	transfer := types.TransferPermit{Token: t.denom, From: from, To: to, Amount: amount}
	if err := t.host.auth.RequireTransfer(ctx, transfer); err != nil {
		return err
	}

	fromBalance, err := t.Balance(ctx, from)
	if err != nil {
		return err
	}
	if amount.GT(fromBalance) {
		return errors.Join(ErrInsufficientBalance, fmt.Errorf("%s holds %s %s, %s requested", from, fromBalance, t.denom, amount))
	}
	if from == to || amount.IsZero() {
		return nil
	}
	toBalance, err := t.Balance(ctx, to)
	if err != nil {
		return err
	}
	if err := t.setBalance(ctx, from, fromBalance.Sub(amount)); err != nil {
		return err
	}
	return t.setBalance(ctx, to, toBalance.Add(amount))
}

// Mint credits amount to `to` without authorization. It is the host's faucet.
func (t *Token) Mint(ctx context.Context, to string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%s: invalid mint amount %v", t.denom, amount)
	}
	balance, err := t.Balance(ctx, to)
	if err != nil {
		return err
	}
	return t.setBalance(ctx, to, balance.Add(amount))
}
