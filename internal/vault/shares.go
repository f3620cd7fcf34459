package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/utils"
)

// The share ledger keeps sum(balances) == total supply: every mutation moves
// the same amount on both sides within one repository.

func (r *repository) mintShares(to string, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return ErrNegativeNotAllowed
	}
	if amount.IsZero() {
		return nil
	}
	balance, err := r.shareBalance(to)
	if err != nil {
		return err
	}
	supply, err := r.totalSupply()
	if err != nil {
		return err
	}
	if balance, err = utils.Add(balance, amount); err != nil {
		return err
	}
	if supply, err = utils.Add(supply, amount); err != nil {
		return err
	}
	if err := r.setShareBalance(to, balance); err != nil {
		return err
	}
	return r.setTotalSupply(supply)
}

func (r *repository) burnShares(from string, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return ErrNegativeNotAllowed
	}
	balance, err := r.shareBalance(from)
	if err != nil {
		return err
	}
	if amount.GT(balance) {
		return errors.Join(ErrInsufficientBalance, fmt.Errorf("%s holds %s shares, %s requested", from, balance, amount))
	}
	supply, err := r.totalSupply()
	if err != nil {
		return err
	}
	if balance, err = utils.Sub(balance, amount); err != nil {
		return err
	}
	if supply, err = utils.Sub(supply, amount); err != nil {
		return err
	}
	if err := r.setShareBalance(from, balance); err != nil {
		return err
	}
	return r.setTotalSupply(supply)
}

func (r *repository) moveShares(from, to string, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return ErrNegativeNotAllowed
	}
	fromBalance, err := r.shareBalance(from)
	if err != nil {
		return err
	}
	if amount.GT(fromBalance) {
		return errors.Join(ErrInsufficientBalance, fmt.Errorf("%s holds %s shares, %s requested", from, fromBalance, amount))
	}
	if from == to || amount.IsZero() {
		return nil
	}
	toBalance, err := r.shareBalance(to)
	if err != nil {
		return err
	}
	if fromBalance, err = utils.Sub(fromBalance, amount); err != nil {
		return err
	}
	if toBalance, err = utils.Add(toBalance, amount); err != nil {
		return err
	}
	if err := r.setShareBalance(from, fromBalance); err != nil {
		return err
	}
	return r.setShareBalance(to, toBalance)
}
