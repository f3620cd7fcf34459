// Package report tracks the mark to market state of one strategy: the last
// observed balance, the unlocked gains or losses since then, and the fee locked
// out of those gains.
package report

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

var (
	ErrInsufficientManagedFunds = errors.New("insufficient managed funds")
	ErrNegativeNotAllowed       = errors.New("negative amount not allowed")
	ErrInvalidFeeRate           = errors.New("fee rate is invalid")
)

// Report is the ledger entry of a strategy. The zero value is not usable; use New.
type Report struct {
	PrevBalance   sdkmath.Int `json:"prev_balance"`
	GainsOrLosses sdkmath.Int `json:"gains_or_losses"`
	LockedFee     sdkmath.Int `json:"locked_fee"`
}

// New returns an all zero report.
func New() Report {
	return Report{
		PrevBalance:   sdkmath.ZeroInt(),
		GainsOrLosses: sdkmath.ZeroInt(),
		LockedFee:     sdkmath.ZeroInt(),
	}
}

// Normalize replaces nil fields with zero so decoded reports are safe to use.
func (r Report) Normalize() Report {
	return Report{
		PrevBalance:   utils.OrZero(r.PrevBalance),
		GainsOrLosses: utils.OrZero(r.GainsOrLosses),
		LockedFee:     utils.OrZero(r.LockedFee),
	}
}

// Report marks the strategy to currentBalance. A zero previous balance is a baseline and records no diff.
func (r *Report) Report(currentBalance sdkmath.Int) error {
	prev := r.PrevBalance
	if prev.IsZero() {
		prev = currentBalance
	}
	diff, err := utils.Sub(currentBalance, prev)
	if err != nil {
		return err
	}
	gains, err := utils.Add(r.GainsOrLosses, diff)
	if err != nil {
		return err
	}
	r.GainsOrLosses = gains
	r.PrevBalance = currentBalance
	return nil
}

// LockFee reserves feeBps of the unlocked gains as a fee claim and clears them.
// Losses are left in place so that they offset the next gains.
func (r *Report) LockFee(feeBps uint32) error {
	if int64(feeBps) > types.MaxBPS {
		return errors.Join(ErrInvalidFeeRate, fmt.Errorf("fee rate %d exceeds %d bps", feeBps, types.MaxBPS))
	}
	if !r.GainsOrLosses.IsPositive() {
		return nil
	}
	fee, err := utils.MulDiv(r.GainsOrLosses, sdkmath.NewInt(int64(feeBps)), sdkmath.NewInt(types.MaxBPS))
	if err != nil {
		return err
	}
	locked, err := utils.Add(r.LockedFee, fee)
	if err != nil {
		return err
	}
	r.LockedFee = locked
	r.GainsOrLosses = sdkmath.ZeroInt()
	return nil
}

// ReleaseFee moves amount from the locked fee back into the unlocked gains.
func (r *Report) ReleaseFee(amount sdkmath.Int) error {
	if amount.IsNegative() {
		return ErrNegativeNotAllowed
	}
	if amount.GT(r.LockedFee) {
		return errors.Join(ErrInsufficientManagedFunds,
			fmt.Errorf("cannot release %s, only %s is locked", amount, r.LockedFee))
	}
	locked, err := utils.Sub(r.LockedFee, amount)
	if err != nil {
		return err
	}
	gains, err := utils.Add(r.GainsOrLosses, amount)
	if err != nil {
		return err
	}
	r.LockedFee = locked
	r.GainsOrLosses = gains
	return nil
}

// ClearLockedFee zeroes the locked fee once it has been paid out.
func (r *Report) ClearLockedFee() {
	r.LockedFee = sdkmath.ZeroInt()
}
