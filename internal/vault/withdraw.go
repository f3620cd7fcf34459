package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// Withdraw burns shares of `from` and sends it the proportional amount of every asset.
// Idle funds are used first; the shortfall is unwound from the asset's strategies in order.
func (v *Vault) Withdraw(ctx context.Context, shares sdkmath.Int, amountsMin []sdkmath.Int, from string) ([]sdkmath.Int, error) {
	return execute(ctx, v, types.OperationWithdraw, from, func(c *call) ([]sdkmath.Int, error) {
		if err := c.requireAuth(from); err != nil {
			return nil, err
		}
		if shares.IsNil() || shares.IsNegative() {
			return nil, ErrNegativeNotAllowed
		}
		if shares.IsZero() {
			return nil, errors.Join(ErrInsufficientAmount, errors.New("cannot withdraw zero shares"))
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return nil, err
		}
		if amountsMin != nil && len(amountsMin) != len(assets) {
			return nil, errors.Join(ErrWrongAmountsLength,
				fmt.Errorf("got %d minimum amounts for %d assets", len(amountsMin), len(assets)))
		}

		if err := c.collectFees(); err != nil {
			return nil, err
		}
		totalManaged, err := c.fetchTotalManagedFunds(true)
		if err != nil {
			return nil, err
		}
		supply, err := c.repo.totalSupply()
		if err != nil {
			return nil, err
		}
		amounts, err := calculateAssetAmountsPerShares(totalManaged, shares, supply)
		if err != nil {
			return nil, err
		}

		// Burn before any funds leave the vault.
		if err := c.repo.burnShares(from, shares); err != nil {
			return nil, err
		}

		withdrawn := make([]sdkmath.Int, len(totalManaged))
		for i, allocation := range totalManaged {
			requested := amounts[allocation.Asset]
			if amountsMin != nil && requested.LT(amountsMin[i]) {
				return nil, errors.Join(ErrInsufficientOutputAmount,
					fmt.Errorf("asset %s: %s below minimum %s", allocation.Asset, requested, amountsMin[i]))
			}
			if err := c.coverFromStrategies(allocation, requested); err != nil {
				return nil, err
			}
			if err := c.transferFromVault(allocation.Asset, from, requested); err != nil {
				return nil, err
			}
			withdrawn[i] = requested
		}

		c.log.Info().
			Str("holder", from).
			Str("shares", shares.String()).
			Msg("Withdraw: shares burned")
		return withdrawn, nil
	})
}

// coverFromStrategies unwinds whatever idle funds cannot cover.
func (c *call) coverFromStrategies(allocation types.CurrentAssetInvestmentAllocation, requested sdkmath.Int) error {
	if requested.LTE(allocation.IdleAmount) {
		return nil
	}
	shortfall, err := utils.Sub(requested, allocation.IdleAmount)
	if err != nil {
		return err
	}
	for _, sa := range allocation.StrategyAllocations {
		if !shortfall.IsPositive() {
			break
		}
		if !sa.Amount.IsPositive() {
			continue
		}
		amount := sdkmath.MinInt(shortfall, sa.Amount)
		withdrawn, _, err := c.unwindFromStrategy(sa.StrategyAddress, amount)
		if err != nil {
			return err
		}
		if shortfall, err = utils.Sub(shortfall, withdrawn); err != nil {
			return err
		}
	}
	if shortfall.IsPositive() {
		return errors.Join(ErrInsufficientManagedFunds,
			fmt.Errorf("asset %s: %s could not be unwound", allocation.Asset, shortfall))
	}
	return nil
}

// calculateAssetAmountsPerShares returns shares * total / supply per asset, truncated.
func calculateAssetAmountsPerShares(totalManaged []types.CurrentAssetInvestmentAllocation, shares, supply sdkmath.Int) (map[string]sdkmath.Int, error) {
	if shares.GT(supply) {
		return nil, errors.Join(ErrAmountOverTotalSupply, fmt.Errorf("%s shares requested, supply %s", shares, supply))
	}
	amounts := make(map[string]sdkmath.Int, len(totalManaged))
	for _, allocation := range totalManaged {
		if supply.IsZero() {
			amounts[allocation.Asset] = sdkmath.ZeroInt()
			continue
		}
		amount, err := utils.MulDiv(shares, allocation.TotalAmount, supply)
		if err != nil {
			return nil, err
		}
		amounts[allocation.Asset] = amount
	}
	return amounts, nil
}

// EmergencyWithdraw pulls the vault's whole position, net of the locked fee, out of a
// strategy and pauses it.
func (v *Vault) EmergencyWithdraw(ctx context.Context, strategy, caller string) error {
	_, err := execute(ctx, v, types.OperationEmergencyWithdraw, caller, func(c *call) (sdkmath.Int, error) {
		if err := c.requireRole(caller, types.RoleEmergencyManager, types.RoleManager); err != nil {
			return sdkmath.Int{}, err
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return sdkmath.Int{}, err
		}
		assetIdx, strategyIdx, err := findStrategy(assets, strategy)
		if err != nil {
			return sdkmath.Int{}, err
		}

		rep, err := c.reportStrategy(strategy)
		if err != nil {
			return sdkmath.Int{}, err
		}
		amount, err := utils.Sub(rep.PrevBalance, rep.LockedFee)
		if err != nil {
			return sdkmath.Int{}, err
		}
		withdrawn := sdkmath.ZeroInt()
		if amount.IsPositive() {
			if withdrawn, _, err = c.unwindFromStrategy(strategy, amount); err != nil {
				return sdkmath.Int{}, err
			}
		}

		assets[assetIdx].Strategies[strategyIdx].Paused = true
		if err := c.repo.setAssets(assets); err != nil {
			return sdkmath.Int{}, err
		}

		c.log.Warn().
			Str("strategy", strategy).
			Str("withdrawn", withdrawn.String()).
			Msg("Emergency: strategy evacuated and paused")
		return withdrawn, nil
	})
	return err
}
