package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// Deposit takes up to amountsDesired of every asset from `from` and mints shares.
// With invest set, the deposited amounts are spread over the active strategies in
// proportion to what each strategy already holds.
func (v *Vault) Deposit(ctx context.Context, amountsDesired, amountsMin []sdkmath.Int, from string, invest bool) (types.DepositResult, error) {
	return execute(ctx, v, types.OperationDeposit, from, func(c *call) (types.DepositResult, error) {
		if err := c.requireAuth(from); err != nil {
			return types.DepositResult{}, err
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return types.DepositResult{}, err
		}
		if err := validateAmounts(amountsDesired, amountsMin, len(assets)); err != nil {
			return types.DepositResult{}, err
		}

		if err := c.collectFees(); err != nil {
			return types.DepositResult{}, err
		}
		totalManaged, err := c.fetchTotalManagedFunds(true)
		if err != nil {
			return types.DepositResult{}, err
		}
		supply, err := c.repo.totalSupply()
		if err != nil {
			return types.DepositResult{}, err
		}

		amountsActual, shares, err := calculateDeposit(totalManaged, amountsDesired, amountsMin, supply)
		if err != nil {
			return types.DepositResult{}, err
		}

		for i, amount := range amountsActual {
			if !amount.IsPositive() {
				continue
			}
			token, err := c.token(assets[i].Address)
			if err != nil {
				return types.DepositResult{}, err
			}
			if err := token.Transfer(c.contractCtx(), from, c.v.address, amount); err != nil {
				return types.DepositResult{}, errors.Join(ErrTokenTransfer, fmt.Errorf("%s %s from %s: %w", amount, assets[i].Address, from, err))
			}
		}

		if err := c.mintDepositShares(from, shares, supply); err != nil {
			return types.DepositResult{}, err
		}

		if invest {
			if err := c.investDeposit(assets, totalManaged, amountsActual); err != nil {
				return types.DepositResult{}, err
			}
		}

		c.log.Info().
			Str("depositor", from).
			Str("shares", shares.String()).
			Bool("invest", invest).
			Msg("Deposit: shares minted")
		return types.DepositResult{AmountsActual: amountsActual, SharesMinted: shares}, nil
	})
}

// mintDepositShares locks MinimumLiquidity to the vault on the first mint.
func (c *call) mintDepositShares(to string, shares, supply sdkmath.Int) error {
	if !supply.IsZero() {
		if !shares.IsPositive() {
			return errors.Join(ErrInsufficientAmount, errors.New("deposit would mint zero shares"))
		}
		return c.repo.mintShares(to, shares)
	}

	minimum := sdkmath.NewInt(types.MinimumLiquidity)
	if shares.LT(minimum) {
		return errors.Join(ErrInsufficientAmount,
			fmt.Errorf("first deposit must mint at least %s shares, got %s", minimum, shares))
	}
	if err := c.repo.mintShares(c.v.address, minimum); err != nil {
		return err
	}
	rest, err := utils.Sub(shares, minimum)
	if err != nil {
		return err
	}
	return c.repo.mintShares(to, rest)
}

func validateAmounts(amountsDesired, amountsMin []sdkmath.Int, assetCount int) error {
	if len(amountsDesired) != assetCount || len(amountsMin) != assetCount {
		return errors.Join(ErrWrongAmountsLength,
			fmt.Errorf("got %d desired and %d minimum amounts for %d assets", len(amountsDesired), len(amountsMin), assetCount))
	}
	for i := range amountsDesired {
		if amountsDesired[i].IsNil() || amountsMin[i].IsNil() {
			return errors.Join(ErrNegativeNotAllowed, fmt.Errorf("amount %d is not set", i))
		}
		if amountsDesired[i].IsNegative() || amountsMin[i].IsNegative() {
			return ErrNegativeNotAllowed
		}
	}
	return nil
}

// calculateDeposit returns the amounts to take from the depositor and the shares to mint.
// Every division truncates, so the depositor never receives more than their contribution.
func calculateDeposit(totalManaged []types.CurrentAssetInvestmentAllocation, amountsDesired, amountsMin []sdkmath.Int, supply sdkmath.Int) ([]sdkmath.Int, sdkmath.Int, error) {
	if len(totalManaged) == 1 {
		shares := amountsDesired[0]
		if supply.IsPositive() {
			var err error
			if shares, err = utils.MulDiv(supply, amountsDesired[0], totalManaged[0].TotalAmount); err != nil {
				return nil, sdkmath.Int{}, err
			}
		}
		if amountsDesired[0].LT(amountsMin[0]) {
			return nil, sdkmath.Int{}, errors.Join(ErrInsufficientAmount,
				fmt.Errorf("amount %s below minimum %s", amountsDesired[0], amountsMin[0]))
		}
		return []sdkmath.Int{amountsDesired[0]}, shares, nil
	}

	if supply.IsZero() {
		shares, err := utils.Sum(amountsDesired)
		if err != nil {
			return nil, sdkmath.Int{}, err
		}
		for i := range amountsDesired {
			if amountsDesired[i].LT(amountsMin[i]) {
				return nil, sdkmath.Int{}, errors.Join(ErrInsufficientAmount,
					fmt.Errorf("asset %d: amount %s below minimum %s", i, amountsDesired[i], amountsMin[i]))
			}
		}
		return append([]sdkmath.Int(nil), amountsDesired...), shares, nil
	}

	return calculateOptimalDeposit(totalManaged, amountsDesired, amountsMin, supply)
}

// calculateOptimalDeposit tries each asset in order as the enforced one and keeps the
// first candidate whose implied amounts fit within every desired amount.
func calculateOptimalDeposit(totalManaged []types.CurrentAssetInvestmentAllocation, amountsDesired, amountsMin []sdkmath.Int, supply sdkmath.Int) ([]sdkmath.Int, sdkmath.Int, error) {
	for enforced := range totalManaged {
		reserveTarget := totalManaged[enforced].TotalAmount
		if !reserveTarget.IsPositive() {
			continue
		}
		desiredTarget := amountsDesired[enforced]

		optimal, fits, err := optimalAmountsWithEnforcedAsset(totalManaged, amountsDesired, enforced)
		if err != nil {
			return nil, sdkmath.Int{}, err
		}
		if !fits {
			continue
		}

		for i := range optimal {
			if optimal[i].LT(amountsMin[i]) {
				return nil, sdkmath.Int{}, errors.Join(ErrInsufficientAmount,
					fmt.Errorf("asset %d: optimal amount %s below minimum %s", i, optimal[i], amountsMin[i]))
			}
		}

		shares, err := utils.MulDiv(supply, desiredTarget, reserveTarget)
		if err != nil {
			return nil, sdkmath.Int{}, err
		}
		return optimal, shares, nil
	}
	return nil, sdkmath.Int{}, errors.Join(ErrInsufficientAmount, errors.New("no optimal deposit amounts fit the desired amounts"))
}

// optimalAmountsWithEnforcedAsset scales every asset to the ratio implied by the enforced asset.
func optimalAmountsWithEnforcedAsset(totalManaged []types.CurrentAssetInvestmentAllocation, amountsDesired []sdkmath.Int, enforced int) ([]sdkmath.Int, bool, error) {
	reserveTarget := totalManaged[enforced].TotalAmount
	desiredTarget := amountsDesired[enforced]

	optimal := make([]sdkmath.Int, len(totalManaged))
	for i, allocation := range totalManaged {
		if i == enforced {
			optimal[i] = desiredTarget
			continue
		}
		amount, err := utils.MulDiv(allocation.TotalAmount, desiredTarget, reserveTarget)
		if err != nil {
			return nil, false, err
		}
		if amount.GT(amountsDesired[i]) {
			return nil, false, nil
		}
		optimal[i] = amount
	}
	return optimal, true, nil
}

// investDeposit spreads the freshly deposited amounts over the active strategies of each
// asset in proportion to their current allocation. Rounding dust stays idle.
func (c *call) investDeposit(assets []types.AssetStrategySet, totalManaged []types.CurrentAssetInvestmentAllocation, amounts []sdkmath.Int) error {
	var instructions []types.Instruction
	for i, asset := range assets {
		if !amounts[i].IsPositive() {
			continue
		}

		activeInvested := sdkmath.ZeroInt()
		for j, strategy := range asset.Strategies {
			if strategy.Paused {
				continue
			}
			var err error
			if activeInvested, err = utils.Add(activeInvested, totalManaged[i].StrategyAllocations[j].Amount); err != nil {
				return err
			}
		}
		if activeInvested.IsZero() {
			continue
		}

		for j, strategy := range asset.Strategies {
			if strategy.Paused {
				continue
			}
			share, err := utils.MulDiv(amounts[i], totalManaged[i].StrategyAllocations[j].Amount, activeInvested)
			if err != nil {
				return err
			}
			if share.IsPositive() {
				instructions = append(instructions, types.NewInvestInstruction(strategy.Address, share))
			}
		}
	}

	if len(instructions) == 0 {
		return nil
	}
	_, err := c.executeInstructions(instructions)
	return err
}
