package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

func (c *call) token(asset string) (types.TokenClient, error) {
	client, err := c.v.resolver.Token(asset)
	if err != nil {
		return nil, errors.Join(ErrUnsupportedAsset, fmt.Errorf("token %s: %w", asset, err))
	}
	return client, nil
}

func (c *call) strategy(addr string) (types.StrategyClient, error) {
	client, err := c.v.resolver.Strategy(addr)
	if err != nil {
		return nil, errors.Join(ErrStrategyNotFound, fmt.Errorf("strategy %s: %w", addr, err))
	}
	return client, nil
}

// fetchIdleFundsForAsset returns the asset balance held directly by the vault.
func (c *call) fetchIdleFundsForAsset(asset string) (sdkmath.Int, error) {
	token, err := c.token(asset)
	if err != nil {
		return sdkmath.Int{}, err
	}
	balance, err := token.Balance(c.contractCtx(), c.v.address)
	if err != nil {
		return sdkmath.Int{}, errors.Join(ErrTokenQuery, fmt.Errorf("balance of %s: %w", asset, err))
	}
	return balance, nil
}

// strategyBalance returns the vault's position in a strategy as reported by the strategy.
func (c *call) strategyBalance(addr string) (sdkmath.Int, error) {
	client, err := c.strategy(addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	balance, err := client.Balance(c.contractCtx(), c.v.address)
	if err != nil {
		return sdkmath.Int{}, errors.Join(ErrStrategyQuery, fmt.Errorf("balance of %s: %w", addr, err))
	}
	return balance, nil
}

// fetchStrategyInvestedFunds returns the vault's strategy position net of the locked fee.
// With lockFees the report is marked to market and the vault fee locked before the subtraction.
func (c *call) fetchStrategyInvestedFunds(strategy types.Strategy, lockFees bool, vaultFeeBps uint32) (sdkmath.Int, error) {
	balance, err := c.strategyBalance(strategy.Address)
	if err != nil {
		return sdkmath.Int{}, err
	}

	rep, err := c.repo.getReport(strategy.Address)
	if err != nil {
		return sdkmath.Int{}, err
	}

	if lockFees && !strategy.Paused {
		if err := rep.Report(balance); err != nil {
			return sdkmath.Int{}, err
		}
		if err := rep.LockFee(vaultFeeBps); err != nil {
			return sdkmath.Int{}, err
		}
		if err := c.repo.setReport(strategy.Address, rep); err != nil {
			return sdkmath.Int{}, err
		}
		c.touch(strategy.Address)
	}

	invested, err := utils.Sub(balance, rep.LockedFee)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if invested.IsNegative() {
		c.log.Warn().
			Str("strategy", strategy.Address).
			Str("balance", balance.String()).
			Str("lockedFee", rep.LockedFee.String()).
			Msg("Funds: strategy balance below locked fee, counting it as empty")
		return sdkmath.ZeroInt(), nil
	}
	return invested, nil
}

// fetchTotalManagedFunds returns the idle and invested funds of every managed asset.
// Any collaborator failure aborts the whole view.
func (c *call) fetchTotalManagedFunds(lockFees bool) ([]types.CurrentAssetInvestmentAllocation, error) {
	assets, err := c.repo.getAssets()
	if err != nil {
		return nil, err
	}
	fees, err := c.repo.getFees()
	if err != nil {
		return nil, err
	}

	allocations := make([]types.CurrentAssetInvestmentAllocation, 0, len(assets))
	for _, asset := range assets {
		idle, err := c.fetchIdleFundsForAsset(asset.Address)
		if err != nil {
			return nil, err
		}

		invested := sdkmath.ZeroInt()
		strategyAllocations := make([]types.StrategyAllocation, 0, len(asset.Strategies))
		for _, strategy := range asset.Strategies {
			amount, err := c.fetchStrategyInvestedFunds(strategy, lockFees, fees.VaultFeeBps)
			if err != nil {
				return nil, err
			}
			if invested, err = utils.Add(invested, amount); err != nil {
				return nil, err
			}
			strategyAllocations = append(strategyAllocations, types.StrategyAllocation{
				StrategyAddress: strategy.Address,
				Amount:          amount,
				Paused:          strategy.Paused,
			})
		}

		total, err := utils.Add(idle, invested)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, types.CurrentAssetInvestmentAllocation{
			Asset:               asset.Address,
			TotalAmount:         total,
			IdleAmount:          idle,
			InvestedAmount:      invested,
			StrategyAllocations: strategyAllocations,
		})
	}
	return allocations, nil
}

// findStrategy locates a strategy by address across every asset.
func findStrategy(assets []types.AssetStrategySet, addr string) (assetIdx, strategyIdx int, err error) {
	for i, asset := range assets {
		for j, strategy := range asset.Strategies {
			if strategy.Address == addr {
				return i, j, nil
			}
		}
	}
	return -1, -1, errors.Join(ErrStrategyNotFound, fmt.Errorf("strategy %s", addr))
}

func assetIndex(assets []types.AssetStrategySet, addr string) int {
	for i, asset := range assets {
		if asset.Address == addr {
			return i
		}
	}
	return -1
}
