package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/types"
)

// FetchTotalManagedFunds returns the managed funds view without touching any report.
func (v *Vault) FetchTotalManagedFunds(ctx context.Context) ([]types.CurrentAssetInvestmentAllocation, error) {
	return query(ctx, v, func(c *call) ([]types.CurrentAssetInvestmentAllocation, error) {
		return c.fetchTotalManagedFunds(false)
	})
}

// GetAssetAmountsPerShares quotes what shares would withdraw right now.
func (v *Vault) GetAssetAmountsPerShares(ctx context.Context, shares sdkmath.Int) (map[string]sdkmath.Int, error) {
	return query(ctx, v, func(c *call) (map[string]sdkmath.Int, error) {
		if shares.IsNil() || shares.IsNegative() {
			return nil, ErrNegativeNotAllowed
		}
		totalManaged, err := c.fetchTotalManagedFunds(false)
		if err != nil {
			return nil, err
		}
		supply, err := c.repo.totalSupply()
		if err != nil {
			return nil, err
		}
		return calculateAssetAmountsPerShares(totalManaged, shares, supply)
	})
}

// GetAssets returns the managed assets with their strategies in registration order.
func (v *Vault) GetAssets(ctx context.Context) ([]types.AssetStrategySet, error) {
	return query(ctx, v, func(c *call) ([]types.AssetStrategySet, error) {
		return c.repo.getAssets()
	})
}

// GetReports returns the stored reports without marking them to market.
func (v *Vault) GetReports(ctx context.Context) (map[string]report.Report, error) {
	return query(ctx, v, func(c *call) (map[string]report.Report, error) {
		return c.repo.allReports()
	})
}

// GetFees returns the vault and protocol fee rates in basis points.
func (v *Vault) GetFees(ctx context.Context) (types.Fees, error) {
	return query(ctx, v, func(c *call) (types.Fees, error) {
		return c.repo.getFees()
	})
}

// BalanceOf returns the share balance of holder.
func (v *Vault) BalanceOf(ctx context.Context, holder string) (sdkmath.Int, error) {
	return query(ctx, v, func(c *call) (sdkmath.Int, error) {
		return c.repo.shareBalance(holder)
	})
}

// TotalSupply returns the number of shares outstanding.
func (v *Vault) TotalSupply(ctx context.Context) (sdkmath.Int, error) {
	return query(ctx, v, func(c *call) (sdkmath.Int, error) {
		return c.repo.totalSupply()
	})
}

// Metadata returns the share token name, symbol and decimals.
func (v *Vault) Metadata(ctx context.Context) (types.Metadata, error) {
	return query(ctx, v, func(c *call) (types.Metadata, error) {
		return c.repo.getMetadata()
	})
}

type shareTransfer struct {
	To     string      `json:"to"`
	Amount sdkmath.Int `json:"amount"`
}

// Transfer moves shares between holders.
func (v *Vault) Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error {
	_, err := execute(ctx, v, types.OperationShareTransfer, from, func(c *call) (shareTransfer, error) {
		if err := c.requireAuth(from); err != nil {
			return shareTransfer{}, err
		}
		if amount.IsNil() {
			return shareTransfer{}, ErrNegativeNotAllowed
		}
		if err := c.repo.moveShares(from, to, amount); err != nil {
			return shareTransfer{}, err
		}
		return shareTransfer{To: to, Amount: amount}, nil
	})
	return err
}
