package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

func (c *call) factory(addr string) (types.FactoryClient, error) {
	client, err := c.v.resolver.Factory(addr)
	if err != nil {
		return nil, errors.Join(ErrFactoryQuery, fmt.Errorf("factory %s: %w", addr, err))
	}
	return client, nil
}

func (c *call) factoryFeeReceiver(addr string) (string, error) {
	client, err := c.factory(addr)
	if err != nil {
		return "", err
	}
	receiver, err := client.FeeReceiver(c.contractCtx())
	if err != nil {
		return "", errors.Join(ErrFactoryQuery, fmt.Errorf("fee receiver: %w", err))
	}
	return receiver, nil
}

// fetchDefindexFee reads the protocol fee rate from the factory and stores it.
func (c *call) fetchDefindexFee() (types.Fees, error) {
	fees, err := c.repo.getFees()
	if err != nil {
		return types.Fees{}, err
	}
	factoryAddr, err := c.repo.getString(keyFactory)
	if err != nil {
		return types.Fees{}, err
	}
	client, err := c.factory(factoryAddr)
	if err != nil {
		return types.Fees{}, err
	}
	rate, err := client.FeeRate(c.contractCtx())
	if err != nil {
		return types.Fees{}, errors.Join(ErrFactoryQuery, fmt.Errorf("fee rate: %w", err))
	}
	if int64(fees.VaultFeeBps)+int64(rate) >= types.MaxBPS {
		return types.Fees{}, errors.Join(ErrInvalidFee,
			fmt.Errorf("protocol fee %d with vault fee %d reaches %d bps", rate, fees.VaultFeeBps, types.MaxBPS))
	}
	if rate != fees.ProtocolFeeBps {
		c.log.Info().Uint32("previous", fees.ProtocolFeeBps).Uint32("current", rate).Msg("Fees: protocol fee rate changed")
		fees.ProtocolFeeBps = rate
		if err := c.repo.setFees(fees); err != nil {
			return types.Fees{}, err
		}
	}
	return fees, nil
}

// collectFees mints the time based protocol and vault fees as new shares.
// fees = rate * supply * elapsed / (SecondsPerYear * MaxBPS - rate * elapsed)
func (c *call) collectFees() error {
	now := c.v.clock.Now()
	last, found, err := c.repo.getLastFeeAssessment()
	if err != nil {
		return err
	}
	if !found || last > now {
		return c.repo.setLastFeeAssessment(now)
	}
	elapsed := now - last
	if elapsed == 0 {
		return nil
	}
	// updated before minting
	if err := c.repo.setLastFeeAssessment(now); err != nil {
		return err
	}
	if elapsed > uint64(types.MaxFeeAssessmentPeriod) {
		c.log.Warn().Uint64("elapsed", elapsed).Msg("Fees: assessment period capped")
		elapsed = uint64(types.MaxFeeAssessmentPeriod)
	}

	fees, err := c.fetchDefindexFee()
	if err != nil {
		return err
	}
	totalRate := sdkmath.NewInt(int64(fees.VaultFeeBps) + int64(fees.ProtocolFeeBps))
	if totalRate.IsZero() {
		return nil
	}
	supply, err := c.repo.totalSupply()
	if err != nil {
		return err
	}
	if supply.IsZero() {
		return nil
	}

	elapsedInt := sdkmath.NewIntFromUint64(elapsed)
	numerator, err := utils.Mul(totalRate, supply)
	if err != nil {
		return err
	}
	if numerator, err = utils.Mul(numerator, elapsedInt); err != nil {
		return err
	}
	rateTime, err := utils.Mul(totalRate, elapsedInt)
	if err != nil {
		return err
	}
	denominator, err := utils.Sub(sdkmath.NewInt(types.SecondsPerYear).MulRaw(types.MaxBPS), rateTime)
	if err != nil {
		return err
	}
	if !denominator.IsPositive() {
		return errors.Join(ErrArithmetic, fmt.Errorf("fee denominator %s is not positive", denominator))
	}
	totalFees, err := utils.Quo(numerator, denominator)
	if err != nil {
		return err
	}
	if totalFees.IsZero() {
		return nil
	}

	protocolFees, err := utils.MulDiv(totalFees, sdkmath.NewInt(int64(fees.ProtocolFeeBps)), totalRate)
	if err != nil {
		return err
	}
	vaultFees, err := utils.Sub(totalFees, protocolFees)
	if err != nil {
		return err
	}

	protocolReceiver, err := c.repo.getString(keyProtocolReceiver)
	if err != nil {
		return err
	}
	vaultReceiver, err := c.repo.getRole(types.RoleVaultFeeReceiver)
	if err != nil {
		return err
	}
	if err := c.repo.mintShares(protocolReceiver, protocolFees); err != nil {
		return err
	}
	if err := c.repo.mintShares(vaultReceiver, vaultFees); err != nil {
		return err
	}

	c.log.Info().
		Uint64("elapsed", elapsed).
		Str("protocolShares", protocolFees.String()).
		Str("vaultShares", vaultFees.String()).
		Msg("Fees: collected")
	return nil
}

// CollectFees assesses the time based fees. Anyone may trigger it.
func (v *Vault) CollectFees(ctx context.Context) error {
	_, err := execute(ctx, v, types.OperationCollectFees, "", func(c *call) (struct{}, error) {
		return struct{}{}, c.collectFees()
	})
	return err
}

// reportStrategy marks one strategy to its current balance and persists the report.
func (c *call) reportStrategy(addr string) (report.Report, error) {
	balance, err := c.strategyBalance(addr)
	if err != nil {
		return report.Report{}, err
	}
	rep, err := c.repo.getReport(addr)
	if err != nil {
		return report.Report{}, err
	}
	if err := rep.Report(balance); err != nil {
		return report.Report{}, err
	}
	if err := c.repo.setReport(addr, rep); err != nil {
		return report.Report{}, err
	}
	c.touch(addr)
	return rep, nil
}

// Report marks every strategy to market and returns the reports by strategy.
func (v *Vault) Report(ctx context.Context, caller string) (map[string]report.Report, error) {
	return execute(ctx, v, types.OperationReport, caller, func(c *call) (map[string]report.Report, error) {
		if err := c.requireRole(caller, types.RoleManager); err != nil {
			return nil, err
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return nil, err
		}
		reports := make(map[string]report.Report)
		for _, asset := range assets {
			for _, strategy := range asset.Strategies {
				rep, err := c.reportStrategy(strategy.Address)
				if err != nil {
					return nil, err
				}
				reports[strategy.Address] = rep
			}
		}
		return reports, nil
	})
}

// LockFees reports every active strategy and locks the vault fee out of its gains.
// newFeeBps, when set, replaces the vault fee first.
func (v *Vault) LockFees(ctx context.Context, caller string, newFeeBps *uint32) (map[string]report.Report, error) {
	return execute(ctx, v, types.OperationLockFees, caller, func(c *call) (map[string]report.Report, error) {
		if err := c.requireRole(caller, types.RoleManager); err != nil {
			return nil, err
		}
		fees, err := c.repo.getFees()
		if err != nil {
			return nil, err
		}
		if newFeeBps != nil {
			if int64(*newFeeBps)+int64(fees.ProtocolFeeBps) >= types.MaxBPS {
				return nil, errors.Join(ErrInvalidFee,
					fmt.Errorf("vault fee %d with protocol fee %d reaches %d bps", *newFeeBps, fees.ProtocolFeeBps, types.MaxBPS))
			}
			fees.VaultFeeBps = *newFeeBps
			if err := c.repo.setFees(fees); err != nil {
				return nil, err
			}
		}

		assets, err := c.repo.getAssets()
		if err != nil {
			return nil, err
		}
		reports := make(map[string]report.Report)
		for _, asset := range assets {
			for _, strategy := range asset.Strategies {
				if strategy.Paused {
					continue
				}
				rep, err := c.reportStrategy(strategy.Address)
				if err != nil {
					return nil, err
				}
				if err := rep.LockFee(fees.VaultFeeBps); err != nil {
					return nil, err
				}
				if err := c.repo.setReport(strategy.Address, rep); err != nil {
					return nil, err
				}
				reports[strategy.Address] = rep
			}
		}
		return reports, nil
	})
}

// ReleaseFee moves amount of a strategy's locked fee back into its gains.
func (v *Vault) ReleaseFee(ctx context.Context, caller, strategy string, amount sdkmath.Int) (report.Report, error) {
	return execute(ctx, v, types.OperationReleaseFee, caller, func(c *call) (report.Report, error) {
		if err := c.requireRole(caller, types.RoleManager); err != nil {
			return report.Report{}, err
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return report.Report{}, err
		}
		if _, _, err := findStrategy(assets, strategy); err != nil {
			return report.Report{}, err
		}
		rep, err := c.repo.getReport(strategy)
		if err != nil {
			return report.Report{}, err
		}
		if err := rep.ReleaseFee(amount); err != nil {
			return report.Report{}, err
		}
		if err := c.repo.setReport(strategy, rep); err != nil {
			return report.Report{}, err
		}
		c.touch(strategy)
		return rep, nil
	})
}

// DistributeFees withdraws every locked fee from its strategy and pays it to the fee receivers.
// The protocol receives lockedFee * protocolBps / MaxBPS, the vault fee receiver the rest.
func (v *Vault) DistributeFees(ctx context.Context, caller string) ([]types.FeeDistribution, error) {
	return execute(ctx, v, types.OperationDistributeFees, caller, func(c *call) ([]types.FeeDistribution, error) {
		if err := c.requireRole(caller, types.RoleManager); err != nil {
			return nil, err
		}
		fees, err := c.fetchDefindexFee()
		if err != nil {
			return nil, err
		}
		protocolReceiver, err := c.repo.getString(keyProtocolReceiver)
		if err != nil {
			return nil, err
		}
		vaultReceiver, err := c.repo.getRole(types.RoleVaultFeeReceiver)
		if err != nil {
			return nil, err
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return nil, err
		}

		var distributions []types.FeeDistribution
		for _, asset := range assets {
			for _, strategy := range asset.Strategies {
				rep, err := c.repo.getReport(strategy.Address)
				if err != nil {
					return nil, err
				}
				if !rep.LockedFee.IsPositive() {
					continue
				}

				withdrawn, _, err := c.unwindFromStrategy(strategy.Address, rep.LockedFee)
				if err != nil {
					return nil, err
				}
				rep, err = c.repo.getReport(strategy.Address)
				if err != nil {
					return nil, err
				}
				rep.ClearLockedFee()
				if err := c.repo.setReport(strategy.Address, rep); err != nil {
					return nil, err
				}

				protocolAmount, err := utils.MulDiv(withdrawn, sdkmath.NewInt(int64(fees.ProtocolFeeBps)), sdkmath.NewInt(types.MaxBPS))
				if err != nil {
					return nil, err
				}
				vaultAmount, err := utils.Sub(withdrawn, protocolAmount)
				if err != nil {
					return nil, err
				}
				if err := c.transferFromVault(asset.Address, protocolReceiver, protocolAmount); err != nil {
					return nil, err
				}
				if err := c.transferFromVault(asset.Address, vaultReceiver, vaultAmount); err != nil {
					return nil, err
				}

				distributions = append(distributions, types.FeeDistribution{
					Strategy:       strategy.Address,
					Asset:          asset.Address,
					ProtocolAmount: protocolAmount,
					VaultAmount:    vaultAmount,
				})
			}
		}
		return distributions, nil
	})
}

// transferFromVault sends idle funds of asset from the vault to `to`.
func (c *call) transferFromVault(asset, to string, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	token, err := c.token(asset)
	if err != nil {
		return err
	}
	if err := token.Transfer(c.contractCtx(), c.v.address, to, amount); err != nil {
		return errors.Join(ErrTokenTransfer, fmt.Errorf("%s %s to %s: %w", amount, asset, to, err))
	}
	return nil
}
