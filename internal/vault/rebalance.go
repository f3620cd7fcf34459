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

// Rebalance executes instructions strictly in order as one atomic call.
// Each report update is visible to the instructions that follow it.
func (v *Vault) Rebalance(ctx context.Context, caller string, instructions []types.Instruction) ([]types.InstructionReceipt, error) {
	return execute(ctx, v, types.OperationRebalance, caller, func(c *call) ([]types.InstructionReceipt, error) {
		if err := c.requireRole(caller, types.RoleManager, types.RoleRebalanceManager); err != nil {
			return nil, err
		}
		if len(instructions) == 0 {
			return nil, ErrNoInstructions
		}
		return c.executeInstructions(instructions)
	})
}

// Invest moves idle funds into strategies. allocations holds one optional entry per managed asset.
func (v *Vault) Invest(ctx context.Context, caller string, allocations []*types.AssetInvestmentAllocation) ([]types.InstructionReceipt, error) {
	return execute(ctx, v, types.OperationInvest, caller, func(c *call) ([]types.InstructionReceipt, error) {
		if err := c.requireRole(caller, types.RoleManager, types.RoleRebalanceManager); err != nil {
			return nil, err
		}
		instructions, err := c.investmentInstructions(allocations)
		if err != nil {
			return nil, err
		}
		if len(instructions) == 0 {
			return nil, ErrNoInstructions
		}
		return c.executeInstructions(instructions)
	})
}

// investmentInstructions validates allocations against the assets and their idle funds.
func (c *call) investmentInstructions(allocations []*types.AssetInvestmentAllocation) ([]types.Instruction, error) {
	assets, err := c.repo.getAssets()
	if err != nil {
		return nil, err
	}
	if len(allocations) != len(assets) {
		return nil, errors.Join(ErrWrongAllocationsLength,
			fmt.Errorf("got %d allocations for %d assets", len(allocations), len(assets)))
	}

	var instructions []types.Instruction
	for i, allocation := range allocations {
		if allocation == nil {
			continue
		}
		asset := assets[i]
		if allocation.Asset != asset.Address {
			return nil, errors.Join(ErrUnsupportedAsset,
				fmt.Errorf("allocation %d is for %s, expected %s", i, allocation.Asset, asset.Address))
		}
		if len(allocation.StrategyAllocations) != len(asset.Strategies) {
			return nil, errors.Join(ErrWrongAllocationsLength,
				fmt.Errorf("asset %s has %d strategies, got %d allocations", asset.Address, len(asset.Strategies), len(allocation.StrategyAllocations)))
		}

		requested := sdkmath.ZeroInt()
		for j, sa := range allocation.StrategyAllocations {
			if sa == nil || sa.Amount.IsNil() || sa.Amount.IsZero() {
				continue
			}
			if sa.Amount.IsNegative() {
				return nil, ErrNegativeNotAllowed
			}
			if sa.StrategyAddress != asset.Strategies[j].Address {
				return nil, errors.Join(ErrStrategyNotFound,
					fmt.Errorf("allocation %d of %s targets %s, expected %s", j, asset.Address, sa.StrategyAddress, asset.Strategies[j].Address))
			}
			if requested, err = utils.Add(requested, sa.Amount); err != nil {
				return nil, err
			}
			instructions = append(instructions, types.NewInvestInstruction(sa.StrategyAddress, sa.Amount))
		}

		idle, err := c.fetchIdleFundsForAsset(asset.Address)
		if err != nil {
			return nil, err
		}
		if requested.GT(idle) {
			return nil, errors.Join(ErrInsufficientIdleFunds,
				fmt.Errorf("asset %s: %s requested, %s idle", asset.Address, requested, idle))
		}
	}
	return instructions, nil
}

func (c *call) executeInstructions(instructions []types.Instruction) ([]types.InstructionReceipt, error) {
	receipts := make([]types.InstructionReceipt, 0, len(instructions))
	for i, instruction := range instructions {
		receipt, err := c.executeInstruction(instruction)
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, instruction.Type, err)
		}
		receipt.Index = i
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (c *call) executeInstruction(instruction types.Instruction) (types.InstructionReceipt, error) {
	receipt := types.InstructionReceipt{Instruction: instruction}

	switch instruction.Type {
	case types.InstructionInvest:
		if err := validateStrategyAmount(instruction); err != nil {
			return receipt, err
		}
		balance, err := c.investInStrategy(instruction.Strategy, instruction.Amount)
		if err != nil {
			return receipt, err
		}
		receipt.Amount = instruction.Amount
		receipt.Balance = balance

	case types.InstructionUnwind:
		if err := validateStrategyAmount(instruction); err != nil {
			return receipt, err
		}
		withdrawn, balance, err := c.unwindFromStrategy(instruction.Strategy, instruction.Amount)
		if err != nil {
			return receipt, err
		}
		receipt.Amount = withdrawn
		receipt.Balance = balance

	case types.InstructionSwapExactIn:
		amounts, err := c.swapExactIn(instruction)
		if err != nil {
			return receipt, err
		}
		receipt.AmountsSwap = amounts

	case types.InstructionSwapExactOut:
		amounts, err := c.swapExactOut(instruction)
		if err != nil {
			return receipt, err
		}
		receipt.AmountsSwap = amounts

	default:
		return receipt, errors.Join(ErrInvalidInstruction, fmt.Errorf("unknown instruction type %q", instruction.Type))
	}

	c.log.Debug().
		Str("type", string(instruction.Type)).
		Str("strategy", instruction.Strategy).
		Msg("Rebalance: instruction executed")
	return receipt, nil
}

func validateStrategyAmount(instruction types.Instruction) error {
	if instruction.Strategy == "" {
		return errors.Join(ErrInvalidInstruction, errors.New("strategy cannot be empty"))
	}
	if instruction.Amount.IsNil() || !instruction.Amount.IsPositive() {
		return errors.Join(ErrInvalidInstruction, errors.New("amount must be positive"))
	}
	return nil
}

// investInStrategy sends amount of the strategy's asset from idle into the strategy.
// The report is written only after the strategy accepted the deposit.
func (c *call) investInStrategy(addr string, amount sdkmath.Int) (sdkmath.Int, error) {
	assets, err := c.repo.getAssets()
	if err != nil {
		return sdkmath.Int{}, err
	}
	assetIdx, strategyIdx, err := findStrategy(assets, addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	asset := assets[assetIdx].Address
	if assets[assetIdx].Strategies[strategyIdx].Paused {
		return sdkmath.Int{}, errors.Join(ErrStrategyPaused, fmt.Errorf("strategy %s", addr))
	}

	client, err := c.strategy(addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	rep, err := c.repo.getReport(addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	// An empty position is baselined by the report itself.
	if !rep.PrevBalance.IsZero() {
		if rep.PrevBalance, err = utils.Add(rep.PrevBalance, amount); err != nil {
			return sdkmath.Int{}, err
		}
	}

	ctx := c.contractCtx(types.TransferPermit{Token: asset, From: c.v.address, To: addr, Amount: amount})
	balance, err := client.Deposit(ctx, amount, c.v.address)
	if err != nil {
		return sdkmath.Int{}, errors.Join(ErrStrategyInvest, fmt.Errorf("deposit %s into %s: %w", amount, addr, err))
	}

	if err := rep.Report(balance); err != nil {
		return sdkmath.Int{}, err
	}
	if err := c.repo.setReport(addr, rep); err != nil {
		return sdkmath.Int{}, err
	}
	c.touch(addr)

	c.log.Info().
		Str("strategy", addr).
		Str("amount", amount.String()).
		Str("balance", balance.String()).
		Msg("Rebalance: invested")
	return balance, nil
}

// unwindFromStrategy withdraws amount from a strategy back to idle and returns the
// amount actually withdrawn with the strategy balance left behind.
// The previous balance is decremented on a local copy; nothing is stored unless the withdraw succeeds.
func (c *call) unwindFromStrategy(addr string, amount sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	assets, err := c.repo.getAssets()
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if _, _, err := findStrategy(assets, addr); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	client, err := c.strategy(addr)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	rep, err := c.repo.getReport(addr)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	// Mark to market first so gains accrued since the last report survive a full unwind.
	before, err := client.Balance(c.contractCtx(), c.v.address)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, errors.Join(ErrStrategyWithdraw, fmt.Errorf("balance of %s: %w", addr, err))
	}
	if err := rep.Report(before); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if rep.PrevBalance, err = utils.Sub(rep.PrevBalance, amount); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	withdrawn, err := client.Withdraw(c.contractCtx(), amount, c.v.address, c.v.address)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, errors.Join(ErrStrategyWithdraw, fmt.Errorf("withdraw %s from %s: %w", amount, addr, err))
	}
	balance, err := client.Balance(c.contractCtx(), c.v.address)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, errors.Join(ErrStrategyWithdraw, fmt.Errorf("balance of %s after withdraw: %w", addr, err))
	}

	if err := rep.Report(balance); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := c.repo.setReport(addr, rep); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	c.touch(addr)

	c.log.Info().
		Str("strategy", addr).
		Str("requested", amount.String()).
		Str("withdrawn", withdrawn.String()).
		Str("balance", balance.String()).
		Msg("Rebalance: unwound")
	return withdrawn, balance, nil
}

// Harvest lets a strategy realize its rewards and reports the result.
func (v *Vault) Harvest(ctx context.Context, caller, strategy string, data []byte) (report.Report, error) {
	return execute(ctx, v, types.OperationHarvest, caller, func(c *call) (report.Report, error) {
		if err := c.requireRole(caller, types.RoleManager, types.RoleRebalanceManager); err != nil {
			return report.Report{}, err
		}
		assets, err := c.repo.getAssets()
		if err != nil {
			return report.Report{}, err
		}
		if _, _, err := findStrategy(assets, strategy); err != nil {
			return report.Report{}, err
		}
		client, err := c.strategy(strategy)
		if err != nil {
			return report.Report{}, err
		}
		if err := client.Harvest(c.contractCtx(), c.v.address, data); err != nil {
			return report.Report{}, errors.Join(ErrStrategyQuery, fmt.Errorf("harvest %s: %w", strategy, err))
		}
		return c.reportStrategy(strategy)
	})
}
