// Package planner turns target strategy weights into rebalance instructions.
// A plan unwinds over-allocated strategies first, then invests the freed and idle
// funds into under-allocated strategies, largest gap first.
package planner

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidTargetAllocations = errors.New("target allocations contain invalid values")
	ErrUnknownStrategy          = errors.New("target strategy is not managed by the vault")
	ErrInvalidRebalanceLimit    = errors.New("rebalance limit is invalid")
)

// Targets maps a strategy address to its weight in basis points of its asset's total managed amount.
// Strategies without a target are left untouched.
type Targets map[string]uint32

// Options bounds a plan.
type Options struct {
	// MinMove skips moves smaller than this amount. Nil means any positive amount.
	MinMove sdkmath.Int
	// MaxUnwindBps caps the total unwound per asset, in basis points of the asset total.
	// Zero means no cap.
	MaxUnwindBps uint32
}

// move is the signed gap between a strategy's target and its current amount.
type move struct {
	asset    string
	strategy string
	delta    sdkmath.Int
}

// GenerateRebalancePlan compares the managed funds with the targets and returns the
// instructions that close the gaps: every Unwind first, then every Invest.
func GenerateRebalancePlan(funds []types.CurrentAssetInvestmentAllocation, targets Targets, opts Options) ([]types.Instruction, error) {
	planLogger := logger.GetForComponent("rebalance_planner")

	if err := validateInputs(funds, targets, opts); err != nil {
		planLogger.Error().Err(err).Msg("Input validation failed")
		return nil, err
	}
	minMove := opts.MinMove
	if minMove.IsNil() || !minMove.IsPositive() {
		minMove = sdkmath.OneInt()
	}

	var unwinds, invests []types.Instruction
	for _, asset := range funds {
		withdrawals, deposits, err := analyzeRequiredChanges(asset, targets, minMove)
		if err != nil {
			planLogger.Error().Err(err).Str("asset", asset.Asset).Msg("Failed to analyze required changes")
			return nil, err
		}

		withdrawals, err = applyRebalancingLimits(withdrawals, asset.TotalAmount, opts.MaxUnwindBps, planLogger)
		if err != nil {
			return nil, err
		}

		assetUnwinds, freed := processWithdrawals(withdrawals, minMove)
		unwinds = append(unwinds, assetUnwinds...)

		budget := utils.OrZero(asset.IdleAmount).Add(freed)
		invests = append(invests, processDeposits(deposits, budget, minMove)...)
	}

	planLogger.Info().
		Int("unwinds", len(unwinds)).
		Int("invests", len(invests)).
		Msg("Rebalance plan generated")

	return append(unwinds, invests...), nil
}

func validateInputs(funds []types.CurrentAssetInvestmentAllocation, targets Targets, opts Options) error {
	if int64(opts.MaxUnwindBps) > types.MaxBPS {
		return errors.Join(ErrInvalidRebalanceLimit, fmt.Errorf("max unwind %d bps", opts.MaxUnwindBps))
	}

	known := make(map[string]string)
	perAsset := make(map[string]int64)
	for _, asset := range funds {
		for _, alloc := range asset.StrategyAllocations {
			known[alloc.StrategyAddress] = asset.Asset
		}
	}
	for strategy, bps := range targets {
		asset, ok := known[strategy]
		if !ok {
			return errors.Join(ErrUnknownStrategy, fmt.Errorf("strategy %s", strategy))
		}
		perAsset[asset] += int64(bps)
		if perAsset[asset] > types.MaxBPS {
			return errors.Join(ErrInvalidTargetAllocations, fmt.Errorf("targets of asset %s exceed %d bps", asset, types.MaxBPS))
		}
	}
	return nil
}

// analyzeRequiredChanges splits an asset's gaps into withdrawals (negative delta) and deposits.
// Paused strategies never receive deposits.
func analyzeRequiredChanges(asset types.CurrentAssetInvestmentAllocation, targets Targets, minMove sdkmath.Int) ([]move, []move, error) {
	var withdrawals, deposits []move
	total := utils.OrZero(asset.TotalAmount)
	for _, alloc := range asset.StrategyAllocations {
		bps, ok := targets[alloc.StrategyAddress]
		if !ok {
			continue
		}
		desired, err := utils.MulDiv(total, sdkmath.NewInt(int64(bps)), sdkmath.NewInt(types.MaxBPS))
		if err != nil {
			return nil, nil, err
		}
		delta := desired.Sub(utils.OrZero(alloc.Amount))
		if delta.Abs().LT(minMove) {
			continue
		}
		m := move{asset: asset.Asset, strategy: alloc.StrategyAddress, delta: delta}
		switch {
		case delta.IsNegative():
			withdrawals = append(withdrawals, m)
		case !alloc.Paused:
			deposits = append(deposits, m)
		}
	}
	return withdrawals, deposits, nil
}

// applyRebalancingLimits scales every withdrawal down by the same factor when their sum
// exceeds maxUnwindBps of the asset total.
func applyRebalancingLimits(withdrawals []move, total sdkmath.Int, maxUnwindBps uint32, planLogger zerolog.Logger) ([]move, error) {
	if maxUnwindBps == 0 || len(withdrawals) == 0 {
		return withdrawals, nil
	}
	maxUnwind, err := utils.MulDiv(utils.OrZero(total), sdkmath.NewInt(int64(maxUnwindBps)), sdkmath.NewInt(types.MaxBPS))
	if err != nil {
		return nil, err
	}

	totalUnwind := sdkmath.ZeroInt()
	for _, w := range withdrawals {
		totalUnwind = totalUnwind.Add(w.delta.Neg())
	}
	if totalUnwind.LTE(maxUnwind) {
		return withdrawals, nil
	}

	planLogger.Warn().
		Str("totalUnwind", totalUnwind.String()).
		Str("maxUnwind", maxUnwind.String()).
		Msg("Unwind amount exceeds limit, scaling down withdrawals")

	capped := make([]move, len(withdrawals))
	for i, w := range withdrawals {
		scaled, err := utils.MulDiv(w.delta.Neg(), maxUnwind, totalUnwind)
		if err != nil {
			return nil, err
		}
		capped[i] = move{asset: w.asset, strategy: w.strategy, delta: scaled.Neg()}
	}
	return capped, nil
}

// processWithdrawals emits unwinds, largest first, and returns the amount they free.
func processWithdrawals(withdrawals []move, minMove sdkmath.Int) ([]types.Instruction, sdkmath.Int) {
	sort.SliceStable(withdrawals, func(i, j int) bool {
		return withdrawals[i].delta.LT(withdrawals[j].delta)
	})

	freed := sdkmath.ZeroInt()
	var instructions []types.Instruction
	for _, w := range withdrawals {
		amount := w.delta.Neg()
		if amount.LT(minMove) {
			continue
		}
		instructions = append(instructions, types.NewUnwindInstruction(w.strategy, amount))
		freed = freed.Add(amount)
	}
	return instructions, freed
}

// processDeposits emits invests, largest gap first, until budget runs out.
func processDeposits(deposits []move, budget, minMove sdkmath.Int) []types.Instruction {
	sort.SliceStable(deposits, func(i, j int) bool {
		return deposits[i].delta.GT(deposits[j].delta)
	})

	var instructions []types.Instruction
	for _, d := range deposits {
		amount := sdkmath.MinInt(d.delta, budget)
		if amount.LT(minMove) {
			continue
		}
		instructions = append(instructions, types.NewInvestInstruction(d.strategy, amount))
		budget = budget.Sub(amount)
	}
	return instructions
}
