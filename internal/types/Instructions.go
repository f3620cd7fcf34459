/*

This file contains the rebalance instructions executed by the vault and the receipts they produce.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// InstructionType defines the operations a rebalance can perform.
type InstructionType string

const (
	InstructionUnwind       InstructionType = "UNWIND"
	InstructionInvest       InstructionType = "INVEST"
	InstructionSwapExactIn  InstructionType = "SWAP_EXACT_IN"
	InstructionSwapExactOut InstructionType = "SWAP_EXACT_OUT"
)

// Instruction represents a single step of a rebalance.
type Instruction struct {
	Type InstructionType `json:"type"`

	// Fields for UNWIND and INVEST
	Strategy string      `json:"strategy,omitempty"`
	Amount   sdkmath.Int `json:"amount,omitempty"`

	// Fields for SWAP_EXACT_IN
	TokenIn       sdktypes.Coin `json:"token_in,omitempty"`
	TokenOutDenom string        `json:"token_out_denom,omitempty"`
	AmountOutMin  sdkmath.Int   `json:"amount_out_min,omitempty"`

	// Fields for SWAP_EXACT_OUT
	TokenOut     sdktypes.Coin `json:"token_out,omitempty"`
	TokenInDenom string        `json:"token_in_denom,omitempty"`
	AmountInMax  sdkmath.Int   `json:"amount_in_max,omitempty"`

	// Unix seconds after which the router must reject a swap
	Deadline uint64 `json:"deadline,omitempty"`
}

// NewInvestInstruction moves idle funds into a strategy.
func NewInvestInstruction(strategy string, amount sdkmath.Int) Instruction {
	return Instruction{Type: InstructionInvest, Strategy: strategy, Amount: amount}
}

// NewUnwindInstruction moves funds from a strategy back to idle.
func NewUnwindInstruction(strategy string, amount sdkmath.Int) Instruction {
	return Instruction{Type: InstructionUnwind, Strategy: strategy, Amount: amount}
}

// NewSwapExactInInstruction swaps an exact input amount for at least amountOutMin.
func NewSwapExactInInstruction(tokenIn sdktypes.Coin, tokenOutDenom string, amountOutMin sdkmath.Int, deadline uint64) Instruction {
	return Instruction{
		Type:          InstructionSwapExactIn,
		TokenIn:       tokenIn,
		TokenOutDenom: tokenOutDenom,
		AmountOutMin:  amountOutMin,
		Deadline:      deadline,
	}
}

// NewSwapExactOutInstruction swaps at most amountInMax for an exact output amount.
func NewSwapExactOutInstruction(tokenOut sdktypes.Coin, tokenInDenom string, amountInMax sdkmath.Int, deadline uint64) Instruction {
	return Instruction{
		Type:         InstructionSwapExactOut,
		TokenOut:     tokenOut,
		TokenInDenom: tokenInDenom,
		AmountInMax:  amountInMax,
		Deadline:     deadline,
	}
}

// InstructionReceipt is the result of one executed instruction.
type InstructionReceipt struct {
	Index       int           `json:"index"`
	Instruction Instruction   `json:"instruction"`
	Amount      sdkmath.Int   `json:"amount,omitempty"`       // actual amount invested or unwound
	Balance     sdkmath.Int   `json:"balance,omitempty"`      // strategy balance after the step
	AmountsSwap []sdkmath.Int `json:"amounts_swap,omitempty"` // router amounts along the path
}

// OperationKind names a journaled vault operation.
type OperationKind string

const (
	OperationInitialize        OperationKind = "INITIALIZE"
	OperationDeposit           OperationKind = "DEPOSIT"
	OperationWithdraw          OperationKind = "WITHDRAW"
	OperationEmergencyWithdraw OperationKind = "EMERGENCY_WITHDRAW"
	OperationRebalance         OperationKind = "REBALANCE"
	OperationInvest            OperationKind = "INVEST"
	OperationCollectFees       OperationKind = "COLLECT_FEES"
	OperationLockFees          OperationKind = "LOCK_FEES"
	OperationReleaseFee        OperationKind = "RELEASE_FEE"
	OperationDistributeFees    OperationKind = "DISTRIBUTE_FEES"
	OperationReport            OperationKind = "REPORT"
	OperationHarvest           OperationKind = "HARVEST"
	OperationPauseStrategy     OperationKind = "PAUSE_STRATEGY"
	OperationUnpauseStrategy   OperationKind = "UNPAUSE_STRATEGY"
	OperationSetRole           OperationKind = "SET_ROLE"
	OperationShareTransfer     OperationKind = "SHARE_TRANSFER"
)

// OperationRecord is a committed vault operation as handed to the journal.
type OperationRecord struct {
	ID           string        `json:"id"`
	InvocationID string        `json:"invocation_id"`
	Kind         OperationKind `json:"kind"`
	Caller       string        `json:"caller"`
	Payload      interface{}   `json:"payload,omitempty"`
	Strategies   []string      `json:"strategies,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}
