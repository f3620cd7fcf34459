/*

This file contains the vault data model: managed assets, their strategies and the derived allocation views.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

const (
	// MinimumLiquidity is locked to the vault's own address on the first mint.
	MinimumLiquidity int64 = 1_000
	// MaxBPS is the basis point denominator for every fee rate.
	MaxBPS int64 = 10_000
	// SecondsPerYear is the fee accrual period.
	SecondsPerYear int64 = 31_536_000
	// MaxFeeAssessmentPeriod caps the elapsed time charged in a single fee assessment.
	MaxFeeAssessmentPeriod = SecondsPerYear
	// ShareDecimals is the precision advertised by the share token.
	ShareDecimals uint32 = 7
)

// Strategy is one yield source registered for a managed asset.
type Strategy struct {
	Address string `json:"address" yaml:"address"`
	Name    string `json:"name" yaml:"name"`
	Paused  bool   `json:"paused" yaml:"paused"`
}

// AssetStrategySet is a managed asset with its ordered list of strategies.
type AssetStrategySet struct {
	Address    string     `json:"address" yaml:"address"`
	Strategies []Strategy `json:"strategies" yaml:"strategies"`
}

// StrategyAllocation is the net amount of an asset attributed to a strategy.
type StrategyAllocation struct {
	StrategyAddress string      `json:"strategy_address"`
	Amount          sdkmath.Int `json:"amount"`
	Paused          bool        `json:"paused"`
}

// CurrentAssetInvestmentAllocation is the managed funds breakdown of one asset.
// It is derived on demand and never persisted.
type CurrentAssetInvestmentAllocation struct {
	Asset               string               `json:"asset"`
	TotalAmount         sdkmath.Int          `json:"total_amount"`
	IdleAmount          sdkmath.Int          `json:"idle_amount"`
	InvestedAmount      sdkmath.Int          `json:"invested_amount"`
	StrategyAllocations []StrategyAllocation `json:"strategy_allocations"`
}

// AssetInvestmentAllocation is a manager request to move idle funds of one asset into its strategies.
// A nil entry in StrategyAllocations skips that strategy.
type AssetInvestmentAllocation struct {
	Asset               string                `json:"asset"`
	StrategyAllocations []*StrategyAllocation `json:"strategy_allocations"`
}

// Role names the privileged principals of a vault.
type Role string

const (
	RoleManager          Role = "manager"
	RoleEmergencyManager Role = "emergency_manager"
	RoleRebalanceManager Role = "rebalance_manager"
	RoleVaultFeeReceiver Role = "vault_fee_receiver"
)

// AllRoles lists every role a vault must have assigned at initialization.
var AllRoles = []Role{RoleManager, RoleEmergencyManager, RoleRebalanceManager, RoleVaultFeeReceiver}

// Metadata describes the vault share token.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint32 `json:"decimals"`
}

// InitParams holds everything a vault needs at initialization.
type InitParams struct {
	Assets           []AssetStrategySet `json:"assets"`
	Roles            map[Role]string    `json:"roles"`
	VaultFeeBps      uint32             `json:"vault_fee_bps"`
	ProtocolReceiver string             `json:"protocol_receiver"`
	ProtocolFeeBps   uint32             `json:"protocol_fee_bps"`
	Factory          string             `json:"factory"`
	Router           string             `json:"router"`
	Name             string             `json:"name"`
	Symbol           string             `json:"symbol"`
}

// Fees holds the fee configuration of a vault in basis points.
type Fees struct {
	VaultFeeBps    uint32 `json:"vault_fee_bps"`
	ProtocolFeeBps uint32 `json:"protocol_fee_bps"`
}

// DepositResult is the outcome of a deposit.
type DepositResult struct {
	AmountsActual []sdkmath.Int `json:"amounts_actual"`
	SharesMinted  sdkmath.Int   `json:"shares_minted"`
}

// FeeDistribution records the locked fee paid out of one strategy.
type FeeDistribution struct {
	Strategy       string      `json:"strategy"`
	Asset          string      `json:"asset"`
	ProtocolAmount sdkmath.Int `json:"protocol_amount"`
	VaultAmount    sdkmath.Int `json:"vault_amount"`
}
