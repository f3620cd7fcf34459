package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/types"
)

// VaultManager is the public surface of a vault.
// Callers identify themselves by address; the configured Authorizer decides whether that address signed the call.
type VaultManager interface {
	Initialize(ctx context.Context, params types.InitParams) error

	// Deposit mints shares for the given asset amounts and optionally invests them.
	Deposit(ctx context.Context, amountsDesired, amountsMin []sdkmath.Int, from string, invest bool) (types.DepositResult, error)
	// Withdraw burns shares of from and returns the per asset amounts sent to from.
	Withdraw(ctx context.Context, shares sdkmath.Int, amountsMin []sdkmath.Int, from string) ([]sdkmath.Int, error)
	EmergencyWithdraw(ctx context.Context, strategy, caller string) error

	Invest(ctx context.Context, caller string, allocations []*types.AssetInvestmentAllocation) ([]types.InstructionReceipt, error)
	Rebalance(ctx context.Context, caller string, instructions []types.Instruction) ([]types.InstructionReceipt, error)

	CollectFees(ctx context.Context) error
	LockFees(ctx context.Context, caller string, newFeeBps *uint32) (map[string]report.Report, error)
	ReleaseFee(ctx context.Context, caller, strategy string, amount sdkmath.Int) (report.Report, error)
	DistributeFees(ctx context.Context, caller string) ([]types.FeeDistribution, error)
	Report(ctx context.Context, caller string) (map[string]report.Report, error)
	Harvest(ctx context.Context, caller, strategy string, data []byte) (report.Report, error)

	FetchTotalManagedFunds(ctx context.Context) ([]types.CurrentAssetInvestmentAllocation, error)
	GetAssetAmountsPerShares(ctx context.Context, shares sdkmath.Int) (map[string]sdkmath.Int, error)
	GetAssets(ctx context.Context) ([]types.AssetStrategySet, error)
	GetReports(ctx context.Context) (map[string]report.Report, error)
	GetFees(ctx context.Context) (types.Fees, error)
	GetRole(ctx context.Context, role types.Role) (string, error)
	SetRole(ctx context.Context, caller string, role types.Role, addr string) error
	PauseStrategy(ctx context.Context, caller, strategy string) error
	UnpauseStrategy(ctx context.Context, caller, strategy string) error

	BalanceOf(ctx context.Context, holder string) (sdkmath.Int, error)
	TotalSupply(ctx context.Context) (sdkmath.Int, error)
	Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error
	Metadata(ctx context.Context) (types.Metadata, error)
}

var _ VaultManager = (*Vault)(nil)
