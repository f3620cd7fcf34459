package vault_test

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/vault"
)

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})
	f.deposit(alice, 5_000)

	amounts, err := f.vault.Withdraw(as(alice), sdkmath.NewInt(4_000), nil, alice)

	require.NoError(t, err)
	require.Equal(t, int64(4_000), amounts[0].Int64())
	require.Equal(t, int64(1_000_000), f.tokenBalance("usdc", alice))
	require.Equal(t, int64(0), f.shares(alice))
	require.Equal(t, types.MinimumLiquidity, f.supply())
	f.requireSupplyMatchesBalances()
}

func TestWithdrawUnwindsShortfallFromStrategies(t *testing.T) {
	// ARRANGE
	f := newFixture(t, fixtureOptions{assets: singleAsset(
		strategySpec{address: "usdc_a"},
		strategySpec{address: "usdc_b"},
	)})
	f.deposit(alice, 5_000)
	f.invest("usdc_a", 2_000)
	f.invest("usdc_b", 2_000)

	// ACT: 1000 idle, the rest comes from usdc_a first and then usdc_b
	amounts, err := f.vault.Withdraw(as(alice), sdkmath.NewInt(4_000), ints(4_000), alice)

	// ASSERT
	require.NoError(t, err)
	require.Equal(t, int64(4_000), amounts[0].Int64())
	require.True(t, f.report("usdc_a").PrevBalance.IsZero())
	require.Equal(t, int64(1_000), f.report("usdc_b").PrevBalance.Int64())
	require.Equal(t, int64(0), f.tokenBalance("usdc", vaultAddr))
	require.Equal(t, int64(1_000_000), f.tokenBalance("usdc", alice))
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})
	f.deposit(alice, 5_000)

	_, err := f.vault.Withdraw(as(bob), sdkmath.NewInt(100), nil, alice)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	_, err = f.vault.Withdraw(as(alice), sdkmath.ZeroInt(), nil, alice)
	require.ErrorIs(t, err, vault.ErrInsufficientAmount)

	_, err = f.vault.Withdraw(as(alice), sdkmath.NewInt(-1), nil, alice)
	require.ErrorIs(t, err, vault.ErrNegativeNotAllowed)

	_, err = f.vault.Withdraw(as(alice), sdkmath.NewInt(4_001), nil, alice)
	require.ErrorIs(t, err, vault.ErrInsufficientBalance)

	_, err = f.vault.Withdraw(as(alice), sdkmath.NewInt(5_001), nil, alice)
	require.ErrorIs(t, err, vault.ErrAmountOverTotalSupply)

	_, err = f.vault.Withdraw(as(alice), sdkmath.NewInt(100), ints(1, 2), alice)
	require.ErrorIs(t, err, vault.ErrWrongAmountsLength)

	_, err = f.vault.Withdraw(as(alice), sdkmath.NewInt(100), ints(101), alice)
	require.ErrorIs(t, err, vault.ErrInsufficientOutputAmount)

	// every rejection above left the shares in place
	require.Equal(t, int64(4_000), f.shares(alice))
	require.Equal(t, int64(5_000), f.supply())
}

func TestWithdrawFailsWhenStrategyCannotPay(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})
	f.deposit(alice, 5_000)
	f.invest("usdc_hodl", 4_500)
	f.strategies["usdc_hodl"].Halt(errors.New("frozen"))

	_, err := f.vault.Withdraw(as(alice), sdkmath.NewInt(4_000), nil, alice)

	require.ErrorIs(t, err, vault.ErrStrategyWithdraw)
	require.ErrorIs(t, err, sim.ErrHalted)
	require.Equal(t, int64(4_000), f.shares(alice))
	require.Equal(t, int64(4_500), f.report("usdc_hodl").PrevBalance.Int64())
}

func TestGetAssetAmountsPerShares(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: []assetSpec{{denom: "usdc"}, {denom: "xlm"}}})
	f.deposit(alice, 1_000, 3_000)

	amounts, err := f.vault.GetAssetAmountsPerShares(context.Background(), sdkmath.NewInt(2_000))
	require.NoError(t, err)
	require.Equal(t, int64(500), amounts["usdc"].Int64())
	require.Equal(t, int64(1_500), amounts["xlm"].Int64())

	_, err = f.vault.GetAssetAmountsPerShares(context.Background(), sdkmath.NewInt(4_001))
	require.ErrorIs(t, err, vault.ErrAmountOverTotalSupply)
}

func TestEmergencyWithdraw(t *testing.T) {
	// ARRANGE
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})
	f.deposit(alice, 5_000)
	f.invest("usdc_hodl", 3_000)

	err := f.vault.EmergencyWithdraw(as(alice), "usdc_hodl", alice)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	// ACT
	err = f.vault.EmergencyWithdraw(as(emergencyManager), "usdc_hodl", emergencyManager)

	// ASSERT
	require.NoError(t, err)
	require.Equal(t, int64(5_000), f.tokenBalance("usdc", vaultAddr))
	require.True(t, f.report("usdc_hodl").PrevBalance.IsZero())

	assets, err := f.vault.GetAssets(context.Background())
	require.NoError(t, err)
	require.True(t, assets[0].Strategies[0].Paused)

	_, err = f.vault.Rebalance(as(manager), manager, []types.Instruction{
		types.NewInvestInstruction("usdc_hodl", sdkmath.NewInt(100)),
	})
	require.ErrorIs(t, err, vault.ErrStrategyPaused)

	funds, err := f.vault.FetchTotalManagedFunds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5_000), funds[0].TotalAmount.Int64())
}
