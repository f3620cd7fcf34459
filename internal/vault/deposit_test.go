package vault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/vault"
)

func TestFirstDepositLocksMinimumLiquidity(t *testing.T) {
	// ARRANGE
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})

	// ACT
	res := f.deposit(alice, 5_000)

	// ASSERT
	require.Equal(t, int64(5_000), res.SharesMinted.Int64())
	require.Equal(t, int64(5_000), res.AmountsActual[0].Int64())
	require.Equal(t, int64(5_000), f.supply())
	require.Equal(t, int64(4_000), f.shares(alice))
	require.Equal(t, types.MinimumLiquidity, f.shares(vaultAddr))
	require.Equal(t, int64(5_000), f.tokenBalance("usdc", vaultAddr))
	f.requireSupplyMatchesBalances()
}

func TestFirstDepositBelowMinimumLiquidityFails(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})

	_, err := f.vault.Deposit(as(alice), ints(types.MinimumLiquidity-1), ints(0), alice, false)
	require.ErrorIs(t, err, vault.ErrInsufficientAmount)

	// the transfer made before the mint is rolled back too
	require.Equal(t, int64(1_000_000), f.tokenBalance("usdc", alice))
	require.Equal(t, int64(0), f.tokenBalance("usdc", vaultAddr))
	require.Equal(t, int64(0), f.supply())
}

func TestFirstDepositOfMinimumLiquidityThenInvest(t *testing.T) {
	// ARRANGE
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})

	// ACT: the whole first mint is locked to the vault
	res, err := f.vault.Deposit(as(alice), ints(types.MinimumLiquidity), ints(0), alice, false)

	// ASSERT
	require.NoError(t, err)
	require.Equal(t, types.MinimumLiquidity, res.SharesMinted.Int64())
	require.Equal(t, int64(0), f.shares(alice))
	require.Equal(t, types.MinimumLiquidity, f.shares(vaultAddr))
	require.Equal(t, types.MinimumLiquidity, f.supply())
	f.requireSupplyMatchesBalances()

	funds, err := f.vault.FetchTotalManagedFunds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1_000), funds[0].TotalAmount.Int64())

	f.invest("usdc_hodl", 600)
	reports, err := f.vault.Report(as(manager), manager)
	require.NoError(t, err)
	require.Equal(t, int64(600), reports["usdc_hodl"].PrevBalance.Int64())
	require.True(t, reports["usdc_hodl"].GainsOrLosses.IsZero())

	funds, err = f.vault.FetchTotalManagedFunds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(400), funds[0].IdleAmount.Int64())
	require.Equal(t, int64(600), funds[0].InvestedAmount.Int64())
	require.Equal(t, int64(1_000), funds[0].TotalAmount.Int64())
}

func TestSecondDepositIsProportional(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})
	f.deposit(alice, 5_000)

	res := f.deposit(bob, 2_500)

	require.Equal(t, int64(2_500), res.SharesMinted.Int64())
	require.Equal(t, int64(7_500), f.supply())
	f.requireSupplyMatchesBalances()
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})

	_, err := f.vault.Deposit(as(bob), ints(5_000), ints(0), alice, false)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	_, err = f.vault.Deposit(as(alice), ints(5_000, 1), ints(0, 0), alice, false)
	require.ErrorIs(t, err, vault.ErrWrongAmountsLength)

	_, err = f.vault.Deposit(as(alice), ints(-5), ints(0), alice, false)
	require.ErrorIs(t, err, vault.ErrNegativeNotAllowed)

	_, err = f.vault.Deposit(as(alice), ints(5_000), ints(6_000), alice, false)
	require.ErrorIs(t, err, vault.ErrInsufficientAmount)

	_, err = f.vault.Deposit(as(alice), ints(2_000_000), ints(0), alice, false)
	require.ErrorIs(t, err, vault.ErrTokenTransfer)
}

func TestTwoAssetDepositKeepsRatio(t *testing.T) {
	// ARRANGE
	f := newFixture(t, fixtureOptions{assets: []assetSpec{{denom: "usdc"}, {denom: "xlm"}}})
	first := f.deposit(alice, 1_000, 2_000)
	require.Equal(t, int64(3_000), first.SharesMinted.Int64())
	require.Equal(t, int64(2_000), f.shares(alice))

	// ACT: usdc is enforced and xlm is scaled down to the vault ratio
	res := f.deposit(bob, 500, 2_000)

	// ASSERT
	require.Equal(t, int64(500), res.AmountsActual[0].Int64())
	require.Equal(t, int64(1_000), res.AmountsActual[1].Int64())
	require.Equal(t, int64(1_500), res.SharesMinted.Int64())
	require.Equal(t, int64(1_500), f.tokenBalance("usdc", vaultAddr))
	require.Equal(t, int64(3_000), f.tokenBalance("xlm", vaultAddr))

	// usdc cannot be enforced, so xlm is
	res = f.deposit(bob, 2_000, 1_000)
	require.Equal(t, int64(500), res.AmountsActual[0].Int64())
	require.Equal(t, int64(1_000), res.AmountsActual[1].Int64())
	require.Equal(t, int64(1_500), res.SharesMinted.Int64())

	_, err := f.vault.Deposit(as(bob), ints(500, 2_000), ints(0, 1_500), bob, false)
	require.ErrorIs(t, err, vault.ErrInsufficientAmount)
	f.requireSupplyMatchesBalances()
}

func TestDepositAndInvestFollowsCurrentAllocation(t *testing.T) {
	// ARRANGE
	f := newFixture(t, fixtureOptions{assets: singleAsset(
		strategySpec{address: "usdc_a"},
		strategySpec{address: "usdc_b"},
	)})
	f.deposit(alice, 5_000)
	f.invest("usdc_a", 3_000)
	f.invest("usdc_b", 1_000)

	// ACT
	res, err := f.vault.Deposit(as(bob), ints(4_000), ints(0), bob, true)

	// ASSERT
	require.NoError(t, err)
	require.Equal(t, int64(4_000), res.SharesMinted.Int64())
	require.Equal(t, int64(6_000), f.report("usdc_a").PrevBalance.Int64())
	require.Equal(t, int64(2_000), f.report("usdc_b").PrevBalance.Int64())

	funds, err := f.vault.FetchTotalManagedFunds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1_000), funds[0].IdleAmount.Int64())
	require.Equal(t, int64(8_000), funds[0].InvestedAmount.Int64())
	require.Equal(t, int64(9_000), funds[0].TotalAmount.Int64())
}

func TestDepositWithoutAllocationStaysIdle(t *testing.T) {
	f := newFixture(t, fixtureOptions{assets: singleAsset(strategySpec{address: "usdc_hodl"})})

	_, err := f.vault.Deposit(as(alice), ints(5_000), ints(0), alice, true)
	require.NoError(t, err)

	funds, err := f.vault.FetchTotalManagedFunds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5_000), funds[0].IdleAmount.Int64())
	require.True(t, funds[0].InvestedAmount.IsZero())
}
