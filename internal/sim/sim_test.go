package sim_test

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
)

func newHost(t *testing.T) (*sim.Host, *sim.ManualClock) {
	t.Helper()
	clock := sim.NewManualClock(1_700_000_000)
	host := sim.NewHost(store.NewMemService(), auth.Authorizer{}, clock)
	host.AddToken("usdc")
	host.AddToken("xlm")
	return host, clock
}

func TestTokenTransferRequiresAuthorization(t *testing.T) {
	host, _ := newHost(t)
	ctx := context.Background()
	require.NoError(t, host.Mint(ctx, "usdc", "alice", sdkmath.NewInt(100)))

	token, err := host.Token("usdc")
	require.NoError(t, err)

	err = token.Transfer(ctx, "alice", "bob", sdkmath.NewInt(10))
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	signed := auth.WithSigners(ctx, "alice")
	require.NoError(t, token.Transfer(signed, "alice", "bob", sdkmath.NewInt(10)))

	err = token.Transfer(signed, "alice", "bob", sdkmath.NewInt(1000))
	require.ErrorIs(t, err, sim.ErrInsufficientBalance)

	bob, err := token.Balance(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "10", bob.String())
}

func TestFixedAPRStrategyAccrues(t *testing.T) {
	// ARRANGE
	host, clock := newHost(t)
	ctx := context.Background()
	strategy, err := host.AddFixedAPRStrategy("usdc_lend", "usdc", 1000)
	require.NoError(t, err)
	require.NoError(t, host.Mint(ctx, "usdc", "usdc_lend", sdkmath.NewInt(1_000_000)))
	require.NoError(t, host.Mint(ctx, "usdc", "vault", sdkmath.NewInt(10_000)))

	// ACT: the vault invokes the deposit with a permit for the pull
	authz := auth.Authorizer{}
	vaultCtx := authz.Permit(authz.AsInvoker(ctx, "vault"),
		types.TransferPermit{Token: "usdc", From: "vault", To: "usdc_lend", Amount: sdkmath.NewInt(10_000)})
	balance, err := strategy.Deposit(vaultCtx, sdkmath.NewInt(10_000), "vault")
	require.NoError(t, err)
	require.Equal(t, "10000", balance.String())

	clock.Advance(uint64(types.SecondsPerYear))

	// ASSERT
	balance, err = strategy.Balance(ctx, "vault")
	require.NoError(t, err)
	require.Equal(t, "11000", balance.String())

	withdrawn, err := strategy.Withdraw(authz.AsInvoker(ctx, "vault"), sdkmath.NewInt(11_000), "vault", "vault")
	require.NoError(t, err)
	require.Equal(t, "11000", withdrawn.String())

	token, err := host.Token("usdc")
	require.NoError(t, err)
	vaultBalance, err := token.Balance(ctx, "vault")
	require.NoError(t, err)
	require.Equal(t, "11000", vaultBalance.String())
}

func TestStrategyDepositNeedsPermit(t *testing.T) {
	host, _ := newHost(t)
	ctx := context.Background()
	strategy, err := host.AddHodlStrategy("usdc_hodl", "usdc")
	require.NoError(t, err)
	require.NoError(t, host.Mint(ctx, "usdc", "vault", sdkmath.NewInt(500)))

	_, err = strategy.Deposit(auth.Authorizer{}.AsInvoker(ctx, "vault"), sdkmath.NewInt(500), "vault")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestHaltedStrategyRejectsWithdraw(t *testing.T) {
	host, _ := newHost(t)
	ctx := context.Background()
	strategy, err := host.AddHodlStrategy("usdc_hodl", "usdc")
	require.NoError(t, err)

	strategy.Halt(errors.New("frozen"))
	_, err = strategy.Withdraw(auth.Authorizer{}.AsInvoker(ctx, "vault"), sdkmath.NewInt(1), "vault", "vault")
	require.ErrorIs(t, err, sim.ErrHalted)

	strategy.Resume()
	_, err = strategy.Withdraw(auth.Authorizer{}.AsInvoker(ctx, "vault"), sdkmath.NewInt(1), "vault", "vault")
	require.ErrorIs(t, err, sim.ErrInsufficientBalance)
}

func TestRouterSwapExactIn(t *testing.T) {
	// ARRANGE
	host, clock := newHost(t)
	ctx := context.Background()
	router := host.AddRouter("router")
	require.NoError(t, router.AddLiquidity(ctx, "usdc", sdkmath.NewInt(1_000_000), "xlm", sdkmath.NewInt(1_000_000)))
	require.NoError(t, host.Mint(ctx, "usdc", "alice", sdkmath.NewInt(1_000)))
	signed := auth.WithSigners(ctx, "alice")
	path := []string{"usdc", "xlm"}

	// ACT
	amounts, err := router.SwapExactTokensForTokens(signed, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), path, "alice", clock.Now()+60)

	// ASSERT
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	require.Equal(t, "1000", amounts[0].String())
	require.Equal(t, "996", amounts[1].String())
	reserveIn, reserveOut, err := router.GetReserves(ctx, "usdc", "xlm")
	require.NoError(t, err)
	require.Equal(t, "1001000", reserveIn.String())
	require.Equal(t, "999004", reserveOut.String())
}

func TestRouterRejectsExpiredAndSlippage(t *testing.T) {
	host, clock := newHost(t)
	ctx := context.Background()
	router := host.AddRouter("router")
	require.NoError(t, router.AddLiquidity(ctx, "usdc", sdkmath.NewInt(1_000_000), "xlm", sdkmath.NewInt(1_000_000)))
	require.NoError(t, host.Mint(ctx, "usdc", "alice", sdkmath.NewInt(1_000)))
	signed := auth.WithSigners(ctx, "alice")
	path := []string{"usdc", "xlm"}

	_, err := router.SwapExactTokensForTokens(signed, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), path, "alice", clock.Now()-1)
	require.ErrorIs(t, err, sim.ErrExpired)

	_, err = router.SwapExactTokensForTokens(signed, sdkmath.NewInt(1_000), sdkmath.NewInt(1_000), path, "alice", clock.Now())
	require.ErrorIs(t, err, sim.ErrInsufficientOutput)

	_, err = router.SwapTokensForExactTokens(signed, sdkmath.NewInt(500), sdkmath.NewInt(400), path, "alice", clock.Now())
	require.ErrorIs(t, err, sim.ErrExcessiveInput)

	amounts, err := router.SwapTokensForExactTokens(signed, sdkmath.NewInt(500), sdkmath.NewInt(1_000), path, "alice", clock.Now())
	require.NoError(t, err)
	require.Equal(t, "502", amounts[0].String())
}

func TestResolverUnknownContract(t *testing.T) {
	host, _ := newHost(t)
	_, err := host.Strategy("missing")
	require.ErrorIs(t, err, sim.ErrUnknownContract)
	_, err = host.Router("missing")
	require.ErrorIs(t, err, sim.ErrUnknownContract)
	_, err = host.Factory("missing")
	require.ErrorIs(t, err, sim.ErrUnknownContract)
	_, err = host.AddHodlStrategy("s", "missing")
	require.ErrorIs(t, err, sim.ErrUnknownContract)
}
