/*

This file contains the interfaces of the contracts a vault talks to.
Every call is synchronous; an error aborts the vault operation that issued it.

*/

package types

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// TokenClient is a fungible asset ledger.
type TokenClient interface {
	Balance(ctx context.Context, holder string) (sdkmath.Int, error)
	// Transfer requires the authorization of from, either directly or through a TransferPermit.
	Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error
}

// StrategyClient is a pluggable yield source for a single asset.
type StrategyClient interface {
	Asset(ctx context.Context) (string, error)
	// Deposit pulls amount from the depositor and returns the depositor's resulting balance.
	Deposit(ctx context.Context, amount sdkmath.Int, from string) (sdkmath.Int, error)
	// Withdraw sends amount of from's position to `to` and returns the amount actually withdrawn.
	Withdraw(ctx context.Context, amount sdkmath.Int, from, to string) (sdkmath.Int, error)
	Balance(ctx context.Context, holder string) (sdkmath.Int, error)
	Harvest(ctx context.Context, caller string, data []byte) error
}

// RouterClient is a constant product swap router.
type RouterClient interface {
	PairFor(ctx context.Context, tokenA, tokenB string) (string, error)
	// GetReserves returns the pair reserves ordered as (tokenA, tokenB).
	GetReserves(ctx context.Context, tokenA, tokenB string) (sdkmath.Int, sdkmath.Int, error)
	SwapExactTokensForTokens(ctx context.Context, amountIn, amountOutMin sdkmath.Int, path []string, to string, deadline uint64) ([]sdkmath.Int, error)
	SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax sdkmath.Int, path []string, to string, deadline uint64) ([]sdkmath.Int, error)
}

// FactoryClient exposes the protocol wide fee configuration.
type FactoryClient interface {
	FeeRate(ctx context.Context) (uint32, error)
	FeeReceiver(ctx context.Context) (string, error)
}

// ContractResolver binds contract addresses to typed clients.
type ContractResolver interface {
	Token(address string) (TokenClient, error)
	Strategy(address string) (StrategyClient, error)
	Router(address string) (RouterClient, error)
	Factory(address string) (FactoryClient, error)
}

// TransferPermit authorizes a single token movement for the duration of one call.
type TransferPermit struct {
	Token  string      `json:"token"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount sdkmath.Int `json:"amount"`
}

// Authorizer decides whether a principal has authorized the current call.
type Authorizer interface {
	// RequireAuth fails unless addr signed the call or is the direct invoker.
	RequireAuth(ctx context.Context, addr string) error
	// AsInvoker marks addr as the contract issuing calls made with the returned context.
	AsInvoker(ctx context.Context, addr string) context.Context
	// Permit attaches single use transfer authorizations to the returned context.
	Permit(ctx context.Context, permits ...TransferPermit) context.Context
	// RequireTransfer consumes a matching permit or falls back to RequireAuth on the sender.
	RequireTransfer(ctx context.Context, transfer TransferPermit) error
}

// Clock returns the ledger time in unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}
