package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// Router swaps through constant product pairs with a 0.3% fee.
// A pair's reserves are the token balances held by the pair address.
type Router struct {
	address string
	host    *Host

	mu    sync.RWMutex
	pairs map[[2]string]string
}

var _ types.RouterClient = (*Router)(nil)

func sortedPair(a, b string) [2]string {
	tokens := []string{a, b}
	sort.Strings(tokens)
	return [2]string{tokens[0], tokens[1]}
}

// CreatePair registers a pair and returns its address.
func (r *Router) CreatePair(tokenA, tokenB string) (string, error) {
	if tokenA == tokenB {
		return "", fmt.Errorf("router %s: identical tokens %s", r.address, tokenA)
	}
	key := sortedPair(tokenA, tokenB)
	r.mu.Lock()
	defer r.mu.Unlock()
	if addr, ok := r.pairs[key]; ok {
		return addr, nil
	}
	addr := fmt.Sprintf("%s/pair/%s/%s", r.address, key[0], key[1])
	r.pairs[key] = addr
	return addr, nil
}

// AddLiquidity seeds a pair with reserves.
func (r *Router) AddLiquidity(ctx context.Context, tokenA string, amountA sdkmath.Int, tokenB string, amountB sdkmath.Int) error {
	pair, err := r.CreatePair(tokenA, tokenB)
	if err != nil {
		return err
	}
	if err := r.host.Mint(ctx, tokenA, pair, amountA); err != nil {
		return err
	}
	return r.host.Mint(ctx, tokenB, pair, amountB)
}

func (r *Router) PairFor(ctx context.Context, tokenA, tokenB string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.pairs[sortedPair(tokenA, tokenB)]
	if !ok {
		return "", errors.Join(ErrPairNotFound, fmt.Errorf("%s/%s", tokenA, tokenB))
	}
	return addr, nil
}

func (r *Router) GetReserves(ctx context.Context, tokenA, tokenB string) (sdkmath.Int, sdkmath.Int, error) {
	pair, err := r.PairFor(ctx, tokenA, tokenB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	reserveA, err := r.host.balanceOf(ctx, tokenA, pair)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	reserveB, err := r.host.balanceOf(ctx, tokenB, pair)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return reserveA, reserveB, nil
}

func (r *Router) SwapExactTokensForTokens(ctx context.Context, amountIn, amountOutMin sdkmath.Int, path []string, to string, deadline uint64) ([]sdkmath.Int, error) {
	if err := r.checkSwap(ctx, path, to, deadline); err != nil {
		return nil, err
	}
	reserveIn, reserveOut, err := r.GetReserves(ctx, path[0], path[1])
	if err != nil {
		return nil, err
	}
	amountOut, err := amountOutFor(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountOut.LT(amountOutMin) {
		return nil, errors.Join(ErrInsufficientOutput, fmt.Errorf("%s out, minimum %s", amountOut, amountOutMin))
	}
	if err := r.settle(ctx, path, to, amountIn, amountOut); err != nil {
		return nil, err
	}
	return []sdkmath.Int{amountIn, amountOut}, nil
}

func (r *Router) SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax sdkmath.Int, path []string, to string, deadline uint64) ([]sdkmath.Int, error) {
	if err := r.checkSwap(ctx, path, to, deadline); err != nil {
		return nil, err
	}
	reserveIn, reserveOut, err := r.GetReserves(ctx, path[0], path[1])
	if err != nil {
		return nil, err
	}
	amountIn, err := amountInFor(amountOut, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountIn.GT(amountInMax) {
		return nil, errors.Join(ErrExcessiveInput, fmt.Errorf("%s in, maximum %s", amountIn, amountInMax))
	}
	if err := r.settle(ctx, path, to, amountIn, amountOut); err != nil {
		return nil, err
	}
	return []sdkmath.Int{amountIn, amountOut}, nil
}

func (r *Router) checkSwap(ctx context.Context, path []string, to string, deadline uint64) error {
	if len(path) != 2 {
		return fmt.Errorf("router %s: only direct paths are supported, got %d hops", r.address, len(path))
	}
	if deadline < r.host.clock.Now() {
		return errors.Join(ErrExpired, fmt.Errorf("deadline %d", deadline))
	}
	return r.host.auth.RequireAuth(ctx, to)
}

// settle pulls amountIn from `to` into the pair and pays amountOut back.
func (r *Router) settle(ctx context.Context, path []string, to string, amountIn, amountOut sdkmath.Int) error {
	pair, err := r.PairFor(ctx, path[0], path[1])
	if err != nil {
		return err
	}
	tokenIn, err := r.host.token(path[0])
	if err != nil {
		return err
	}
	tokenOut, err := r.host.token(path[1])
	if err != nil {
		return err
	}
	if err := tokenIn.Transfer(r.host.auth.AsInvoker(ctx, r.address), to, pair, amountIn); err != nil {
		return err
	}
	return tokenOut.Transfer(r.host.auth.AsInvoker(ctx, pair), pair, to, amountOut)
}

func amountOutFor(amountIn, reserveIn, reserveOut sdkmath.Int) (sdkmath.Int, error) {
	if !amountIn.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("input amount must be positive")
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	amountInWithFee, err := utils.Mul(amountIn, sdkmath.NewInt(997))
	if err != nil {
		return sdkmath.Int{}, err
	}
	numerator, err := utils.Mul(amountInWithFee, reserveOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	denominator, err := utils.Add(reserveIn.MulRaw(1000), amountInWithFee)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return utils.Quo(numerator, denominator)
}

func amountInFor(amountOut, reserveIn, reserveOut sdkmath.Int) (sdkmath.Int, error) {
	if !amountOut.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("output amount must be positive")
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() || amountOut.GTE(reserveOut) {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	numerator, err := utils.Mul(reserveIn.Mul(amountOut), sdkmath.NewInt(1000))
	if err != nil {
		return sdkmath.Int{}, err
	}
	denominator, err := utils.Mul(reserveOut.Sub(amountOut), sdkmath.NewInt(997))
	if err != nil {
		return sdkmath.Int{}, err
	}
	quotient, err := utils.Quo(numerator, denominator)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return quotient.AddRaw(1), nil
}
