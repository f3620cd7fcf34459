package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// Constant product fee of 0.3% expressed as 997/1000.
var (
	swapFeeNumerator   = sdkmath.NewInt(997)
	swapFeeDenominator = sdkmath.NewInt(1000)
)

func (c *call) router() (types.RouterClient, error) {
	addr, err := c.repo.getString(keyRouter)
	if err != nil {
		return nil, err
	}
	if addr == "" {
		return nil, errors.Join(ErrSwap, errors.New("router is not configured"))
	}
	client, err := c.v.resolver.Router(addr)
	if err != nil {
		return nil, errors.Join(ErrSwap, fmt.Errorf("router %s: %w", addr, err))
	}
	return client, nil
}

// validateSwapAssets checks both legs are managed by the vault and a deadline is set.
func (c *call) validateSwapAssets(tokenIn, tokenOut string, deadline uint64) error {
	assets, err := c.repo.getAssets()
	if err != nil {
		return err
	}
	if assetIndex(assets, tokenIn) < 0 {
		return errors.Join(ErrUnsupportedAsset, fmt.Errorf("token in %s", tokenIn))
	}
	if assetIndex(assets, tokenOut) < 0 {
		return errors.Join(ErrUnsupportedAsset, fmt.Errorf("token out %s", tokenOut))
	}
	if tokenIn == tokenOut {
		return errors.Join(ErrInvalidInstruction, errors.New("cannot swap a token for itself"))
	}
	if deadline == 0 {
		return ErrMissingDeadline
	}
	return nil
}

func (c *call) swapExactIn(instruction types.Instruction) ([]sdkmath.Int, error) {
	tokenIn := instruction.TokenIn
	if err := tokenIn.Validate(); err != nil || !tokenIn.Amount.IsPositive() {
		return nil, errors.Join(ErrInvalidInstruction, fmt.Errorf("token in %s is invalid: %v", tokenIn, err))
	}
	amountOutMin := utils.OrZero(instruction.AmountOutMin)
	if amountOutMin.IsNegative() {
		return nil, ErrNegativeNotAllowed
	}
	if err := c.validateSwapAssets(tokenIn.Denom, instruction.TokenOutDenom, instruction.Deadline); err != nil {
		return nil, err
	}

	router, err := c.router()
	if err != nil {
		return nil, err
	}
	pair, err := router.PairFor(c.contractCtx(), tokenIn.Denom, instruction.TokenOutDenom)
	if err != nil {
		return nil, errors.Join(ErrSwap, fmt.Errorf("pair %s/%s: %w", tokenIn.Denom, instruction.TokenOutDenom, err))
	}

	path := []string{tokenIn.Denom, instruction.TokenOutDenom}
	ctx := c.contractCtx(types.TransferPermit{Token: tokenIn.Denom, From: c.v.address, To: pair, Amount: tokenIn.Amount})
	amounts, err := router.SwapExactTokensForTokens(ctx, tokenIn.Amount, amountOutMin, path, c.v.address, instruction.Deadline)
	if err != nil {
		return nil, errors.Join(ErrSwap, err)
	}
	if len(amounts) == 0 || amounts[len(amounts)-1].LT(amountOutMin) {
		return nil, errors.Join(ErrInsufficientOutputAmount, fmt.Errorf("router returned %v, minimum %s", amounts, amountOutMin))
	}

	c.log.Info().
		Str("tokenIn", tokenIn.String()).
		Str("tokenOut", instruction.TokenOutDenom).
		Str("amountOut", amounts[len(amounts)-1].String()).
		Msg("Rebalance: swapped exact in")
	return amounts, nil
}

func (c *call) swapExactOut(instruction types.Instruction) ([]sdkmath.Int, error) {
	tokenOut := instruction.TokenOut
	if err := tokenOut.Validate(); err != nil || !tokenOut.Amount.IsPositive() {
		return nil, errors.Join(ErrInvalidInstruction, fmt.Errorf("token out %s is invalid: %v", tokenOut, err))
	}
	if instruction.AmountInMax.IsNil() || !instruction.AmountInMax.IsPositive() {
		return nil, errors.Join(ErrInvalidInstruction, errors.New("amount in max must be positive"))
	}
	if err := c.validateSwapAssets(instruction.TokenInDenom, tokenOut.Denom, instruction.Deadline); err != nil {
		return nil, err
	}

	router, err := c.router()
	if err != nil {
		return nil, err
	}
	pair, err := router.PairFor(c.contractCtx(), instruction.TokenInDenom, tokenOut.Denom)
	if err != nil {
		return nil, errors.Join(ErrSwap, fmt.Errorf("pair %s/%s: %w", instruction.TokenInDenom, tokenOut.Denom, err))
	}
	reserveIn, reserveOut, err := router.GetReserves(c.contractCtx(), instruction.TokenInDenom, tokenOut.Denom)
	if err != nil {
		return nil, errors.Join(ErrSwap, fmt.Errorf("reserves %s/%s: %w", instruction.TokenInDenom, tokenOut.Denom, err))
	}
	amountIn, err := getAmountIn(tokenOut.Amount, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountIn.GT(instruction.AmountInMax) {
		return nil, errors.Join(ErrExcessiveInputAmount,
			fmt.Errorf("%s %s needed for %s, maximum %s", amountIn, instruction.TokenInDenom, tokenOut, instruction.AmountInMax))
	}

	path := []string{instruction.TokenInDenom, tokenOut.Denom}
	ctx := c.contractCtx(types.TransferPermit{Token: instruction.TokenInDenom, From: c.v.address, To: pair, Amount: amountIn})
	amounts, err := router.SwapTokensForExactTokens(ctx, tokenOut.Amount, instruction.AmountInMax, path, c.v.address, instruction.Deadline)
	if err != nil {
		return nil, errors.Join(ErrSwap, err)
	}
	if len(amounts) == 0 || amounts[0].GT(instruction.AmountInMax) {
		return nil, errors.Join(ErrExcessiveInputAmount, fmt.Errorf("router returned %v, maximum %s", amounts, instruction.AmountInMax))
	}

	c.log.Info().
		Str("tokenIn", instruction.TokenInDenom).
		Str("amountIn", amounts[0].String()).
		Str("tokenOut", tokenOut.String()).
		Msg("Rebalance: swapped exact out")
	return amounts, nil
}

// getAmountIn is the constant product input needed for amountOut, rounded up.
func getAmountIn(amountOut, reserveIn, reserveOut sdkmath.Int) (sdkmath.Int, error) {
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.Int{}, errors.Join(ErrSwap, errors.New("pair has no liquidity"))
	}
	if amountOut.GTE(reserveOut) {
		return sdkmath.Int{}, errors.Join(ErrSwap, fmt.Errorf("output %s exceeds reserve %s", amountOut, reserveOut))
	}
	numerator, err := utils.Mul(reserveIn, amountOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if numerator, err = utils.Mul(numerator, swapFeeDenominator); err != nil {
		return sdkmath.Int{}, err
	}
	remaining, err := utils.Sub(reserveOut, amountOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	denominator, err := utils.Mul(remaining, swapFeeNumerator)
	if err != nil {
		return sdkmath.Int{}, err
	}
	quotient, err := utils.Quo(numerator, denominator)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return utils.Add(quotient, sdkmath.OneInt())
}
