/*
This file contains helpers for converting ledger amounts to and from their display forms.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// SDKIntToFloat64 converts a signed ledger amount to a display value with the given decimals.
// The result is for presentation only; accounting never leaves sdkmath.Int.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(10).Power(uint64(precision))

	resultFloat, err := decAmount.Quo(factor).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}
	return resultFloat, nil
}

// ParseAmount parses a non negative base unit amount such as "1000".
func ParseAmount(raw string) (sdkmath.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sdkmath.Int{}, fmt.Errorf("%w: empty amount", ErrConversionFailed)
	}
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %q is not an integer", ErrConversionFailed, raw)
	}
	if amount.IsNegative() {
		return sdkmath.Int{}, ErrAmountNegative
	}
	return amount, nil
}
