package utils_test

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/utils"
)

func TestMulDivRounding(t *testing.T) {
	floor, err := utils.MulDiv(sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, int64(33), floor.Int64())

	ceil, err := utils.MulDivCeil(sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, int64(34), ceil.Int64())

	exact, err := utils.MulDivCeil(sdkmath.NewInt(3), sdkmath.NewInt(4), sdkmath.NewInt(6))
	require.NoError(t, err)
	require.Equal(t, int64(2), exact.Int64())
}

func TestDivisionByZeroIsArithmeticError(t *testing.T) {
	_, err := utils.Quo(sdkmath.NewInt(1), sdkmath.ZeroInt())
	require.True(t, errors.Is(err, utils.ErrArithmetic))

	_, err = utils.MulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	require.True(t, errors.Is(err, utils.ErrArithmetic))
}

func TestSum(t *testing.T) {
	total, err := utils.Sum([]sdkmath.Int{sdkmath.NewInt(1), sdkmath.NewInt(2), sdkmath.NewInt(3)})
	require.NoError(t, err)
	require.Equal(t, int64(6), total.Int64())

	empty, err := utils.Sum(nil)
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}

func TestParseAmount(t *testing.T) {
	amount, err := utils.ParseAmount(" 20 ")
	require.NoError(t, err)
	require.Equal(t, int64(20), amount.Int64())

	_, err = utils.ParseAmount("-1")
	require.ErrorIs(t, err, utils.ErrAmountNegative)

	_, err = utils.ParseAmount("")
	require.ErrorIs(t, err, utils.ErrConversionFailed)

	_, err = utils.ParseAmount("ten")
	require.ErrorIs(t, err, utils.ErrConversionFailed)
}

func TestSDKIntToFloat64(t *testing.T) {
	v, err := utils.SDKIntToFloat64(sdkmath.NewInt(-15_000_000), 7)
	require.NoError(t, err)
	require.InDelta(t, -1.5, v, 1e-9)

	_, err = utils.SDKIntToFloat64(sdkmath.Int{}, 7)
	require.ErrorIs(t, err, utils.ErrAmountNil)
}
