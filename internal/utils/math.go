package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// ErrArithmetic is returned when a checked integer operation overflows, underflows or divides by zero.
var ErrArithmetic = errors.New("arithmetic error")

func arithmetic(op string, err error) error {
	return errors.Join(ErrArithmetic, fmt.Errorf("%s: %w", op, err))
}

// Add returns a + b.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	res, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.Int{}, arithmetic("add", err)
	}
	return res, nil
}

// Sub returns a - b.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	res, err := a.SafeSub(b)
	if err != nil {
		return sdkmath.Int{}, arithmetic("sub", err)
	}
	return res, nil
}

// Mul returns a * b.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	res, err := a.SafeMul(b)
	if err != nil {
		return sdkmath.Int{}, arithmetic("mul", err)
	}
	return res, nil
}

// Quo returns a / b truncated toward zero.
func Quo(a, b sdkmath.Int) (sdkmath.Int, error) {
	if b.IsZero() {
		return sdkmath.Int{}, arithmetic("quo", errors.New("division by zero"))
	}
	res, err := a.SafeQuo(b)
	if err != nil {
		return sdkmath.Int{}, arithmetic("quo", err)
	}
	return res, nil
}

// MulDiv returns a * b / c truncated toward zero. It is the floor for non negative operands.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	product, err := Mul(a, b)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return Quo(product, c)
}

// MulDivCeil returns a * b / c rounded up for non negative operands.
func MulDivCeil(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	product, err := Mul(a, b)
	if err != nil {
		return sdkmath.Int{}, err
	}
	q, err := Quo(product, c)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !q.Mul(c).Equal(product) {
		return Add(q, sdkmath.OneInt())
	}
	return q, nil
}

// Sum adds every amount.
func Sum(amounts []sdkmath.Int) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, amount := range amounts {
		var err error
		if total, err = Add(total, amount); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return total, nil
}

// OrZero replaces a nil Int with zero.
func OrZero(i sdkmath.Int) sdkmath.Int {
	if i.IsNil() {
		return sdkmath.ZeroInt()
	}
	return i
}
