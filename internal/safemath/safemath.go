// Package safemath provides overflow-checked arithmetic for token amounts.
//
// All monetary values in the engine are uint64 base units; any operation
// that would wrap fails with ErrOverflow instead of silently corrupting
// profit or fee figures.
package safemath

import (
	"errors"
	"math/bits"
)

// ErrOverflow is returned when an arithmetic operation would overflow uint64.
var ErrOverflow = errors.New("arithmetic overflow")

// BpsDenominator is the basis-point scale used for all fee and slippage math.
const BpsDenominator = 10000

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow if b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// MulBps returns amount*bps/10000 with floor division, computed in 128-bit
// intermediate precision so amount*bps itself may exceed uint64.
func MulBps(amount uint64, bps uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, bps)
	if hi >= BpsDenominator {
		return 0, ErrOverflow
	}
	quo, _ := bits.Div64(hi, lo, BpsDenominator)
	return quo, nil
}

// SlippageBps returns the realized slippage of actual vs expected in basis
// points. Outputs at or above expectation report zero slippage.
func SlippageBps(expected, actual uint64) uint16 {
	if actual >= expected || expected == 0 {
		return 0
	}
	diff := expected - actual
	hi, lo := bits.Mul64(diff, BpsDenominator)
	quo, _ := bits.Div64(hi, lo, expected)
	if quo > BpsDenominator {
		return BpsDenominator
	}
	return uint16(quo)
}
