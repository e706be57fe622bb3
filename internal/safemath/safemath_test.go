package safemath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	sum, err := Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	_, err = Add(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSub(t *testing.T) {
	diff, err := Sub(10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), diff)

	_, err = Sub(4, 10)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMul(t *testing.T) {
	prod, err := Mul(1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), prod)

	_, err = Mul(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulBps(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		bps    uint64
		want   uint64
	}{
		{"25bps fee on 1e9", 1_000_000_000, 25, 2_500_000},
		{"50bps slippage after fee", 997_500_000, 50, 4_987_500},
		{"flash fee 30bps", 100_000_000, 30, 300_000},
		{"floor division", 3, 1, 0},
		{"full amount", 12345, 10000, 12345},
		{"large amount does not overflow intermediate", 1_000_000_000_000_000_000, 30, 3_000_000_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulBps(tt.amount, tt.bps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMulBpsOverflow(t *testing.T) {
	// bps above the denominator can push the quotient past uint64.
	_, err := MulBps(math.MaxUint64, 20000)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSlippageBps(t *testing.T) {
	assert.Equal(t, uint16(0), SlippageBps(100, 100))
	assert.Equal(t, uint16(0), SlippageBps(100, 150))
	assert.Equal(t, uint16(0), SlippageBps(0, 0))
	// 1% shortfall.
	assert.Equal(t, uint16(100), SlippageBps(10000, 9900))
	// Total loss caps at 10000.
	assert.Equal(t, uint16(10000), SlippageBps(10000, 0))
}
