// Package venues defines the adapter boundary between the engine and the
// underlying trading venues, plus a deterministic simulated implementation.
package venues

import (
	"context"
	"errors"
	"fmt"

	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/registry"
	"github.com/dextra-labs/dextra/internal/safemath"
)

var (
	ErrUnsupportedVenue  = errors.New("venue does not support this swap")
	ErrSlippageExceeded  = errors.New("slippage exceeded")
	ErrInvalidSwapAmount = errors.New("invalid swap amount")
)

// Quote is a simulated swap outcome.
type Quote struct {
	AmountOut      uint64
	Fee            uint64
	PriceImpactBps uint16
}

// SwapResult is a realized swap outcome.
type SwapResult struct {
	AmountOut uint64
	Fee       uint64
}

// Adapter realizes swaps on a venue. Calls are synchronous and bounded-time;
// a failure aborts the caller's enclosing atomic operation.
type Adapter interface {
	Simulate(ctx context.Context, venueID, tokenIn, tokenOut string, amountIn uint64) (Quote, error)
	Execute(ctx context.Context, venueID string, amountIn, minAmountOut uint64) (SwapResult, error)
}

// feeModel is a venue's simulation parameters in basis points.
type feeModel struct {
	feeRateBps      uint16
	baseSlippageBps uint16
}

// defaultModels is the deterministic fallback fee/slippage table. Live pool
// queries are out of scope; registered venues take precedence over this
// table, which exists so quoting stays reproducible in tests and when the
// registry is cold.
var defaultModels = map[string]feeModel{
	"raydium": {feeRateBps: 25, baseSlippageBps: 50},
	"orca":    {feeRateBps: 30, baseSlippageBps: 30},
	"meteora": {feeRateBps: 20, baseSlippageBps: 40},
	"jupiter": {feeRateBps: 15, baseSlippageBps: 20},
}

// SimulatedAdapter prices swaps from the registry's venue models, falling
// back to the builtin table for known venue names.
type SimulatedAdapter struct {
	registry *registry.Registry
}

// NewSimulatedAdapter creates an adapter backed by the given registry. A nil
// registry restricts the adapter to the builtin table.
func NewSimulatedAdapter(reg *registry.Registry) *SimulatedAdapter {
	return &SimulatedAdapter{registry: reg}
}

// Simulate quotes a swap without executing it.
func (a *SimulatedAdapter) Simulate(_ context.Context, venueID, tokenIn, tokenOut string, amountIn uint64) (Quote, error) {
	if amountIn == 0 {
		return Quote{}, ErrInvalidSwapAmount
	}
	// A venue never trades a token against itself.
	if tokenIn == tokenOut {
		return Quote{}, fmt.Errorf("%w: identical tokens", ErrUnsupportedVenue)
	}
	model, err := a.model(venueID)
	if err != nil {
		return Quote{}, err
	}
	out, fee, err := swapOutput(amountIn, model)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountOut:      out,
		Fee:            fee,
		PriceImpactBps: model.baseSlippageBps,
	}, nil
}

// Execute realizes a swap. Outputs below minAmountOut fail with
// ErrSlippageExceeded and leave no effect.
func (a *SimulatedAdapter) Execute(_ context.Context, venueID string, amountIn, minAmountOut uint64) (SwapResult, error) {
	if amountIn == 0 {
		return SwapResult{}, ErrInvalidSwapAmount
	}
	model, err := a.model(venueID)
	if err != nil {
		return SwapResult{}, err
	}
	out, fee, err := swapOutput(amountIn, model)
	if err != nil {
		return SwapResult{}, err
	}
	if out < minAmountOut {
		return SwapResult{}, fmt.Errorf("%w: venue %s output %d below minimum %d",
			ErrSlippageExceeded, venueID, out, minAmountOut)
	}
	return SwapResult{AmountOut: out, Fee: fee}, nil
}

func (a *SimulatedAdapter) model(venueID string) (feeModel, error) {
	if a.registry != nil {
		if v, err := a.registry.Get(venueID); err == nil {
			return feeModel{feeRateBps: v.FeeRateBps, baseSlippageBps: v.BaseSlippageBps}, nil
		}
	}
	if m, ok := defaultModels[venueID]; ok {
		return m, nil
	}
	return feeModel{}, fmt.Errorf("%w: %s", ErrUnsupportedVenue, venueID)
}

// swapOutput applies the venue model: fee off the top, then base slippage on
// the remainder.
func swapOutput(amountIn uint64, m feeModel) (out, fee uint64, err error) {
	fee, err = safemath.MulBps(amountIn, uint64(m.feeRateBps))
	if err != nil {
		return 0, 0, err
	}
	afterFee, err := safemath.Sub(amountIn, fee)
	if err != nil {
		return 0, 0, err
	}
	slip, err := safemath.MulBps(afterFee, uint64(m.baseSlippageBps))
	if err != nil {
		return 0, 0, err
	}
	out, err = safemath.Sub(afterFee, slip)
	if err != nil {
		return 0, 0, err
	}
	return out, fee, nil
}

// DefaultVenueInfos returns registration records for the builtin venue
// table, used to seed the registry at startup.
func DefaultVenueInfos() []models.VenueInfo {
	infos := make([]models.VenueInfo, 0, len(defaultModels))
	for _, id := range []string{"raydium", "orca", "meteora", "jupiter"} {
		m := defaultModels[id]
		infos = append(infos, models.VenueInfo{
			ID:              id,
			Name:            id,
			FeeRateBps:      m.feeRateBps,
			BaseSlippageBps: m.baseSlippageBps,
			IsActive:        true,
		})
	}
	return infos
}
