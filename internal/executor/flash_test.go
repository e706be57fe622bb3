package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dextra-labs/dextra/internal/events"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/registry"
	"github.com/dextra-labs/dextra/internal/venues"
)

// scriptedSwap is a fixed adapter response for one venue.
type scriptedSwap struct {
	out uint64
	fee uint64
	err error
}

type scriptedAdapter struct {
	swaps map[string]scriptedSwap
}

func (a scriptedAdapter) Simulate(_ context.Context, venueID, _, _ string, _ uint64) (venues.Quote, error) {
	s, ok := a.swaps[venueID]
	if !ok {
		return venues.Quote{}, venues.ErrUnsupportedVenue
	}
	if s.err != nil {
		return venues.Quote{}, s.err
	}
	return venues.Quote{AmountOut: s.out, Fee: s.fee}, nil
}

func (a scriptedAdapter) Execute(_ context.Context, venueID string, _, minAmountOut uint64) (venues.SwapResult, error) {
	s, ok := a.swaps[venueID]
	if !ok {
		return venues.SwapResult{}, venues.ErrUnsupportedVenue
	}
	if s.err != nil {
		return venues.SwapResult{}, s.err
	}
	if s.out < minAmountOut {
		return venues.SwapResult{}, venues.ErrSlippageExceeded
	}
	return venues.SwapResult{AmountOut: s.out, Fee: s.fee}, nil
}

func singleHopRoute(venueID string, expectedOut, fee uint64) models.Route {
	hop := models.RouteHop{
		VenueID:        venueID,
		InputToken:     "wsol",
		OutputToken:    "usdc",
		ExpectedOutput: expectedOut,
		Fees:           fee,
	}
	return models.Route{
		Hops:           []models.RouteHop{hop},
		ExpectedOutput: expectedOut,
		TotalFees:      fee,
	}
}

func newFlashFixture(t *testing.T, swaps map[string]scriptedSwap, liquidity uint64) (*FlashCoordinator, *SimulatedCapitalProvider, *events.MemoryEmitter, *registry.Registry) {
	t.Helper()
	reg := registry.New(quietLogger())
	for id := range swaps {
		require.NoError(t, reg.Register(models.VenueInfo{ID: id, Name: id, IsActive: true}))
	}
	em := events.NewMemoryEmitter()
	exec := NewCoordinator(scriptedAdapter{swaps: swaps}, nil, reg, em, testAuthority, activeConfig(), quietLogger())
	provider := NewSimulatedCapitalProvider(liquidity)
	fc := NewFlashCoordinator(exec, provider, em, testAuthority,
		FlashConfig{FeeRateBps: 300, MaxSlippageBps: 100}, quietLogger())
	return fc, provider, em, reg
}

func TestExecuteFlashSettlement(t *testing.T) {
	fc, provider, em, reg := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 101_500_000, fee: 50_000},
	}, 1_000_000_000)

	routes := []models.Route{singleHopRoute("alpha", 101_500_000, 50_000)}
	ledger, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(100_000_000), ledger.Borrowed)
	assert.Equal(t, uint64(300_000), ledger.FlashFee)
	assert.Equal(t, uint64(100_300_000), ledger.RepayAmount)
	assert.Equal(t, uint64(101_500_000), ledger.FinalBalance)
	assert.Equal(t, uint64(1_200_000), ledger.GrossProfit)
	assert.Equal(t, uint64(36_000), ledger.ProgramFee)
	assert.Equal(t, uint64(1_164_000), ledger.NetProfit)
	assert.Equal(t, 1, ledger.RoutesCount)
	assert.Equal(t, uint64(50_000+300_000+36_000), ledger.TotalFees)

	// Principal plus flash fee back in the pool, loan closed.
	assert.Equal(t, uint64(1_000_300_000), provider.Liquidity())
	assert.Zero(t, provider.Outstanding())

	stats := fc.Stats()
	assert.Equal(t, uint64(1), stats.TotalExecutions)
	assert.Equal(t, uint64(100_000_000), stats.TotalVolume)
	assert.Equal(t, uint64(1_164_000), stats.TotalNetProfit)
	assert.Equal(t, uint64(36_000), stats.AccumulatedFees)

	v, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), v.TotalVolume)
	assert.Equal(t, uint64(1), v.TotalSwaps)

	assert.Len(t, em.ByType(events.HopExecuted), 1)
	assert.Len(t, em.ByType(events.ArbitrageExecuted), 1)
}

func TestExecuteFlashChainsRoutes(t *testing.T) {
	fc, _, em, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 100_600_000, fee: 30_000},
		"beta":  {out: 101_500_000, fee: 20_000},
	}, 1_000_000_000)

	routes := []models.Route{
		singleHopRoute("alpha", 100_600_000, 30_000),
		singleHopRoute("beta", 101_500_000, 20_000),
	}
	ledger, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(101_500_000), ledger.FinalBalance)
	assert.Equal(t, uint64(1_200_000), ledger.GrossProfit)
	assert.Equal(t, 2, ledger.RoutesCount)
	assert.Equal(t, uint64(30_000+20_000+300_000+36_000), ledger.TotalFees)
	assert.Len(t, em.ByType(events.HopExecuted), 2)
}

func TestExecuteFlashFailedRouteRollsBackEverything(t *testing.T) {
	fc, provider, em, reg := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 100_600_000, fee: 30_000},
		"bad":   {err: errors.New("pool drained")},
	}, 1_000_000_000)

	routes := []models.Route{
		singleHopRoute("alpha", 100_600_000, 30_000),
		singleHopRoute("bad", 101_500_000, 0),
	}
	_, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	require.Error(t, err)

	// First route succeeded in staging but nothing may be observable.
	assert.Equal(t, uint64(1_000_000_000), provider.Liquidity())
	assert.Zero(t, provider.Outstanding())
	assert.Empty(t, em.Events())
	assert.Zero(t, fc.Stats().TotalExecutions)

	v, getErr := reg.Get("alpha")
	require.NoError(t, getErr)
	assert.Zero(t, v.TotalVolume)
	assert.Zero(t, v.TotalSwaps)
}

func TestExecuteFlashInsufficientFunds(t *testing.T) {
	fc, provider, _, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 100_200_000},
	}, 1_000_000_000)

	routes := []models.Route{singleHopRoute("alpha", 100_200_000, 0)}
	_, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(1_000_000_000), provider.Liquidity())
}

func TestExecuteFlashProfitTooLow(t *testing.T) {
	fc, provider, _, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 100_400_000},
	}, 1_000_000_000)

	// Gross profit is 100_000, below the requested 1_000_000.
	routes := []models.Route{singleHopRoute("alpha", 100_400_000, 0)}
	_, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 1_000_000)
	assert.ErrorIs(t, err, ErrProfitTooLow)
	assert.Equal(t, uint64(1_000_000_000), provider.Liquidity())
}

func TestExecuteFlashValidation(t *testing.T) {
	fc, _, _, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 101_500_000},
	}, 1_000_000_000)
	route := singleHopRoute("alpha", 101_500_000, 0)

	tests := []struct {
		name    string
		routes  []models.Route
		amount  uint64
		wantErr error
	}{
		{"no routes", nil, 100_000_000, ErrEmptyRoutes},
		{"too many routes", []models.Route{route, route, route, route, route, route}, 100_000_000, ErrTooManyRoutes},
		{"zero amount", []models.Route{route}, 0, ErrInvalidAmount},
		{"over ceiling", []models.Route{route}, 1_000_000_000_001, ErrAmountTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fc.ExecuteFlash(context.Background(), tt.routes, tt.amount, 0)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecuteFlashBorrowDenied(t *testing.T) {
	fc, _, _, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 101_500_000},
	}, 1_000)

	routes := []models.Route{singleHopRoute("alpha", 101_500_000, 0)}
	_, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	assert.ErrorIs(t, err, ErrBorrowDenied)
}

func TestFlashPauseResume(t *testing.T) {
	fc, _, _, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 101_500_000},
	}, 1_000_000_000)
	routes := []models.Route{singleHopRoute("alpha", 101_500_000, 0)}

	assert.ErrorIs(t, fc.Pause("intruder"), ErrUnauthorized)
	require.NoError(t, fc.Pause(testAuthority))

	_, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	assert.ErrorIs(t, err, ErrProgramPaused)

	require.NoError(t, fc.Resume(testAuthority))
	_, err = fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	assert.NoError(t, err)
}

func TestFlashUpdateConfigBounds(t *testing.T) {
	fc, _, _, _ := newFlashFixture(t, nil, 0)

	fee := uint16(1001)
	assert.ErrorIs(t, fc.UpdateConfig(testAuthority, &fee, nil), ErrFeeTooHigh)

	slippage := uint16(5001)
	assert.ErrorIs(t, fc.UpdateConfig(testAuthority, nil, &slippage), ErrSlippageTooHigh)

	assert.ErrorIs(t, fc.UpdateConfig("intruder", &fee, nil), ErrUnauthorized)

	fee = 100
	slippage = 200
	require.NoError(t, fc.UpdateConfig(testAuthority, &fee, &slippage))
	cfg := fc.Config()
	assert.Equal(t, uint16(100), cfg.FeeRateBps)
	assert.Equal(t, uint16(200), cfg.MaxSlippageBps)
}

func TestWithdrawFees(t *testing.T) {
	fc, _, _, _ := newFlashFixture(t, map[string]scriptedSwap{
		"alpha": {out: 101_500_000, fee: 50_000},
	}, 1_000_000_000)

	routes := []models.Route{singleHopRoute("alpha", 101_500_000, 50_000)}
	_, err := fc.ExecuteFlash(context.Background(), routes, 100_000_000, 0)
	require.NoError(t, err)

	_, err = fc.WithdrawFees("intruder")
	assert.ErrorIs(t, err, ErrUnauthorized)

	amount, err := fc.WithdrawFees(testAuthority)
	require.NoError(t, err)
	assert.Equal(t, uint64(36_000), amount)

	stats := fc.Stats()
	assert.Zero(t, stats.AccumulatedFees)
	assert.Equal(t, uint64(36_000), stats.WithdrawnFees)

	_, err = fc.WithdrawFees(testAuthority)
	assert.ErrorIs(t, err, ErrNoFeesToWithdraw)
}

func TestSimulatedCapitalProvider(t *testing.T) {
	p := NewSimulatedCapitalProvider(500)

	_, err := p.Borrow(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = p.Borrow(context.Background(), 501)
	assert.ErrorIs(t, err, ErrBorrowDenied)

	loan, err := p.Borrow(context.Background(), 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), p.Liquidity())
	assert.Equal(t, 1, p.Outstanding())

	assert.ErrorIs(t, p.Repay(context.Background(), nil, 400), ErrUnknownLoan)
	assert.ErrorIs(t, p.Repay(context.Background(), &Loan{ID: "ghost"}, 400), ErrUnknownLoan)

	require.NoError(t, p.Repay(context.Background(), loan, 410))
	assert.Equal(t, uint64(510), p.Liquidity())
	assert.Zero(t, p.Outstanding())

	assert.ErrorIs(t, p.Repay(context.Background(), loan, 1), ErrUnknownLoan)
}
