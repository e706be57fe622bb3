package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/venues"
)

const (
	usdc = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wsol = "So11111111111111111111111111111111111111112"
	usdt = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wif  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

// pairAdapter scripts quotes per venue and token pair.
type pairAdapter struct {
	quotes map[string]venues.Quote
}

func key(venueID, in, out string) string {
	return fmt.Sprintf("%s|%s|%s", venueID, in, out)
}

func (p *pairAdapter) Simulate(_ context.Context, venueID, in, out string, amountIn uint64) (venues.Quote, error) {
	q, ok := p.quotes[key(venueID, in, out)]
	if !ok {
		return venues.Quote{}, venues.ErrUnsupportedVenue
	}
	return q, nil
}

func (p *pairAdapter) Execute(context.Context, string, uint64, uint64) (venues.SwapResult, error) {
	return venues.SwapResult{}, venues.ErrUnsupportedVenue
}

func request(maxHops uint8) models.ArbitrageRequest {
	return models.ArbitrageRequest{
		InputToken:  bonk,
		OutputToken: wif,
		InputAmount: 1_000_000_000,
		MaxHops:     maxHops,
	}
}

func TestDirectRoutePicksBestVenue(t *testing.T) {
	opt := New(venues.NewSimulatedAdapter(nil), nil,
		WithDefaultVenues([]string{"raydium", "orca", "meteora", "jupiter"}))

	route, err := opt.FindBestRoute(context.Background(), models.ArbitrageRequest{
		InputToken:  wsol,
		OutputToken: usdc,
		InputAmount: 1_000_000_000,
		MaxHops:     1,
	})
	require.NoError(t, err)
	require.Len(t, route.Hops, 1)
	// Jupiter has the lowest fee and slippage in the builtin table.
	assert.Equal(t, "jupiter", route.Hops[0].VenueID)
	assert.Equal(t, route.Hops[0].ExpectedOutput, route.ExpectedOutput)
}

func TestDirectScenarioMath(t *testing.T) {
	opt := New(venues.NewSimulatedAdapter(nil), nil, WithDefaultVenues([]string{"raydium"}))

	route, err := opt.FindBestRoute(context.Background(), models.ArbitrageRequest{
		InputToken:  wsol,
		OutputToken: usdc,
		InputAmount: 1_000_000_000,
		MaxHops:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000), route.TotalFees)
	assert.Equal(t, uint64(992_512_500), route.ExpectedOutput)
}

func TestMultiHopWinsOnlyWhenStrictlyGreater(t *testing.T) {
	adapter := &pairAdapter{quotes: map[string]venues.Quote{
		// Weak direct pair.
		key("raydium", bonk, wif): {AmountOut: 900, Fee: 5, PriceImpactBps: 50},
		// Strong path through USDC.
		key("raydium", bonk, usdc): {AmountOut: 990, Fee: 3, PriceImpactBps: 30},
		key("raydium", usdc, wif):  {AmountOut: 980, Fee: 2, PriceImpactBps: 20},
	}}
	opt := New(adapter, nil, WithDefaultVenues([]string{"raydium"}))

	route, err := opt.FindBestRoute(context.Background(), request(3))
	require.NoError(t, err)
	require.Len(t, route.Hops, 2)
	assert.Equal(t, uint64(980), route.ExpectedOutput)
	assert.Equal(t, uint64(5), route.TotalFees)
	// Impacts add across hops.
	assert.Equal(t, uint16(50), route.TotalPriceImpactBps)
	// Second hop chains off the first hop's expected output.
	assert.Equal(t, uint64(990), route.Hops[1].InputAmount)
}

func TestTieFavorsDirectRoute(t *testing.T) {
	adapter := &pairAdapter{quotes: map[string]venues.Quote{
		key("raydium", bonk, wif):  {AmountOut: 980, Fee: 5, PriceImpactBps: 50},
		key("raydium", bonk, usdc): {AmountOut: 990, Fee: 3, PriceImpactBps: 30},
		key("raydium", usdc, wif):  {AmountOut: 980, Fee: 2, PriceImpactBps: 20},
	}}
	opt := New(adapter, nil, WithDefaultVenues([]string{"raydium"}))

	route, err := opt.FindBestRoute(context.Background(), request(3))
	require.NoError(t, err)
	require.Len(t, route.Hops, 1)
}

func TestMultiHopSkippedWithinHopBudget(t *testing.T) {
	adapter := &pairAdapter{quotes: map[string]venues.Quote{
		key("raydium", bonk, wif):  {AmountOut: 900, Fee: 5, PriceImpactBps: 50},
		key("raydium", bonk, usdc): {AmountOut: 990, Fee: 3, PriceImpactBps: 30},
		key("raydium", usdc, wif):  {AmountOut: 980, Fee: 2, PriceImpactBps: 20},
	}}
	opt := New(adapter, nil, WithDefaultVenues([]string{"raydium"}))

	route, err := opt.FindBestRoute(context.Background(), request(1))
	require.NoError(t, err)
	require.Len(t, route.Hops, 1)
	assert.Equal(t, uint64(900), route.ExpectedOutput)
}

func TestNoRouteFound(t *testing.T) {
	opt := New(venues.NewSimulatedAdapter(nil), nil)

	_, err := opt.FindBestRoute(context.Background(), models.ArbitrageRequest{
		InputToken:  usdc,
		OutputToken: usdc,
		InputAmount: 1000,
		MaxHops:     2,
	})
	assert.ErrorIs(t, err, ErrNoRouteFound)

	_, err = opt.FindBestRoute(context.Background(), models.ArbitrageRequest{
		InputToken:      wsol,
		OutputToken:     usdc,
		InputAmount:     1000,
		MaxHops:         1,
		PreferredVenues: []string{"unknown-dex"},
	})
	assert.ErrorIs(t, err, ErrNoRouteFound)
}

func TestPreferredVenuesRestrictCandidates(t *testing.T) {
	opt := New(venues.NewSimulatedAdapter(nil), nil)

	route, err := opt.FindBestRoute(context.Background(), models.ArbitrageRequest{
		InputToken:      wsol,
		OutputToken:     usdt,
		InputAmount:     1_000_000,
		MaxHops:         1,
		PreferredVenues: []string{"meteora"},
	})
	require.NoError(t, err)
	require.Len(t, route.Hops, 1)
	assert.Equal(t, "meteora", route.Hops[0].VenueID)
}
