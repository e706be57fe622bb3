// Package router computes the best available path for a token swap across
// the registered venues.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/safemath"
	"github.com/dextra-labs/dextra/internal/venues"
)

var (
	ErrNoRouteFound  = errors.New("no route found")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Popular intermediate mints for two-hop routing: USDC, WSOL, USDT. The hop
// search is bounded by this fixed set rather than walking the full
// venue-token graph, keeping worst-case cost constant and deterministic.
var defaultIntermediates = []string{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"So11111111111111111111111111111111111111112",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
}

var defaultVenueSet = []string{"raydium", "orca", "meteora"}

// Optimizer finds best routes through a venue adapter. It is a pure decision
// component: no shared mutable state, safe for concurrent use.
type Optimizer struct {
	adapter       venues.Adapter
	intermediates []string
	defaultVenues []string
	log           *logrus.Logger
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithIntermediateTokens overrides the fixed intermediate-token set.
func WithIntermediateTokens(tokens []string) Option {
	return func(o *Optimizer) {
		if len(tokens) > 0 {
			o.intermediates = tokens
		}
	}
}

// WithDefaultVenues overrides the venue set used when a request has no
// preferred venues.
func WithDefaultVenues(ids []string) Option {
	return func(o *Optimizer) {
		if len(ids) > 0 {
			o.defaultVenues = ids
		}
	}
}

// New creates an optimizer over the given adapter.
func New(adapter venues.Adapter, log *logrus.Logger, opts ...Option) *Optimizer {
	if log == nil {
		log = logrus.New()
	}
	o := &Optimizer{
		adapter:       adapter,
		intermediates: defaultIntermediates,
		defaultVenues: defaultVenueSet,
		log:           log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FindBestRoute returns the highest-output route for the request within its
// hop budget. Ties between a direct and a multi-hop candidate favor the
// direct route; multi-hop wins only on strictly greater output.
func (o *Optimizer) FindBestRoute(ctx context.Context, req models.ArbitrageRequest) (models.Route, error) {
	if req.InputAmount == 0 {
		return models.Route{}, ErrInvalidAmount
	}
	if req.InputToken == req.OutputToken {
		return models.Route{}, fmt.Errorf("%w: input equals output token", ErrNoRouteFound)
	}

	venueSet := req.PreferredVenues
	if len(venueSet) == 0 {
		venueSet = o.defaultVenues
	}

	var best models.Route
	if hop, ok := o.bestDirectHop(ctx, req.InputToken, req.OutputToken, req.InputAmount, venueSet); ok {
		best = models.Route{
			Hops:                []models.RouteHop{hop},
			ExpectedOutput:      hop.ExpectedOutput,
			TotalFees:           hop.Fees,
			TotalPriceImpactBps: hop.PriceImpactBps,
		}
	}

	if req.MaxHops > 1 {
		if multi, ok := o.bestTwoHopRoute(ctx, req, venueSet); ok && multi.ExpectedOutput > best.ExpectedOutput {
			best = multi
		}
	}

	if len(best.Hops) == 0 {
		return models.Route{}, ErrNoRouteFound
	}

	o.log.WithFields(logrus.Fields{
		"input_token":     req.InputToken,
		"output_token":    req.OutputToken,
		"hops":            len(best.Hops),
		"expected_output": best.ExpectedOutput,
	}).Debug("Route computed")
	return best, nil
}

// bestDirectHop simulates a single-hop swap on every candidate venue and
// keeps the greatest expected output.
func (o *Optimizer) bestDirectHop(ctx context.Context, tokenIn, tokenOut string, amountIn uint64, venueSet []string) (models.RouteHop, bool) {
	var best models.RouteHop
	found := false
	for _, venueID := range venueSet {
		q, err := o.adapter.Simulate(ctx, venueID, tokenIn, tokenOut, amountIn)
		if err != nil {
			continue
		}
		if !found || q.AmountOut > best.ExpectedOutput {
			best = models.RouteHop{
				VenueID:        venueID,
				InputToken:     tokenIn,
				OutputToken:    tokenOut,
				InputAmount:    amountIn,
				ExpectedOutput: q.AmountOut,
				Fees:           q.Fee,
				PriceImpactBps: q.PriceImpactBps,
			}
			found = true
		}
	}
	return best, found
}

// bestTwoHopRoute tries every intermediate token, chaining the second hop's
// input to the first hop's expected output. Price impacts add; they are not
// compounded.
func (o *Optimizer) bestTwoHopRoute(ctx context.Context, req models.ArbitrageRequest, venueSet []string) (models.Route, bool) {
	var best models.Route
	found := false
	for _, mid := range o.intermediates {
		if mid == req.InputToken || mid == req.OutputToken {
			continue
		}
		hop1, ok := o.bestDirectHop(ctx, req.InputToken, mid, req.InputAmount, venueSet)
		if !ok {
			continue
		}
		hop2, ok := o.bestDirectHop(ctx, mid, req.OutputToken, hop1.ExpectedOutput, venueSet)
		if !ok {
			continue
		}
		if !found || hop2.ExpectedOutput > best.ExpectedOutput {
			totalFees, err := safemath.Add(hop1.Fees, hop2.Fees)
			if err != nil {
				continue
			}
			best = models.Route{
				Hops:                []models.RouteHop{hop1, hop2},
				ExpectedOutput:      hop2.ExpectedOutput,
				TotalFees:           totalFees,
				TotalPriceImpactBps: sumPriceImpact(hop1.PriceImpactBps, hop2.PriceImpactBps),
			}
			found = true
		}
	}
	return best, found
}

func sumPriceImpact(impacts ...uint16) uint16 {
	var sum uint32
	for _, i := range impacts {
		sum += uint32(i)
	}
	if sum > safemath.BpsDenominator {
		sum = safemath.BpsDenominator
	}
	return uint16(sum)
}
