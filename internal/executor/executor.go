// Package executor realizes routes hop-by-hop and flash-funded arbitrages
// with all-or-nothing commit semantics: either every hop (and, for flash
// operations, the borrow/repay pair) succeeds, or none of the fee
// collection, counter updates, or venue-stat updates are observable.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dextra-labs/dextra/internal/events"
	"github.com/dextra-labs/dextra/internal/metrics"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/registry"
	"github.com/dextra-labs/dextra/internal/router"
	"github.com/dextra-labs/dextra/internal/safemath"
	"github.com/dextra-labs/dextra/internal/venues"
)

var (
	ErrRouterInactive     = errors.New("router is inactive")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSlippageTooHigh    = errors.New("slippage setting too high")
	ErrTooManyHops        = errors.New("too many hops")
	ErrFeeTooHigh         = errors.New("fee rate too high")
	ErrEmptyRoute         = errors.New("route has no hops")
	ErrRouteNotProfitable = errors.New("route does not meet minimum output")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Hard bounds on the admin-tunable router configuration.
const (
	maxConfigurableHops = 10
	maxSlippageBound    = 5000 // 50%
	maxRoutingFeeBound  = 1000 // 10%
	fullSuccessRateBps  = 10000
)

// RouterConfig is the mutable execution configuration, changed only through
// the authority-gated UpdateConfig.
type RouterConfig struct {
	MaxHops            uint8  `json:"max_hops"`
	DefaultSlippageBps uint16 `json:"default_slippage_bps"`
	RoutingFeeBps      uint16 `json:"routing_fee_bps"`
	IsActive           bool   `json:"is_active"`
}

// RouterStats is a snapshot of the global execution counters.
type RouterStats struct {
	TotalRoutesExecuted uint64 `json:"total_routes_executed"`
	TotalVolume         uint64 `json:"total_volume"`
	TotalFeesCollected  uint64 `json:"total_fees_collected"`
}

// Coordinator executes routes atomically.
type Coordinator struct {
	adapter   venues.Adapter
	optimizer *router.Optimizer
	registry  *registry.Registry
	emitter   events.Emitter
	log       *logrus.Logger
	tracer    trace.Tracer
	authority string

	cfgMu sync.RWMutex
	cfg   RouterConfig

	totalRoutesExecuted atomic.Uint64
	totalVolume         atomic.Uint64
	totalFeesCollected  atomic.Uint64
}

// NewCoordinator wires an execution coordinator.
func NewCoordinator(adapter venues.Adapter, opt *router.Optimizer, reg *registry.Registry, emitter events.Emitter, authority string, cfg RouterConfig, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.New()
	}
	if emitter == nil {
		emitter = events.NewMemoryEmitter()
	}
	return &Coordinator{
		adapter:   adapter,
		optimizer: opt,
		registry:  reg,
		emitter:   emitter,
		log:       log,
		tracer:    otel.Tracer("dextra/executor"),
		authority: authority,
		cfg:       cfg,
	}
}

// metricUpdate is a buffered venue-stat mutation, applied only on commit.
type metricUpdate struct {
	venueID        string
	volume         uint64
	avgSlippageBps uint16
}

// routeOutcome is the staged result of running a route: nothing in it has
// been made observable yet.
type routeOutcome struct {
	inputAmount uint64
	output      uint64
	totalFees   uint64
	hopEvents   []events.Event
	updates     []metricUpdate
}

// run executes every hop of a route without committing any side effects.
// Any hop failure aborts the whole route.
func (c *Coordinator) run(ctx context.Context, route models.Route, inputAmount uint64, maxSlippageBps uint16) (*routeOutcome, error) {
	if len(route.Hops) == 0 {
		return nil, ErrEmptyRoute
	}
	if inputAmount == 0 {
		return nil, ErrInvalidAmount
	}

	out := &routeOutcome{inputAmount: inputAmount}
	current := inputAmount
	for i, hop := range route.Hops {
		minOutput, err := safemath.MulBps(hop.ExpectedOutput, uint64(safemath.BpsDenominator-maxSlippageBps))
		if err != nil {
			return nil, fmt.Errorf("hop %d min output: %w", i, err)
		}

		swap, err := c.adapter.Execute(ctx, hop.VenueID, current, minOutput)
		if err != nil {
			return nil, fmt.Errorf("hop %d on %s: %w", i, hop.VenueID, err)
		}

		totalFees, err := safemath.Add(out.totalFees, swap.Fee)
		if err != nil {
			return nil, fmt.Errorf("hop %d fee total: %w", i, err)
		}
		out.totalFees = totalFees

		out.hopEvents = append(out.hopEvents, events.New(events.HopExecuted, map[string]any{
			"hop_index":     i,
			"venue_id":      hop.VenueID,
			"input_amount":  current,
			"output_amount": swap.AmountOut,
			"fees":          swap.Fee,
		}))
		out.updates = append(out.updates, metricUpdate{
			venueID:        hop.VenueID,
			volume:         current,
			avgSlippageBps: safemath.SlippageBps(hop.ExpectedOutput, swap.AmountOut),
		})

		current = swap.AmountOut
	}
	out.output = current
	return out, nil
}

// commit makes a staged outcome observable: venue stats and hop events.
func (c *Coordinator) commit(ctx context.Context, out *routeOutcome) {
	for _, u := range out.updates {
		if err := c.registry.UpdateMetrics(u.venueID, u.volume, 1, fullSuccessRateBps, u.avgSlippageBps); err != nil {
			c.log.WithError(err).WithField("venue_id", u.venueID).Warn("Failed to update venue metrics")
		}
	}
	for _, ev := range out.hopEvents {
		c.emitter.Emit(ctx, ev)
	}
}

// Execute runs a route atomically and returns its terminal record. On any
// hop failure the entire route aborts: no fees, no counters, no venue stats,
// no hop events.
func (c *Coordinator) Execute(ctx context.Context, route models.Route, inputAmount uint64, maxSlippageBps uint16) (*models.ExecutionRecord, error) {
	cfg := c.Config()
	if !cfg.IsActive {
		return nil, ErrRouterInactive
	}
	if maxSlippageBps > maxSlippageBound {
		return nil, fmt.Errorf("%w: %d bps", ErrSlippageTooHigh, maxSlippageBps)
	}

	ctx, span := c.tracer.Start(ctx, "executor.Execute")
	defer span.End()

	record := &models.ExecutionRecord{
		ID:        uuid.New().String(),
		Status:    models.ExecutionExecuting,
		Route:     route,
		StartTime: time.Now(),
	}

	out, err := c.run(ctx, route, inputAmount, maxSlippageBps)
	if err != nil {
		record.Status = models.ExecutionFailed
		record.EndTime = time.Now()
		metrics.ExecutionFailures.WithLabelValues(failureReason(err)).Inc()
		return record, err
	}

	routingFee, err := safemath.MulBps(out.output, uint64(cfg.RoutingFeeBps))
	if err != nil {
		record.Status = models.ExecutionFailed
		record.EndTime = time.Now()
		return record, fmt.Errorf("routing fee: %w", err)
	}
	finalOutput, err := safemath.Sub(out.output, routingFee)
	if err != nil {
		record.Status = models.ExecutionFailed
		record.EndTime = time.Now()
		return record, fmt.Errorf("routing fee: %w", err)
	}
	totalFees, err := safemath.Add(out.totalFees, routingFee)
	if err != nil {
		record.Status = models.ExecutionFailed
		record.EndTime = time.Now()
		return record, fmt.Errorf("fee total: %w", err)
	}

	record.Status = models.ExecutionCompleted
	record.EndTime = time.Now()
	record.ActualOutput = finalOutput
	record.TotalFees = totalFees
	record.ActualSlippageBps = safemath.SlippageBps(route.ExpectedOutput, finalOutput)

	c.commit(ctx, out)
	addCounter(&c.totalRoutesExecuted, 1)
	addCounter(&c.totalVolume, inputAmount)
	addCounter(&c.totalFeesCollected, routingFee)
	metrics.RoutesExecuted.Inc()

	c.log.WithFields(logrus.Fields{
		"record_id":     record.ID,
		"hops":          len(route.Hops),
		"input_amount":  inputAmount,
		"actual_output": finalOutput,
		"total_fees":    totalFees,
		"slippage_bps":  record.ActualSlippageBps,
	}).Info("Route executed")
	return record, nil
}

// ExecuteRequest optimizes and executes a swap intent end to end.
func (c *Coordinator) ExecuteRequest(ctx context.Context, req models.ArbitrageRequest) (*models.ExecutionRecord, error) {
	cfg := c.Config()
	if !cfg.IsActive {
		return nil, ErrRouterInactive
	}
	if req.InputAmount == 0 || req.MinOutputAmount == 0 {
		return nil, ErrInvalidAmount
	}

	slippage := req.MaxSlippageBps
	if slippage == 0 {
		slippage = cfg.DefaultSlippageBps
	}
	if slippage > maxSlippageBound {
		return nil, fmt.Errorf("%w: %d bps", ErrSlippageTooHigh, slippage)
	}

	hops := req.MaxHops
	if hops == 0 || hops > cfg.MaxHops {
		hops = cfg.MaxHops
	}
	req.MaxHops = hops

	route, err := c.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if route.ExpectedOutput < req.MinOutputAmount {
		return nil, fmt.Errorf("%w: expected %d, minimum %d",
			ErrRouteNotProfitable, route.ExpectedOutput, req.MinOutputAmount)
	}

	record, err := c.Execute(ctx, route, req.InputAmount, slippage)
	if err != nil {
		return record, err
	}

	c.emitter.Emit(ctx, events.New(events.ArbitrageExecuted, map[string]any{
		"record_id":     record.ID,
		"input_token":   req.InputToken,
		"output_token":  req.OutputToken,
		"input_amount":  req.InputAmount,
		"output_amount": record.ActualOutput,
		"hops_count":    len(route.Hops),
		"total_fees":    record.TotalFees,
	}))
	return record, nil
}

// Quote computes the best route for a request without executing it.
func (c *Coordinator) Quote(ctx context.Context, req models.ArbitrageRequest) (models.Route, error) {
	cfg := c.Config()
	if !cfg.IsActive {
		return models.Route{}, ErrRouterInactive
	}
	if req.InputAmount == 0 {
		return models.Route{}, ErrInvalidAmount
	}
	if req.MaxHops == 0 {
		req.MaxHops = cfg.MaxHops
	}

	route, err := c.optimizer.FindBestRoute(ctx, req)
	if err != nil {
		return models.Route{}, err
	}
	metrics.RoutesComputed.Inc()
	c.emitter.Emit(ctx, events.New(events.RouteComputed, map[string]any{
		"input_token":      req.InputToken,
		"output_token":     req.OutputToken,
		"input_amount":     req.InputAmount,
		"expected_output":  route.ExpectedOutput,
		"hops_count":       len(route.Hops),
		"total_fees":       route.TotalFees,
		"price_impact_bps": route.TotalPriceImpactBps,
	}))
	return route, nil
}

// Config returns a snapshot of the current router configuration.
func (c *Coordinator) Config() RouterConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Stats returns a snapshot of the global counters.
func (c *Coordinator) Stats() RouterStats {
	return RouterStats{
		TotalRoutesExecuted: c.totalRoutesExecuted.Load(),
		TotalVolume:         c.totalVolume.Load(),
		TotalFeesCollected:  c.totalFeesCollected.Load(),
	}
}

// UpdateConfig applies an authority-gated configuration change. Nil fields
// are left untouched.
func (c *Coordinator) UpdateConfig(caller string, maxHops *uint8, defaultSlippageBps, routingFeeBps *uint16, isActive *bool) error {
	if err := authorize(caller, c.authority); err != nil {
		return err
	}

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	if maxHops != nil {
		if *maxHops == 0 || *maxHops > maxConfigurableHops {
			return fmt.Errorf("%w: %d", ErrTooManyHops, *maxHops)
		}
		c.cfg.MaxHops = *maxHops
	}
	if defaultSlippageBps != nil {
		if *defaultSlippageBps > maxSlippageBound {
			return fmt.Errorf("%w: %d bps", ErrSlippageTooHigh, *defaultSlippageBps)
		}
		c.cfg.DefaultSlippageBps = *defaultSlippageBps
	}
	if routingFeeBps != nil {
		if *routingFeeBps > maxRoutingFeeBound {
			return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, *routingFeeBps)
		}
		c.cfg.RoutingFeeBps = *routingFeeBps
	}
	if isActive != nil {
		c.cfg.IsActive = *isActive
	}

	c.log.WithFields(logrus.Fields{
		"max_hops":             c.cfg.MaxHops,
		"default_slippage_bps": c.cfg.DefaultSlippageBps,
		"routing_fee_bps":      c.cfg.RoutingFeeBps,
		"is_active":            c.cfg.IsActive,
	}).Info("Router config updated")
	return nil
}

func authorize(caller, authority string) error {
	if authority == "" || caller != authority {
		return ErrUnauthorized
	}
	return nil
}

// addCounter increments an atomic counter, saturating instead of wrapping.
func addCounter(c *atomic.Uint64, delta uint64) {
	for {
		old := c.Load()
		sum, err := safemath.Add(old, delta)
		if err != nil {
			sum = ^uint64(0)
		}
		if c.CompareAndSwap(old, sum) {
			return
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, venues.ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, venues.ErrUnsupportedVenue):
		return "unsupported_venue"
	case errors.Is(err, safemath.ErrOverflow):
		return "arithmetic_overflow"
	default:
		return "other"
	}
}
