package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dextra-labs/dextra/internal/events"
	"github.com/dextra-labs/dextra/internal/metrics"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/safemath"
)

var (
	ErrProgramPaused     = errors.New("flash program is paused")
	ErrEmptyRoutes       = errors.New("no routes supplied")
	ErrTooManyRoutes     = errors.New("too many routes")
	ErrAmountTooLarge    = errors.New("flash amount exceeds ceiling")
	ErrInsufficientFunds = errors.New("proceeds cannot cover flash repayment")
	ErrProfitTooLow      = errors.New("profit below requested minimum")
	ErrNoFeesToWithdraw  = errors.New("no accumulated fees to withdraw")
)

// Flash lending terms. The fee is charged on the principal regardless of
// how the borrowed capital performs.
const (
	flashFeeBps    = 30
	maxFlashAmount = 1_000_000_000_000
	maxFlashRoutes = 5
)

// FlashConfig is the mutable flash-program configuration.
type FlashConfig struct {
	FeeRateBps     uint16 `json:"fee_rate_bps"`
	MaxSlippageBps uint16 `json:"max_slippage_bps"`
	Paused         bool   `json:"paused"`
}

// FlashStats is a snapshot of the flash-program counters.
type FlashStats struct {
	TotalExecutions uint64 `json:"total_executions"`
	TotalVolume     uint64 `json:"total_volume"`
	TotalNetProfit  uint64 `json:"total_net_profit"`
	AccumulatedFees uint64 `json:"accumulated_fees"`
	WithdrawnFees   uint64 `json:"withdrawn_fees"`
}

// FlashCoordinator runs flash-funded arbitrage chains: borrow, execute up
// to five routes back to back, repay principal plus flash fee, keep the
// profit. The borrow and every route form one atomic unit.
type FlashCoordinator struct {
	exec      *Coordinator
	provider  CapitalProvider
	emitter   events.Emitter
	log       *logrus.Logger
	tracer    trace.Tracer
	authority string

	mu              sync.Mutex
	cfg             FlashConfig
	totalExecutions uint64
	totalVolume     uint64
	totalNetProfit  uint64
	accumulatedFees uint64
	withdrawnFees   uint64
}

// NewFlashCoordinator wires a flash coordinator on top of an execution
// coordinator and a capital source.
func NewFlashCoordinator(exec *Coordinator, provider CapitalProvider, emitter events.Emitter, authority string, cfg FlashConfig, log *logrus.Logger) *FlashCoordinator {
	if log == nil {
		log = logrus.New()
	}
	if emitter == nil {
		emitter = events.NewMemoryEmitter()
	}
	return &FlashCoordinator{
		exec:      exec,
		provider:  provider,
		emitter:   emitter,
		log:       log,
		tracer:    otel.Tracer("dextra/flash"),
		authority: authority,
		cfg:       cfg,
	}
}

// ExecuteFlash borrows flashAmount, chains the routes (each route's output
// funds the next), repays principal plus the flash fee, and returns the
// settlement ledger. Nothing is committed unless every route succeeds and
// both the repayment and minProfit checks pass.
func (f *FlashCoordinator) ExecuteFlash(ctx context.Context, routes []models.Route, flashAmount, minProfit uint64) (*models.FlashLedger, error) {
	cfg := f.Config()
	switch {
	case cfg.Paused:
		return nil, ErrProgramPaused
	case len(routes) == 0:
		return nil, ErrEmptyRoutes
	case len(routes) > maxFlashRoutes:
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyRoutes, len(routes), maxFlashRoutes)
	case flashAmount == 0:
		return nil, ErrInvalidAmount
	case flashAmount > maxFlashAmount:
		return nil, fmt.Errorf("%w: %d", ErrAmountTooLarge, flashAmount)
	}

	flashFee, err := safemath.MulBps(flashAmount, flashFeeBps)
	if err != nil {
		return nil, err
	}
	repayAmount, err := safemath.Add(flashAmount, flashFee)
	if err != nil {
		return nil, err
	}

	ctx, span := f.tracer.Start(ctx, "executor.ExecuteFlash")
	defer span.End()

	loan, err := f.provider.Borrow(ctx, flashAmount)
	if err != nil {
		return nil, fmt.Errorf("borrow: %w", err)
	}

	start := time.Now()
	current := flashAmount
	var totalRouteFees uint64
	outcomes := make([]*routeOutcome, 0, len(routes))
	for i, route := range routes {
		out, runErr := f.exec.run(ctx, route, current, cfg.MaxSlippageBps)
		if runErr != nil {
			f.abort(ctx, loan)
			metrics.ExecutionFailures.WithLabelValues(failureReason(runErr)).Inc()
			return nil, fmt.Errorf("route %d: %w", i, runErr)
		}
		totalRouteFees, err = safemath.Add(totalRouteFees, out.totalFees)
		if err != nil {
			f.abort(ctx, loan)
			return nil, err
		}
		outcomes = append(outcomes, out)
		current = out.output
	}

	finalBalance := current
	if finalBalance < repayAmount {
		f.abort(ctx, loan)
		metrics.ExecutionFailures.WithLabelValues("insufficient_funds").Inc()
		return nil, fmt.Errorf("%w: final %d, owed %d", ErrInsufficientFunds, finalBalance, repayAmount)
	}
	grossProfit := finalBalance - repayAmount
	if grossProfit < minProfit {
		f.abort(ctx, loan)
		metrics.ExecutionFailures.WithLabelValues("profit_too_low").Inc()
		return nil, fmt.Errorf("%w: gross %d, minimum %d", ErrProfitTooLow, grossProfit, minProfit)
	}

	programFee, err := safemath.MulBps(grossProfit, uint64(cfg.FeeRateBps))
	if err != nil {
		f.abort(ctx, loan)
		return nil, err
	}
	netProfit := grossProfit - programFee

	if err := f.provider.Repay(ctx, loan, repayAmount); err != nil {
		f.abort(ctx, loan)
		return nil, fmt.Errorf("repay: %w", err)
	}

	// Point of no return: settle and make everything observable.
	for _, out := range outcomes {
		f.exec.commit(ctx, out)
	}

	totalFees, err := safemath.Add(totalRouteFees, flashFee)
	if err == nil {
		totalFees, err = safemath.Add(totalFees, programFee)
	}
	if err != nil {
		totalFees = ^uint64(0)
	}

	ledger := &models.FlashLedger{
		ID:           uuid.New().String(),
		Borrowed:     flashAmount,
		FlashFee:     flashFee,
		RepayAmount:  repayAmount,
		FinalBalance: finalBalance,
		GrossProfit:  grossProfit,
		ProgramFee:   programFee,
		NetProfit:    netProfit,
		RoutesCount:  len(routes),
		TotalFees:    totalFees,
		StartTime:    start,
		EndTime:      time.Now(),
	}

	f.settle(flashAmount, netProfit, programFee)
	metrics.FlashExecutions.Inc()
	metrics.FlashNetProfit.Add(float64(netProfit))

	f.emitter.Emit(ctx, events.New(events.ArbitrageExecuted, map[string]any{
		"ledger_id":     ledger.ID,
		"flash_amount":  flashAmount,
		"routes_count":  len(routes),
		"final_balance": finalBalance,
		"gross_profit":  grossProfit,
		"program_fee":   programFee,
		"net_profit":    netProfit,
	}))
	f.log.WithFields(logrus.Fields{
		"ledger_id":    ledger.ID,
		"flash_amount": flashAmount,
		"routes":       len(routes),
		"net_profit":   netProfit,
	}).Info("Flash arbitrage settled")
	return ledger, nil
}

// abort returns the untouched principal to the provider. The swaps behind
// a failed attempt are simulated against staged state, so the principal is
// all that ever left the pool.
func (f *FlashCoordinator) abort(ctx context.Context, loan *Loan) {
	if err := f.provider.Repay(ctx, loan, loan.Amount); err != nil {
		f.log.WithError(err).WithField("loan_id", loan.ID).Error("Failed to return flash principal")
	}
}

func (f *FlashCoordinator) settle(flashAmount, netProfit, programFee uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalExecutions++
	f.totalVolume = saturatingAdd(f.totalVolume, flashAmount)
	f.totalNetProfit = saturatingAdd(f.totalNetProfit, netProfit)
	f.accumulatedFees = saturatingAdd(f.accumulatedFees, programFee)
}

// Config returns a snapshot of the flash-program configuration.
func (f *FlashCoordinator) Config() FlashConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// Stats returns a snapshot of the flash-program counters.
func (f *FlashCoordinator) Stats() FlashStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FlashStats{
		TotalExecutions: f.totalExecutions,
		TotalVolume:     f.totalVolume,
		TotalNetProfit:  f.totalNetProfit,
		AccumulatedFees: f.accumulatedFees,
		WithdrawnFees:   f.withdrawnFees,
	}
}

// Pause stops new flash executions. In-flight ones settle normally.
func (f *FlashCoordinator) Pause(caller string) error {
	return f.setPaused(caller, true)
}

// Resume re-enables flash executions.
func (f *FlashCoordinator) Resume(caller string) error {
	return f.setPaused(caller, false)
}

func (f *FlashCoordinator) setPaused(caller string, paused bool) error {
	if err := authorize(caller, f.authority); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.Paused = paused
	f.log.WithField("paused", paused).Warn("Flash program pause state changed")
	return nil
}

// UpdateConfig applies an authority-gated change to the flash terms.
func (f *FlashCoordinator) UpdateConfig(caller string, feeRateBps, maxSlippageBps *uint16) error {
	if err := authorize(caller, f.authority); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if feeRateBps != nil {
		if *feeRateBps > maxRoutingFeeBound {
			return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, *feeRateBps)
		}
		f.cfg.FeeRateBps = *feeRateBps
	}
	if maxSlippageBps != nil {
		if *maxSlippageBps > maxSlippageBound {
			return fmt.Errorf("%w: %d bps", ErrSlippageTooHigh, *maxSlippageBps)
		}
		f.cfg.MaxSlippageBps = *maxSlippageBps
	}
	f.log.WithFields(logrus.Fields{
		"fee_rate_bps":     f.cfg.FeeRateBps,
		"max_slippage_bps": f.cfg.MaxSlippageBps,
	}).Info("Flash config updated")
	return nil
}

// WithdrawFees drains the accumulated program fees to the authority and
// returns the withdrawn amount.
func (f *FlashCoordinator) WithdrawFees(caller string) (uint64, error) {
	if err := authorize(caller, f.authority); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accumulatedFees == 0 {
		return 0, ErrNoFeesToWithdraw
	}
	amount := f.accumulatedFees
	f.accumulatedFees = 0
	f.withdrawnFees = saturatingAdd(f.withdrawnFees, amount)
	f.log.WithField("amount", amount).Info("Program fees withdrawn")
	return amount, nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, err := safemath.Add(a, b)
	if err != nil {
		return ^uint64(0)
	}
	return sum
}
