// Package protection schedules MEV-protected transactions: every swap intent
// is wrapped with a protection level, held behind a time delay, and screened
// by the risk engine before it may execute.
package protection

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dextra-labs/dextra/internal/events"
	"github.com/dextra-labs/dextra/internal/metrics"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/risk"
	"github.com/dextra-labs/dextra/internal/safemath"
)

var (
	ErrProtectionInactive       = errors.New("protection program is inactive")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidLevel             = errors.New("invalid protection level")
	ErrSlippageTooHigh          = errors.New("slippage tolerance too high")
	ErrPriceImpactTooHigh       = errors.New("estimated price impact too high")
	ErrInvalidDelay             = errors.New("invalid base delay")
	ErrExecutionTooEarly        = errors.New("execution deadline not reached")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrSandwichDetected         = errors.New("sandwich attack pattern detected")
	ErrExecutionDeferred        = errors.New("execution deferred pending risk review")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrNotFound                 = errors.New("transaction not found")
	ErrReportNotFound           = errors.New("report not found")
	ErrInvalidReport            = errors.New("invalid attack report")
)

// Protection fee in basis points of the input amount, by level.
var levelFeeBps = map[models.ProtectionLevel]uint64{
	models.ProtectionBasic:    10,
	models.ProtectionAdvanced: 25,
	models.ProtectionMaximum:  50,
}

// Hard bounds on the admin-tunable configuration.
const (
	maxSlippageBound    = 1000
	maxPriceImpactBound = 5000
	maxBaseDelay        = 5 * time.Minute
)

// RouteExecutor runs the underlying swap once a protected transaction
// clears its gates.
type RouteExecutor interface {
	ExecuteRequest(ctx context.Context, req models.ArbitrageRequest) (*models.ExecutionRecord, error)
}

// Config is the mutable protection-program configuration.
type Config struct {
	BaseDelay         time.Duration `json:"base_delay"`
	MaxSlippageBps    uint16        `json:"max_slippage_bps"`
	MaxPriceImpactBps uint16        `json:"max_price_impact_bps"`
	Active            bool          `json:"active"`
}

// Stats is a snapshot of the program counters.
type Stats struct {
	Created       uint64 `json:"created"`
	Executed      uint64 `json:"executed"`
	Cancelled     uint64 `json:"cancelled"`
	Blocked       uint64 `json:"blocked"`
	FeesCollected uint64 `json:"fees_collected"`
}

// Scheduler owns the protected-transaction state machine. Transitions out of
// Pending are one-way; a transaction never re-enters Pending.
type Scheduler struct {
	executor  RouteExecutor
	risk      *risk.Engine
	emitter   events.Emitter
	log       *logrus.Logger
	authority string
	now       func() time.Time

	mu        sync.Mutex
	cfg       Config
	txs       map[string]*models.ProtectedTransaction
	executing map[string]bool
	reports   map[string]*models.AttackReport
	stats     Stats
}

// NewScheduler wires a protection scheduler. The clock defaults to
// time.Now.
func NewScheduler(exec RouteExecutor, engine *risk.Engine, emitter events.Emitter, authority string, cfg Config, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	if emitter == nil {
		emitter = events.NewMemoryEmitter()
	}
	if engine == nil {
		engine = risk.NewEngine()
	}
	return &Scheduler{
		executor:  exec,
		risk:      engine,
		emitter:   emitter,
		log:       log,
		authority: authority,
		now:       time.Now,
		cfg:       cfg,
		txs:       make(map[string]*models.ProtectedTransaction),
		executing: make(map[string]bool),
		reports:   make(map[string]*models.AttackReport),
	}
}

// WithClock overrides the scheduler's clock.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Create registers a protected transaction in Pending state. The execution
// deadline is the creation time plus the level-scaled delay. The protection
// fee is quoted here but only collected when the transaction executes.
func (s *Scheduler) Create(ctx context.Context, owner string, params models.ArbitrageRequest, level models.ProtectionLevel) (*models.ProtectedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Active {
		return nil, ErrProtectionInactive
	}
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if params.InputAmount == 0 || params.MinOutputAmount == 0 {
		return nil, ErrInvalidAmount
	}
	if params.MaxSlippageBps > s.cfg.MaxSlippageBps {
		return nil, fmt.Errorf("%w: %d bps (limit %d)", ErrSlippageTooHigh, params.MaxSlippageBps, s.cfg.MaxSlippageBps)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	fee, err := safemath.MulBps(params.InputAmount, levelFeeBps[level])
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := &models.ProtectedTransaction{
		ID:                uuid.New().String(),
		Owner:             owner,
		Params:            params,
		Level:             level,
		Mechanisms:        mechanismsFor(level),
		Status:            models.StatusPending,
		Nonce:             randomNonce(),
		CreatedAt:         now,
		ExecutionDeadline: now.Add(delayFor(level, s.cfg.BaseDelay)),
		ProtectionFee:     fee,
	}
	s.txs[tx.ID] = tx
	s.stats.Created++
	metrics.ProtectedTransactionsCreated.Inc()

	s.emitter.Emit(ctx, events.New(events.ProtectedTransactionCreated, map[string]any{
		"transaction_id":     tx.ID,
		"owner":              owner,
		"protection_level":   string(level),
		"input_amount":       params.InputAmount,
		"execution_deadline": tx.ExecutionDeadline,
		"protection_fee":     fee,
	}))
	s.log.WithFields(logrus.Fields{
		"transaction_id":   tx.ID,
		"protection_level": level,
		"deadline":         tx.ExecutionDeadline,
	}).Info("Protected transaction created")

	cp := *tx
	return &cp, nil
}

// Execute runs a pending transaction once its delay has elapsed and the risk
// gates clear. A detected sandwich pattern blocks the transaction
// permanently; a high-risk assessment defers it exactly once by extending
// the deadline.
func (s *Scheduler) Execute(ctx context.Context, owner, id string) (*models.ProtectedTransaction, error) {
	s.mu.Lock()
	tx, err := s.lockedGet(owner, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if tx.Status != models.StatusPending || s.executing[id] {
		status := tx.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransactionStatus, status)
	}

	now := s.now()
	if now.Before(tx.ExecutionDeadline) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: ready at %s", ErrExecutionTooEarly, tx.ExecutionDeadline.Format(time.RFC3339))
	}

	if det := s.risk.DetectSandwich(tx.Params, now); det.IsDetected {
		tx.Status = models.StatusBlocked
		s.stats.Blocked++
		metrics.ProtectedTransactionsBlocked.Inc()
		s.mu.Unlock()

		s.emitter.Emit(ctx, events.New(events.SandwichAttackDetected, map[string]any{
			"transaction_id": id,
			"attack_type":    string(det.AttackType),
			"risk_score":     det.RiskScore,
			"confidence_bps": det.ConfidenceBps,
		}))
		s.log.WithFields(logrus.Fields{
			"transaction_id": id,
			"risk_score":     det.RiskScore,
		}).Warn("Protected transaction blocked")
		return nil, fmt.Errorf("%w: score %d", ErrSandwichDetected, det.RiskScore)
	}

	assessment := s.risk.Assess(tx.Params, now)
	if s.cfg.MaxPriceImpactBps > 0 && assessment.PriceImpactBps > s.cfg.MaxPriceImpactBps {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d bps (limit %d)",
			ErrPriceImpactTooHigh, assessment.PriceImpactBps, s.cfg.MaxPriceImpactBps)
	}
	if !tx.RiskDeferred &&
		(assessment.RiskLevel == models.RiskHigh || assessment.RiskLevel == models.RiskCritical) {
		tx.RiskDeferred = true
		switch assessment.RiskLevel {
		case models.RiskCritical:
			tx.ExecutionDeadline = tx.ExecutionDeadline.Add(s.cfg.BaseDelay)
			tx.Mechanisms.CommitReveal = true
			tx.Mechanisms.PrivateMempool = true
		default:
			tx.ExecutionDeadline = tx.ExecutionDeadline.Add(s.cfg.BaseDelay / 2)
		}
		deadline := tx.ExecutionDeadline
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{
			"transaction_id": id,
			"risk_level":     assessment.RiskLevel,
			"new_deadline":   deadline,
		}).Warn("Protected transaction deferred")
		return nil, fmt.Errorf("%w: risk %s, ready at %s",
			ErrExecutionDeferred, assessment.RiskLevel, deadline.Format(time.RFC3339))
	}

	// Run the swap outside the lock; the executing mark keeps Cancel away.
	s.executing[id] = true
	params := tx.Params
	s.mu.Unlock()

	record, execErr := s.executor.ExecuteRequest(ctx, params)

	s.mu.Lock()
	delete(s.executing, id)
	if execErr != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("execute %s: %w", id, execErr)
	}
	tx.Status = models.StatusExecuted
	tx.ExecutedAt = s.now()
	tx.Result = record
	s.stats.Executed++
	s.stats.FeesCollected = saturatingAdd(s.stats.FeesCollected, tx.ProtectionFee)
	cp := *tx
	s.mu.Unlock()

	s.emitter.Emit(ctx, events.New(events.ProtectedTransactionExecuted, map[string]any{
		"transaction_id": id,
		"record_id":      record.ID,
		"actual_output":  record.ActualOutput,
		"protection_fee": cp.ProtectionFee,
	}))
	s.log.WithFields(logrus.Fields{
		"transaction_id": id,
		"actual_output":  record.ActualOutput,
	}).Info("Protected transaction executed")
	return &cp, nil
}

// Cancel aborts a pending transaction. Executed, blocked, cancelled, or
// in-flight transactions cannot be cancelled.
func (s *Scheduler) Cancel(ctx context.Context, owner, id string) (*models.ProtectedTransaction, error) {
	s.mu.Lock()
	tx, err := s.lockedGet(owner, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if tx.Status != models.StatusPending || s.executing[id] {
		status := tx.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransactionStatus, status)
	}
	tx.Status = models.StatusCancelled
	tx.CancelledAt = s.now()
	s.stats.Cancelled++
	cp := *tx
	s.mu.Unlock()

	s.emitter.Emit(ctx, events.New(events.ProtectedTransactionCancelled, map[string]any{
		"transaction_id": id,
		"owner":          owner,
	}))
	return &cp, nil
}

// Get returns a snapshot of an owner's transaction.
func (s *Scheduler) Get(owner, id string) (*models.ProtectedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.lockedGet(owner, id)
	if err != nil {
		return nil, err
	}
	cp := *tx
	return &cp, nil
}

// List returns snapshots of all transactions belonging to an owner.
func (s *Scheduler) List(owner string) []models.ProtectedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProtectedTransaction
	for _, tx := range s.txs {
		if tx.Owner == owner {
			out = append(out, *tx)
		}
	}
	return out
}

// lockedGet requires s.mu held.
func (s *Scheduler) lockedGet(owner, id string) (*models.ProtectedTransaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if tx.Owner != owner {
		return nil, ErrUnauthorized
	}
	return tx, nil
}

// ReportAttack files an observed MEV attack for review.
func (s *Scheduler) ReportAttack(ctx context.Context, reporter string, details models.AttackDetails) (*models.AttackReport, error) {
	if reporter == "" {
		return nil, ErrUnauthorized
	}
	if details.AttackType == models.AttackNone || details.VictimTransaction == "" {
		return nil, ErrInvalidReport
	}

	report := &models.AttackReport{
		ID:         uuid.New().String(),
		Reporter:   reporter,
		Details:    details,
		ReportedAt: s.now(),
		Status:     models.ReportPending,
	}
	s.mu.Lock()
	s.reports[report.ID] = report
	cp := *report
	s.mu.Unlock()

	s.emitter.Emit(ctx, events.New(events.AttackReported, map[string]any{
		"report_id":        report.ID,
		"attack_type":      string(details.AttackType),
		"estimated_damage": details.EstimatedDamage,
	}))
	return &cp, nil
}

// GetReport returns a report snapshot.
func (s *Scheduler) GetReport(id string) (*models.AttackReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	cp := *report
	return &cp, nil
}

// ReviewReport records the authority's verdict on a report.
func (s *Scheduler) ReviewReport(caller, id string, verdict models.ReportStatus) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if verdict != models.ReportVerified && verdict != models.ReportRejected {
		return fmt.Errorf("%w: verdict %q", ErrInvalidReport, verdict)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	report.Status = verdict
	return nil
}

// Config returns a snapshot of the program configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Stats returns a snapshot of the program counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// UpdateConfig applies an authority-gated configuration change.
func (s *Scheduler) UpdateConfig(caller string, baseDelay *time.Duration, maxSlippageBps, maxPriceImpactBps *uint16, active *bool) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if baseDelay != nil {
		if *baseDelay < 0 || *baseDelay > maxBaseDelay {
			return fmt.Errorf("%w: base delay %s", ErrInvalidDelay, *baseDelay)
		}
		s.cfg.BaseDelay = *baseDelay
	}
	if maxSlippageBps != nil {
		if *maxSlippageBps > maxSlippageBound {
			return fmt.Errorf("%w: %d bps", ErrSlippageTooHigh, *maxSlippageBps)
		}
		s.cfg.MaxSlippageBps = *maxSlippageBps
	}
	if maxPriceImpactBps != nil {
		if *maxPriceImpactBps > maxPriceImpactBound {
			return fmt.Errorf("%w: %d bps", ErrPriceImpactTooHigh, *maxPriceImpactBps)
		}
		s.cfg.MaxPriceImpactBps = *maxPriceImpactBps
	}
	if active != nil {
		s.cfg.Active = *active
	}
	s.log.WithFields(logrus.Fields{
		"base_delay":           s.cfg.BaseDelay,
		"max_slippage_bps":     s.cfg.MaxSlippageBps,
		"max_price_impact_bps": s.cfg.MaxPriceImpactBps,
		"active":               s.cfg.Active,
	}).Info("Protection config updated")
	return nil
}

func (s *Scheduler) authorize(caller string) error {
	if s.authority == "" || caller != s.authority {
		return ErrUnauthorized
	}
	return nil
}

// mechanismsFor maps a level to its mitigation bundle. Basic covers the
// always-on checks; Advanced adds front-run detection; Maximum adds
// commit-reveal and private mempool routing.
func mechanismsFor(level models.ProtectionLevel) models.ProtectionMechanisms {
	m := models.ProtectionMechanisms{
		TimeDelay:          true,
		SlippageProtection: true,
		PriceImpactCheck:   true,
	}
	if level == models.ProtectionAdvanced || level == models.ProtectionMaximum {
		m.FrontrunDetection = true
	}
	if level == models.ProtectionMaximum {
		m.CommitReveal = true
		m.PrivateMempool = true
	}
	return m
}

// delayFor scales the base delay by level: Advanced waits half again as
// long, Maximum twice as long.
func delayFor(level models.ProtectionLevel, base time.Duration) time.Duration {
	switch level {
	case models.ProtectionAdvanced:
		return base + base/2
	case models.ProtectionMaximum:
		return base + base
	default:
		return base
	}
}

func randomNonce() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}

func saturatingAdd(a, b uint64) uint64 {
	sum, err := safemath.Add(a, b)
	if err != nil {
		return ^uint64(0)
	}
	return sum
}
