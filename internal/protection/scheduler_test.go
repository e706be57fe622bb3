package protection

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dextra-labs/dextra/internal/events"
	"github.com/dextra-labs/dextra/internal/models"
	"github.com/dextra-labs/dextra/internal/risk"
)

const (
	testOwner     = "wallet-1"
	testAuthority = "admin"
)

// fakeClock starts at a second outside the risk engine's suspicious timing
// window (unix%60 == 50) so tests control detection purely through params.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_030, 0).Add(20 * time.Second)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type stubExecutor struct {
	record *models.ExecutionRecord
	err    error
	calls  int
}

func (s *stubExecutor) ExecuteRequest(_ context.Context, _ models.ArbitrageRequest) (*models.ExecutionRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func defaultConfig() Config {
	return Config{
		BaseDelay:         time.Minute,
		MaxSlippageBps:    1000,
		MaxPriceImpactBps: 1000,
		Active:            true,
	}
}

func newTestScheduler(exec RouteExecutor) (*Scheduler, *fakeClock, *events.MemoryEmitter) {
	clock := newFakeClock()
	em := events.NewMemoryEmitter()
	s := NewScheduler(exec, risk.NewEngine(), em, testAuthority, defaultConfig(), quietLogger()).
		WithClock(clock.Now)
	return s, clock, em
}

func benignParams() models.ArbitrageRequest {
	return models.ArbitrageRequest{
		InputToken:      "wsol",
		OutputToken:     "usdc",
		InputAmount:     1_000_000,
		MinOutputAmount: 1,
		MaxSlippageBps:  50,
	}
}

func TestCreateLevels(t *testing.T) {
	tests := []struct {
		level       models.ProtectionLevel
		wantDelay   time.Duration
		wantFee     uint64
		wantReveal  bool
		wantFrontra bool
	}{
		{models.ProtectionBasic, time.Minute, 1_000, false, false},
		{models.ProtectionAdvanced, 90 * time.Second, 2_500, false, true},
		{models.ProtectionMaximum, 2 * time.Minute, 5_000, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			s, clock, em := newTestScheduler(&stubExecutor{})
			tx, err := s.Create(context.Background(), testOwner, benignParams(), tt.level)
			require.NoError(t, err)

			assert.Equal(t, models.StatusPending, tx.Status)
			assert.Equal(t, clock.Now().Add(tt.wantDelay), tx.ExecutionDeadline)
			assert.Equal(t, tt.wantFee, tx.ProtectionFee)
			// Quoted, not yet collected.
			assert.Zero(t, s.Stats().FeesCollected)
			assert.True(t, tx.Mechanisms.TimeDelay)
			assert.True(t, tx.Mechanisms.SlippageProtection)
			assert.Equal(t, tt.wantFrontra, tx.Mechanisms.FrontrunDetection)
			assert.Equal(t, tt.wantReveal, tx.Mechanisms.CommitReveal)
			assert.Equal(t, tt.wantReveal, tx.Mechanisms.PrivateMempool)
			assert.NotZero(t, tx.Nonce)
			assert.Len(t, em.ByType(events.ProtectedTransactionCreated), 1)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	s, _, _ := newTestScheduler(&stubExecutor{})

	_, err := s.Create(context.Background(), "", benignParams(), models.ProtectionBasic)
	assert.ErrorIs(t, err, ErrUnauthorized)

	p := benignParams()
	p.InputAmount = 0
	_, err = s.Create(context.Background(), testOwner, p, models.ProtectionBasic)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	p = benignParams()
	p.MinOutputAmount = 0
	_, err = s.Create(context.Background(), testOwner, p, models.ProtectionBasic)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	p = benignParams()
	p.MaxSlippageBps = 1001
	_, err = s.Create(context.Background(), testOwner, p, models.ProtectionBasic)
	assert.ErrorIs(t, err, ErrSlippageTooHigh)

	_, err = s.Create(context.Background(), testOwner, benignParams(), "platinum")
	assert.ErrorIs(t, err, ErrInvalidLevel)

	inactive := false
	require.NoError(t, s.UpdateConfig(testAuthority, nil, nil, nil, &inactive))
	_, err = s.Create(context.Background(), testOwner, benignParams(), models.ProtectionBasic)
	assert.ErrorIs(t, err, ErrProtectionInactive)
}

func TestExecuteLifecycle(t *testing.T) {
	exec := &stubExecutor{record: &models.ExecutionRecord{
		ID:           "rec-1",
		Status:       models.ExecutionCompleted,
		ActualOutput: 995_000,
	}}
	s, clock, em := newTestScheduler(exec)

	tx, err := s.Create(context.Background(), testOwner, benignParams(), models.ProtectionBasic)
	require.NoError(t, err)

	// Delay not yet elapsed.
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrExecutionTooEarly)
	assert.Zero(t, exec.calls)

	clock.Advance(time.Minute)
	done, err := s.Execute(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, done.Status)
	assert.Equal(t, clock.Now(), done.ExecutedAt)
	require.NotNil(t, done.Result)
	assert.Equal(t, uint64(995_000), done.Result.ActualOutput)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, uint64(1), s.Stats().Executed)
	assert.Equal(t, uint64(1_000), s.Stats().FeesCollected)
	assert.Len(t, em.ByType(events.ProtectedTransactionExecuted), 1)

	// Executed is terminal.
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransactionStatus)
}

func TestCancelAfterExecutionFails(t *testing.T) {
	exec := &stubExecutor{record: &models.ExecutionRecord{ID: "rec-1", Status: models.ExecutionCompleted}}
	s, clock, _ := newTestScheduler(exec)

	tx, err := s.Create(context.Background(), testOwner, benignParams(), models.ProtectionBasic)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)

	_, err = s.Cancel(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransactionStatus)
}

func TestCancelPending(t *testing.T) {
	s, clock, em := newTestScheduler(&stubExecutor{})

	tx, err := s.Create(context.Background(), testOwner, benignParams(), models.ProtectionBasic)
	require.NoError(t, err)

	cancelled, err := s.Cancel(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, clock.Now(), cancelled.CancelledAt)
	assert.Equal(t, uint64(1), s.Stats().Cancelled)
	// A transaction that never executed collects no fee.
	assert.Zero(t, s.Stats().FeesCollected)
	assert.Len(t, em.ByType(events.ProtectedTransactionCancelled), 1)

	// Cancelled is terminal for both paths.
	_, err = s.Cancel(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransactionStatus)
	clock.Advance(time.Hour)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransactionStatus)
}

func TestExecuteBlocksSandwichPattern(t *testing.T) {
	exec := &stubExecutor{}
	s, clock, em := newTestScheduler(exec)

	// Large size with loose slippage trips the detector.
	params := benignParams()
	params.InputAmount = 600_000_000
	params.MaxSlippageBps = 600
	tx, err := s.Create(context.Background(), testOwner, params, models.ProtectionMaximum)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrSandwichDetected)
	assert.Zero(t, exec.calls)

	got, err := s.Get(testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlocked, got.Status)
	assert.Equal(t, uint64(1), s.Stats().Blocked)
	assert.Zero(t, s.Stats().FeesCollected)
	assert.Len(t, em.ByType(events.SandwichAttackDetected), 1)

	// Blocked is terminal.
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransactionStatus)
}

func TestExecuteDefersHighRiskOnce(t *testing.T) {
	exec := &stubExecutor{record: &models.ExecutionRecord{ID: "rec-1", Status: models.ExecutionCompleted}}
	s, clock, _ := newTestScheduler(exec)

	// Large but tight-slippage: high risk without a sandwich shape.
	params := benignParams()
	params.InputAmount = 2_000_000_000
	params.MaxSlippageBps = 50
	tx, err := s.Create(context.Background(), testOwner, params, models.ProtectionBasic)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrExecutionDeferred)
	assert.Zero(t, exec.calls)

	// Deadline moved out by half the base delay; still too early now.
	got, err := s.Get(testOwner, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.RiskDeferred)
	assert.Equal(t, clock.Now().Add(30*time.Second), got.ExecutionDeadline)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrExecutionTooEarly)

	// The deferral applies at most once.
	clock.Advance(30 * time.Second)
	done, err := s.Execute(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, done.Status)
	assert.Equal(t, 1, exec.calls)
}

func TestExecuteDefersCriticalWithHardening(t *testing.T) {
	exec := &stubExecutor{record: &models.ExecutionRecord{ID: "rec-1", Status: models.ExecutionCompleted}}
	s, clock, _ := newTestScheduler(exec)

	// Size, slippage and impact terms together without a sandwich shape.
	params := benignParams()
	params.InputAmount = 2_000_000_000
	params.MaxSlippageBps = 250
	tx, err := s.Create(context.Background(), testOwner, params, models.ProtectionBasic)
	require.NoError(t, err)
	assert.False(t, tx.Mechanisms.CommitReveal)

	clock.Advance(time.Minute)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrExecutionDeferred)

	got, err := s.Get(testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), got.ExecutionDeadline)
	assert.True(t, got.Mechanisms.CommitReveal)
	assert.True(t, got.Mechanisms.PrivateMempool)

	clock.Advance(time.Minute)
	done, err := s.Execute(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, done.Status)
}

func TestExecuteFailureLeavesPending(t *testing.T) {
	exec := &stubExecutor{err: errors.New("venue offline")}
	s, clock, _ := newTestScheduler(exec)

	tx, err := s.Create(context.Background(), testOwner, benignParams(), models.ProtectionBasic)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	require.Error(t, err)

	got, getErr := s.Get(testOwner, tx.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusPending, got.Status)

	// Retry succeeds once the venue recovers.
	exec.err = nil
	exec.record = &models.ExecutionRecord{ID: "rec-2", Status: models.ExecutionCompleted}
	done, err := s.Execute(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, done.Status)
}

func TestOwnerScoping(t *testing.T) {
	s, clock, _ := newTestScheduler(&stubExecutor{})

	tx, err := s.Create(context.Background(), testOwner, benignParams(), models.ProtectionBasic)
	require.NoError(t, err)

	_, err = s.Get("other-wallet", tx.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Cancel(context.Background(), "other-wallet", tx.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	clock.Advance(time.Minute)
	_, err = s.Execute(context.Background(), "other-wallet", tx.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.Get(testOwner, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, s.List(testOwner), 1)
	assert.Empty(t, s.List("other-wallet"))
}

func TestAttackReports(t *testing.T) {
	s, _, em := newTestScheduler(&stubExecutor{})

	details := models.AttackDetails{
		AttackType:        models.AttackSandwich,
		VictimTransaction: "sig-123",
		EstimatedDamage:   5_000_000,
		Description:       "wrapped on both sides in the same slot",
	}
	report, err := s.ReportAttack(context.Background(), "observer-1", details)
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, report.Status)
	assert.Len(t, em.ByType(events.AttackReported), 1)

	got, err := s.GetReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, details, got.Details)

	assert.ErrorIs(t, s.ReviewReport("intruder", report.ID, models.ReportVerified), ErrUnauthorized)
	assert.ErrorIs(t, s.ReviewReport(testAuthority, report.ID, models.ReportPending), ErrInvalidReport)
	assert.ErrorIs(t, s.ReviewReport(testAuthority, "missing", models.ReportVerified), ErrReportNotFound)

	require.NoError(t, s.ReviewReport(testAuthority, report.ID, models.ReportVerified))
	got, err = s.GetReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportVerified, got.Status)

	_, err = s.ReportAttack(context.Background(), "", details)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.ReportAttack(context.Background(), "observer-1", models.AttackDetails{})
	assert.ErrorIs(t, err, ErrInvalidReport)
	_, err = s.GetReport("missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestUpdateConfig(t *testing.T) {
	s, _, _ := newTestScheduler(&stubExecutor{})

	delay := 2 * time.Minute
	slippage := uint16(500)
	impact := uint16(2000)
	require.NoError(t, s.UpdateConfig(testAuthority, &delay, &slippage, &impact, nil))
	cfg := s.Config()
	assert.Equal(t, 2*time.Minute, cfg.BaseDelay)
	assert.Equal(t, uint16(500), cfg.MaxSlippageBps)
	assert.Equal(t, uint16(2000), cfg.MaxPriceImpactBps)

	slippage = 1001
	assert.ErrorIs(t, s.UpdateConfig(testAuthority, nil, &slippage, nil, nil), ErrSlippageTooHigh)

	impact = 5001
	assert.ErrorIs(t, s.UpdateConfig(testAuthority, nil, nil, &impact, nil), ErrPriceImpactTooHigh)

	delay = 6 * time.Minute
	assert.ErrorIs(t, s.UpdateConfig(testAuthority, &delay, nil, nil, nil), ErrInvalidDelay)

	assert.ErrorIs(t, s.UpdateConfig("intruder", nil, nil, nil, nil), ErrUnauthorized)
}

func TestExecuteRejectsExcessivePriceImpact(t *testing.T) {
	exec := &stubExecutor{record: &models.ExecutionRecord{ID: "rec-1", Status: models.ExecutionCompleted}}
	s, clock, _ := newTestScheduler(exec)

	ceiling := uint16(400)
	require.NoError(t, s.UpdateConfig(testAuthority, nil, nil, &ceiling, nil))

	// Large size produces an impact estimate above the configured ceiling.
	params := benignParams()
	params.InputAmount = 2_000_000_000
	tx, err := s.Create(context.Background(), testOwner, params, models.ProtectionBasic)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Execute(context.Background(), testOwner, tx.ID)
	assert.ErrorIs(t, err, ErrPriceImpactTooHigh)
	assert.Zero(t, exec.calls)

	// The transaction stays pending and can be cancelled.
	got, err := s.Get(testOwner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	_, err = s.Cancel(context.Background(), testOwner, tx.ID)
	require.NoError(t, err)
}
