// Package risk scores the MEV exposure of pending requests and detects
// sandwich/front-run ordering patterns. Scoring is pure and deterministic
// given identical inputs and clock value.
package risk

import (
	"time"

	"github.com/dextra-labs/dextra/internal/metrics"
	"github.com/dextra-labs/dextra/internal/models"
)

// Amount thresholds in token base units (6 decimals): 100, 500 and 1000
// whole tokens.
const (
	mediumSizeThreshold = 100_000_000
	largeSizeThreshold  = 1_000_000_000
	sandwichSizeFloor   = 500_000_000
)

// detectionThreshold is the pattern score above which an attack is flagged.
const detectionThreshold = 600

// Engine assesses requests. It holds no mutable state; a single instance is
// safe for concurrent use.
type Engine struct{}

// NewEngine creates a risk engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Assess scores the MEV exposure of a request against the supplied clock
// value. Signals are independent and additive; the score is monotonic
// non-decreasing in input amount and slippage tolerance.
func (e *Engine) Assess(params models.ArbitrageRequest, now time.Time) models.RiskAssessment {
	var score uint16

	// Larger transactions are worth more to an attacker.
	switch {
	case params.InputAmount > largeSizeThreshold:
		score += 300
	case params.InputAmount > mediumSizeThreshold:
		score += 150
	}

	// Wide slippage tolerance leaves room for a sandwich to extract value.
	switch {
	case params.MaxSlippageBps > 500:
		score += 400
	case params.MaxSlippageBps > 100:
		score += 200
	}

	impact := estimatePriceImpact(params.InputAmount)
	switch {
	case impact > 300:
		score += 500
	case impact > 100:
		score += 250
	}

	level := levelFor(score)
	metrics.RiskAssessments.WithLabelValues(string(level)).Inc()

	return models.RiskAssessment{
		RiskScore:      score,
		RiskLevel:      level,
		PriceImpactBps: impact,
		LiquidityRisk:  liquidityRisk(params.InputAmount),
		TimingRisk:     timingRisk(now),
	}
}

// DetectSandwich runs the heuristic ordering-attack pattern check against
// the supplied clock value.
func (e *Engine) DetectSandwich(params models.ArbitrageRequest, now time.Time) models.SandwichDetection {
	var score uint16
	attackType := models.AttackNone

	// Large size combined with loose slippage is the classic sandwich shape.
	if params.InputAmount > sandwichSizeFloor && params.MaxSlippageBps > 300 {
		score += 400
		attackType = models.AttackSandwich
	}

	// Placeholder timing-window signal kept for reproducibility; a production
	// engine would analyze recent and concurrent transaction activity here.
	if now.Unix()%60 < 5 {
		score += 200
	}

	if params.MaxSlippageBps > 500 {
		score += 300
		if attackType == models.AttackNone {
			attackType = models.AttackFrontrun
		}
	}

	detected := score > detectionThreshold
	if detected {
		metrics.SandwichDetections.Inc()
	}

	return models.SandwichDetection{
		IsDetected:    detected,
		RiskScore:     score,
		AttackType:    attackType,
		ConfidenceBps: confidence(score),
	}
}

func levelFor(score uint16) models.RiskLevel {
	switch {
	case score <= 200:
		return models.RiskLow
	case score <= 500:
		return models.RiskMedium
	case score <= 800:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

// estimatePriceImpact is a coarse size-based stand-in for pool liquidity
// queries.
func estimatePriceImpact(amount uint64) uint16 {
	switch {
	case amount > largeSizeThreshold:
		return 500
	case amount > mediumSizeThreshold:
		return 200
	default:
		return 50
	}
}

func liquidityRisk(amount uint64) uint16 {
	switch {
	case amount > largeSizeThreshold:
		return 800
	case amount > mediumSizeThreshold:
		return 400
	default:
		return 100
	}
}

func timingRisk(now time.Time) uint16 {
	return uint16(now.Unix() % 1000)
}

func confidence(score uint16) uint16 {
	switch {
	case score <= 300:
		return 2000
	case score <= 600:
		return 5000
	case score <= 900:
		return 8000
	default:
		return 9500
	}
}
