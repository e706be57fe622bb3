package models

// RiskLevel buckets a numeric risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the MEV exposure of a pending request. Assessments are
// recomputed fresh on every call and attached to outcomes for audit only.
type RiskAssessment struct {
	RiskScore      uint16    `json:"risk_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	PriceImpactBps uint16    `json:"price_impact_bps"`
	LiquidityRisk  uint16    `json:"liquidity_risk"`
	TimingRisk     uint16    `json:"timing_risk"`
}

// AttackType classifies a detected or reported ordering attack.
type AttackType string

const (
	AttackNone       AttackType = "none"
	AttackSandwich   AttackType = "sandwich"
	AttackFrontrun   AttackType = "frontrun"
	AttackBackrun    AttackType = "backrun"
	AttackJustInTime AttackType = "just_in_time"
)

// SandwichDetection is the result of the sandwich/front-run pattern check.
// Confidence is expressed in basis points of certainty.
type SandwichDetection struct {
	IsDetected    bool       `json:"is_detected"`
	RiskScore     uint16     `json:"risk_score"`
	AttackType    AttackType `json:"attack_type"`
	ConfidenceBps uint16     `json:"confidence_bps"`
}
