package models

import "time"

// ProtectionLevel is the policy bundle applied to a protected transaction.
type ProtectionLevel string

const (
	ProtectionBasic    ProtectionLevel = "basic"
	ProtectionAdvanced ProtectionLevel = "advanced"
	ProtectionMaximum  ProtectionLevel = "maximum"
)

// Valid reports whether the level is one of the known bundles.
func (l ProtectionLevel) Valid() bool {
	switch l {
	case ProtectionBasic, ProtectionAdvanced, ProtectionMaximum:
		return true
	}
	return false
}

// ProtectionMechanisms are the individual mitigations enabled for a
// transaction.
type ProtectionMechanisms struct {
	TimeDelay          bool `json:"time_delay"`
	SlippageProtection bool `json:"slippage_protection"`
	PriceImpactCheck   bool `json:"price_impact_check"`
	FrontrunDetection  bool `json:"frontrun_detection"`
	CommitReveal       bool `json:"commit_reveal"`
	PrivateMempool     bool `json:"private_mempool"`
}

// TransactionStatus is the protected-transaction state machine. Transitions
// out of Pending are one-way; no state re-enters Pending.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusExecuted  TransactionStatus = "executed"
	StatusCancelled TransactionStatus = "cancelled"
	StatusBlocked   TransactionStatus = "blocked"
)

// ProtectedTransaction wraps a swap intent with a protection level, a delayed
// execution deadline, and risk gating.
type ProtectedTransaction struct {
	ID                string               `json:"id" db:"id"`
	Owner             string               `json:"owner" db:"owner"`
	Params            ArbitrageRequest     `json:"params"`
	Level             ProtectionLevel      `json:"protection_level" db:"protection_level"`
	Mechanisms        ProtectionMechanisms `json:"mechanisms"`
	Status            TransactionStatus    `json:"status" db:"status"`
	Nonce             uint64               `json:"nonce" db:"nonce"`
	CreatedAt         time.Time            `json:"created_at" db:"created_at"`
	ExecutionDeadline time.Time            `json:"execution_deadline" db:"execution_deadline"`
	ExecutedAt        time.Time            `json:"executed_at,omitempty" db:"executed_at"`
	CancelledAt       time.Time            `json:"cancelled_at,omitempty" db:"cancelled_at"`
	// RiskDeferred marks that a high-risk deadline extension has already been
	// applied, so the next eligible Execute call proceeds.
	RiskDeferred  bool             `json:"risk_deferred" db:"risk_deferred"`
	ProtectionFee uint64           `json:"protection_fee" db:"protection_fee"`
	Result        *ExecutionRecord `json:"result,omitempty"`
}

// ReportStatus is the review state of an attack report.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportVerified ReportStatus = "verified"
	ReportRejected ReportStatus = "rejected"
)

// AttackDetails describes a reported MEV attack.
type AttackDetails struct {
	AttackType        AttackType `json:"attack_type"`
	VictimTransaction string     `json:"victim_transaction"`
	AttackerAddress   string     `json:"attacker_address,omitempty"`
	EstimatedDamage   uint64     `json:"estimated_damage"`
	Description       string     `json:"description"`
}

// AttackReport is an append-only record of a reported attack.
type AttackReport struct {
	ID         string        `json:"id" db:"id"`
	Reporter   string        `json:"reporter" db:"reporter"`
	Details    AttackDetails `json:"details"`
	ReportedAt time.Time     `json:"reported_at" db:"reported_at"`
	Status     ReportStatus  `json:"status" db:"status"`
}
