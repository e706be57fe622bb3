package models

import "time"

// ExecutionStatus is the lifecycle of one route execution.
type ExecutionStatus string

const (
	ExecutionFinding   ExecutionStatus = "finding"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionRecord is the terminal outcome of a route execution. It is created
// at submission and never mutated once Completed or Failed.
type ExecutionRecord struct {
	ID                string          `json:"id" db:"id"`
	Status            ExecutionStatus `json:"status" db:"status"`
	Route             Route           `json:"route"`
	StartTime         time.Time       `json:"start_time" db:"start_time"`
	EndTime           time.Time       `json:"end_time" db:"end_time"`
	ActualOutput      uint64          `json:"actual_output" db:"actual_output"`
	TotalFees         uint64          `json:"total_fees" db:"total_fees"`
	ActualSlippageBps uint16          `json:"actual_slippage_bps" db:"actual_slippage_bps"`
}

// FlashLedger accounts for one flash-funded arbitrage. The structure commits
// as a whole: repay amount is validated against the realized balance before
// any profit figure is considered valid.
type FlashLedger struct {
	ID           string    `json:"id" db:"id"`
	Borrowed     uint64    `json:"borrowed" db:"borrowed"`
	FlashFee     uint64    `json:"flash_fee" db:"flash_fee"`
	RepayAmount  uint64    `json:"repay_amount" db:"repay_amount"`
	FinalBalance uint64    `json:"final_balance" db:"final_balance"`
	GrossProfit  uint64    `json:"gross_profit" db:"gross_profit"`
	ProgramFee   uint64    `json:"program_fee" db:"program_fee"`
	NetProfit    uint64    `json:"net_profit" db:"net_profit"`
	RoutesCount  int       `json:"routes_count" db:"routes_count"`
	TotalFees    uint64    `json:"total_fees" db:"total_fees"`
	StartTime    time.Time `json:"start_time" db:"start_time"`
	EndTime      time.Time `json:"end_time" db:"end_time"`
}
