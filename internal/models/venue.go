package models

import "time"

// VenueInfo describes a tradable venue at registration time.
type VenueInfo struct {
	ID              string `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	ProgramID       string `json:"program_id,omitempty" db:"program_id"`
	FeeRateBps      uint16 `json:"fee_rate_bps" db:"fee_rate_bps"`
	BaseSlippageBps uint16 `json:"base_slippage_bps" db:"base_slippage_bps"`
	IsActive        bool   `json:"is_active" db:"is_active"`
}

// Venue is a registered venue together with its rolling performance stats.
// Volume and swap counts accumulate; success rate and average slippage are
// latest-wins snapshots supplied by the metrics updater.
type Venue struct {
	VenueInfo
	TotalVolume    uint64    `json:"total_volume" db:"total_volume"`
	TotalSwaps     uint64    `json:"total_swaps" db:"total_swaps"`
	SuccessRateBps uint16    `json:"success_rate_bps" db:"success_rate_bps"`
	AvgSlippageBps uint16    `json:"avg_slippage_bps" db:"avg_slippage_bps"`
	LastUpdated    time.Time `json:"last_updated" db:"last_updated"`
}
