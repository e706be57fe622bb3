package models

// RouteHop is one venue-level swap within a route. Hops are immutable once
// produced by the optimizer.
type RouteHop struct {
	VenueID        string `json:"venue_id"`
	InputToken     string `json:"input_token"`
	OutputToken    string `json:"output_token"`
	InputAmount    uint64 `json:"input_amount"`
	ExpectedOutput uint64 `json:"expected_output"`
	Fees           uint64 `json:"fees"`
	PriceImpactBps uint16 `json:"price_impact_bps"`
	PoolAddress    string `json:"pool_address,omitempty"`
}

// Route is an ordered, non-empty hop sequence. Each hop's output token feeds
// the next hop's input token, and chained input amounts equal the previous
// hop's expected output unless re-simulated at execution time.
type Route struct {
	Hops                []RouteHop `json:"hops"`
	ExpectedOutput      uint64     `json:"expected_output"`
	TotalFees           uint64     `json:"total_fees"`
	TotalPriceImpactBps uint16     `json:"total_price_impact_bps"`
}

// InputToken returns the route's entry token, or "" for an empty route.
func (r Route) InputToken() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[0].InputToken
}

// OutputToken returns the route's exit token, or "" for an empty route.
func (r Route) OutputToken() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[len(r.Hops)-1].OutputToken
}

// ArbitrageRequest is the client's swap intent handed to the optimizer.
type ArbitrageRequest struct {
	InputToken      string   `json:"input_token"`
	OutputToken     string   `json:"output_token"`
	InputAmount     uint64   `json:"input_amount"`
	MinOutputAmount uint64   `json:"min_output_amount"`
	MaxSlippageBps  uint16   `json:"max_slippage_bps"`
	MaxHops         uint8    `json:"max_hops"`
	PreferredVenues []string `json:"preferred_venues,omitempty"`
}
