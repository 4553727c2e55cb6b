// Package usage accounts for engine resource consumption.
// Each session owns one Stats value; a new session always starts from zero.
package usage

// Delta carries the usage counters reported by a single engine result event.
// Fields the engine did not report stay zero.
type Delta struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheReadTokens     int     `json:"cache_read_input_tokens"`
	CacheCreationTokens int     `json:"cache_creation_input_tokens"`
	CostUSD             float64 `json:"cost_usd"`
}

// Stats accumulates token usage for one session. Counters only grow; the only
// reset is constructing a fresh Stats for the next session.
type Stats struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
}

// Update adds a delta to the counters. Negative fields are treated as zero so
// a malformed engine report can never make the counters go backwards.
func (s *Stats) Update(d Delta) {
	s.InputTokens += max(d.InputTokens, 0)
	s.OutputTokens += max(d.OutputTokens, 0)
	s.CacheReadTokens += max(d.CacheReadTokens, 0)
	s.CacheCreationTokens += max(d.CacheCreationTokens, 0)
	if d.CostUSD > 0 {
		s.TotalCostUSD += d.CostUSD
	}
}

// TotalTokens returns input plus output tokens.
func (s Stats) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

// Ratio returns input tokens over the context window capacity. The result is
// reported as-is and can exceed 1.0.
func (s Stats) Ratio(capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(s.InputTokens) / float64(capacity)
}
