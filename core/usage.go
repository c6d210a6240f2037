package core

// Usage accumulates token telemetry reported by the model provider. It never
// influences control flow.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CachedTokens        int64 `json:"cached_tokens"` // cache reads
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + o.InputTokens,
		OutputTokens:        u.OutputTokens + o.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens + o.CacheCreationTokens,
		CachedTokens:        u.CachedTokens + o.CachedTokens,
	}
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// Pricing holds USD prices per million tokens.
type Pricing struct {
	InputPerMillion         float64
	OutputPerMillion        float64
	CacheCreationPerMillion float64
	CacheReadPerMillion     float64
}

// DefaultPricing mirrors Claude Sonnet list prices.
var DefaultPricing = Pricing{
	InputPerMillion:         3,
	OutputPerMillion:        15,
	CacheCreationPerMillion: 3.75,
	CacheReadPerMillion:     0.30,
}

// Cost estimates the USD cost of u.
func (p Pricing) Cost(u Usage) float64 {
	const million = 1_000_000
	return float64(u.InputTokens)*p.InputPerMillion/million +
		float64(u.OutputTokens)*p.OutputPerMillion/million +
		float64(u.CacheCreationTokens)*p.CacheCreationPerMillion/million +
		float64(u.CachedTokens)*p.CacheReadPerMillion/million
}
