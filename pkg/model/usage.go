package model

// Usage is normalized token accounting for one assistant turn. Per spec.md
// §3, TotalTokens equals the sum of the four components for providers that
// do not report a total directly.
type Usage struct {
	Input      int  `json:"input"`
	Output     int  `json:"output"`
	CacheRead  int  `json:"cacheRead"`
	CacheWrite int  `json:"cacheWrite"`
	TotalTokens int `json:"totalTokens"`
	Cost       Cost `json:"cost"`
}

// Cost is the per-million-token-derived dollar cost of a Usage record.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
	Total      float64 `json:"total"`
}

// Add returns the element-wise sum of u and o, used to accumulate usage
// across turns in a Conversation.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Input:       u.Input + o.Input,
		Output:      u.Output + o.Output,
		CacheRead:   u.CacheRead + o.CacheRead,
		CacheWrite:  u.CacheWrite + o.CacheWrite,
		TotalTokens: u.TotalTokens + o.TotalTokens,
		Cost: Cost{
			Input:      u.Cost.Input + o.Cost.Input,
			Output:     u.Cost.Output + o.Cost.Output,
			CacheRead:  u.Cost.CacheRead + o.Cost.CacheRead,
			CacheWrite: u.Cost.CacheWrite + o.Cost.CacheWrite,
			Total:      u.Cost.Total + o.Cost.Total,
		},
	}
}

// WithTotal fills TotalTokens as the sum of components when the provider did
// not report one directly (TotalTokens is 0). Cost is left unchanged; use
// DeriveCost to compute it.
func (u Usage) WithTotal() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.Input + u.Output + u.CacheRead + u.CacheWrite
	}
	return u
}

// DeriveCost computes u.Cost from a model's per-million-token rate table and
// returns the updated Usage.
func (u Usage) DeriveCost(rate CostRate) Usage {
	u.Cost = Cost{
		Input:      float64(u.Input) * rate.InputPerM / 1e6,
		Output:     float64(u.Output) * rate.OutputPerM / 1e6,
		CacheRead:  float64(u.CacheRead) * rate.CacheReadPerM / 1e6,
		CacheWrite: float64(u.CacheWrite) * rate.CacheWritePerM / 1e6,
	}
	u.Cost.Total = u.Cost.Input + u.Cost.Output + u.Cost.CacheRead + u.Cost.CacheWrite
	return u
}

// CostRate is a model's dollar-per-million-token pricing table.
type CostRate struct {
	InputPerM      float64
	OutputPerM     float64
	CacheReadPerM  float64
	CacheWritePerM float64
}
