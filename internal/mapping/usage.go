package mapping

import (
	"context"
	"sync"
)

// Usage totals the provider requests behind a suggestion.
type Usage struct {
	Calls            int     `json:"calls"`
	CachedCalls      int     `json:"cachedCalls"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.Calls += o.Calls
	u.CachedCalls += o.CachedCalls
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	u.EstimatedCostUSD += o.EstimatedCostUSD
}

// UsageMeter collects what providers report through RecordUsage.
type UsageMeter struct {
	mu    sync.Mutex
	total Usage
}

// Total returns everything recorded so far.
func (m *UsageMeter) Total() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

type usageKey struct{}

// TrackUsage returns a context whose provider calls are recorded on the
// returned meter.
func TrackUsage(ctx context.Context) (context.Context, *UsageMeter) {
	m := &UsageMeter{}
	return context.WithValue(ctx, usageKey{}, m), m
}

// RecordUsage adds u to the meter on ctx. Without one it does nothing.
// Suggester implementations call it once per request they serve.
func RecordUsage(ctx context.Context, u Usage) {
	m, ok := ctx.Value(usageKey{}).(*UsageMeter)
	if !ok {
		return
	}
	m.mu.Lock()
	m.total.Add(u)
	m.mu.Unlock()
}
