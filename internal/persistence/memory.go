package persistence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryAudit is an in-process AuditRepo used when the database is disabled.
// It keeps at most capacity entries of each kind, dropping the oldest.
type MemoryAudit struct {
	mu       sync.RWMutex
	capacity int
	requests []APILog
	analyses []AnalysisLog
	nextID   int64
	now      func() time.Time
}

// NewMemoryAudit creates a bounded in-memory audit log.
func NewMemoryAudit(capacity int) *MemoryAudit {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryAudit{capacity: capacity, now: time.Now}
}

func (m *MemoryAudit) RecordAPIRequest(ctx context.Context, entry APILog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.requests = append(m.requests, entry)
	if over := len(m.requests) - m.capacity; over > 0 {
		m.requests = append([]APILog(nil), m.requests[over:]...)
	}
	return nil
}

func (m *MemoryAudit) RecordAnalysis(ctx context.Context, entry AnalysisLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	entry.Stocks = append([]string(nil), entry.Stocks...)
	m.analyses = append(m.analyses, entry)
	if over := len(m.analyses) - m.capacity; over > 0 {
		m.analyses = append([]AnalysisLog(nil), m.analyses[over:]...)
	}
	return nil
}

func (m *MemoryAudit) APIStats(ctx context.Context, since time.Time) (APIStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := APIStats{EndpointStats: map[string]EndpointStats{}}
	var total float64
	sums := map[string]float64{}

	for _, r := range m.requests {
		if r.CreatedAt.Before(since) {
			continue
		}
		stats.TotalRequests++
		total += r.ResponseTimeMS
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			stats.SuccessfulRequests++
		}

		es := stats.EndpointStats[r.Endpoint]
		es.Count++
		sums[r.Endpoint] += r.ResponseTimeMS
		if r.StatusCode >= 400 {
			stats.FailedRequests++
			es.ErrorCount++
		}
		stats.EndpointStats[r.Endpoint] = es
	}

	for ep, es := range stats.EndpointStats {
		es.AvgResponseTimeMS = sums[ep] / float64(es.Count)
		stats.EndpointStats[ep] = es
	}
	if stats.TotalRequests > 0 {
		stats.AvgResponseTimeMS = total / float64(stats.TotalRequests)
	}
	stats.Finalize()
	return stats, nil
}

func (m *MemoryAudit) PopularTickers(ctx context.Context, since time.Time, limit int) ([]TickerCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[string]int64{}
	for _, a := range m.analyses {
		if a.CreatedAt.Before(since) {
			continue
		}
		for _, s := range a.Stocks {
			counts[s]++
		}
	}

	out := make([]TickerCount, 0, len(counts))
	for s, c := range counts {
		out = append(out, TickerCount{Stock: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Stock < out[j].Stock
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAudit) RecentAnalyses(ctx context.Context, limit int) ([]AnalysisLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.analyses)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AnalysisLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.analyses[i])
	}
	return out, nil
}
