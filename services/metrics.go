package services

import (
	"math"
	"sync"
	"time"

	"support-chatbot-backend/models"
)

// MetricsSnapshot is the point-in-time view served on /metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64                        `json:"uptime_seconds"`
	TotalRequests  int64                          `json:"total_requests"`
	InFlight       int64                          `json:"in_flight"`
	Handoffs       int64                          `json:"handoffs"`
	Degraded       int64                          `json:"degraded"`
	AvgResponseMs  float64                        `json:"avg_response_ms"`
	MinResponseMs  float64                        `json:"min_response_ms"`
	MaxResponseMs  float64                        `json:"max_response_ms"`
	IntentCounts   map[models.MessageIntent]int64 `json:"intent_counts"`
	ActiveSessions int                            `json:"active_sessions"`
}

// MetricsCollector aggregates request statistics in memory.
// All methods are thread-safe.
type MetricsCollector struct {
	mu        sync.RWMutex
	startTime time.Time

	total     int64
	inFlight  int64
	handoffs  int64
	degraded  int64
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	intents   map[models.MessageIntent]int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime: time.Now(),
		minTime:   time.Duration(math.MaxInt64),
		intents:   make(map[models.MessageIntent]int64),
	}
}

func (c *MetricsCollector) RequestStarted() {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
}

// RequestFinished records one completed request. resp is nil when the
// request was abandoned.
func (c *MetricsCollector) RequestFinished(resp *models.ChatResponse, degraded bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight--
	if resp == nil {
		return
	}

	c.total++
	c.totalTime += duration
	if duration < c.minTime {
		c.minTime = duration
	}
	if duration > c.maxTime {
		c.maxTime = duration
	}
	if resp.RequiresHuman {
		c.handoffs++
	}
	if degraded {
		c.degraded++
	}
	if resp.Intent != "" {
		c.intents[resp.Intent]++
	}
}

func (c *MetricsCollector) Snapshot() MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := MetricsSnapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		TotalRequests: c.total,
		InFlight:      c.inFlight,
		Handoffs:      c.handoffs,
		Degraded:      c.degraded,
		IntentCounts:  make(map[models.MessageIntent]int64, len(c.intents)),
	}
	for k, v := range c.intents {
		snap.IntentCounts[k] = v
	}
	if c.total > 0 {
		snap.AvgResponseMs = durationMs(c.totalTime) / float64(c.total)
		snap.MinResponseMs = durationMs(c.minTime)
		snap.MaxResponseMs = durationMs(c.maxTime)
	}
	return snap
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
