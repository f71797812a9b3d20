package xmsg

import (
	"time"
)

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Dispatched     uint64
	Routed         uint64
	Unrouted       uint64
	Failed         uint64
	Rejected       uint64
	Pending        int
	EventsDropped  uint64
	AvgRouteTimeMs float64
}

// HealthStatus indicates bus health for liveness and readiness checks.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
