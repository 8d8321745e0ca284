package staffdb

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus represents the database health status
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	PoolStats PoolStats     `json:"pool_stats"`
}

// PoolStats contains connection statistics. With the single-handle model
// OpenConnections is at most one.
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Health performs a health check with detailed status. A disconnected
// manager reports Connected=false without dialing.
func (db *DB) Health(ctx context.Context) HealthStatus {
	db.mu.Lock()
	handle := db.bun
	db.mu.Unlock()

	if handle == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := handle.PingContext(ctx)
	latency := time.Since(start)

	status := HealthStatus{
		Connected: true,
		Healthy:   err == nil,
		Latency:   latency,
		PoolStats: poolStatsFromSQL(handle.Stats()),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// IsHealthy returns true if a connection is open and the database is
// reachable.
func (db *DB) IsHealthy(ctx context.Context) bool {
	s := db.Health(ctx)
	return s.Connected && s.Healthy
}

func poolStatsFromSQL(stats sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}
}
