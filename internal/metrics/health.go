package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	OracleState    string    `json:"oracle_state"`
	ScheduleOpen   bool      `json:"schedule_open"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastOutcome    string    `json:"last_outcome"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:   time.Now(),
		OracleState: "closed",
	}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteEnabled(v bool) {
	h.mu.Lock()
	h.SQLiteEnabled = v
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetOracleState(s string) {
	h.mu.Lock()
	h.OracleState = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetScheduleOpen(v bool) {
	h.mu.Lock()
	h.ScheduleOpen = v
	h.mu.Unlock()
}

// SetLastCycle records the finish time and outcome of a cycle.
func (h *HealthStatus) SetLastCycle(at time.Time, outcome string) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastOutcome = outcome
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report is the /healthz body.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteEnabled   bool    `json:"sqlite_enabled"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	OracleState     string  `json:"oracle_state"`
	ScheduleOpen    bool    `json:"schedule_open"`
	LastCycleAt     string  `json:"last_cycle_at,omitempty"`
	LastOutcome     string  `json:"last_outcome,omitempty"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Snapshot evaluates the overall status. An open oracle breaker only
// degrades the service: cycles keep running on the neutral probability.
func (h *HealthStatus) Snapshot() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if redisDown || sqliteDown || h.OracleState != "closed" {
		status = "degraded"
	}
	if redisDown && sqliteDown {
		status = "unhealthy"
	}

	r := Report{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		OracleState:     h.OracleState,
		ScheduleOpen:    h.ScheduleOpen,
		LastOutcome:     h.LastOutcome,
	}
	if !h.LastCycleAt.IsZero() {
		r.LastCycleAt = h.LastCycleAt.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return r
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if rep.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}
