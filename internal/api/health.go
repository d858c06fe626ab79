package api

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status         HealthStatus           `json:"status"`
	Timestamp      string                 `json:"timestamp"`
	EngineVersion  string                 `json:"engine_version"`
	GitCommit      string                 `json:"git_commit,omitempty"`
	BuildTime      string                 `json:"build_time,omitempty"`
	Uptime         string                 `json:"uptime"`
	ActiveSessions int                    `json:"active_sessions"`
	Checks         map[string]HealthCheck `json:"checks"`
	System         SystemInfo             `json:"system"`
	RequestID      string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthCheck{
		"database": s.checkDatabaseHealth(),
		"game":     s.checkGameServerHealth(),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		if c.Status == HealthStatusUnhealthy {
			overall = HealthStatusUnhealthy
			break
		}
		if c.Status == HealthStatusDegraded {
			overall = HealthStatusDegraded
		}
	}

	active := 0
	if s.live != nil {
		active = s.live.ActiveSessions()
	}

	response := HealthCheckResponse{
		Status:         overall,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		EngineVersion:  EngineVersion,
		GitCommit:      GitCommit,
		BuildTime:      BuildTime,
		Uptime:         time.Since(s.startTime).String(),
		ActiveSessions: active,
		Checks:         checks,
		System:         systemInfo(),
		RequestID:      middleware.GetReqID(r.Context()),
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

// checkDatabaseHealth runs a cheap aggregate query against the ledger.
// A disabled ledger only degrades the service.
func (s *Server) checkDatabaseHealth() HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: HealthStatusHealthy, Message: "Session ledger healthy"}

	if s.db == nil {
		check.Status = HealthStatusDegraded
		check.Message = "Session ledger disabled"
	} else if _, err := s.db.Stats(); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Session ledger query failed: %v", err)
	}

	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

func (s *Server) checkGameServerHealth() HealthCheck {
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if s.live == nil {
		check.Status = HealthStatusDegraded
		check.Message = "No game server attached"
		return check
	}
	check.Message = fmt.Sprintf("%d active sessions", s.live.ActiveSessions())
	return check
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryAlloc:   m.Alloc,
		GCCycles:      m.NumGC,
	}
}
