package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"
)

// Bot identity reported by the root endpoint.
const (
	BotName    = "Instagram Downloader Bot"
	BotVersion = "1.0.0"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	history Pinger
	tempDir string
	started time.Time
}

// NewHealthHandler creates a new health handler. history may be nil.
func NewHealthHandler(history Pinger, tempDir string) *HealthHandler {
	return &HealthHandler{
		history: history,
		tempDir: tempDir,
		started: time.Now(),
	}
}

// RootResponse is the JSON body of GET /.
type RootResponse struct {
	Status  string `json:"status"`
	Bot     string `json:"bot"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Root handles GET / - deployment platform health check.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Status:  "healthy",
		Bot:     BotName,
		Version: BotVersion,
		Uptime:  formatUptime(time.Since(h.started)),
	})
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if h.history != nil {
		if err := h.history.Ping(ctx); err != nil {
			checks["history"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["history"] = "ok"
		}
	}

	if info, err := os.Stat(h.tempDir); err != nil || !info.IsDir() {
		checks["temp_dir"] = "missing"
		status = http.StatusServiceUnavailable
	} else {
		checks["temp_dir"] = "ok"
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if status != http.StatusOK {
		resp.Status = "error"
	}
	writeJSON(w, status, resp)
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	MemHeapMB      int64   `json:"mem_heap_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	TempFiles      int     `json:"temp_files"`
	DiskUsedBytes  int64   `json:"disk_used_bytes"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
	TempPath       string  `json:"temp_path"`
}

// Stats handles GET /stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.started)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		TempPath:      h.tempDir,
	}

	if entries, err := os.ReadDir(h.tempDir); err == nil {
		stats.TempFiles = len(entries)
	}
	stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.tempDir)

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
