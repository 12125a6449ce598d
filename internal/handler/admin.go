package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"botfleet-api/internal/orchestrator"
	"botfleet-api/pkg/response"
)

// StatsSource reports store statistics.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// StatusLister lists instance statuses.
type StatusLister interface {
	List() []orchestrator.Status
}

// ClientCounter reports connected realtime clients.
type ClientCounter interface {
	Clients() int
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store     StatsSource
	instances StatusLister
	realtime  ClientCounter
	storeType string
	cacheType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. realtime may be nil.
func NewAdminHandler(store StatsSource, instances StatusLister, realtime ClientCounter, storeType, cacheType string) *AdminHandler {
	return &AdminHandler{
		store:     store,
		instances: instances,
		realtime:  realtime,
		storeType: storeType,
		cacheType: cacheType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType
	stats["cache_type"] = h.cacheType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	// Store stats
	if h.store != nil {
		storeStats, err := h.store.Stats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	// Instances by state
	if h.instances != nil {
		byState := make(map[string]int)
		list := h.instances.List()
		for _, st := range list {
			byState[string(st.State)]++
		}
		stats["instances"] = map[string]interface{}{
			"total":    len(list),
			"by_state": byState,
		}
	}

	if h.realtime != nil {
		stats["websocket_clients"] = h.realtime.Clients()
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
