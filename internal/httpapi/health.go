package httpapi

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/httputil"
)

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type infoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Uptime     string         `json:"uptime"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Service:   s.log.Service(),
		Version:   s.opts.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo reports contest totals alongside process statistics.
// Process metrics that cannot be read on this platform are omitted.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := map[string]any{
		"goroutines": runtime.NumGoroutine(),
	}

	if snap, err := s.contest.Snapshot(ctx); err == nil {
		stats["round"] = snap.Round
		stats["completed"] = snap.Completed
		stats["participants"] = snap.Participants
		stats["total_entries"] = contest.FormatAmount(snap.TotalEntries)
		stats["pending_draw"] = snap.PendingDraw
	}
	if s.oracle != nil {
		if balance, err := s.oracle.Balance(ctx, s.contest.Consumer()); err == nil {
			stats["oracle_balance"] = balance
		}
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
			stats["rss_bytes"] = mem.RSS
		}
		if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
			stats["threads"] = threads
		}
	}
	if usage, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(usage) > 0 {
		stats["host_cpu_percent"] = usage[0]
	}

	httputil.WriteJSON(w, http.StatusOK, infoResponse{
		Status:     "active",
		Service:    s.log.Service(),
		Version:    s.opts.Version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Statistics: stats,
	})
}
