package handlers

import (
	"net/http"

	"github.com/arnvgh/semspend-be/internal/monitoring"
)

// StatsProvider exposes the latest host stats snapshot.
type StatsProvider interface {
	Snapshot() monitoring.SystemStats
}

// StatusHandler reports process health and host resource usage.
type StatusHandler struct {
	stats StatsProvider
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(stats StatsProvider) *StatusHandler {
	return &StatusHandler{stats: stats}
}

// Get returns the latest host stats snapshot.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "Status fetched successfully", h.stats.Snapshot())
}
