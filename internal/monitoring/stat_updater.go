package monitoring

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/arnvgh/semspend-be/internal/services"
)

const (
	highCpuThreshold = 90.0
	alertCooldown    = 10 * time.Minute
)

// SystemStats is a point-in-time sample of host resource usage.
type SystemStats struct {
	CPUPercent     float64   `json:"cpuPercent"`
	MemUsedPercent float64   `json:"memUsedPercent"`
	MemUsedMB      uint64    `json:"memUsedMb"`
	MemTotalMB     uint64    `json:"memTotalMb"`
	SampledAt      time.Time `json:"sampledAt"`
}

// StatUpdater periodically samples host CPU and memory usage and keeps the
// latest snapshot for the status endpoint.
type StatUpdater struct {
	eventSvc services.EventServiceProvider
	interval time.Duration
	ticker   *time.Ticker
	done     chan bool

	mu           sync.RWMutex
	latest       SystemStats
	lastCpuAlert time.Time
}

// NewStatUpdater creates a new StatUpdater.
func NewStatUpdater(eventSvc services.EventServiceProvider, interval time.Duration) *StatUpdater {
	return &StatUpdater{
		eventSvc: eventSvc,
		interval: interval,
		done:     make(chan bool),
	}
}

// Run starts the periodic sampling.
func (su *StatUpdater) Run() {
	log.Info().Dur("interval", su.interval).Msg("Starting background stat updater...")
	su.ticker = time.NewTicker(su.interval)
	defer su.ticker.Stop()

	// Sample once immediately on start
	su.sample()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-su.ticker.C:
			su.sample()
		}
	}
}

// Stop halts the periodic sampling.
func (su *StatUpdater) Stop() {
	su.done <- true
}

// Snapshot returns the most recent sample.
func (su *StatUpdater) Snapshot() SystemStats {
	su.mu.RLock()
	defer su.mu.RUnlock()
	return su.latest
}

func (su *StatUpdater) sample() {
	stats := SystemStats{SampledAt: time.Now().UTC()}

	if percentages, err := cpu.Percent(0, false); err != nil {
		log.Warn().Err(err).Msg("StatUpdater: failed to sample CPU")
	} else if len(percentages) > 0 {
		stats.CPUPercent = percentages[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("StatUpdater: failed to sample memory")
	} else {
		stats.MemUsedPercent = vm.UsedPercent
		stats.MemUsedMB = vm.Used / 1024 / 1024
		stats.MemTotalMB = vm.Total / 1024 / 1024
	}

	su.mu.Lock()
	su.latest = stats
	alertDue := stats.CPUPercent > highCpuThreshold && time.Since(su.lastCpuAlert) > alertCooldown
	if alertDue {
		su.lastCpuAlert = time.Now()
	}
	su.mu.Unlock()

	if alertDue {
		log.Warn().Float64("cpu_percent", stats.CPUPercent).Msg("High host CPU usage")
		if su.eventSvc != nil {
			if err := su.eventSvc.CreateEvent("system.alert.cpu", "warn", "High host CPU usage", nil); err != nil {
				log.Error().Err(err).Msg("Failed to record CPU alert event")
			}
		}
	}
}
