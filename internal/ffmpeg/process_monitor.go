package ffmpeg

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// defaultSampleInterval is short because most media jobs finish in seconds.
const defaultSampleInterval = 100 * time.Millisecond

// ProcessStats contains resource usage observed for an external process.
type ProcessStats struct {
	PID          int           `json:"pid"`
	PeakRSSBytes uint64        `json:"peak_rss_bytes"`
	CPUPercent   float64       `json:"cpu_percent"`
	Samples      int           `json:"samples"`
	Duration     time.Duration `json:"duration"`
}

// ProcessMonitor samples memory and CPU usage of a running process.
type ProcessMonitor struct {
	pid      int
	interval time.Duration

	mu        sync.Mutex
	stats     ProcessStats
	startedAt time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewProcessMonitor creates a monitor for pid. Call Start to begin sampling.
func NewProcessMonitor(pid int) *ProcessMonitor {
	return &ProcessMonitor{
		pid:      pid,
		interval: defaultSampleInterval,
		stats:    ProcessStats{PID: pid},
		stop:     make(chan struct{}),
	}
}

// SetInterval changes the sampling interval. It must be called before Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.interval = d
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	pm.startedAt = time.Now()

	proc, err := process.NewProcess(int32(pm.pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		// Process already exited; nothing to observe.
		return
	}

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()

		pm.sample(proc)
		for {
			select {
			case <-pm.stop:
				return
			case <-ticker.C:
				pm.sample(proc)
			}
		}
	}()
}

// Stop ends sampling. It is safe to call more than once.
func (pm *ProcessMonitor) Stop() {
	pm.once.Do(func() { close(pm.stop) })
	pm.wg.Wait()

	pm.mu.Lock()
	if !pm.startedAt.IsZero() {
		pm.stats.Duration = time.Since(pm.startedAt)
	}
	pm.mu.Unlock()
}

// Stats returns a snapshot of the collected statistics.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.stats
}

func (pm *ProcessMonitor) sample(proc *process.Process) {
	mem, memErr := proc.MemoryInfo()
	cpu, cpuErr := proc.CPUPercent()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.Samples++
	if memErr == nil && mem != nil && mem.RSS > pm.stats.PeakRSSBytes {
		pm.stats.PeakRSSBytes = mem.RSS
	}
	if cpuErr == nil {
		pm.stats.CPUPercent = cpu
	}
}
