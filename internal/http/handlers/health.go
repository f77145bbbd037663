// Package handlers provides HTTP API handlers for mediaxcode.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// JanitorStatus is the part of the scratch janitor the health check reports.
type JanitorStatus interface {
	Removed() int
	NextRun() (time.Time, bool)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	bins      ffmpeg.Binaries
	janitor   JanitorStatus
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithBinaries sets the resolved tool paths reported by the checks.
func (h *HealthHandler) WithBinaries(bins ffmpeg.Binaries) *HealthHandler {
	h.bins = bins
	return h
}

// WithJanitor sets the scratch janitor reported by the checks.
func (h *HealthHandler) WithJanitor(j JanitorStatus) *HealthHandler {
	h.janitor = j
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks"`
}

// CPUInfo reports host load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports host and process memory in MiB.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo reports the service process and its children. Children
// are the running ffmpeg, ffprobe and gifsicle invocations.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
	ChildProcessCount  int     `json:"child_process_count"`
}

// HealthComponents reports the external tools and the scratch janitor.
type HealthComponents struct {
	Tools   map[string]ToolHealth `json:"tools"`
	Janitor JanitorHealth         `json:"janitor"`
}

// ToolHealth describes one external binary.
type ToolHealth struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// JanitorHealth describes the scratch janitor.
type JanitorHealth struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
	NextRun string `json:"next_run,omitempty"`
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service. The service is
// degraded when ffmpeg is unavailable.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	tools := map[string]ToolHealth{
		"ffmpeg":   toolHealth(h.bins.FFmpeg),
		"ffprobe":  toolHealth(h.bins.FFprobe),
		"gifsicle": toolHealth(h.bins.Gifsicle),
	}
	checks := make(map[string]string, len(tools)+1)
	for name, t := range tools {
		checks[name] = t.Status
	}

	janitor := h.getJanitorHealth()
	checks["janitor"] = janitor.Status

	status := "healthy"
	if tools["ffmpeg"].Status != "ok" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(),
			Memory:        h.getMemoryInfo(),
			Components: HealthComponents{
				Tools:   tools,
				Janitor: janitor,
			},
			Checks: checks,
		},
	}, nil
}

func toolHealth(path string) ToolHealth {
	if path == "" {
		return ToolHealth{Status: "missing"}
	}
	return ToolHealth{Status: "ok", Path: path}
}

func (h *HealthHandler) getJanitorHealth() JanitorHealth {
	if h.janitor == nil {
		return JanitorHealth{Status: "disabled"}
	}
	health := JanitorHealth{Status: "ok", Removed: h.janitor.Removed()}
	if next, ok := h.janitor.NextRun(); ok {
		health.NextRun = next.UTC().Format(time.RFC3339)
	}
	return health
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

const mib = 1024 * 1024

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / mib
		info.UsedMemoryMB = float64(vmStat.Used) / mib
		info.FreeMemoryMB = float64(vmStat.Free) / mib
		info.AvailableMemoryMB = float64(vmStat.Available) / mib
	}

	swapStat, err := mem.SwapMemory()
	if err == nil && swapStat != nil {
		info.SwapTotalMB = float64(swapStat.Total) / mib
		info.SwapUsedMB = float64(swapStat.Used) / mib
	}

	info.ProcessMemory = h.getProcessMemoryInfo(info.TotalMemoryMB)
	return info
}

// getProcessMemoryInfo returns the RSS of this process and its children.
func (h *HealthHandler) getProcessMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / mib
		info.TotalProcessTreeMB = info.MainProcessMB
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if childMem, err := child.MemoryInfo(); err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / mib
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	if totalSystemMB > 0 {
		info.PercentageOfSystem = (info.TotalProcessTreeMB / totalSystemMB) * 100
	}
	return info
}
