package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is one sample of host and process load.
type Snapshot struct {
	SysCPUPercent  float64
	ProcCPUPercent float64 // per core, may exceed 100 on multi-core hosts
	ProcRSSBytes   uint64
	MemPercent     float64
	DiskReadMBps   float64
	DiskWriteMBps  float64
	Timestamp      time.Time
}

// Collector samples system load while a build runs, logging each sample
// and mirroring it into Prometheus gauges.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time

	mu   sync.RWMutex
	last *Snapshot
}

// NewCollector creates a collector; intervals under a second are raised to
// 30s.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{interval: interval, logger: logger, proc: proc}
}

// Start samples until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sample()
		}
	}
}

// Last returns the most recent snapshot, or nil before the first sample.
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Sample takes one snapshot, stores it and logs it.
func (c *Collector) Sample() *Snapshot {
	s := &Snapshot{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.SysCPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcCPUPercent = pct
		}
		if mi, err := c.proc.MemoryInfo(); err == nil {
			s.ProcRSSBytes = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemPercent = vm.UsedPercent
	}
	s.DiskReadMBps, s.DiskWriteMBps = c.diskRates(s.Timestamp)

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()

	ProcessRSS.Set(float64(s.ProcRSSBytes))
	ProcessCPU.Set(s.ProcCPUPercent)

	c.logger.Info("System metrics",
		zap.String("sys_cpu", fmt.Sprintf("%.1f%%", s.SysCPUPercent)),
		zap.String("proc_cpu", fmt.Sprintf("%.1f%%", s.ProcCPUPercent)),
		zap.String("rss", fmt.Sprintf("%.1f MB", float64(s.ProcRSSBytes)/(1<<20))),
		zap.String("mem", fmt.Sprintf("%.1f%%", s.MemPercent)),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", s.DiskReadMBps)),
		zap.String("disk_w", fmt.Sprintf("%.1f MB/s", s.DiskWriteMBps)),
	)
	return s
}

// diskRates returns read/write throughput since the previous call. The first
// call only records a baseline.
func (c *Collector) diskRates(now time.Time) (readMBps, writeMBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	prev, prevTime := c.lastDisk, c.lastDiskTime
	c.lastDisk, c.lastDiskTime = counters, now
	if prev == nil {
		return 0, 0
	}
	elapsed := now.Sub(prevTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var read, written uint64
	for name, cur := range counters {
		old, ok := prev[name]
		if !ok {
			continue
		}
		if cur.ReadBytes >= old.ReadBytes {
			read += cur.ReadBytes - old.ReadBytes
		}
		if cur.WriteBytes >= old.WriteBytes {
			written += cur.WriteBytes - old.WriteBytes
		}
	}
	return float64(read) / elapsed / (1 << 20), float64(written) / elapsed / (1 << 20)
}
