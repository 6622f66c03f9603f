package pipeline

import (
	"fmt"
	"time"
)

// ProgressTracker estimates completion of a byte-bounded read, such as
// decoding an extract file.
type ProgressTracker struct {
	totalBytes int64
	startTime  time.Time
}

// NewProgressTracker creates a tracker for totalBytes starting now.
func NewProgressTracker(totalBytes int64) *ProgressTracker {
	return &ProgressTracker{totalBytes: totalBytes, startTime: time.Now()}
}

// Estimate is a point-in-time progress estimate.
type Estimate struct {
	Count      int64
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // items per second
}

// Calculate returns an estimate from the items and bytes processed so far.
func (p *ProgressTracker) Calculate(count, bytesProcessed int64) Estimate {
	elapsed := time.Since(p.startTime)
	e := Estimate{Count: count, Elapsed: elapsed.Round(time.Second)}

	if p.totalBytes > 0 && bytesProcessed > 0 {
		e.Percentage = min(float64(bytesProcessed)/float64(p.totalBytes)*100, 100)
		if e.Percentage < 100 {
			rate := float64(bytesProcessed) / elapsed.Seconds()
			if rate > 0 {
				e.ETA = (time.Duration(float64(p.totalBytes-bytesProcessed)/rate) * time.Second).Round(time.Second)
			}
		}
	}
	if elapsed > 0 {
		e.Throughput = float64(count) / elapsed.Seconds()
	}
	return e
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000_000 {
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	}
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	return fmt.Sprintf("%.0f/s", itemsPerSec)
}

// FormatBytes formats bytes in a human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
