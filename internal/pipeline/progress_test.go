package pipeline

import (
	"testing"
	"time"
)

func TestFormatThroughput(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12, "12/s"},
		{1500, "1.5K/s"},
		{2_500_000, "2.5M/s"},
	}
	for _, tt := range tests {
		if got := FormatThroughput(tt.in); got != tt.want {
			t.Errorf("FormatThroughput(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatETA(t *testing.T) {
	if got := FormatETA(0); got != "calculating..." {
		t.Errorf("FormatETA(0) = %q", got)
	}
	if got := FormatETA(3*time.Hour + 2*time.Minute + 1*time.Second); got != "3h 2m 1s" {
		t.Errorf("got %q", got)
	}
	if got := FormatETA(61 * time.Second); got != "1m 1s" {
		t.Errorf("got %q", got)
	}
}

func TestProgressTrackerCalculate(t *testing.T) {
	p := &ProgressTracker{totalBytes: 1000, startTime: time.Now().Add(-10 * time.Second)}
	e := p.Calculate(500, 250)
	if e.Percentage != 25 {
		t.Errorf("Percentage = %v, want 25", e.Percentage)
	}
	if e.ETA < 29*time.Second || e.ETA > 31*time.Second {
		t.Errorf("ETA = %v, want about 30s", e.ETA)
	}
	if e.Throughput < 49 || e.Throughput > 51 {
		t.Errorf("Throughput = %v, want about 50/s", e.Throughput)
	}

	done := p.Calculate(1000, 1000)
	if done.Percentage != 100 || done.ETA != 0 {
		t.Errorf("complete estimate = %+v", done)
	}
}
