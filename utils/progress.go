package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ProgressTracker shows chunk download progress for a chunked result set
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	out       io.Writer
	startTime time.Time
	total     int64
	current   int64
	bytes     int64
	mutex     sync.RWMutex
}

// FetchSummary contains final statistics for one chunked fetch
type FetchSummary struct {
	Chunks       int64
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewProgressTracker creates a tracker for total chunks writing to stderr
func NewProgressTracker(total int64, quiet bool) *ProgressTracker {
	return NewProgressTrackerWithWriter(total, quiet, os.Stderr)
}

// NewProgressTrackerWithWriter creates a tracker that renders to out
func NewProgressTrackerWithWriter(total int64, quiet bool, out io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:     quiet,
		out:       out,
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{string . "received"}} {{etime . }}`
		bar := pb.New64(total).SetTemplate(pb.ProgressBarTemplate(tmpl))
		bar.SetWriter(out)
		bar.Set("prefix", "Chunks: ")
		bar.Set("received", formatBytes(0))
		tracker.bar = bar.Start()
	}

	return tracker
}

// ChunkDone records one finished chunk of size bytes
func (p *ProgressTracker) ChunkDone(size int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	p.bytes += size
	if p.bar != nil {
		p.bar.SetCurrent(p.current)
		p.bar.Set("received", formatBytes(p.bytes))
	}
}

// Finish completes the progress bar and returns the fetch summary
func (p *ProgressTracker) Finish() *FetchSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)
	if p.bar != nil {
		p.bar.Finish()
	}

	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.bytes) / totalTime.Seconds()
	}

	summary := &FetchSummary{
		Chunks:       p.current,
		TotalBytes:   p.bytes,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
	}

	if !p.quiet {
		p.displaySummary(summary)
	}

	return summary
}

func (p *ProgressTracker) displaySummary(summary *FetchSummary) {
	fmt.Fprintf(p.out, "Fetched %d/%d chunks (%s) in %v\n",
		summary.Chunks, p.total, formatBytes(summary.TotalBytes), summary.TotalTime.Round(time.Millisecond))
}

// formatBytes formats byte count as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
