package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Reporter receives progress of a long-running batch job.
type Reporter interface {
	Start(total int)
	Add(n int)
	Finish()
}

// LineReporter is a Reporter for writers that are not terminals, such as log
// files and pipes. It writes one line every interval items and a final line
// from Finish.
type LineReporter struct {
	writer    io.Writer
	label     string
	interval  int
	total     int
	current   int
	lastLine  int
	startTime time.Time
	started   bool
	mu        sync.Mutex
}

var _ Reporter = (*LineReporter)(nil)

// NewLineReporter creates a reporter prefixing each line with label. An
// interval below one reports every item.
func NewLineReporter(writer io.Writer, label string, interval int) *LineReporter {
	if interval < 1 {
		interval = 1
	}
	return &LineReporter{
		writer:   writer,
		label:    label,
		interval: interval,
	}
}

// Start begins tracking progress toward total.
func (r *LineReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startTime = time.Now()
	r.started = true
	r.total = total
	r.current = 0
	r.lastLine = 0
}

// Add records n more items, never counting past the total.
func (r *LineReporter) Add(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	r.current = min(r.current+n, r.total)
	if r.current-r.lastLine >= r.interval {
		r.writeLine()
	}
}

// Finish writes the final line unless the last Add already did.
func (r *LineReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	if r.lastLine != r.current || r.current == 0 {
		r.writeLine()
	}
	r.started = false
}

// Elapsed returns the time since Start, or zero before Start.
func (r *LineReporter) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return 0
	}
	return time.Since(r.startTime)
}

// writeLine must be called with the lock held.
func (r *LineReporter) writeLine() {
	elapsed := time.Since(r.startTime)
	percentage := 100.0
	if r.total > 0 {
		percentage = float64(r.current) / float64(r.total) * 100.0
	}
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(r.current) / secs
	}

	fmt.Fprintf(r.writer, "%s: %d/%d (%.1f%%) %.1f/s\n", r.label, r.current, r.total, percentage, rate)
	r.lastLine = r.current
}

// nopReporter discards progress.
type nopReporter struct{}

func (nopReporter) Start(int) {}
func (nopReporter) Add(int)   {}
func (nopReporter) Finish()   {}
