package main

import (
	"fmt"
	"io"
	"os"

	"github.com/poiesic/guarded/reembed"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// newReporter draws a progress bar on terminals and falls back to one line
// every interval items when output is redirected.
func newReporter(w io.Writer, description string, interval int) reembed.Reporter {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return newBarReporter(w, description)
	}
	return reembed.NewLineReporter(w, description, interval)
}

// barReporter renders progress with a terminal progress bar.
type barReporter struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

var _ reembed.Reporter = (*barReporter)(nil)

func newBarReporter(w io.Writer, description string) *barReporter {
	return &barReporter{w: w, description: description}
}

func (r *barReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]"+r.description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(r.w)
		}),
	)
}

func (r *barReporter) Add(n int) {
	if r.bar != nil {
		_ = r.bar.Add(n)
	}
}

func (r *barReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
