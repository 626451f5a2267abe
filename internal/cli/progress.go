package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/the-receipts-must-flow/internal/progress"
)

// ProgressRenderer draws extraction progress events as a terminal progress bar.
type ProgressRenderer struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	last   progress.Step
	mu     sync.Mutex
	done   bool
}

// NewProgressRenderer creates a renderer that writes to w.
func NewProgressRenderer(w io.Writer) *ProgressRenderer {
	if w == nil {
		w = os.Stderr
	}
	return &ProgressRenderer{
		writer: w,
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]Connecting...[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprintln(w)
			}),
		),
	}
}

// Handle renders one event. It is safe to pass as a progress.Handler.
// Events after the terminal one are ignored.
func (r *ProgressRenderer) Handle(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}

	switch ev.Type {
	case progress.EventConnected:
		r.bar.Describe("[cyan][bold]Connected[reset]")
	case progress.EventProgress:
		if ev.Step != "" && ev.Step != r.last {
			r.last = ev.Step
			r.bar.Describe("[cyan][bold]" + ev.Step.Label() + "[reset]")
		}
		_ = r.bar.Set(ev.Percent())
	case progress.EventComplete:
		r.done = true
		r.bar.Describe("[green][bold]Extraction complete[reset]")
		_ = r.bar.Finish()
		if ev.Data != nil {
			_, _ = fmt.Fprintln(r.writer, FormatSuccess(fmt.Sprintf(
				"Found %d transaction(s)", len(ev.Data.Transactions))))
		}
	case progress.EventError:
		r.done = true
		_ = r.bar.Clear()
		msg := ev.Message
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		if msg == "" {
			msg = "extraction failed"
		}
		_, _ = fmt.Fprintln(r.writer, FormatError(msg))
	}
}

// Step returns the last step shown.
func (r *ProgressRenderer) Step() progress.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Done reports whether a terminal event was rendered.
func (r *ProgressRenderer) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
