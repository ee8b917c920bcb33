package status

import (
	"fmt"
	"io"
	"sync"
)

const (
	colorOK    = "\x1b[1;32m"
	colorError = "\x1b[1;31m"
	colorReset = "\x1b[0m"
)

// Console prints phases as status lines:
//
//	> Requesting program write... OK
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	noColor bool
}

// NewConsole writes status lines to w, normally os.Stderr.
func NewConsole(w io.Writer, noColor bool) *Console {
	return &Console{w: w, noColor: noColor}
}

func (c *Console) Publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Outcome {
	case Begin:
		fmt.Fprintf(c.w, "> %s...", ev.Label)
	case OK:
		fmt.Fprintln(c.w, c.paint(colorOK, " OK"))
	case Failed:
		fmt.Fprintln(c.w, c.paint(colorError, " ERROR"))
		fmt.Fprintln(c.w)
	case Info:
		fmt.Fprintf(c.w, "  (%s)\n", ev.Label)
	}
}

func (c *Console) Finish(Summary) {}

func (c *Console) paint(color, s string) string {
	if c.noColor {
		return s
	}
	return color + s + colorReset
}
