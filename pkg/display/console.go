// Package display implementation for terminal-based output.
package display

import (
	"fmt"
	"io"
	"os"
	"pix/pkg/common"
	"strings"
	"sync"
)

const clearLine = "\x1b[1A\x1b[2K"

// consoleDisplay handles terminal output.
// Active tasks occupy the last lines of the output and are redrawn in place.
// Mutable
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	tasks   []*consoleTask
	drawn   int
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return &consoleDisplay{
		out: os.Stderr,
	}
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
func NewWriterDisplay(w io.Writer) Display {
	return &consoleDisplay{
		out: w,
	}
}

// Discard returns a Display that writes nowhere.
func Discard() Display {
	return NewWriterDisplay(io.Discard)
}

func (d *consoleDisplay) SetVerbose(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verbose = v
}

// StartTask registers a task and draws its status line.
func (d *consoleDisplay) StartTask(name string) Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &consoleTask{d: d, name: name}
	d.tasks = append(d.tasks, t)
	d.redraw()
	return t
}

func (d *consoleDisplay) Log(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.above(msg + "\n")
}

// Print writes a message directly to the output writer.
func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.above(msg)
}

func (d *consoleDisplay) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
	d.tasks = nil
}

// above prints msg above the task lines (must be called with lock held).
func (d *consoleDisplay) above(msg string) {
	d.clear()
	fmt.Fprint(d.out, msg)
	d.redraw()
}

// clear removes the drawn task lines (must be called with lock held).
func (d *consoleDisplay) clear() {
	fmt.Fprint(d.out, strings.Repeat(clearLine, d.drawn))
	d.drawn = 0
}

// redraw repaints all task lines (must be called with lock held).
func (d *consoleDisplay) redraw() {
	d.clear()
	for _, t := range d.tasks {
		fmt.Fprintln(d.out, t.line())
	}
	d.drawn = len(d.tasks)
}

func (d *consoleDisplay) remove(t *consoleTask) {
	for i, x := range d.tasks {
		if x == t {
			d.tasks = append(d.tasks[:i], d.tasks[i+1:]...)
			return
		}
	}
}

// RenderOutput displays structured data from an Output struct to the console.
func (d *consoleDisplay) RenderOutput(out *common.Output) {
	if out == nil {
		return
	}

	var sb strings.Builder
	if out.Message != "" {
		sb.WriteString(out.Message + "\n")
	}

	for _, kv := range out.KV {
		fmt.Fprintf(&sb, "%-12s %s\n", kv.Key+":", kv.Value)
	}

	if out.Table != nil {
		renderTable(&sb, out.Table)
	}
	d.Print(sb.String())
}

func renderTable(sb *strings.Builder, t *common.Table) {
	if len(t.Header) == 0 {
		return
	}

	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.Header {
		fmt.Fprintf(sb, "%-*s  ", widths[i], h)
	}
	sb.WriteString("\n")

	totalWidth := 0
	for _, w := range widths {
		totalWidth += w + 2
	}
	sb.WriteString(strings.Repeat("-", totalWidth) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(sb, "%-*s  ", widths[i], cell)
			}
		}
		sb.WriteString("\n")
	}
}

// Mutable, guarded by the owning display's lock.
type consoleTask struct {
	d       *consoleDisplay
	name    string
	stage   string
	target  string
	percent int
	message string
	done    bool
}

func (t *consoleTask) line() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", t.name)
	if t.stage != "" {
		fmt.Fprintf(&sb, " %s", t.stage)
	}
	if t.target != "" {
		fmt.Fprintf(&sb, " %s", t.target)
	}
	fmt.Fprintf(&sb, " %3d%%", t.percent)
	if t.message != "" {
		fmt.Fprintf(&sb, " %s", t.message)
	}
	return sb.String()
}

func (t *consoleTask) Log(msg string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.d.verbose || t.done {
		return
	}
	t.d.above(fmt.Sprintf("[%s] %s\n", t.name, msg))
}

func (t *consoleTask) SetStage(name string, target string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return
	}
	t.stage = name
	t.target = target
	t.d.redraw()
}

func (t *consoleTask) Progress(percent int, message string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return
	}
	t.percent = percent
	t.message = message
	t.d.redraw()
}

func (t *consoleTask) Done() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.d.remove(t)
	t.d.above(fmt.Sprintf("[%s] Done\n", t.name))
}
