// Package headless runs a search and an install from the command line,
// driving the same coordinator the terminal UI uses.
package headless

import (
	"context"
	"fmt"
	"pix/pkg/common"
	"pix/pkg/coordinator"
	"pix/pkg/display"
	"pix/pkg/installer"
	"sort"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

// Options for a headless run.
type Options struct {
	Query string
	// Count of images to save; 0 saves everything found.
	Count int
	Dir   string
}

// listener turns coordinator events into display updates and tracks when
// each phase is over.
type listener struct {
	coordinator.NopListener
	task  display.Task
	found int

	searchDone  bool
	searchErr   error
	installDone bool
	installErr  error
	cancelled   bool
}

func (l *listener) OnLinkDiscovered(url string) {
	l.found++
	if l.task != nil {
		l.task.Log(url)
		l.task.Progress(0, fmt.Sprintf("%d found", l.found))
	}
}

func (l *listener) OnSearchComplete(found int) {
	l.searchDone = true
	if l.task != nil {
		l.task.Progress(100, fmt.Sprintf("%d found", found))
	}
}

func (l *listener) OnSearchFailed(err error) {
	l.searchDone = true
	l.searchErr = err
}

func (l *listener) OnInstallProgress(percent int) {
	if l.task != nil {
		l.task.Progress(percent, "")
	}
}

func (l *listener) OnInstallComplete() {
	l.installDone = true
}

func (l *listener) OnInstallCancelled() {
	l.installDone = true
	l.cancelled = true
}

func (l *listener) OnInstallFailed(err error) {
	l.installDone = true
	l.installErr = err
}

// Run searches for opts.Query and saves the result to opts.Dir. c must have
// been created with q as its Sender. Run owns c for its whole duration and
// closes it before returning.
func Run(ctx context.Context, c *coordinator.Coordinator, q *coordinator.Queue, disp display.Display, opts Options) (*common.Output, error) {
	l := &listener{}
	c.SetListener(l)
	defer c.Close()

	// search
	l.task = disp.StartTask("search")
	l.task.SetStage("Search", opts.Query)
	if err := c.StartSearch(opts.Query); err != nil {
		l.task.Done()
		return nil, err
	}
	err := pump(ctx, c, q, nil, func() bool { return l.searchDone })
	l.task.Done()
	if err != nil {
		return nil, err
	}
	if l.searchErr != nil {
		return nil, fmt.Errorf("search failed: %w", l.searchErr)
	}

	found := c.LinkCount()
	if found == 0 {
		return &common.Output{Message: fmt.Sprintf("No images found for %q", opts.Query)}, nil
	}
	count := opts.Count
	if count <= 0 {
		count = found
	}

	// install
	l.task = disp.StartTask("save")
	l.task.SetStage("Save", opts.Dir)
	cmd, err := c.StartOrCancelInstall(coordinator.Selection{Dir: opts.Dir, Count: count})
	if err != nil {
		l.task.Done()
		return nil, err
	}
	err = pump(ctx, c, q, cmd, func() bool {
		return l.installDone && (l.cancelled || l.installErr != nil || c.LastResult() != nil)
	})
	l.task.Done()
	if err != nil {
		return nil, err
	}
	if l.installErr != nil {
		return nil, fmt.Errorf("saving failed: %w", l.installErr)
	}
	if l.cancelled {
		return &common.Output{Message: coordinator.StatusCancelled}, nil
	}

	return summary(opts, found, c.LastResult()), nil
}

// pump is the headless event loop: it feeds queued messages to the
// coordinator until done reports true or ctx ends.
func pump(ctx context.Context, c *coordinator.Coordinator, q *coordinator.Queue, cmd tea.Cmd, done func() bool) error {
	q.Exec(cmd)
	for !done() {
		msg, err := q.Next(ctx)
		if err != nil {
			return err
		}
		q.Exec(c.Update(msg))
	}
	return nil
}

func summary(opts Options, found int, res *installer.Result) *common.Output {
	out := &common.Output{
		Message: fmt.Sprintf("%s to %s", coordinator.StatusSaved, opts.Dir),
		KV: []common.KV{
			{Key: "Query", Value: opts.Query},
			{Key: "Found", Value: strconv.Itoa(found)},
			{Key: "Saved", Value: strconv.Itoa(res.Saved)},
			{Key: "Existing", Value: strconv.Itoa(res.Existing)},
			{Key: "Failed", Value: strconv.Itoa(res.Failed)},
		},
	}

	outcomes := append([]installer.Outcome(nil), res.Outcomes...)
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Plan.Index < outcomes[j].Plan.Index })

	table := &common.Table{Header: []string{"FILE", "SIZE", "STATUS"}}
	var total uint64
	for _, o := range outcomes {
		status, size := "saved", humanize.Bytes(uint64(o.Size))
		switch {
		case o.Err != nil:
			status, size = "failed", "-"
		case o.Existing:
			status = "existing"
		}
		total += uint64(o.Size)
		table.Rows = append(table.Rows, []string{o.Plan.Path, size, status})
	}
	out.KV = append(out.KV, common.KV{Key: "Total", Value: humanize.Bytes(total)})
	out.Table = table
	return out
}
