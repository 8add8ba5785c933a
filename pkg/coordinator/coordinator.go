package coordinator

import (
	"fmt"
	"log/slog"
	"pix/pkg/discovery"
	"pix/pkg/installer"
	"pix/pkg/links"
	"pix/pkg/operation"
	"pix/pkg/progress"
	"pix/pkg/validate"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultRefresh is the progress polling cadence.
const DefaultRefresh = 25 * time.Millisecond

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Links   *links.Set
	Search  Searcher
	Install Installer
	// Sender may be attached later with Attach, but before the first
	// operation starts.
	Sender   Sender
	Listener Listener
	Refresh  time.Duration
	Logger   *slog.Logger
}

// Coordinator owns the link set and the two kinds of operation. Apart from
// construction, every method must be called on the UI goroutine.
// Mutable
type Coordinator struct {
	links    *links.Set
	search   Searcher
	install  Installer
	sender   Sender
	listener Listener
	refresh  time.Duration
	logger   *slog.Logger

	tag       string
	searchOp  *operation.Operation
	searchGen uint64

	installOp   *operation.Operation
	installGen  uint64
	progress    *progress.Channel
	installDone *InstallFinishedMsg
	lastResult  *installer.Result

	percent int
	spinMax int
	status  string
	closed  bool
}

func New(deps Deps) *Coordinator {
	c := &Coordinator{
		links:    deps.Links,
		search:   deps.Search,
		install:  deps.Install,
		sender:   deps.Sender,
		listener: deps.Listener,
		refresh:  deps.Refresh,
		logger:   deps.Logger,
		status:   StatusIdle,
	}
	if c.links == nil {
		c.links = links.NewSet()
	}
	if c.listener == nil {
		c.listener = NopListener{}
	}
	if c.refresh <= 0 {
		c.refresh = DefaultRefresh
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.spinMax = c.links.Len()
	return c
}

// Attach sets the Sender. A tea.Program exists only after its model, so the
// TUI attaches it between tea.NewProgram and Run.
func (c *Coordinator) Attach(s Sender) { c.sender = s }

// SetListener replaces the listener.
func (c *Coordinator) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	c.listener = l
}

func (c *Coordinator) send(msg tea.Msg) {
	if c.sender != nil {
		c.sender.Send(msg)
	}
}

// StartSearch starts discovery for query. Links found are added to the set
// as they arrive; the UI learns about each through a LinkFoundMsg. Only one
// search runs at a time: a second call while one is active returns
// ErrSearchBusy.
func (c *Coordinator) StartSearch(query string) error {
	if c.closed {
		return ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if c.searchOp != nil {
		return ErrSearchBusy
	}

	c.searchGen++
	gen := c.searchGen
	epoch := c.links.Epoch()

	op, err := c.search.Start(query, c.searchCallbacks(gen, epoch))
	if err != nil {
		c.status = fmt.Sprintf("Search failed: %v", err)
		return err
	}
	c.searchOp = op
	c.tag = query
	c.status = StatusSearching
	c.logger.Info("search started", "query", query)
	return nil
}

// searchCallbacks run on the discovery loop. Links are inserted there, under
// the set's lock, and only while the set is in the epoch the search started
// in.
func (c *Coordinator) searchCallbacks(gen, epoch uint64) discovery.Callbacks {
	return discovery.Callbacks{
		OnLink: func(url string) {
			if c.links.AddAt(epoch, url) {
				c.send(LinkFoundMsg{Gen: gen, URL: url})
			}
		},
		OnDone: func(state operation.State, err error) {
			c.send(SearchFinishedMsg{Gen: gen, State: state, Err: err})
		},
	}
}

// ResetLinks empties the link set. It cancels a running search and is
// refused while an install is active.
func (c *Coordinator) ResetLinks() error {
	if c.installOp != nil {
		return ErrInstallActive
	}
	if c.searchOp != nil {
		c.searchOp.Cancel()
		c.searchOp = nil
		c.searchGen++
	}
	c.links.Clear()
	c.spinMax = 0
	c.status = StatusIdle
	c.logger.Info("links reset")
	return nil
}

// StartOrCancelInstall validates sel and then toggles: it starts an install
// when none is active and cancels the active one otherwise. The returned
// command schedules the first progress poll.
func (c *Coordinator) StartOrCancelInstall(sel Selection) (tea.Cmd, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := validate.Selection(sel.Dir, sel.Count, c.links.Len()); err != nil {
		c.status = err.Error()
		return nil, err
	}

	if c.installOp != nil {
		c.cancelInstall()
		return nil, nil
	}

	tag := sel.Tag
	if tag == "" {
		tag = c.tag
	}
	req := installer.Request{
		Links: c.links.Snapshot(),
		Dir:   sel.Dir,
		Tag:   tag,
		Total: sel.Count,
	}

	c.installGen++
	gen := c.installGen
	ch := progress.NewChannel()

	op, err := c.install.Start(req,
		func(done, total int) {
			ch.Push(progress.Percent(done, total))
		},
		func(res installer.Result, state operation.State, err error) {
			c.send(InstallFinishedMsg{Gen: gen, State: state, Err: err, Result: res})
		})
	if err != nil {
		c.status = fmt.Sprintf("Saving failed: %v", err)
		return nil, err
	}

	c.installOp = op
	c.progress = ch
	c.installDone = nil
	c.percent = 0
	c.status = StatusSaving
	c.logger.Info("install started", "dir", sel.Dir, "count", sel.Count, "tag", tag)
	return c.tick(gen), nil
}

func (c *Coordinator) cancelInstall() {
	c.installOp.Cancel()
	c.endInstall()
	c.installGen++
	c.percent = 0
	c.status = StatusCancelled
	c.logger.Info("install cancelled")
	c.listener.OnInstallCancelled()
}

// endInstall drops the active install. Pending polls find no operation and
// stop.
func (c *Coordinator) endInstall() {
	c.installOp = nil
	c.progress = nil
	c.installDone = nil
}

// PollOnce drains at most one progress value for install run gen and returns
// the next poll, or nil once polling is over.
func (c *Coordinator) PollOnce(gen uint64) tea.Cmd {
	if gen != c.installGen || c.installOp == nil {
		return nil
	}

	if p, ok := c.progress.TryPop(); ok {
		c.percent = p
		c.listener.OnInstallProgress(p)
		if p >= 100 {
			c.completeInstall()
			return nil
		}
		return c.tick(gen)
	}

	// Queue is empty. If the run already ended, no 100 is coming.
	if done := c.installDone; done != nil {
		switch done.State {
		case operation.Completed:
			c.completeInstall()
		case operation.Cancelled:
			c.cancelInstall()
		default:
			c.failInstall(done.Err)
		}
		return nil
	}
	return c.tick(gen)
}

func (c *Coordinator) completeInstall() {
	var res *installer.Result
	if c.installDone != nil {
		res = &c.installDone.Result
	}
	c.endInstall()
	c.percent = 100
	c.links.Clear()
	c.spinMax = 0
	c.status = savedStatus(res)
	c.logger.Info("install complete")
	c.listener.OnInstallComplete()
}

// savedStatus is StatusSaved, with the number of failed images appended
// when res is known and has any.
func savedStatus(res *installer.Result) string {
	if res == nil || res.Failed == 0 {
		return StatusSaved
	}
	total := res.Saved + res.Existing + res.Failed
	return fmt.Sprintf("%s (%d of %d failed)", StatusSaved, res.Failed, total)
}

func (c *Coordinator) failInstall(err error) {
	c.endInstall()
	c.percent = 0
	c.status = fmt.Sprintf("Saving failed: %v", err)
	c.logger.Error("install failed", "error", err)
	c.listener.OnInstallFailed(err)
}

func (c *Coordinator) tick(gen uint64) tea.Cmd {
	return tea.Tick(c.refresh, func(time.Time) tea.Msg {
		return PollMsg{Gen: gen}
	})
}

// Update applies a background message and returns a follow-up command.
func (c *Coordinator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case LinkFoundMsg:
		if msg.Gen != c.searchGen {
			return nil
		}
		c.spinMax = c.links.Len()
		c.listener.OnLinkDiscovered(msg.URL)

	case SearchFinishedMsg:
		if msg.Gen != c.searchGen || c.searchOp == nil {
			return nil
		}
		c.searchOp = nil
		c.spinMax = c.links.Len()
		switch msg.State {
		case operation.Completed:
			c.status = fmt.Sprintf("Found %d images", c.spinMax)
			c.listener.OnSearchComplete(c.spinMax)
		case operation.Failed:
			c.status = fmt.Sprintf("Search failed: %v", msg.Err)
			c.logger.Warn("search failed", "error", msg.Err)
			c.listener.OnSearchFailed(msg.Err)
		default:
			c.status = StatusIdle
		}

	case InstallFinishedMsg:
		if msg.Gen != c.installGen {
			return nil
		}
		res := msg.Result
		c.lastResult = &res
		if c.installOp != nil {
			c.installDone = &msg
		} else if c.status == StatusSaved {
			// Completion was polled before the result arrived.
			c.status = savedStatus(&res)
		}

	case PollMsg:
		return c.PollOnce(msg.Gen)
	}
	return nil
}

// Close cancels active operations and stops polling. It is safe to call
// more than once.
func (c *Coordinator) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.searchOp != nil {
		c.searchOp.Cancel()
		c.searchOp = nil
		c.searchGen++
	}
	if c.installOp != nil {
		c.installOp.Cancel()
		c.endInstall()
		c.installGen++
	}
}

// LinkCount is the number of links currently held.
func (c *Coordinator) LinkCount() int { return c.links.Len() }

// SpinMax is the upper bound for the image count control.
func (c *Coordinator) SpinMax() int { return c.spinMax }

// Percent is the last polled install progress.
func (c *Coordinator) Percent() int { return c.percent }

func (c *Coordinator) Status() string { return c.status }

// Tag is the query of the last search.
func (c *Coordinator) Tag() string { return c.tag }

// ToggleLabel is the label of the start/cancel control.
func (c *Coordinator) ToggleLabel() string {
	if c.installOp != nil {
		return LabelCancel
	}
	return LabelStart
}

func (c *Coordinator) Searching() bool  { return c.searchOp != nil }
func (c *Coordinator) Installing() bool { return c.installOp != nil }

// LastResult is the summary of the most recent install run that was not
// cancelled, or nil.
func (c *Coordinator) LastResult() *installer.Result { return c.lastResult }
