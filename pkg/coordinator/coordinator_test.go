package coordinator

import (
	"context"
	"errors"
	"net/http"
	"pix/pkg/discovery"
	"pix/pkg/installer"
	"pix/pkg/links"
	"pix/pkg/loop"
	"pix/pkg/operation"
	"pix/pkg/validate"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// events records listener calls. It is only touched on the test goroutine,
// which plays the UI goroutine.
type events struct {
	links     []string
	found     []int
	searchErr []error
	progress  []int
	complete  int
	cancelled int
	failed    []error
}

func (e *events) OnLinkDiscovered(url string)   { e.links = append(e.links, url) }
func (e *events) OnSearchComplete(found int)    { e.found = append(e.found, found) }
func (e *events) OnSearchFailed(err error)      { e.searchErr = append(e.searchErr, err) }
func (e *events) OnInstallProgress(percent int) { e.progress = append(e.progress, percent) }
func (e *events) OnInstallComplete()            { e.complete++ }
func (e *events) OnInstallCancelled()           { e.cancelled++ }
func (e *events) OnInstallFailed(err error)     { e.failed = append(e.failed, err) }

// pageFetcher serves a fixed page. If gate is set, it waits for it (or for
// cancellation) first.
type pageFetcher struct {
	status int
	body   string
	gate   chan struct{}
}

func (f *pageFetcher) Fetch(ctx context.Context, url string) (int, string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return 0, "", ctx.Err()
		}
	}
	return f.status, f.body, nil
}

// fakeInstaller reports one progress step per requested image without
// touching the network or the disk.
type fakeInstaller struct {
	loop    *loop.Loop
	block   bool
	fail    error
	failed  int
	started int
	lastReq installer.Request
}

func (f *fakeInstaller) Start(req installer.Request, progress installer.ProgressFunc, onDone installer.DoneFunc) (*operation.Operation, error) {
	f.started++
	f.lastReq = req
	block, fail, failed := f.block, f.fail, f.failed

	op := operation.New("fake-install", f.loop, nil)
	err := op.Start(func(ctx context.Context) error {
		if fail != nil {
			return fail
		}
		for i := 1; i <= req.Total; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			progress(i, req.Total)
			if block {
				<-ctx.Done()
				return ctx.Err()
			}
		}
		return nil
	}, func(state operation.State, err error) {
		onDone(installer.Result{Saved: req.Total - failed, Failed: failed}, state, err)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

type harness struct {
	c       *Coordinator
	q       *Queue
	ev      *events
	links   *links.Set
	fetcher *pageFetcher
	inst    *fakeInstaller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	searchLoop := loop.New("discovery", nil)
	installLoop := loop.New("install", nil)
	go searchLoop.Run(ctx)
	go installLoop.Run(ctx)

	h := &harness{
		q:       NewQueue(),
		ev:      &events{},
		links:   links.NewSet(),
		fetcher: &pageFetcher{status: http.StatusOK},
		inst:    &fakeInstaller{loop: installLoop},
	}
	h.c = New(Deps{
		Links:    h.links,
		Search:   discovery.New(searchLoop, h.fetcher, nil, "https://example.com/search?q=", nil),
		Install:  h.inst,
		Sender:   h.q,
		Listener: h.ev,
		Refresh:  time.Millisecond,
	})
	t.Cleanup(h.c.Close)
	return h
}

// run feeds queued messages to the coordinator until cond holds.
func (h *harness) run(t *testing.T, cmd tea.Cmd, cond func() bool) {
	t.Helper()
	h.q.Exec(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !cond() {
		msg, err := h.q.Next(ctx)
		require.NoError(t, err, "condition not reached")
		h.q.Exec(h.c.Update(msg))
	}
}

// settle feeds messages for d regardless of any condition.
func (h *harness) settle(d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	for {
		msg, err := h.q.Next(ctx)
		if err != nil {
			return
		}
		h.q.Exec(h.c.Update(msg))
	}
}

func page(srcs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, src := range srcs {
		sb.WriteString(`<div class="photo-list-photo-container"><img src="` + src + `"></div>`)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func TestSearchDeduplicatesAndPrefixesScheme(t *testing.T) {
	h := newHarness(t)
	h.fetcher.body = page("//a/1.jpg", "//a/2.jpg", "//a/1.jpg", "//a/3.jpg")

	require.NoError(t, h.c.StartSearch("cats"))
	assert.True(t, h.c.Searching())
	assert.Equal(t, StatusSearching, h.c.Status())
	h.run(t, nil, func() bool { return len(h.ev.found) == 1 })

	assert.Equal(t, []string{"https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg"}, h.ev.links)
	for _, l := range h.ev.links {
		assert.True(t, strings.HasPrefix(l, "https:"))
	}
	assert.Equal(t, 3, h.c.LinkCount())
	assert.Equal(t, 3, h.c.SpinMax())
	assert.Equal(t, []int{3}, h.ev.found)
	assert.False(t, h.c.Searching())
	assert.Equal(t, "cats", h.c.Tag())
}

func TestSearchFailureLeavesLinksUnchanged(t *testing.T) {
	h := newHarness(t)
	h.fetcher.status = http.StatusInternalServerError
	h.fetcher.body = page("//a/1.jpg")

	require.Equal(t, 0, h.c.LinkCount())
	require.NoError(t, h.c.StartSearch("cats"))
	h.run(t, nil, func() bool { return len(h.ev.searchErr) == 1 })

	var ne *discovery.NetworkError
	assert.True(t, errors.As(h.ev.searchErr[0], &ne))
	assert.Equal(t, 0, h.c.LinkCount())
	assert.Empty(t, h.ev.links)
	assert.False(t, h.c.Searching())
	assert.Contains(t, h.c.Status(), "Search failed")

	// A failed search leaves the coordinator usable.
	h.fetcher.status = http.StatusOK
	require.NoError(t, h.c.StartSearch("cats"))
	h.run(t, nil, func() bool { return len(h.ev.found) == 1 })
	assert.Equal(t, 1, h.c.LinkCount())
}

func TestSearchRejectsEmptyAndBusy(t *testing.T) {
	h := newHarness(t)
	h.fetcher.gate = make(chan struct{})

	assert.ErrorIs(t, h.c.StartSearch("  "), ErrEmptyQuery)
	require.NoError(t, h.c.StartSearch("cats"))
	assert.ErrorIs(t, h.c.StartSearch("dogs"), ErrSearchBusy)
	assert.Equal(t, "cats", h.c.Tag())

	close(h.fetcher.gate)
	h.run(t, nil, func() bool { return !h.c.Searching() })
}

func TestResetNeverResurrectsLinks(t *testing.T) {
	h := newHarness(t)
	h.fetcher.body = page("//a/1.jpg", "//a/2.jpg")

	require.NoError(t, h.c.StartSearch("cats"))
	h.run(t, nil, func() bool { return len(h.ev.found) == 1 })
	require.Equal(t, 2, h.c.LinkCount())

	require.NoError(t, h.c.ResetLinks())
	assert.Equal(t, 0, h.c.LinkCount())
	assert.Equal(t, 0, h.c.SpinMax())

	for i := 0; i < 5; i++ {
		assert.Nil(t, h.c.PollOnce(0))
	}
	h.settle(20 * time.Millisecond)
	assert.Equal(t, 0, h.c.LinkCount())
}

func TestResetCancelsRunningSearch(t *testing.T) {
	h := newHarness(t)
	h.fetcher.gate = make(chan struct{})
	h.fetcher.body = page("//a/1.jpg")

	require.NoError(t, h.c.StartSearch("cats"))
	require.NoError(t, h.c.ResetLinks())
	assert.False(t, h.c.Searching())
	close(h.fetcher.gate)

	h.settle(50 * time.Millisecond)
	assert.Equal(t, 0, h.c.LinkCount())
	assert.Empty(t, h.ev.links)
	assert.Empty(t, h.ev.found)
}

func seed(h *harness, urls ...string) {
	for _, u := range urls {
		h.links.Add(u)
	}
}

func TestInstallValidationOrder(t *testing.T) {
	h := newHarness(t)
	seed(h, "https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg")

	tests := []struct {
		sel  Selection
		kind validate.Kind
		msg  string
	}{
		{Selection{Dir: "", Count: 0}, validate.EmptyPath, "Select the path to save"},
		{Selection{Dir: "/tmp/out", Count: 0}, validate.CountNotChosen, "The number of images to save is not selected"},
		{Selection{Dir: "/tmp/out", Count: -2}, validate.CountNotPositive, "The number of images cannot be zero"},
		{Selection{Dir: "/tmp/out", Count: 4}, validate.CountExceedsAvailable, "The number of images cannot exceed 3"},
	}
	for _, tt := range tests {
		cmd, err := h.c.StartOrCancelInstall(tt.sel)
		var ve *validate.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, tt.kind, ve.Kind)
		assert.Equal(t, tt.msg, h.c.Status())
		assert.Nil(t, cmd)
		assert.False(t, h.c.Installing())
	}
	assert.Equal(t, 0, h.inst.started)
}

func TestInstallCompletes(t *testing.T) {
	h := newHarness(t)
	seed(h, "https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg")

	cmd, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 2, Tag: "cats"})
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.True(t, h.c.Installing())
	assert.Equal(t, LabelCancel, h.c.ToggleLabel())
	assert.Equal(t, StatusSaving, h.c.Status())

	h.run(t, cmd, func() bool { return h.ev.complete == 1 })

	assert.Equal(t, []int{50, 100}, h.ev.progress)
	assert.Equal(t, 0, h.c.LinkCount())
	assert.Equal(t, 0, h.c.SpinMax())
	assert.Equal(t, 100, h.c.Percent())
	assert.Equal(t, LabelStart, h.c.ToggleLabel())
	assert.Equal(t, StatusSaved, h.c.Status())
	assert.False(t, h.c.Installing())

	assert.Equal(t, 2, h.inst.lastReq.Total)
	assert.Equal(t, "/tmp/out", h.inst.lastReq.Dir)
	assert.Equal(t, "cats", h.inst.lastReq.Tag)
	assert.Len(t, h.inst.lastReq.Links, 3)

	h.run(t, nil, func() bool { return h.c.LastResult() != nil })
	assert.Equal(t, 2, h.c.LastResult().Saved)
}

func TestInstallReportsFailedImages(t *testing.T) {
	h := newHarness(t)
	h.inst.failed = 2
	seed(h, "https://a/1.jpg", "https://a/2.jpg")

	cmd, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 2})
	require.NoError(t, err)
	h.run(t, cmd, func() bool { return h.ev.complete == 1 && h.c.LastResult() != nil })

	assert.Equal(t, StatusSaved+" (2 of 2 failed)", h.c.Status())
	assert.Equal(t, 2, h.c.LastResult().Failed)
}

func TestInstallUsesSearchTag(t *testing.T) {
	h := newHarness(t)
	h.fetcher.body = page("//a/1.jpg")
	require.NoError(t, h.c.StartSearch("red cats"))
	h.run(t, nil, func() bool { return len(h.ev.found) == 1 })

	cmd, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 1})
	require.NoError(t, err)
	h.run(t, cmd, func() bool { return h.ev.complete == 1 })
	assert.Equal(t, "red cats", h.inst.lastReq.Tag)
}

func TestSecondToggleCancels(t *testing.T) {
	h := newHarness(t)
	h.inst.block = true
	seed(h, "https://a/1.jpg", "https://a/2.jpg")

	cmd, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 2})
	require.NoError(t, err)
	h.run(t, cmd, func() bool { return len(h.ev.progress) == 1 })
	assert.Equal(t, []int{50}, h.ev.progress)

	cmd, err = h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 2})
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.False(t, h.c.Installing())
	assert.Equal(t, LabelStart, h.c.ToggleLabel())
	assert.Equal(t, StatusCancelled, h.c.Status())
	assert.Equal(t, 1, h.ev.cancelled)
	assert.Equal(t, 0, h.c.Percent())

	h.settle(50 * time.Millisecond)
	assert.NotContains(t, h.ev.progress, 100)
	assert.Equal(t, 0, h.ev.complete)
	// Links survive a cancelled install.
	assert.Equal(t, 2, h.c.LinkCount())
	// A new install can start right away.
	h.inst.block = false
	cmd, err = h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 2})
	require.NoError(t, err)
	h.run(t, cmd, func() bool { return h.ev.complete == 1 })
}

func TestResetRefusedWhileInstalling(t *testing.T) {
	h := newHarness(t)
	h.inst.block = true
	seed(h, "https://a/1.jpg")

	_, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, h.c.ResetLinks(), ErrInstallActive)
	assert.Equal(t, 1, h.c.LinkCount())
}

func TestInstallFailure(t *testing.T) {
	h := newHarness(t)
	h.inst.fail = errors.New("disk full")
	seed(h, "https://a/1.jpg")

	cmd, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 1})
	require.NoError(t, err)
	h.run(t, cmd, func() bool { return len(h.ev.failed) == 1 })

	assert.False(t, h.c.Installing())
	assert.Equal(t, LabelStart, h.c.ToggleLabel())
	assert.Contains(t, h.c.Status(), "disk full")
	assert.Equal(t, 1, h.c.LinkCount())
}

func TestStalePollIgnored(t *testing.T) {
	h := newHarness(t)
	assert.Nil(t, h.c.Update(PollMsg{Gen: 42}))
	assert.Nil(t, h.c.Update(LinkFoundMsg{Gen: 42, URL: "https://a/1.jpg"}))
	assert.Empty(t, h.ev.links)
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t)
	h.inst.block = true
	seed(h, "https://a/1.jpg")

	cmd, err := h.c.StartOrCancelInstall(Selection{Dir: "/tmp/out", Count: 1})
	require.NoError(t, err)

	h.c.Close()
	h.c.Close()
	assert.False(t, h.c.Installing())

	h.run(t, cmd, func() bool { return true })
	h.settle(30 * time.Millisecond)
	assert.Empty(t, h.ev.progress)
	assert.ErrorIs(t, h.c.StartSearch("cats"), ErrClosed)
}
