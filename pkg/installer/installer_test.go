package installer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"pix/pkg/downloader"
	"pix/pkg/loop"
	"pix/pkg/operation"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T) *loop.Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New("install", nil)
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

type recorder struct {
	mu       sync.Mutex
	progress [][2]int
	res      Result
	state    operation.State
	err      error
	done     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) onProgress(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{done, total})
}

func (r *recorder) onDone(res Result, state operation.State, err error) {
	r.res, r.state, r.err = res, state, err
	close(r.done)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("install did not finish")
	}
}

func imageServer(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("image:" + r.URL.Path))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNewPlan(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	plans, err := NewPlan(Request{
		Links: []string{"https://a/1.JPG", "https://a/2.png?size=l", "https://a/3", "https://a/4.jpg"},
		Dir:   dir,
		Tag:   "red cats/dogs",
		Total: 3,
	})
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "red_catsdogs_1.jpg"), plans[0].Path)
	assert.Equal(t, filepath.Join(dir, "red_catsdogs_2.png"), plans[1].Path)
	assert.Equal(t, filepath.Join(dir, "red_catsdogs_3.jpg"), plans[2].Path)
	assert.Equal(t, 3, plans[2].Index)
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "image", SanitizeTag("  "))
	assert.Equal(t, "image", SanitizeTag("../"))
	assert.Equal(t, "cats", SanitizeTag("cats"))
}

func TestInstall(t *testing.T) {
	ts := imageServer(t)
	dir := t.TempDir()

	in := New(newLoop(t), downloader.NewDefaultDownloader(), Options{Parallel: 2})
	rec := newRecorder()
	_, err := in.Start(Request{
		Links: []string{ts.URL + "/1.jpg", ts.URL + "/2.jpg", ts.URL + "/3.jpg"},
		Dir:   dir,
		Tag:   "cats",
		Total: 2,
	}, rec.onProgress, rec.onDone)
	require.NoError(t, err)
	rec.wait(t)

	require.NoError(t, rec.err)
	assert.Equal(t, operation.Completed, rec.state)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, rec.progress)
	assert.Equal(t, 2, rec.res.Saved)

	content, err := os.ReadFile(filepath.Join(dir, "cats_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image:/1.jpg", string(content))
	assert.FileExists(t, filepath.Join(dir, "cats_2.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "cats_3.jpg"))
}

func TestInstallCountsFailures(t *testing.T) {
	ts := imageServer(t)
	dir := t.TempDir()

	in := New(newLoop(t), downloader.NewDefaultDownloader(), Options{Parallel: 1, Rate: 100})
	rec := newRecorder()
	_, err := in.Start(Request{
		Links: []string{ts.URL + "/1.jpg", ts.URL + "/missing.jpg", ts.URL + "/3.jpg"},
		Dir:   dir,
		Tag:   "cats",
		Total: 3,
	}, rec.onProgress, rec.onDone)
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, operation.Completed, rec.state)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, rec.progress)
	assert.Equal(t, 2, rec.res.Saved)
	assert.Equal(t, 1, rec.res.Failed)
	assert.NoFileExists(t, filepath.Join(dir, "cats_2.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "cats_2.jpg.part"))
}

func TestNewPlanSkipsTakenNumbers(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cats_1.png", "cats_2.jpg.part", "cats_4.jpg", "dogs_3.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	plans, err := NewPlan(Request{
		Links: []string{"https://a/x.jpg", "https://a/y.jpg", "https://a/z.jpg"},
		Dir:   dir,
		Tag:   "cats",
		Total: 3,
	})
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, filepath.Join(dir, "cats_3.jpg"), plans[0].Path)
	assert.Equal(t, filepath.Join(dir, "cats_5.jpg"), plans[1].Path)
	assert.Equal(t, filepath.Join(dir, "cats_6.jpg"), plans[2].Path)
	assert.Equal(t, []int{1, 2, 3}, []int{plans[0].Index, plans[1].Index, plans[2].Index})
}

func TestNewPlanNegativeTotal(t *testing.T) {
	plans, err := NewPlan(Request{Links: []string{"https://a/1.jpg"}, Dir: t.TempDir(), Total: -1})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestInstallDoesNotOverwrite(t *testing.T) {
	ts := imageServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cats_1.jpg"), []byte("old"), 0644))

	in := New(newLoop(t), downloader.NewDefaultDownloader(), Options{})
	rec := newRecorder()
	_, err := in.Start(Request{Links: []string{ts.URL + "/1.jpg"}, Dir: dir, Tag: "cats", Total: 1}, rec.onProgress, rec.onDone)
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, 1, rec.res.Saved)
	content, _ := os.ReadFile(filepath.Join(dir, "cats_1.jpg"))
	assert.Equal(t, "old", string(content))
	content, _ = os.ReadFile(filepath.Join(dir, "cats_2.jpg"))
	assert.Equal(t, "image:/1.jpg", string(content))
	assert.Equal(t, [][2]int{{1, 1}}, rec.progress)
}

func TestRepeatedInstallsWithSameTag(t *testing.T) {
	ts := imageServer(t)
	dir := t.TempDir()
	in := New(newLoop(t), downloader.NewDefaultDownloader(), Options{})

	for _, link := range []string{"/a.jpg", "/b.jpg"} {
		rec := newRecorder()
		_, err := in.Start(Request{Links: []string{ts.URL + link}, Dir: dir, Tag: "cats", Total: 1}, rec.onProgress, rec.onDone)
		require.NoError(t, err)
		rec.wait(t)
		require.Equal(t, operation.Completed, rec.state)
		assert.Equal(t, 1, rec.res.Saved, link)
		assert.Equal(t, 0, rec.res.Existing, link)
	}

	a, err := os.ReadFile(filepath.Join(dir, "cats_1.jpg"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "cats_2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image:/a.jpg", string(a))
	assert.Equal(t, "image:/b.jpg", string(b))
}

func TestInstallCancel(t *testing.T) {
	arrived := make(chan struct{}, 10)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-r.Context().Done()
	}))
	defer ts.Close()

	in := New(newLoop(t), downloader.NewDefaultDownloader(), Options{Parallel: 1})
	rec := newRecorder()
	op, err := in.Start(Request{
		Links: []string{ts.URL + "/1.jpg", ts.URL + "/2.jpg", ts.URL + "/3.jpg"},
		Dir:   t.TempDir(),
		Tag:   "cats",
		Total: 3,
	}, rec.onProgress, rec.onDone)
	require.NoError(t, err)

	<-arrived
	op.Cancel()
	rec.wait(t)

	assert.Equal(t, operation.Cancelled, rec.state)
	assert.Empty(t, rec.progress)
	assert.Equal(t, 0, rec.res.Failed)
	assert.Len(t, arrived, 0, "no further downloads scheduled after cancel")
}

func TestInstallBadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	in := New(newLoop(t), downloader.NewDefaultDownloader(), Options{})
	rec := newRecorder()
	_, err := in.Start(Request{Links: []string{"https://a/1.jpg"}, Dir: filepath.Join(file, "out"), Tag: "cats", Total: 1}, rec.onProgress, rec.onDone)
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, operation.Failed, rec.state)
	assert.Error(t, rec.err)
}
