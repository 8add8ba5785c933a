package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"pix/pkg/display"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzhttp"
)

// DefaultUserAgent is sent when no other agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) pix/1.0"

// Immutable
type httpHandler struct {
	client    *http.Client
	userAgent string
}

// NewHTTPHandler returns a handler for http and https URIs.
// Responses are requested compressed and transparently decoded.
func NewHTTPHandler(userAgent string) SchemeHandler {
	return &httpHandler{
		client: &http.Client{
			Timeout:   0, // Handled by context
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		userAgent: userAgent,
	}
}

func (h *httpHandler) Schemes() []string {
	return []string{"http", "https"}
}

func (h *httpHandler) Download(ctx context.Context, uri string, w io.Writer, task display.Task) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URI: uri, Code: resp.StatusCode, Status: resp.Status}
	}

	pw := &progressWriter{
		task:  task,
		total: resp.ContentLength,
		start: time.Now(),
	}

	_, err = io.Copy(io.MultiWriter(w, pw), resp.Body)
	return err
}

// Mutable
type progressWriter struct {
	task    display.Task
	total   int64
	written int64
	start   time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += int64(n)

	if pw.total > 0 {
		percent := int(pw.written * 100 / pw.total)
		elapsed := time.Since(pw.start).Seconds()
		speed := float64(pw.written) / elapsed
		msg := fmt.Sprintf("%s / %s (%s/s)",
			humanize.Bytes(uint64(pw.written)),
			humanize.Bytes(uint64(pw.total)),
			humanize.Bytes(uint64(speed)))
		pw.task.Progress(percent, msg)
	} else {
		pw.task.Progress(0, fmt.Sprintf("%s downloaded", humanize.Bytes(uint64(pw.written))))
	}

	return n, nil
}
