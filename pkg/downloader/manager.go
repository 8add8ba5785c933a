package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"pix/pkg/display"
	"strings"
)

// Option configures the default downloader.
type Option func(*options)

type options struct {
	userAgent string
}

// WithUserAgent sets the User-Agent header sent with every HTTP request.
// An empty ua keeps DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// Mutable
type manager struct {
	handlers map[string]SchemeHandler
}

// NewDefaultDownloader returns a Downloader with the HTTP(S) handler registered.
func NewDefaultDownloader(opts ...Option) Downloader {
	o := options{userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(&o)
	}
	m := &manager{
		handlers: make(map[string]SchemeHandler),
	}
	m.Register(NewHTTPHandler(o.userAgent))
	return m
}

func (m *manager) Register(h SchemeHandler) {
	for _, scheme := range h.Schemes() {
		m.handlers[scheme] = h
	}
}

func (m *manager) Download(ctx context.Context, uri string, w io.Writer, task display.Task) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid uri: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	handler, ok := m.handlers[scheme]
	if !ok {
		return fmt.Errorf("unsupported scheme: %s", scheme)
	}

	if task == nil {
		task = display.NopTask()
	}
	return handler.Download(ctx, uri, w, task)
}
