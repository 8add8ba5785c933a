// Package discovery searches a results page for image links.
package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"pix/pkg/loop"
	"pix/pkg/operation"
)

// Callbacks receive the results of one search. Both run on the discovery
// loop's worker goroutine.
type Callbacks struct {
	// OnLink is called once per extracted link, in page order.
	OnLink func(url string)
	// OnDone is called once with the terminal state. A failed search
	// carries a *NetworkError.
	OnDone func(state operation.State, err error)
}

// Discovery starts searches on a dedicated loop.
// Immutable
type Discovery struct {
	loop      *loop.Loop
	fetcher   Fetcher
	extractor Extractor
	searchURL string
	logger    *slog.Logger
}

func New(l *loop.Loop, fetcher Fetcher, extractor Extractor, searchURL string, logger *slog.Logger) *Discovery {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	if extractor == nil {
		extractor = NewHTMLExtractor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		loop:      l,
		fetcher:   fetcher,
		extractor: extractor,
		searchURL: searchURL,
		logger:    logger,
	}
}

// URLFor returns the results page address for query. The query is appended
// as given, without escaping.
func (d *Discovery) URLFor(query string) string {
	return d.searchURL + query
}

// Start schedules a search for query and returns its operation.
func (d *Discovery) Start(query string, cb Callbacks) (*operation.Operation, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	pageURL := d.URLFor(query)
	logger := d.logger.With("url", pageURL)

	op := operation.New("search", d.loop, logger)
	work := func(ctx context.Context) error {
		return d.search(ctx, pageURL, cb.OnLink, logger)
	}
	if err := op.Start(work, cb.OnDone); err != nil {
		return nil, err
	}
	return op, nil
}

func (d *Discovery) search(ctx context.Context, pageURL string, onLink func(string), logger *slog.Logger) error {
	logger.Info("searching")

	status, body, err := d.fetcher.Fetch(ctx, pageURL)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return &NetworkError{URL: pageURL, Err: err}
	}
	if status != http.StatusOK {
		return &NetworkError{URL: pageURL, Status: status}
	}

	found, err := d.extractor.Extract(pageURL, body)
	if err != nil {
		return &NetworkError{URL: pageURL, Status: status, Err: err}
	}

	for _, link := range found {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onLink != nil {
			onLink(link)
		}
	}
	logger.Info("search finished", "links", len(found))
	return nil
}
