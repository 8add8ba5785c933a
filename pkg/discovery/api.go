package discovery

import (
	"context"
	"errors"
	"fmt"
)

// Default search settings for the Flickr results page.
const (
	DefaultSearchURL = "https://www.flickr.com/search/?text="
	DefaultContainer = "div"
	DefaultClass     = "photo-list-photo-container"
	DefaultScheme    = "https:"
)

// ErrEmptyQuery is returned when a search is started without a query.
var ErrEmptyQuery = errors.New("empty search query")

// Fetcher retrieves a page.
type Fetcher interface {
	// Fetch returns the HTTP status and body of url.
	// A non-200 status is not an error; transport failures and
	// cancellation are.
	Fetch(ctx context.Context, url string) (status int, body string, err error)
}

// Extractor pulls image links out of a fetched page.
type Extractor interface {
	// Extract returns links in page order. pageURL is used to resolve
	// relative references.
	Extract(pageURL string, body string) ([]string, error)
}

// NetworkError reports a failed search: a transport error, a non-200
// response or a page that could not be parsed.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("search %s: unexpected status %d", e.URL, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }
