package discovery

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"pix/pkg/downloader"
)

type downloaderFetcher struct {
	dl downloader.Downloader
}

// NewFetcher returns a Fetcher backed by dl.
func NewFetcher(dl downloader.Downloader) Fetcher {
	return &downloaderFetcher{dl: dl}
}

func (f *downloaderFetcher) Fetch(ctx context.Context, url string) (int, string, error) {
	var buf bytes.Buffer
	err := f.dl.Download(ctx, url, &buf, nil)

	var se *downloader.StatusError
	switch {
	case err == nil:
		return http.StatusOK, buf.String(), nil
	case errors.As(err, &se):
		return se.Code, "", nil
	default:
		return 0, "", err
	}
}
