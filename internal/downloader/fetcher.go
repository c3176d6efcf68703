package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/vdl/internal/utils"
)

// Request describes one ranged GET. Start < 0 sends no Range header and
// End < 0 leaves the range open ended.
type Request struct {
	URL     string
	Headers map[string]string
	Start   int64
	End     int64
}

func (r Request) RangeHeader() string {
	if r.Start < 0 {
		return ""
	}
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Response is the subset of a transfer response the workers rely on.
// Callers must close Body.
type Response struct {
	StatusCode    int
	ContentLength int64
	ContentRange  string
	Body          io.ReadCloser
}

// Fetcher issues ranged reads against a remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// HTTPFetcher adapts an HTTP client to Fetcher.
type HTTPFetcher struct {
	client utils.HTTPDoer
}

func NewHTTPFetcher(client utils.HTTPDoer) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %v", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if rh := r.RangeHeader(); rh != "" {
		req.Header.Set("Range", rh)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET request: %w", err)
	}
	return &Response{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		ContentRange:  resp.Header.Get("Content-Range"),
		Body:          resp.Body,
	}, nil
}
