package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingFetcher struct {
	err error
}

func (f failingFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	return nil, f.err
}

func TestProbeRangeSupported(t *testing.T) {
	_, srv := newRangeServer(t, payload(4096), true)
	res, err := Probe(context.Background(), NewHTTPFetcher(srv.Client()), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, ProbeResult{SupportsRange: true, ContentLength: 4096}, res)
}

func TestProbeRangeUnsupported(t *testing.T) {
	_, srv := newRangeServer(t, payload(4096), false)
	res, err := Probe(context.Background(), NewHTTPFetcher(srv.Client()), srv.URL, nil)
	require.NoError(t, err)
	assert.False(t, res.SupportsRange)
	assert.Equal(t, int64(4096), res.ContentLength)
}

func TestProbeUnknownTotalUsesPlainGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			w.Header().Set("Content-Range", "bytes 0-0/*")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte{1})
			return
		}
		w.Header().Set("Content-Length", "777")
		w.Write(make([]byte, 777))
	}))
	defer srv.Close()

	res, err := Probe(context.Background(), NewHTTPFetcher(srv.Client()), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, ProbeResult{SupportsRange: true, ContentLength: 777}, res)
}

func TestProbeNetworkFailure(t *testing.T) {
	res, err := Probe(context.Background(), failingFetcher{err: errors.New("connection reset")}, "http://example.invalid", nil)
	assert.Error(t, err)
	assert.Equal(t, ProbeResult{SupportsRange: false, ContentLength: -1}, res)
}

func TestProbeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	res, err := Probe(context.Background(), NewHTTPFetcher(srv.Client()), srv.URL, nil)
	assert.Error(t, err)
	assert.False(t, res.SupportsRange)
}

func TestProbeSendsHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Referer")
		w.Header().Set("Content-Range", "bytes 0-0/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer srv.Close()
	_, err := Probe(context.Background(), NewHTTPFetcher(srv.Client()), srv.URL, map[string]string{"Referer": "https://origin"})
	require.NoError(t, err)
	assert.Equal(t, "https://origin", got)
}

func TestParseContentRangeTotal(t *testing.T) {
	n, ok := parseContentRangeTotal("bytes 0-0/12345")
	assert.True(t, ok)
	assert.Equal(t, int64(12345), n)
	for _, bad := range []string{"", "bytes 0-0/*", "bytes 0-0/", "garbage"} {
		_, ok := parseContentRangeTotal(bad)
		assert.False(t, ok, bad)
	}
}

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=5-9", Request{Start: 5, End: 9}.RangeHeader())
	assert.Equal(t, "bytes=5-", Request{Start: 5, End: -1}.RangeHeader())
	assert.Equal(t, "", Request{Start: -1, End: -1}.RangeHeader())
}
