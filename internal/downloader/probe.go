package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/utils"
)

type ProbeResult struct {
	SupportsRange bool
	ContentLength int64 // -1 when unknown
}

// Probe asks for the first byte only. A 206 means the origin honors ranges;
// the total length comes from Content-Range or, failing that, a plain GET.
func Probe(ctx context.Context, f Fetcher, url string, headers map[string]string) (ProbeResult, error) {
	resp, err := f.Fetch(ctx, Request{URL: url, Headers: headers, Start: 0, End: 0})
	if err != nil {
		return ProbeResult{SupportsRange: false, ContentLength: -1}, fmt.Errorf("range probe failed: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))
	resp.Body.Close()

	if resp.StatusCode == http.StatusPartialContent {
		if total, ok := parseContentRangeTotal(resp.ContentRange); ok {
			log.Debug().Str("op", "downloader/probe").Msgf("range supported, length %d from Content-Range", total)
			return ProbeResult{SupportsRange: true, ContentLength: total}, nil
		}
		length, err := plainLength(ctx, f, url, headers)
		return ProbeResult{SupportsRange: true, ContentLength: length}, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug().Str("op", "downloader/probe").Msgf("range not supported (status %d)", resp.StatusCode)
		return ProbeResult{SupportsRange: false, ContentLength: resp.ContentLength}, nil
	}
	return ProbeResult{SupportsRange: false, ContentLength: -1}, fmt.Errorf("range probe failed: %w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
}

func plainLength(ctx context.Context, f Fetcher, url string, headers map[string]string) (int64, error) {
	resp, err := f.Fetch(ctx, Request{URL: url, Headers: headers, Start: -1, End: -1})
	if err != nil {
		return -1, fmt.Errorf("length lookup failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return -1, fmt.Errorf("length lookup failed: %w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp.ContentLength, nil
}

// parseContentRangeTotal reads the total from "bytes 0-0/12345".
func parseContentRangeTotal(header string) (int64, bool) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(header[idx+1:]), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
