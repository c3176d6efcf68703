package downloader

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/metrics"
	"github.com/tanq16/vdl/internal/utils"
	"golang.org/x/time/rate"
)

// streamWorker fetches the whole resource sequentially from offset 0. It is
// used when ranges are unavailable, so it never resumes.
type streamWorker struct {
	url      string
	headers  map[string]string
	fetcher  Fetcher
	file     *os.File
	watcher  *control.Watcher
	limiter  *rate.Limiter
	bufSize  int
	progress chan<- chunkProgress
}

func (w *streamWorker) run(ctx context.Context) outcome {
	if err := w.file.Truncate(0); err != nil {
		return failed(0, fmt.Errorf("error truncating partial file: %v", err))
	}
	w.progress <- chunkProgress{index: 0, copied: 0}
	if o, ok := interruption(ctx, w.watcher, 0); ok {
		return o
	}

	resp, err := w.fetcher.Fetch(w.watcher.Context(), Request{URL: w.url, Headers: w.headers, Start: -1, End: -1})
	if err != nil {
		if o, ok := interruption(ctx, w.watcher, 0); ok {
			return o
		}
		return failed(0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(0, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode))
	}
	log.Debug().Str("op", "downloader/stream-worker").Msgf("streaming %s (length %d)", w.url, resp.ContentLength)

	var copied int64
	buf := make([]byte, w.bufSize)
	for {
		if o, ok := interruption(ctx, w.watcher, 0); ok {
			return o
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.file.WriteAt(buf[:n], copied); err != nil {
				return failed(0, writeError(err))
			}
			copied += int64(n)
			w.progress <- chunkProgress{index: 0, copied: copied}
			metrics.BytesDownloaded.Add(float64(n))
			if err := w.limiter.WaitN(w.watcher.Context(), n); err != nil {
				if o, ok := interruption(ctx, w.watcher, 0); ok {
					return o
				}
			}
		}
		if readErr == io.EOF {
			return outcome{index: 0, kind: outcomeSuccess}
		}
		if readErr != nil {
			if o, ok := interruption(ctx, w.watcher, 0); ok {
				return o
			}
			return failed(0, fmt.Errorf("error reading response body: %v", readErr))
		}
	}
}
