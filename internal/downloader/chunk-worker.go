package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/metrics"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
	"golang.org/x/time/rate"
)

// chunkWorker transfers one planned range into the shared partial file.
type chunkWorker struct {
	url      string
	headers  map[string]string
	chunk    types.Chunk
	single   bool // open ended range for single-thread plans
	fetcher  Fetcher
	file     io.WriterAt
	workDir  string
	watcher  *control.Watcher
	limiter  *rate.Limiter
	bufSize  int
	progress chan<- chunkProgress
}

func (w *chunkWorker) run(ctx context.Context) outcome {
	idx := w.chunk.Index
	size := w.chunk.Size()
	path := sidecarPath(w.workDir, idx)
	copied := readSidecar(path, size)
	w.progress <- chunkProgress{index: idx, copied: copied}
	if copied >= size {
		log.Debug().Str("op", "downloader/chunk-worker").Msgf("chunk %d already complete", idx)
		return outcome{index: idx, kind: outcomeSuccess}
	}
	if o, ok := interruption(ctx, w.watcher, idx); ok {
		return o
	}

	sc, err := openSidecar(path, copied)
	if err != nil {
		return failed(idx, err)
	}
	defer sc.close()

	end := w.chunk.End
	if w.single {
		end = -1
	}
	offset := w.chunk.Start + copied
	resp, err := w.fetcher.Fetch(w.watcher.Context(), Request{URL: w.url, Headers: w.headers, Start: offset, End: end})
	if err != nil {
		if o, ok := interruption(ctx, w.watcher, idx); ok {
			return o
		}
		return failed(idx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && !(resp.StatusCode == http.StatusOK && offset == 0) {
		return failed(idx, fmt.Errorf("chunk %d: %w: %d", idx, utils.ErrUnexpectedStatus, resp.StatusCode))
	}
	log.Debug().Str("op", "downloader/chunk-worker").Msgf("chunk %d transferring from %d to %d", idx, offset, w.chunk.End)

	buf := make([]byte, w.bufSize)
	for copied < size {
		if o, ok := interruption(ctx, w.watcher, idx); ok {
			return o
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			n = int(min(int64(n), size-copied))
			if _, err := w.file.WriteAt(buf[:n], w.chunk.Start+copied); err != nil {
				return failed(idx, writeError(err))
			}
			copied += int64(n)
			if err := sc.write(copied); err != nil {
				return failed(idx, err)
			}
			w.progress <- chunkProgress{index: idx, copied: copied}
			metrics.BytesDownloaded.Add(float64(n))
			if err := w.limiter.WaitN(w.watcher.Context(), n); err != nil {
				if o, ok := interruption(ctx, w.watcher, idx); ok {
					return o
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if o, ok := interruption(ctx, w.watcher, idx); ok {
				return o
			}
			return failed(idx, fmt.Errorf("error reading response body: %v", readErr))
		}
	}
	if copied < size {
		if o, ok := interruption(ctx, w.watcher, idx); ok {
			return o
		}
		return failed(idx, fmt.Errorf("chunk %d: %w after %d of %d bytes", idx, utils.ErrUnexpectedEOF, copied, size))
	}
	return outcome{index: idx, kind: outcomeSuccess}
}

// openPartial opens the shared partial file without truncating it.
func openPartial(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening partial file: %v", err)
	}
	return f, nil
}
