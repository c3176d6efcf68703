package downloader

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/utils"
	"golang.org/x/time/rate"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeStopped
	outcomeSaved
	outcomeCanceled
	outcomeFailed
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomeStopped:
		return "stopped"
	case outcomeSaved:
		return "saved"
	case outcomeCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

type outcome struct {
	index int
	kind  outcomeKind
	err   error
}

type chunkProgress struct {
	index  int
	copied int64
}

// interruption maps the watched flags, then parent cancellation, to an
// outcome. Cancel wins over stop-and-save, which wins over pause.
func interruption(ctx context.Context, w *control.Watcher, index int) (outcome, bool) {
	st := w.State()
	switch {
	case st.Cancel:
		return outcome{index: index, kind: outcomeCanceled}, true
	case st.StopAndSave:
		return outcome{index: index, kind: outcomeSaved}, true
	case st.Pause:
		return outcome{index: index, kind: outcomeStopped}, true
	}
	if ctx.Err() != nil {
		return outcome{index: index, kind: outcomeStopped}, true
	}
	return outcome{}, false
}

func failed(index int, err error) outcome {
	return outcome{index: index, kind: outcomeFailed, err: err}
}

func writeError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", utils.ErrInsufficientSpace, err)
	}
	return fmt.Errorf("error writing to output file: %v", err)
}

// NewRateLimiter returns a byte-rate limiter shared by every worker of a
// process. A non-positive rate disables limiting.
func NewRateLimiter(bytesPerSecond int64, burst int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), max(burst, int(bytesPerSecond)))
}
