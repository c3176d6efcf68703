package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/metrics"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
	"golang.org/x/time/rate"
)

// Saver persists progress snapshots.
type Saver interface {
	Save(ctx context.Context, snap types.Snapshot) error
}

// Notifier receives progress text and terminal events. It must not block.
type Notifier interface {
	Notify(ev types.Event)
}

type Options struct {
	ForceStream       bool
	BufferSize        int
	ProgressInterval  time.Duration
	PollInterval      time.Duration
	Limiter           *rate.Limiter
	DiskCheck         bool
	MinFreeSpace      int64
	ProbeStripCookies bool
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = utils.DefaultBufferSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.Limiter == nil {
		o.Limiter = NewRateLimiter(0, 0)
	}
	return o
}

type ControllerConfig struct {
	Task     types.Task
	Fetcher  Fetcher
	Signals  *control.Signals
	DestDir  string
	Saver    Saver
	Notifier Notifier
	Options  Options
}

// Result is the outcome of one attempt. Path is set on SUCCESS.
type Result struct {
	Snapshot types.Snapshot
	Path     string
	Err      error
}

// Controller drives a single attempt of one task through
// PENDING, PREPARE and DOWNLOADING to a terminal state.
type Controller struct {
	task     types.Task
	fetcher  Fetcher
	signals  *control.Signals
	destDir  string
	saver    Saver
	notifier Notifier
	opts     Options

	mu           sync.Mutex
	snap         types.Snapshot
	lastReported int64
}

func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		task:     cfg.Task,
		fetcher:  cfg.Fetcher,
		signals:  cfg.Signals,
		destDir:  cfg.DestDir,
		saver:    cfg.Saver,
		notifier: cfg.Notifier,
		opts:     cfg.Options.withDefaults(),
		snap:     types.Snapshot{TaskID: cfg.Task.ID, Total: -1, Status: types.StatusPending},
	}
}

func (c *Controller) Task() types.Task {
	return c.task
}

func (c *Controller) Snapshot() types.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Controller) Run(ctx context.Context) Result {
	metrics.ActiveDownloads.Inc()
	defer metrics.ActiveDownloads.Dec()
	c.publish(ctx, types.StatusPending, 0, -1, "pending", false)
	res := c.execute(ctx)
	metrics.DownloadsFinished.WithLabelValues(string(res.Snapshot.Status)).Inc()
	return res
}

func (c *Controller) execute(ctx context.Context) Result {
	workDir := c.signals.Dir()
	c.publish(ctx, types.StatusPrepare, 0, -1, "preparing", false)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return c.fail(ctx, 0, -1, fmt.Errorf("error creating working directory: %v", err))
	}
	if err := os.MkdirAll(c.destDir, 0755); err != nil {
		return c.fail(ctx, 0, -1, fmt.Errorf("error creating destination directory: %v", err))
	}

	probe, err := Probe(ctx, c.fetcher, c.task.URL, c.probeHeaders())
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return c.finish(ctx, types.StatusPause, 0, -1, "interrupted", "", nil)
		}
		metrics.ProbeResults.WithLabelValues("failed").Inc()
		log.Warn().Str("op", "downloader/controller").Err(err).Msgf("probe failed for %s, falling back to a single stream", c.task.ID)
	case probe.SupportsRange:
		metrics.ProbeResults.WithLabelValues("ranged").Inc()
	default:
		metrics.ProbeResults.WithLabelValues("unsupported").Inc()
	}

	file, err := openPartial(filepath.Join(workDir, c.task.FileName))
	if err != nil {
		return c.fail(ctx, 0, probe.ContentLength, err)
	}
	defer file.Close()

	var (
		outcomes   []outcome
		downloaded int64
		total      = probe.ContentLength
	)
	watcher := c.signals.Watch(ctx, c.opts.PollInterval)
	if !probe.SupportsRange || total < 0 || c.opts.ForceStream {
		outcomes, downloaded = c.runStream(ctx, file, watcher, total)
	} else {
		plan, err := c.resolvePlan(workDir, file, total)
		if err != nil {
			watcher.Stop()
			return c.fail(ctx, 0, total, err)
		}
		var initial int64
		for _, chunk := range plan.Chunks {
			initial += readSidecar(sidecarPath(workDir, chunk.Index), chunk.Size())
		}
		if c.opts.DiskCheck {
			if err := checkFreeSpace(workDir, total-initial+c.opts.MinFreeSpace); err != nil {
				watcher.Stop()
				return c.fail(ctx, initial, total, err)
			}
		}
		outcomes, downloaded = c.runChunks(ctx, file, watcher, plan, initial)
	}
	watcher.Stop()
	file.Sync()
	file.Close()
	return c.conclude(ctx, outcomes, downloaded, total)
}

// resolvePlan reuses a persisted plan whose length still matches the remote;
// otherwise it drops stale sidecars and writes a fresh plan.
func (c *Controller) resolvePlan(workDir string, file *os.File, length int64) (Plan, error) {
	threads := max(c.task.ThreadCount, 1)
	existing, err := LoadPlan(workDir)
	if err != nil {
		log.Warn().Str("op", "downloader/controller").Err(err).Msg("discarding unreadable chunk plan")
		existing = nil
	}
	if existing != nil && existing.Valid() && existing.ContentLength == length {
		if existing.ThreadCount != threads {
			log.Info().Str("op", "downloader/controller").Msgf("resuming %s with its persisted %d-chunk plan (requested %d)", c.task.ID, existing.ThreadCount, threads)
		}
		return *existing, nil
	}
	if existing != nil {
		log.Warn().Str("op", "downloader/controller").Msgf("remote length of %s changed (%d -> %d), restarting", c.task.ID, existing.ContentLength, length)
	}
	if err := removeProgressState(workDir); err != nil {
		return Plan{}, fmt.Errorf("error clearing stale chunk state: %v", err)
	}
	if err := file.Truncate(length); err != nil {
		return Plan{}, fmt.Errorf("error sizing partial file: %v", err)
	}
	plan := NewPlan(length, threads)
	if err := plan.Save(workDir); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (c *Controller) runChunks(ctx context.Context, file *os.File, watcher *control.Watcher, plan Plan, initial int64) ([]outcome, int64) {
	log.Info().Str("op", "downloader/controller").Msgf("downloading %s in %d chunks (%s)", c.task.ID, len(plan.Chunks), utils.FormatBytes(uint64(plan.ContentLength)))
	c.lastReported = initial
	c.publish(ctx, types.StatusDownloading, initial, plan.ContentLength, utils.ProgressLine(initial, plan.ContentLength), false)

	events := make(chan chunkProgress, max(4*len(plan.Chunks), 16))
	runs := make([]func(context.Context) outcome, 0, len(plan.Chunks))
	for _, chunk := range plan.Chunks {
		w := &chunkWorker{
			url:      c.task.URL,
			headers:  c.task.Headers,
			chunk:    chunk,
			single:   plan.ThreadCount == 1,
			fetcher:  c.fetcher,
			file:     file,
			workDir:  c.signals.Dir(),
			watcher:  watcher,
			limiter:  c.opts.Limiter,
			bufSize:  c.opts.BufferSize,
			progress: events,
		}
		runs = append(runs, w.run)
	}
	return c.runWorkers(ctx, plan.ContentLength, events, runs)
}

func (c *Controller) runStream(ctx context.Context, file *os.File, watcher *control.Watcher, total int64) ([]outcome, int64) {
	log.Info().Str("op", "downloader/controller").Msgf("downloading %s as a single stream", c.task.ID)
	if err := removeProgressState(c.signals.Dir()); err != nil {
		log.Warn().Str("op", "downloader/controller").Err(err).Msg("could not clear stale chunk state")
	}
	c.lastReported = 0
	c.publish(ctx, types.StatusDownloading, 0, total, utils.ProgressLine(0, total), false)

	events := make(chan chunkProgress, 16)
	w := &streamWorker{
		url:      c.task.URL,
		headers:  c.task.Headers,
		fetcher:  c.fetcher,
		file:     file,
		watcher:  watcher,
		limiter:  c.opts.Limiter,
		bufSize:  c.opts.BufferSize,
		progress: events,
	}
	return c.runWorkers(ctx, total, events, []func(context.Context) outcome{w.run})
}

// runWorkers joins every worker while the aggregator drains the bounded
// progress queue and publishes throttled snapshots.
func (c *Controller) runWorkers(ctx context.Context, total int64, events chan chunkProgress, runs []func(context.Context) outcome) ([]outcome, int64) {
	counters := make([]atomic.Int64, len(runs))
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		c.aggregate(ctx, events, counters, total)
	}()

	results := make(chan outcome, len(runs))
	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func(run func(context.Context) outcome) {
			defer wg.Done()
			results <- run(ctx)
		}(run)
	}
	wg.Wait()
	close(events)
	<-aggDone
	close(results)

	outcomes := make([]outcome, 0, len(runs))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes, sumCounters(counters)
}

func (c *Controller) aggregate(ctx context.Context, events <-chan chunkProgress, counters []atomic.Int64, total int64) {
	ticker := time.NewTicker(c.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			counters[ev.index].Store(ev.copied)
		case <-ticker.C:
			// Snapshots never go backwards while downloading.
			sum := max(sumCounters(counters), c.lastReported)
			c.lastReported = sum
			c.publish(ctx, types.StatusDownloading, sum, total, utils.ProgressLine(sum, total), false)
		}
	}
}

func sumCounters(counters []atomic.Int64) int64 {
	var sum int64
	for i := range counters {
		sum += counters[i].Load()
	}
	return sum
}

// conclude applies the decision rules: cancel beats stop-and-save, which
// beats pause, which beats failure.
func (c *Controller) conclude(ctx context.Context, outcomes []outcome, downloaded, total int64) Result {
	st := c.signals.Read()
	var stopped, saved, canceled bool
	var firstErr error
	for _, o := range outcomes {
		switch o.kind {
		case outcomeStopped:
			stopped = true
		case outcomeSaved:
			saved = true
		case outcomeCanceled:
			canceled = true
		case outcomeFailed:
			metrics.ChunkFailures.Inc()
			log.Debug().Str("op", "downloader/controller").Err(o.err).Msgf("chunk %d failed", o.index)
			if firstErr == nil {
				firstErr = o.err
			}
		}
	}

	switch {
	case st.Cancel || canceled:
		if err := Discard(c.signals.Dir()); err != nil {
			log.Warn().Str("op", "downloader/controller").Err(err).Msg("could not remove canceled download")
		}
		return c.finish(ctx, types.StatusCanceled, downloaded, total, "canceled", "", nil)
	case st.StopAndSave || saved:
		return c.deliverPartial(ctx, downloaded, total)
	case st.Pause || stopped:
		info := "paused"
		if !st.Pause && ctx.Err() != nil {
			info = "interrupted"
		}
		return c.finish(ctx, types.StatusPause, downloaded, total, info, "", nil)
	case firstErr != nil:
		return c.fail(ctx, downloaded, total, firstErr)
	}
	if total < 0 {
		total = downloaded
	}
	return c.deliver(ctx, total, total)
}

// deliver finalizes the partial file. A failed move downgrades to ERROR.
func (c *Controller) deliver(ctx context.Context, downloaded, total int64) Result {
	path, err := Finalize(c.signals.Dir(), c.task.FileName, c.destDir)
	if err != nil {
		return c.fail(ctx, downloaded, total, err)
	}
	return c.finish(ctx, types.StatusSuccess, total, total, "success", path, nil)
}

// deliverPartial keeps only the bytes received in order from offset 0.
func (c *Controller) deliverPartial(ctx context.Context, downloaded, total int64) Result {
	path, saved, err := FinalizePartial(c.signals.Dir(), c.task.FileName, c.destDir)
	if err != nil {
		return c.fail(ctx, downloaded, total, err)
	}
	return c.finish(ctx, types.StatusSuccess, saved, saved, "success", path, nil)
}

func (c *Controller) fail(ctx context.Context, downloaded, total int64, err error) Result {
	log.Error().Str("op", "downloader/controller").Err(err).Msgf("download %s failed", c.task.ID)
	return c.finish(ctx, types.StatusError, downloaded, total, "failed: "+err.Error(), "", err)
}

func (c *Controller) finish(ctx context.Context, status types.Status, downloaded, total int64, info, path string, err error) Result {
	snap := c.publish(ctx, status, downloaded, total, info, true)
	if status != types.StatusError {
		log.Info().Str("op", "downloader/controller").Msgf("download %s ended: %s", c.task.ID, info)
	}
	return Result{Snapshot: snap, Path: path, Err: err}
}

func (c *Controller) publish(ctx context.Context, status types.Status, downloaded, total int64, info string, terminal bool) types.Snapshot {
	snap := types.Snapshot{
		TaskID:     c.task.ID,
		Downloaded: downloaded,
		Total:      total,
		Status:     status,
		InfoLine:   info,
		UpdatedAt:  time.Now(),
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	// A raised flag means a command already persisted its own transition;
	// progress must not overwrite it before the run ends.
	if c.saver != nil && (terminal || !c.signals.Pending()) {
		if err := c.saver.Save(context.WithoutCancel(ctx), snap); err != nil {
			log.Warn().Str("op", "downloader/controller").Err(err).Msgf("could not persist progress for %s", c.task.ID)
		}
	}
	if c.notifier != nil {
		c.notifier.Notify(types.Event{Snapshot: snap, FileName: c.task.FileName, Terminal: terminal})
	}
	return snap
}

func (c *Controller) probeHeaders() map[string]string {
	if !c.opts.ProbeStripCookies {
		return c.task.Headers
	}
	out := make(map[string]string, len(c.task.Headers))
	for k, v := range c.task.Headers {
		if !strings.EqualFold(k, "Cookie") {
			out[k] = v
		}
	}
	return out
}
