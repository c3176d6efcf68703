// Package manager keeps at most one controller per task and translates the
// lifecycle commands into store transitions and control signals.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/downloader"
	"github.com/tanq16/vdl/internal/store"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

var (
	ErrNotFound         = errors.New("task not found")
	ErrNotResumable     = errors.New("task cannot be resumed")
	ErrRunningElsewhere = errors.New("task is running in another process")
)

type Config struct {
	Store            store.ProgressStore
	Signals          *control.Store
	Factory          *Factory
	DestDir          string
	DefaultExtension string
	Notifier         downloader.Notifier
	Options          downloader.Options
	// StaleAfter is how long an in-flight record may go without a snapshot
	// before it is treated as abandoned by a dead process.
	StaleAfter time.Duration
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	ctrl   *downloader.Controller
	result downloader.Result
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

type Manager struct {
	cfg  Config
	mu   sync.Mutex
	runs map[string]*run
}

func New(cfg Config) *Manager {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.DefaultExtension == "" {
		cfg.DefaultExtension = utils.DefaultExtension
	}
	return &Manager{cfg: cfg, runs: make(map[string]*run)}
}

// Normalize fills the ID, file name, thread count and creation time of a
// task that only carries a URL.
func (m *Manager) Normalize(task types.Task) types.Task {
	if task.ID == "" {
		task.ID = utils.TaskIDFor(task.URL)
	}
	if task.FileName == "" {
		task.FileName = utils.FileNameFromURL(task.URL)
	}
	task.FileName = utils.SanitizeFileName(task.FileName, m.cfg.DefaultExtension)
	task.ThreadCount = max(task.ThreadCount, 1)
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	return task
}

// Start launches a fresh attempt for task, replacing any run of the same ID.
// A task another process is still updating is refused.
func (m *Manager) Start(ctx context.Context, task types.Task) error {
	if task.URL == "" {
		return fmt.Errorf("task has no URL")
	}
	task = m.Normalize(task)
	kind, err := KindFor(task.URL)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.runs[task.ID]; ok && !old.finished() {
		log.Info().Str("op", "manager/start").Msgf("replacing active run of %s", task.ID)
		old.cancel()
		<-old.done
	}

	existing, err := m.cfg.Store.Get(ctx, task.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = types.Record{}
	case err != nil:
		return fmt.Errorf("error loading task %s: %w", task.ID, err)
	}
	if existing.Snapshot.Status == types.StatusSuccess && m.destinationExists(task) {
		log.Info().Str("op", "manager/start").Msgf("%s is already downloaded", task.ID)
		m.runs[task.ID] = m.finishedRun(existing.Snapshot, filepath.Join(m.cfg.DestDir, task.FileName))
		m.notify(existing.Snapshot, task.FileName)
		return nil
	}
	if existing.Snapshot.Status.InFlight() && !m.stale(existing) {
		return fmt.Errorf("%w: %s was updated %s ago", ErrRunningElsewhere, task.ID, time.Since(existing.Snapshot.UpdatedAt).Round(time.Second))
	}
	if !existing.Task.CreatedAt.IsZero() {
		task.CreatedAt = existing.Task.CreatedAt
	}

	fetcher, err := m.cfg.Factory.Fetcher(ctx, kind)
	if err != nil {
		return err
	}
	// Flags left by an earlier run are lowered before the new run is visible,
	// so any command issued after Start returns is seen by the controller.
	signals := m.cfg.Signals.For(task.ID)
	if err := signals.Clear(); err != nil {
		return fmt.Errorf("error clearing stale flags of %s: %w", task.ID, err)
	}
	total := int64(-1)
	if existing.Task.ID != "" {
		total = existing.Snapshot.Total
	}
	rec := types.Record{
		Task: task,
		Snapshot: types.Snapshot{
			TaskID:     task.ID,
			Downloaded: existing.Snapshot.Downloaded,
			Total:      total,
			Status:     types.StatusPending,
			InfoLine:   "pending",
			UpdatedAt:  time.Now(),
		},
	}
	if err := m.cfg.Store.Put(ctx, rec); err != nil {
		return fmt.Errorf("error persisting task %s: %w", task.ID, err)
	}

	ctrl := downloader.NewController(downloader.ControllerConfig{
		Task:     task,
		Fetcher:  fetcher,
		Signals:  signals,
		DestDir:  m.cfg.DestDir,
		Saver:    m.cfg.Store,
		Notifier: m.cfg.Notifier,
		Options:  m.cfg.Options,
	})
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{}), ctrl: ctrl}
	m.runs[task.ID] = r
	log.Info().Str("op", "manager/start").Msgf("starting %s (%s, %d threads) -> %s", task.ID, kind, task.ThreadCount, task.FileName)

	go func() {
		defer close(r.done)
		defer cancel()
		res := ctrl.Run(runCtx)
		if res.Snapshot.Status == types.StatusCanceled {
			if err := m.cfg.Store.Delete(context.WithoutCancel(ctx), task.ID); err != nil {
				log.Warn().Str("op", "manager/run").Err(err).Msgf("could not delete canceled task %s", task.ID)
			}
		}
		r.result = res
	}()
	return nil
}

// Resume starts a new attempt from the stored task. The chunk layout comes
// from the plan persisted in the working directory.
func (m *Manager) Resume(ctx context.Context, id string) error {
	rec, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if m.Active(id) {
		return nil
	}
	switch rec.Snapshot.Status {
	case types.StatusCanceled:
		return fmt.Errorf("%w: %s was canceled", ErrNotResumable, id)
	case types.StatusSuccess:
		if m.destinationExists(rec.Task) {
			return fmt.Errorf("%w: %s is already downloaded", ErrNotResumable, id)
		}
	}
	return m.Start(ctx, rec.Task)
}

func (m *Manager) Pause(ctx context.Context, id string) error {
	rec, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Snapshot.Status == types.StatusPause {
		return nil
	}
	if !m.Active(id) && !rec.Snapshot.Status.InFlight() {
		log.Debug().Str("op", "manager/pause").Msgf("%s is %s, nothing to pause", id, rec.Snapshot.Status)
		return nil
	}
	if err := m.persist(ctx, rec.Snapshot, types.StatusPause, "paused"); err != nil {
		return err
	}
	if err := m.cfg.Signals.RequestPause(id); err != nil {
		return fmt.Errorf("error raising pause for %s: %w", id, err)
	}
	log.Info().Str("op", "manager/pause").Msgf("pause requested for %s", id)
	return nil
}

// Cancel stops any run, removes the working directory and forgets the task.
// With removeFile a finalized download is deleted as well.
func (m *Manager) Cancel(ctx context.Context, id string, removeFile bool) error {
	rec, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.persist(ctx, rec.Snapshot, types.StatusCanceled, "canceled"); err != nil {
		return err
	}
	m.mu.Lock()
	r, live := m.runs[id]
	m.mu.Unlock()

	switch {
	case live && !r.finished():
		if err := m.cfg.Signals.RequestCancel(id); err != nil {
			return fmt.Errorf("error raising cancel for %s: %w", id, err)
		}
		<-r.done
	case m.runningElsewhere(rec):
		if err := m.cfg.Signals.RequestCancel(id); err != nil {
			return fmt.Errorf("error raising cancel for %s: %w", id, err)
		}
	default:
		if err := downloader.Discard(m.cfg.Signals.Dir(id)); err != nil {
			return err
		}
	}

	if removeFile && rec.Snapshot.Status == types.StatusSuccess {
		target := filepath.Join(m.cfg.DestDir, rec.Task.FileName)
		if live && r.result.Path != "" {
			target = r.result.Path
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing %s: %w", target, err)
		}
	}
	if err := m.cfg.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting task %s: %w", id, err)
	}
	log.Info().Str("op", "manager/cancel").Msgf("canceled %s", id)
	return nil
}

// StopAndSave keeps whatever has been downloaded so far as the final file.
func (m *Manager) StopAndSave(ctx context.Context, id string) error {
	rec, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Snapshot.Status == types.StatusSuccess {
		return nil
	}
	if m.Active(id) || m.runningElsewhere(rec) {
		if err := m.persist(ctx, rec.Snapshot, rec.Snapshot.Status, "saving"); err != nil {
			return err
		}
		if err := m.cfg.Signals.RequestStopAndSave(id); err != nil {
			return fmt.Errorf("error raising stop-and-save for %s: %w", id, err)
		}
		log.Info().Str("op", "manager/save").Msgf("stop-and-save requested for %s", id)
		return nil
	}

	path, saved, err := downloader.FinalizePartial(m.cfg.Signals.Dir(id), rec.Task.FileName, m.cfg.DestDir)
	if err != nil {
		return err
	}
	snap := types.Snapshot{
		TaskID:     id,
		Downloaded: saved,
		Total:      saved,
		Status:     types.StatusSuccess,
		InfoLine:   "success",
		UpdatedAt:  time.Now(),
	}
	if err := m.cfg.Store.Save(ctx, snap); err != nil {
		return fmt.Errorf("error persisting task %s: %w", id, err)
	}
	m.notify(snap, rec.Task.FileName)
	log.Info().Str("op", "manager/save").Msgf("saved partial download of %s to %s", id, path)
	return nil
}

// Wait blocks until the latest run of id ends. ok is false when this
// manager never ran id.
func (m *Manager) Wait(id string) (downloader.Result, bool) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return downloader.Result{}, false
	}
	<-r.done
	return r.result, true
}

func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return ok && !r.finished()
}

// Snapshot is the live view of a local run, falling back to the store.
func (m *Manager) Snapshot(ctx context.Context, id string) (types.Snapshot, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if ok && !r.finished() {
		return r.ctrl.Snapshot(), nil
	}
	rec, err := m.get(ctx, id)
	if err != nil {
		return types.Snapshot{}, err
	}
	return rec.Snapshot, nil
}

func (m *Manager) List(ctx context.Context) ([]types.Record, error) {
	return m.cfg.Store.GetAll(ctx)
}

// Reconcile marks in-flight records that no live process is updating as
// paused so they can be resumed.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	records, err := m.cfg.Store.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, rec := range records {
		if !rec.Snapshot.Status.InFlight() || m.Active(rec.Task.ID) || !m.stale(rec) {
			continue
		}
		if err := m.persist(ctx, rec.Snapshot, types.StatusPause, "interrupted"); err != nil {
			return fixed, err
		}
		log.Info().Str("op", "manager/reconcile").Msgf("marked orphaned %s as paused", rec.Task.ID)
		fixed++
	}
	return fixed, nil
}

// Shutdown pauses every active run and waits for all of them to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	active := make(map[string]*run)
	for id, r := range m.runs {
		if !r.finished() {
			active[id] = r
		}
	}
	m.mu.Unlock()

	for id := range active {
		if err := m.Pause(ctx, id); err != nil {
			log.Warn().Str("op", "manager/shutdown").Err(err).Msgf("could not pause %s", id)
		}
	}
	for _, r := range active {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) get(ctx context.Context, id string) (types.Record, error) {
	rec, err := m.cfg.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("error loading task %s: %w", id, err)
	}
	return rec, nil
}

func (m *Manager) persist(ctx context.Context, prev types.Snapshot, status types.Status, info string) error {
	snap := prev
	snap.Status = status
	snap.InfoLine = info
	snap.UpdatedAt = time.Now()
	if err := m.cfg.Store.Save(ctx, snap); err != nil {
		return fmt.Errorf("error persisting task %s: %w", prev.TaskID, err)
	}
	return nil
}

func (m *Manager) stale(rec types.Record) bool {
	return time.Since(rec.Snapshot.UpdatedAt) > m.cfg.StaleAfter
}

// runningElsewhere reports whether another process appears to drive rec.
func (m *Manager) runningElsewhere(rec types.Record) bool {
	return rec.Snapshot.Status.InFlight() && !m.Active(rec.Task.ID) && !m.stale(rec)
}

func (m *Manager) destinationExists(task types.Task) bool {
	info, err := os.Stat(filepath.Join(m.cfg.DestDir, task.FileName))
	return err == nil && !info.IsDir()
}

func (m *Manager) finishedRun(snap types.Snapshot, path string) *run {
	r := &run{
		cancel: func() {},
		done:   make(chan struct{}),
		result: downloader.Result{Snapshot: snap, Path: path},
	}
	close(r.done)
	return r
}

func (m *Manager) notify(snap types.Snapshot, fileName string) {
	if m.cfg.Notifier != nil {
		m.cfg.Notifier.Notify(types.Event{Snapshot: snap, FileName: fileName, Terminal: snap.Status.Terminal()})
	}
}
