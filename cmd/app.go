package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/downloader"
	"github.com/tanq16/vdl/internal/downloaders/s3"
	"github.com/tanq16/vdl/internal/manager"
	"github.com/tanq16/vdl/internal/metrics"
	"github.com/tanq16/vdl/internal/notify"
	"github.com/tanq16/vdl/internal/output"
	"github.com/tanq16/vdl/internal/scheduler"
	"github.com/tanq16/vdl/internal/store"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

type app struct {
	store   store.ProgressStore
	manager *manager.Manager
	display *output.Manager
}

// newApp wires the store, fetchers and sinks from cfg. The terminal display
// is only attached for foreground commands.
func newApp(ctx context.Context, foreground bool) (*app, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("error opening %s store: %w", cfg.Store.Driver, err)
	}
	client := utils.NewVdlHTTPClient(utils.HTTPClientConfig{
		Timeout:        cfg.HTTP.Timeout,
		KATimeout:      cfg.HTTP.KATimeout,
		ProxyURL:       cfg.HTTP.Proxy,
		ProxyUsername:  cfg.HTTP.ProxyUsername,
		ProxyPassword:  cfg.HTTP.ProxyPassword,
		UserAgent:      cfg.HTTP.UserAgent,
		Headers:        cfg.HTTP.Headers,
		HighThreadMode: cfg.Threads > 8,
	})
	factory := &manager.Factory{
		HTTP: downloader.NewHTTPFetcher(client),
		NewS3: func(ctx context.Context) (downloader.Fetcher, error) {
			f, err := s3.NewFetcher(ctx, cfg.S3.Profile, cfg.S3.Region)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}

	a := &app{store: st}
	sinks := notify.Fanout{notify.NewLogSink()}
	if foreground {
		a.display = output.NewManager(os.Stdout)
		sinks = append(sinks, a.display)
	}
	a.manager = manager.New(manager.Config{
		Store:            st,
		Signals:          control.NewStore(cfg.TempDir),
		Factory:          factory,
		DestDir:          cfg.DownloadDir,
		DefaultExtension: cfg.DefaultExtension,
		Notifier:         sinks,
		Options: downloader.Options{
			ForceStream:       cfg.ForceStream,
			BufferSize:        cfg.BufferSize,
			ProgressInterval:  cfg.ProgressInterval,
			PollInterval:      cfg.PollInterval,
			Limiter:           downloader.NewRateLimiter(cfg.LimitRate, cfg.BufferSize),
			DiskCheck:         cfg.DiskCheck,
			MinFreeSpace:      cfg.MinFreeSpace,
			ProbeStripCookies: cfg.ProbeStripCookies,
		},
		StaleAfter: max(10*cfg.ProgressInterval, 30*time.Second),
	})
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Str("op", "cmd/app").Err(err).Msg("error closing store")
	}
}

// foreground runs work with the live display. SIGINT or SIGTERM pauses every
// running download so it can be resumed later.
func (a *app) foreground(work func(ctx context.Context) []scheduler.Result) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if n, err := a.manager.Reconcile(ctx); err != nil {
		log.Warn().Str("op", "cmd/app").Err(err).Msg("could not reconcile stored tasks")
	} else if n > 0 {
		log.Info().Str("op", "cmd/app").Msgf("marked %d interrupted task(s) as paused", n)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Info().Str("op", "cmd/app").Msg("interrupt received, pausing downloads")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.manager.Shutdown(shutdownCtx); err != nil {
				log.Warn().Str("op", "cmd/app").Err(err).Msg("downloads did not stop in time")
			}
		case <-done:
		}
	}()

	a.display.StartDisplay()
	results := work(ctx)
	close(done)
	a.display.StopDisplay()

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn().Str("op", "cmd/app").Err(err).Msg("could not write metrics file")
		}
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil || res.Result.Snapshot.Status == types.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d download(s) failed", failed)
	}
	return nil
}

// runTasks is the shared body of start and batch.
func runTasks(tasks []types.Task, workers int) error {
	a, err := newApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.close()
	return a.foreground(func(ctx context.Context) []scheduler.Result {
		return scheduler.Run(ctx, a.manager, tasks, workers)
	})
}

// runControl runs one lifecycle command against the store without a display.
func runControl(fn func(ctx context.Context, m *manager.Manager) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	if err := fn(ctx, a.manager); err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			return fmt.Errorf("no such task: %w", err)
		}
		return err
	}
	return nil
}
