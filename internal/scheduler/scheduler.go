// Package scheduler runs a batch of tasks through a fixed pool of workers.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/downloader"
	"github.com/tanq16/vdl/internal/types"
)

// Runner is the part of the manager the scheduler drives.
type Runner interface {
	Normalize(task types.Task) types.Task
	Start(ctx context.Context, task types.Task) error
	Wait(id string) (downloader.Result, bool)
}

type Result struct {
	Task   types.Task
	Result downloader.Result
	Err    error
}

// Run executes tasks with at most numWorkers downloads at a time. Tasks
// that resolve to the same ID are only run once. Once ctx is canceled no
// further task is started; results come back in input order.
func Run(ctx context.Context, r Runner, tasks []types.Task, numWorkers int) []Result {
	numWorkers = max(numWorkers, 1)
	seen := make(map[string]bool)
	var queued []types.Task
	for _, task := range tasks {
		task = r.Normalize(task)
		if seen[task.ID] {
			log.Warn().Str("op", "scheduler").Msgf("skipping duplicate task %s (%s)", task.ID, task.URL)
			continue
		}
		seen[task.ID] = true
		queued = append(queued, task)
	}

	results := make([]Result, len(queued))
	jobCh := make(chan int, len(queued))
	for i := range queued {
		jobCh <- i
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				results[idx] = process(ctx, r, queued[idx])
			}
		}()
	}
	wg.Wait()
	return results
}

func process(ctx context.Context, r Runner, task types.Task) Result {
	if err := ctx.Err(); err != nil {
		return Result{Task: task, Err: fmt.Errorf("not started: %w", err)}
	}
	if err := r.Start(ctx, task); err != nil {
		log.Error().Str("op", "scheduler").Err(err).Msgf("could not start %s", task.URL)
		return Result{Task: task, Err: err}
	}
	res, _ := r.Wait(task.ID)
	return Result{Task: task, Result: res, Err: res.Err}
}

// Summary counts results by final status.
func Summary(results []Result) map[types.Status]int {
	out := make(map[types.Status]int)
	for _, res := range results {
		if res.Result.Snapshot.Status == "" {
			out[types.StatusError]++
			continue
		}
		out[res.Result.Snapshot.Status]++
	}
	return out
}
