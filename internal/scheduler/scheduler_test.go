package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/vdl/internal/downloader"
	"github.com/tanq16/vdl/internal/types"
)

type fakeRunner struct {
	mu      sync.Mutex
	started []string
	active  atomic.Int32
	peak    atomic.Int32
	fail    map[string]bool
}

func (f *fakeRunner) Normalize(task types.Task) types.Task {
	if task.ID == "" {
		task.ID = task.URL
	}
	return task
}

func (f *fakeRunner) Start(_ context.Context, task types.Task) error {
	if f.fail[task.ID] {
		return errors.New("unsupported URL scheme")
	}
	f.mu.Lock()
	f.started = append(f.started, task.ID)
	f.mu.Unlock()
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

func (f *fakeRunner) Wait(id string) (downloader.Result, bool) {
	time.Sleep(20 * time.Millisecond)
	f.active.Add(-1)
	return downloader.Result{Snapshot: types.Snapshot{TaskID: id, Status: types.StatusSuccess}}, true
}

func TestRunBoundsConcurrency(t *testing.T) {
	r := &fakeRunner{}
	tasks := []types.Task{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}, {URL: "e"}}
	results := Run(context.Background(), r, tasks, 2)

	require.Len(t, results, 5)
	for i, res := range results {
		assert.Equal(t, tasks[i].URL, res.Task.ID)
		assert.Equal(t, types.StatusSuccess, res.Result.Snapshot.Status)
	}
	assert.LessOrEqual(t, r.peak.Load(), int32(2))
	assert.Equal(t, 5, Summary(results)[types.StatusSuccess])
}

func TestRunSkipsDuplicatesAndReportsStartErrors(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"bad": true}}
	results := Run(context.Background(), r, []types.Task{{URL: "a"}, {URL: "a"}, {URL: "bad"}}, 3)

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, []string{"a"}, r.started)
	assert.Equal(t, 1, Summary(results)[types.StatusError])
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	r := &fakeRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := Run(ctx, r, []types.Task{{URL: "a"}, {URL: "b"}}, 1)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
	assert.Empty(t, r.started)
}

func TestParseBatch(t *testing.T) {
	data := []byte(`
threads: 4
headers:
  Referer: https://example.com
downloads:
  - url: https://example.com/a.mp4
    name: first.mp4
  - url: s3://bucket/b.mp4
    threads: 8
    headers:
      Referer: https://other.example.com
`)
	tasks, err := ParseBatch(data)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "first.mp4", tasks[0].FileName)
	assert.Equal(t, 4, tasks[0].ThreadCount)
	assert.Equal(t, "https://example.com", tasks[0].Headers["Referer"])
	assert.Equal(t, 8, tasks[1].ThreadCount)
	assert.Equal(t, "https://other.example.com", tasks[1].Headers["Referer"])
}

func TestParseBatchRejectsEmptyEntries(t *testing.T) {
	_, err := ParseBatch([]byte("downloads:\n  - name: x.mp4\n"))
	assert.Error(t, err)
	_, err = ParseBatch([]byte("threads: 2\n"))
	assert.Error(t, err)
}
