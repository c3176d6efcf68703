package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/vdl/internal/control"
	"github.com/tanq16/vdl/internal/types"
)

const probeRange = "bytes=0-0"

func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i * 7) % 251)
	}
	return data
}

// rangeServer serves one resource, optionally honoring byte ranges, and
// counts the body bytes it sends outside of range probes.
type rangeServer struct {
	data   []byte
	ranges bool
	piece  int
	served atomic.Int64

	mu     sync.Mutex
	seen   []string
	stall  func(sent int64) bool // true parks the response until the client leaves
	status func(r *http.Request) int
}

func newRangeServer(t *testing.T, data []byte, ranges bool) (*rangeServer, *httptest.Server) {
	t.Helper()
	rs := &rangeServer{data: data, ranges: ranges, piece: 16 * 1024}
	srv := httptest.NewServer(rs)
	t.Cleanup(srv.Close)
	return rs, srv
}

func (s *rangeServer) setStall(f func(sent int64) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = f
}

func (s *rangeServer) rangesSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func (s *rangeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rh := r.Header.Get("Range")
	probe := rh == probeRange
	s.mu.Lock()
	stall := s.stall
	if !probe {
		s.seen = append(s.seen, rh)
	}
	s.mu.Unlock()
	if s.status != nil {
		if code := s.status(r); code != 0 {
			w.WriteHeader(code)
			return
		}
	}

	size := int64(len(s.data))
	start, end := int64(0), size-1
	code := http.StatusOK
	if rh != "" && s.ranges {
		spec := strings.TrimPrefix(rh, "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		start, _ = strconv.ParseInt(parts[0], 10, 64)
		if len(parts) == 2 && parts[1] != "" {
			end, _ = strconv.ParseInt(parts[1], 10, 64)
		}
		if end >= size {
			end = size - 1
		}
		if start >= size || start > end {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		code = http.StatusPartialContent
	}
	body := s.data[start : end+1]
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(code)

	flusher, _ := w.(http.Flusher)
	for off := 0; off < len(body); off += s.piece {
		n, err := w.Write(body[off:min(off+s.piece, len(body))])
		if err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if probe {
			continue
		}
		sent := s.served.Add(int64(n))
		if stall != nil && stall(sent) {
			<-r.Context().Done()
			return
		}
	}
}

type memSaver struct {
	mu    sync.Mutex
	snaps []types.Snapshot
}

func (m *memSaver) Save(ctx context.Context, snap types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memSaver) all() []types.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Snapshot(nil), m.snaps...)
}

type eventLog struct {
	mu     sync.Mutex
	events []types.Event
}

func (e *eventLog) Notify(ev types.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) terminal() []types.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.Event
	for _, ev := range e.events {
		if ev.Terminal {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	root    string
	dest    string
	task    types.Task
	signals *control.Signals
	saver   *memSaver
	events  *eventLog
	opts    Options
	client  *http.Client
}

func newHarness(t *testing.T, srv *httptest.Server, threads int) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		t:      t,
		root:   filepath.Join(base, "tmp"),
		dest:   filepath.Join(base, "downloads"),
		saver:  &memSaver{},
		events: &eventLog{},
		client: srv.Client(),
		task: types.Task{
			ID:          "task-1",
			URL:         srv.URL + "/video.mp4",
			FileName:    "video.mp4",
			ThreadCount: threads,
		},
		opts: Options{
			BufferSize:       8 * 1024,
			ProgressInterval: 5 * time.Millisecond,
			PollInterval:     5 * time.Millisecond,
		},
	}
	h.signals = control.NewStore(h.root).For(h.task.ID)
	return h
}

func (h *harness) controller() *Controller {
	return NewController(ControllerConfig{
		Task:     h.task,
		Fetcher:  NewHTTPFetcher(h.client),
		Signals:  h.signals,
		DestDir:  h.dest,
		Saver:    h.saver,
		Notifier: h.events,
		Options:  h.opts,
	})
}

// run lowers leftover flags the way Manager.Start does, then runs one attempt.
func (h *harness) run() Result {
	require.NoError(h.t, h.signals.Clear())
	return h.controller().Run(context.Background())
}

func (h *harness) destFile() []byte {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dest, h.task.FileName))
	require.NoError(h.t, err)
	return data
}

func (h *harness) sidecarTotal(plan Plan) int64 {
	var sum int64
	for _, c := range plan.Chunks {
		sum += readSidecar(sidecarPath(h.signals.Dir(), c.Index), c.Size())
	}
	return sum
}

// raiseAt returns a stall hook that raises a flag once threshold bytes went out.
func raiseAt(threshold int64, raise func() error) func(int64) bool {
	var once sync.Once
	return func(sent int64) bool {
		if sent < threshold {
			return false
		}
		fired := false
		once.Do(func() {
			raise()
			fired = true
		})
		return fired
	}
}
