package downloader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

const planFile = "plan"

// PlanChunks splits [0, contentLength-1] into threadCount contiguous ranges.
// The last range absorbs the remainder; earlier ranges may be empty when
// contentLength < threadCount.
func PlanChunks(contentLength int64, threadCount int) []types.Chunk {
	if threadCount < 1 {
		threadCount = 1
	}
	chunkSize := contentLength / int64(threadCount)
	chunks := make([]types.Chunk, threadCount)
	for i := range threadCount {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if i == threadCount-1 {
			end = contentLength - 1
		}
		chunks[i] = types.Chunk{Index: i, Start: start, End: end}
	}
	return chunks
}

// Plan is the chunk layout persisted next to the partial file so a resumed
// attempt reuses the exact ranges its sidecars were written against.
type Plan struct {
	ContentLength int64         `json:"content_length"`
	ThreadCount   int           `json:"thread_count"`
	Chunks        []types.Chunk `json:"chunks"`
}

func NewPlan(contentLength int64, threadCount int) Plan {
	chunks := PlanChunks(contentLength, threadCount)
	return Plan{ContentLength: contentLength, ThreadCount: len(chunks), Chunks: chunks}
}

// Valid checks that the chunks tile [0, ContentLength-1] in index order.
func (p Plan) Valid() bool {
	if p.ThreadCount < 1 || len(p.Chunks) != p.ThreadCount || p.ContentLength < 0 {
		return false
	}
	var next int64
	for i, c := range p.Chunks {
		if c.Index != i {
			return false
		}
		if c.Size() == 0 {
			continue
		}
		if c.Start != next {
			return false
		}
		next = c.End + 1
	}
	return next == p.ContentLength
}

func LoadPlan(dir string) (*Plan, error) {
	data, err := os.ReadFile(filepath.Join(dir, planFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading chunk plan: %v", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error parsing chunk plan: %v", err)
	}
	return &p, nil
}

func (p Plan) Save(dir string) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, planFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing chunk plan: %v", err)
	}
	return os.Rename(tmp, filepath.Join(dir, planFile))
}

// removeProgressState deletes the plan and every chunk sidecar in dir.
func removeProgressState(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == planFile || utils.ChunkFileRegex.MatchString(name) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

func sidecarPath(dir string, index int) string {
	return filepath.Join(dir, "chunk_"+strconv.Itoa(index))
}

// readSidecar returns the persisted byte count clamped to [0, size]. A
// missing or unreadable sidecar counts as zero.
func readSidecar(path string, size int64) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return min(n, size)
}

// sidecar rewrites a chunk's byte count in place after every write.
type sidecar struct {
	f   *os.File
	buf []byte
}

func openSidecar(path string, copied int64) (*sidecar, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening chunk sidecar: %v", err)
	}
	s := &sidecar{f: f, buf: make([]byte, 0, 20)}
	if err := s.write(copied); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Counts only grow within an attempt, so overwriting at offset 0 never
// leaves stale trailing digits.
func (s *sidecar) write(copied int64) error {
	s.buf = strconv.AppendInt(s.buf[:0], copied, 10)
	if _, err := s.f.WriteAt(s.buf, 0); err != nil {
		return fmt.Errorf("error writing chunk sidecar: %v", err)
	}
	return nil
}

func (s *sidecar) close() error {
	return s.f.Close()
}
