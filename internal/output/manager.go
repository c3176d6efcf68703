package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

type taskOutput struct {
	ID          string
	Name        string
	Snapshot    types.Snapshot
	Complete    bool
	StartBytes  int64
	StartTime   time.Time
	LastUpdated time.Time
	Index       int
}

// Manager renders one line per task plus a progress bar for running tasks.
// It receives updates through Notify and redraws on a ticker when attached
// to a terminal.
type Manager struct {
	outputs     map[string]*taskOutput
	mutex       sync.RWMutex
	out         io.Writer
	numLines    int
	interactive bool
	count       int
	displayTick time.Duration
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager(out io.Writer) *Manager {
	return &Manager{
		outputs:     make(map[string]*taskOutput),
		out:         out,
		interactive: isTerminal(out),
		displayTick: 300 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}
}

func (m *Manager) Notify(ev types.Event) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[ev.Snapshot.TaskID]
	if !exists {
		m.count++
		info = &taskOutput{
			ID:         ev.Snapshot.TaskID,
			StartBytes: ev.Snapshot.Downloaded,
			StartTime:  time.Now(),
			Index:      m.count,
		}
		m.outputs[ev.Snapshot.TaskID] = info
	}
	if ev.FileName != "" {
		info.Name = ev.FileName
	}
	info.Snapshot = ev.Snapshot
	info.Complete = ev.Terminal
	info.LastUpdated = time.Now()
}

func (m *Manager) sorted() []*taskOutput {
	all := make([]*taskOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	return all
}

func (m *Manager) label(info *taskOutput) string {
	if info.Name != "" {
		return info.Name
	}
	return info.ID
}

func (m *Manager) progressLine(info *taskOutput) string {
	snap := info.Snapshot
	elapsed := time.Since(info.StartTime).Round(time.Second).Seconds()
	speed := utils.FormatSpeed(max(snap.Downloaded-info.StartBytes, 0), elapsed)
	if snap.Total <= 0 {
		return fmt.Sprintf("%s %s %s", debugStyle.Render(utils.FormatBytes(uint64(max(snap.Downloaded, 0)))), StyleSymbols["bullet"], debugStyle.Render(speed))
	}
	text := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(snap.Downloaded, 0))), utils.FormatBytes(uint64(snap.Total)))
	return fmt.Sprintf("%s%s %s %s", progressBar(snap.Downloaded, snap.Total, 30), debugStyle.Render(text), StyleSymbols["bullet"], debugStyle.Render(speed))
}

// render writes the current view, trimming finished rows first when the
// view is taller than limit. It returns the number of lines written.
func (m *Manager) render(w io.Writer, limit int) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var running, completed []*taskOutput
	for _, info := range m.sorted() {
		if info.Complete {
			completed = append(completed, info)
		} else {
			running = append(running, info)
		}
	}
	needed := 2*len(running) + len(completed)
	if needed > limit {
		keep := max(limit-2*len(running), 0)
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}

	lines := 0
	indent := strings.Repeat(" ", 2)
	for _, info := range running {
		if lines >= limit {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		fmt.Fprintf(w, "%s%s %s %s\n", indent, statusIndicator(info.Snapshot.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Snapshot.Status, m.label(info)))
		lines++
		if lines < limit {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", 2+4), m.progressLine(info))
			lines++
		}
	}
	for _, info := range completed {
		if lines >= limit {
			break
		}
		elapsed := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		msg := fmt.Sprintf("%s %s %s", m.label(info), StyleSymbols["bullet"], info.Snapshot.InfoLine)
		fmt.Fprintf(w, "%s%s %s %s\n", indent, statusIndicator(info.Snapshot.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Snapshot.Status, msg))
		lines++
	}
	return lines
}

func (m *Manager) updateDisplay() {
	var buf strings.Builder
	n := m.render(&buf, terminalHeight(m.out)-3)
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	io.WriteString(m.out, buf.String())
	m.numLines = n
}

func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

// StopDisplay draws the final view and the summary. It is safe to call more
// than once.
func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() {
		close(m.doneCh)
		m.displayWg.Wait()
		if !m.interactive {
			m.render(m.out, len(m.outputs)*2+1)
		}
		m.ShowSummary()
	})
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, failures, paused int
	var failed []*taskOutput
	for _, info := range m.sorted() {
		switch info.Snapshot.Status {
		case types.StatusSuccess:
			success++
		case types.StatusError:
			failures++
			failed = append(failed, info)
		case types.StatusPause:
			paused++
		}
	}
	total := len(m.outputs)
	indent := strings.Repeat(" ", 2)
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, indent+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if paused > 0 {
		fmt.Fprintln(m.out, indent+warningStyle.Render(fmt.Sprintf("Paused %d of %d", paused, total)))
	}
	if failures > 0 {
		fmt.Fprintln(m.out, indent+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, indent+errorStyle.Bold(true).Render("Errors:"))
		for i, info := range failed {
			fmt.Fprintf(m.out, "%s%s %s %s\n",
				strings.Repeat(" ", 2+2),
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", info.LastUpdated.Format("15:04:05"))),
				errorStyle.Render(fmt.Sprintf("%s: %s", m.label(info), info.Snapshot.InfoLine)))
		}
	}
	fmt.Fprintln(m.out)
}
