package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/tanq16/vdl/internal/types"
)

type recorder struct {
	events []types.Event
}

func (r *recorder) Notify(ev types.Event) { r.events = append(r.events, ev) }

type panicker struct{}

func (panicker) Notify(types.Event) { panic("boom") }

func TestFanoutSurvivesPanickingSink(t *testing.T) {
	first, last := &recorder{}, &recorder{}
	f := Fanout{first, panicker{}, last}
	ev := types.Event{Snapshot: types.Snapshot{TaskID: "t", Status: types.StatusDownloading}}

	assert.NotPanics(t, func() { f.Notify(ev) })
	assert.Len(t, first.events, 1)
	assert.Len(t, last.events, 1)
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSinkWith(zerolog.New(&buf).Level(zerolog.InfoLevel))

	s.Notify(types.Event{Snapshot: types.Snapshot{TaskID: "t", Status: types.StatusDownloading, InfoLine: "downloading"}})
	assert.Empty(t, buf.String())

	s.Notify(types.Event{Snapshot: types.Snapshot{TaskID: "t", Status: types.StatusError, InfoLine: "failed: disk full"}, Terminal: true})
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"message":"failed: disk full"`)
	assert.Contains(t, buf.String(), `"task":"t"`)
}
