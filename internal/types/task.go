package types

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusPrepare     Status = "prepare"
	StatusDownloading Status = "downloading"
	StatusPause       Status = "pause"
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
	StatusCanceled    Status = "canceled"
)

// Terminal reports whether no controller is driving the task any longer.
func (s Status) Terminal() bool {
	switch s {
	case StatusPause, StatusSuccess, StatusError, StatusCanceled:
		return true
	}
	return false
}

// InFlight reports whether a controller is expected to be driving the task.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusPrepare || s == StatusDownloading
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPrepare, StatusDownloading, StatusPause, StatusSuccess, StatusError, StatusCanceled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Task is one logical download.
type Task struct {
	ID          string            `json:"id" yaml:"id"`
	URL         string            `json:"url" yaml:"url"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	FileName    string            `json:"file_name" yaml:"name"`
	ThreadCount int               `json:"thread_count" yaml:"threads"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
}

// Chunk is an inclusive byte range [Start, End] of the remote resource.
type Chunk struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Size is zero for degenerate chunks where Start > End.
func (c Chunk) Size() int64 {
	if c.Start > c.End {
		return 0
	}
	return c.End - c.Start + 1
}

// Snapshot is the externally visible progress of a task.
type Snapshot struct {
	TaskID     string    `json:"task_id"`
	Downloaded int64     `json:"downloaded"`
	Total      int64     `json:"total"`
	Status     Status    `json:"status"`
	InfoLine   string    `json:"info_line"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Record is what a progress store keeps per task.
type Record struct {
	Task     Task
	Snapshot Snapshot
}

func (r Record) Clone() Record {
	out := r
	if r.Task.Headers != nil {
		out.Task.Headers = make(map[string]string, len(r.Task.Headers))
		for k, v := range r.Task.Headers {
			out.Task.Headers[k] = v
		}
	}
	return out
}

// Event is pushed to notification sinks.
type Event struct {
	Snapshot Snapshot
	FileName string
	Terminal bool
}
