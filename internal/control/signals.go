// Package control implements pause, cancel and stop-and-save requests as
// marker files inside a task's working directory. Any process that can see
// the directory can raise a signal for a download running elsewhere.
package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	PauseFile       = "pause"
	CancelFile      = "cancel"
	StopAndSaveFile = "stop_and_save"
)

// Store resolves working directories under a temp root.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) Dir(taskID string) string {
	return filepath.Join(s.Root, taskID)
}

func (s *Store) For(taskID string) *Signals {
	return &Signals{dir: s.Dir(taskID)}
}

func (s *Store) RequestPause(taskID string) error {
	return s.For(taskID).RequestPause()
}

func (s *Store) RequestCancel(taskID string) error {
	return s.For(taskID).RequestCancel()
}

func (s *Store) RequestStopAndSave(taskID string) error {
	return s.For(taskID).RequestStopAndSave()
}

// Signals is the flag set of a single working directory.
type Signals struct {
	dir string
}

func New(dir string) *Signals {
	return &Signals{dir: dir}
}

func (s *Signals) Dir() string {
	return s.dir
}

func (s *Signals) RequestPause() error {
	return s.raise(PauseFile)
}

func (s *Signals) RequestCancel() error {
	return s.raise(CancelFile)
}

// RequestStopAndSave supersedes a pending pause.
func (s *Signals) RequestStopAndSave() error {
	if err := s.raise(StopAndSaveFile); err != nil {
		return err
	}
	return s.lower(PauseFile)
}

// ClearPause lowers only the pause flag, as resume does.
func (s *Signals) ClearPause() error {
	return s.lower(PauseFile)
}

// Clear lowers every flag left over from a previous run.
func (s *Signals) Clear() error {
	var errs []error
	for _, name := range []string{PauseFile, CancelFile, StopAndSaveFile} {
		errs = append(errs, s.lower(name))
	}
	return errors.Join(errs...)
}

func (s *Signals) IsPauseRequested() bool {
	return s.exists(PauseFile)
}

// IsCancelRequested also reports true once the working directory is gone.
func (s *Signals) IsCancelRequested() bool {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return true
	}
	return s.exists(CancelFile)
}

func (s *Signals) IsStopAndSaveRequested() bool {
	return s.exists(StopAndSaveFile)
}

// Pending reports whether any flag file is present. Unlike Read, a missing
// working directory does not count.
func (s *Signals) Pending() bool {
	return s.exists(PauseFile) || s.exists(CancelFile) || s.exists(StopAndSaveFile)
}

func (s *Signals) IsInterrupted() bool {
	return s.Read().Interrupted()
}

// Read stats every flag once.
func (s *Signals) Read() State {
	return State{
		Pause:       s.IsPauseRequested(),
		Cancel:      s.IsCancelRequested(),
		StopAndSave: s.IsStopAndSaveRequested(),
	}
}

func (s *Signals) raise(name string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("error creating working directory: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error raising %s flag: %v", name, err)
	}
	return f.Close()
}

func (s *Signals) lower(name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error clearing %s flag: %v", name, err)
	}
	return nil
}

func (s *Signals) exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// State is one observation of the flags.
type State struct {
	Pause       bool
	Cancel      bool
	StopAndSave bool
}

func (st State) Interrupted() bool {
	return st.Pause || st.Cancel || st.StopAndSave
}
