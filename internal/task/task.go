// Package task tracks the lifecycle of one cancelable unit of work.
// Cancellation is cooperative: marking a task canceling cancels the
// context handed to its function, and the function decides when to stop.
package task

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Task.
type State string

const (
	StateCreated   State = "created"
	StateCanceling State = "canceling"
	StateCanceled  State = "canceled"
	StateFinished  State = "finished"
)

// ErrCanceled matches every *CanceledError.
var ErrCanceled = errors.New("task canceled")

// CanceledError reports that a task was canceled before or while running.
type CanceledError struct {
	TaskID string
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("task %s canceled", e.TaskID)
}

func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

// Task is safe for concurrent use.
type Task struct {
	mu       sync.Mutex
	id       string
	state    State
	metadata map[string]string
	cancel   context.CancelFunc
}

// New creates a task in the created state.
func New(metadata map[string]string) *Task {
	return &Task{
		id:       uuid.NewString(),
		state:    StateCreated,
		metadata: maps.Clone(metadata),
	}
}

func (t *Task) ID() string { return t.id }

// Metadata returns a copy of the task metadata.
func (t *Task) Metadata() map[string]string {
	return maps.Clone(t.metadata)
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) IsCancelingOrCanceled() bool {
	s := t.State()
	return s == StateCanceling || s == StateCanceled
}

func (t *Task) IsFinished() bool {
	return t.State() == StateFinished
}

// MarkCanceling requests cancellation. It only applies to a created task
// and reports whether the transition happened.
func (t *Task) MarkCanceling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateCreated {
		return false
	}
	t.state = StateCanceling
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

// MarkCanceled completes a requested cancellation.
func (t *Task) MarkCanceled() bool {
	return t.transition(StateCanceling, StateCanceled)
}

// MarkFinished records successful completion of a created task.
func (t *Task) MarkFinished() bool {
	return t.transition(StateCreated, StateFinished)
}

func (t *Task) transition(from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	return true
}

// Run invokes fn unless t is already canceling or canceled. fn receives a
// context that is canceled by MarkCanceling. Errors from fn are returned
// unchanged. Afterwards a canceling task becomes Canceled, a successful one
// Finished, and a failed one stays Created.
func Run[T any](ctx context.Context, t *Task, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	t.mu.Lock()
	if t.state == StateCanceling || t.state == StateCanceled {
		t.mu.Unlock()
		return zero, &CanceledError{TaskID: t.id}
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	result, err := fn(runCtx)

	if !t.MarkCanceled() && err == nil {
		t.MarkFinished()
	}
	return result, err
}
