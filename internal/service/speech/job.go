// Package speech plays synthesized prompts to the candidate and tracks
// each prompt as a cancellable job.
package speech

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a speech job.
type State int

const (
	// StateQueued - Job created, no audio sent yet.
	StateQueued State = iota
	// StatePlaying - Audio is being streamed to the call.
	StatePlaying
	// StateCompleted - The candidate heard the whole prompt.
	StateCompleted
	// StateCancelled - Playback was stopped by a barge-in or hangup.
	StateCancelled
	// StateFailed - Synthesis or delivery failed.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StatePlaying:
		return "PLAYING"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is COMPLETED, CANCELLED or FAILED.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrJobFinished    = errors.New("speech job already finished")
	ErrAlreadyPlaying = errors.New("speech job already playing")
)

// Job is one prompt handed to a Speaker. Thread-safe.
//
// State transitions:
//
//	QUEUED → PLAYING → COMPLETED
//	   │        ├────→ CANCELLED
//	   │        └────→ FAILED
//	   └─────────────→ CANCELLED | FAILED
//
// Done is closed exactly once, on the first terminal transition.
type Job struct {
	mu        sync.RWMutex
	id        string
	text      string
	state     State
	err       error
	createdAt time.Time
	done      chan struct{}
}

// NewJob creates a job in QUEUED state.
func NewJob(text string) *Job {
	return &Job{
		id:        uuid.NewString(),
		text:      text,
		state:     StateQueued,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Text() string {
	return j.text
}

func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err returns the failure cause for a FAILED job.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Start transitions QUEUED to PLAYING.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case StateQueued:
		j.state = StatePlaying
		return nil
	case StatePlaying:
		return ErrAlreadyPlaying
	default:
		return ErrJobFinished
	}
}

// Complete marks the job as fully played.
// Returns false if the job was already terminal.
func (j *Job) Complete() bool {
	return j.finish(StateCompleted, nil)
}

// Cancel marks the job as stopped before it finished.
// Returns false if the job was already terminal.
func (j *Job) Cancel() bool {
	return j.finish(StateCancelled, nil)
}

// Fail marks the job as failed with the given cause.
// Returns false if the job was already terminal.
func (j *Job) Fail(err error) bool {
	return j.finish(StateFailed, err)
}

func (j *Job) finish(state State, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	j.state = state
	j.err = err
	close(j.done)
	return true
}
