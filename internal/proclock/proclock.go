// Package proclock coordinates mutual exclusion and cooperative cancellation
// of pipeline runs through the persisted ProcessingState record.
//
// The lock is an application-level lease over a single shared row with
// read-modify-write semantics. Races between concurrent TryStart calls are
// rare and tolerated (last writer wins), not prevented; the record exists to
// stop a second scheduler tick or HTTP request from doubling a run, not to
// serialize adversarial writers.
package proclock

import (
	"fmt"
	"time"

	"newsdesk/internal/core"
)

// StaleAfter is how long an unreleased lock blocks new runs. A crashed run
// never calls Finish, so after this long the lock self-heals.
const StaleAfter = 15 * time.Minute

// StateStore is the persistence the lock needs.
type StateStore interface {
	GetProcessingState() (*core.ProcessingState, error)
	SaveProcessingState(core.ProcessingState) error
}

// Lock is a cooperative run lock backed by a StateStore.
type Lock struct {
	store StateStore
}

// New creates a lock over the given store.
func New(store StateStore) *Lock {
	return &Lock{store: store}
}

// TryStart attempts to claim the lock for a run. It returns false when a
// live run owned by a different runID holds the lock: the stored record
// shows running, no stop was requested, the lease is not stale, and the
// owner differs. The same runID may always re-enter, so an idempotent
// restart of a run does not lock itself out.
func (l *Lock) TryStart(step, runID string) (bool, error) {
	st, err := l.store.GetProcessingState()
	if err != nil {
		return false, fmt.Errorf("failed to read processing state: %w", err)
	}

	now := time.Now().UTC()
	if st != nil && st.IsRunning && !st.ShouldStop &&
		now.Sub(st.StartedAt) < StaleAfter && st.RunID != runID {
		return false, nil
	}

	err = l.store.SaveProcessingState(core.ProcessingState{
		IsRunning:   true,
		CurrentStep: step,
		StartedAt:   now,
		RunID:       runID,
		UpdatedAt:   now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim processing state: %w", err)
	}
	return true, nil
}

// AdvanceStep moves the owning run's current-step marker. Unlike TryStart it
// is a read-modify-write that carries ShouldStop and progress forward, so a
// stop requested between two stages survives the boundary. Non-owners are
// ignored.
func (l *Lock) AdvanceStep(runID, step string) error {
	st, err := l.store.GetProcessingState()
	if err != nil {
		return fmt.Errorf("failed to read processing state: %w", err)
	}
	if st == nil || st.RunID != runID {
		return nil
	}
	st.CurrentStep = step
	st.UpdatedAt = time.Now().UTC()
	return l.store.SaveProcessingState(*st)
}

// RequestStop asks the current run to stop at its next check point. It is a
// no-op if nothing is running.
func (l *Lock) RequestStop() error {
	st, err := l.store.GetProcessingState()
	if err != nil {
		return fmt.Errorf("failed to read processing state: %w", err)
	}
	if st == nil || !st.IsRunning {
		return nil
	}
	st.ShouldStop = true
	st.UpdatedAt = time.Now().UTC()
	return l.store.SaveProcessingState(*st)
}

// ShouldStop re-reads the persisted record and reports whether a stop was
// requested. Stage loops call this every iteration; the record is never
// cached so a stop written by another process is seen promptly.
func (l *Lock) ShouldStop() (bool, error) {
	st, err := l.store.GetProcessingState()
	if err != nil {
		return false, fmt.Errorf("failed to read processing state: %w", err)
	}
	return st != nil && st.ShouldStop, nil
}

// UpdateProgress publishes run progress for status consumers. Non-owners
// are ignored.
func (l *Lock) UpdateProgress(runID string, current, total int, label string) error {
	st, err := l.store.GetProcessingState()
	if err != nil {
		return fmt.Errorf("failed to read processing state: %w", err)
	}
	if st == nil || st.RunID != runID {
		return nil
	}
	st.ProgressCurrent = current
	st.ProgressTotal = total
	st.ProgressLabel = label
	st.UpdatedAt = time.Now().UTC()
	return l.store.SaveProcessingState(*st)
}

// Finish releases the lock. It is a no-op when runID does not match the
// stored owner, so a stale run that finally returns cannot clear the lock a
// newer run holds.
func (l *Lock) Finish(runID string) error {
	st, err := l.store.GetProcessingState()
	if err != nil {
		return fmt.Errorf("failed to read processing state: %w", err)
	}
	if st == nil || st.RunID != runID {
		return nil
	}
	now := time.Now().UTC()
	return l.store.SaveProcessingState(core.ProcessingState{
		IsRunning:   false,
		CurrentStep: st.CurrentStep,
		StartedAt:   st.StartedAt,
		RunID:       runID,
		UpdatedAt:   now,
	})
}

// ForceReset clears the record unconditionally. Operator escape hatch for a
// wedged state; normal code paths never call it.
func (l *Lock) ForceReset() error {
	now := time.Now().UTC()
	return l.store.SaveProcessingState(core.ProcessingState{UpdatedAt: now})
}
