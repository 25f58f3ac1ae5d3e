package domain

import (
	"fmt"
	"slices"
	"time"
)

// PauseReason records what opened a pause.
type PauseReason string

// PauseReason values.
const (
	PauseManual PauseReason = "manual"
	PauseAuto   PauseReason = "auto"
)

// PauseEvent is one pause interval. ResumedAt is nil while the pause is open.
type PauseEvent struct {
	PausedAt  time.Time   `json:"pausedAt"`
	ResumedAt *time.Time  `json:"resumedAt"`
	Reason    PauseReason `json:"reason"`
}

// IsOpen reports whether the pause has not been resumed.
func (e PauseEvent) IsOpen() bool {
	return e.ResumedAt == nil
}

// TimerState is the observable state of a card timer.
type TimerState struct {
	Paused bool
	Reason PauseReason
}

// String renders the state as Active or Paused(reason).
func (s TimerState) String() string {
	if !s.Paused {
		return "Active"
	}
	return fmt.Sprintf("Paused(%s)", s.Reason)
}

// PauseLedger is a card's append-only pause history, oldest first.
// At most one event may be open, and only the last one.
type PauseLedger []PauseEvent

// Validate checks the single-open-pause invariant.
func (l PauseLedger) Validate() error {
	for i, e := range l {
		if e.IsOpen() && i != len(l)-1 {
			return fmt.Errorf("%w: open pause at index %d is not the last event", ErrInvalidPauseLedger, i)
		}
		if e.ResumedAt != nil && e.ResumedAt.Before(e.PausedAt) {
			return fmt.Errorf("%w: event %d resumes before it pauses", ErrInvalidPauseLedger, i)
		}
	}
	return nil
}

// IsPaused reports whether the last event is still open.
func (l PauseLedger) IsPaused() bool {
	return len(l) > 0 && l[len(l)-1].IsOpen()
}

// State returns the timer state derived from the ledger.
func (l PauseLedger) State() TimerState {
	if !l.IsPaused() {
		return TimerState{}
	}
	return TimerState{Paused: true, Reason: l[len(l)-1].Reason}
}

// Pause appends a new open event.
func (l PauseLedger) Pause(now time.Time, reason PauseReason) (PauseLedger, error) {
	if l.IsPaused() {
		return l, ErrAlreadyPaused
	}
	out := slices.Clone(l)
	return append(out, PauseEvent{PausedAt: now.UTC(), Reason: reason}), nil
}

// Resume closes the open event, recording reason on it.
func (l PauseLedger) Resume(now time.Time, reason PauseReason) (PauseLedger, error) {
	if !l.IsPaused() {
		return l, ErrNotPaused
	}
	out := slices.Clone(l)
	resumed := now.UTC()
	last := &out[len(out)-1]
	last.ResumedAt = &resumed
	last.Reason = reason
	return out, nil
}

// Toggle applies a manual toggle: resume an open pause (keeping its reason) or open a manual pause.
func (l PauseLedger) Toggle(now time.Time) PauseLedger {
	if l.IsPaused() {
		out, _ := l.Resume(now, l[len(l)-1].Reason)
		return out
	}
	out, _ := l.Pause(now, PauseManual)
	return out
}

// ObserveList applies auto pause/resume for a list change from previous to current.
// Leaving a trigger list resumes only an auto pause; manual pauses need a manual toggle.
// Entering a trigger list opens an auto pause when the timer is running.
// changed is false when the ledger was left untouched.
func (l PauseLedger) ObserveList(previous, current string, isTrigger func(listID string) bool, now time.Time) (PauseLedger, bool) {
	if previous == current || isTrigger == nil {
		return l, false
	}
	out := l
	changed := false
	if previous != "" && isTrigger(previous) && out.State() == (TimerState{Paused: true, Reason: PauseAuto}) {
		out, _ = out.Resume(now, PauseManual)
		changed = true
	}
	if isTrigger(current) && !out.IsPaused() {
		out, _ = out.Pause(now, PauseAuto)
		changed = true
	}
	return out, changed
}

// TotalPausedMinutes sums business minutes paused over the card's lifetime up to now.
func (l PauseLedger) TotalPausedMinutes(cal *BusinessCalendar, now time.Time) int {
	var total time.Duration
	for _, e := range l {
		end := now
		if e.ResumedAt != nil && e.ResumedAt.Before(now) {
			end = *e.ResumedAt
		}
		total += cal.BusinessDurationBetween(e.PausedAt, end)
	}
	return int(total / time.Minute)
}

// PausedMinutesInWindow sums business minutes of each pause clipped to [windowStart, windowEnd).
// Open pauses extend to windowEnd.
func (l PauseLedger) PausedMinutesInWindow(cal *BusinessCalendar, windowStart, windowEnd time.Time) int {
	var total time.Duration
	for _, e := range l {
		start := e.PausedAt
		if windowStart.After(start) {
			start = windowStart
		}
		end := windowEnd
		if e.ResumedAt != nil && e.ResumedAt.Before(end) {
			end = *e.ResumedAt
		}
		if !start.Before(end) {
			continue
		}
		total += cal.BusinessDurationBetween(start, end)
	}
	return int(total / time.Minute)
}
