package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// ListMovement records one entry of a card into a list.
type ListMovement struct {
	List      ListRef
	EnteredAt time.Time
}

// CardHistory is a card's list movements, oldest first.
type CardHistory []ListMovement

// BuildHistory reconstructs list movements from raw card actions.
// Actions normally arrive newest-first; only created and moved actions are kept.
// When the oldest kept action is a move with a known source list (a copied card),
// a leading entry into that list is synthesized at the card id's creation instant.
func BuildHistory(actions []Action, cardID string) (CardHistory, error) {
	kept := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.Kind == ActionCreated || a.Kind == ActionMoved {
			kept = append(kept, a)
		}
	}
	slices.Reverse(kept)
	slices.SortStableFunc(kept, func(a, b Action) int {
		return a.Date.Compare(b.Date)
	})

	history := make(CardHistory, 0, len(kept)+1)
	if len(kept) > 0 && kept[0].Kind == ActionMoved && !kept[0].ListBefore.IsZero() {
		createdAt, err := CardCreatedAt(cardID)
		if err != nil {
			return nil, fmt.Errorf("synthesize first list entry: %w", err)
		}
		if createdAt.After(kept[0].Date) {
			return nil, fmt.Errorf("%w: card %s created at %s after first move at %s", ErrNonMonotonicHistory, cardID, createdAt.Format(time.RFC3339), kept[0].Date.Format(time.RFC3339))
		}
		history = append(history, ListMovement{List: kept[0].ListBefore, EnteredAt: createdAt})
	}
	for _, a := range kept {
		list := a.List
		if a.Kind == ActionMoved {
			list = a.ListAfter
		}
		history = append(history, ListMovement{List: list, EnteredAt: a.Date})
	}
	return history, nil
}

// Validate reports a non-decreasing EnteredAt ordering.
func (h CardHistory) Validate() error {
	for i := 1; i < len(h); i++ {
		if h[i].EnteredAt.Before(h[i-1].EnteredAt) {
			return fmt.Errorf("%w: entry %d at %s precedes entry %d at %s", ErrNonMonotonicHistory, i, h[i].EnteredAt.Format(time.RFC3339), i-1, h[i-1].EnteredAt.Format(time.RFC3339))
		}
	}
	return nil
}

// Current returns the latest movement, which reflects the card's current list.
func (h CardHistory) Current() (ListMovement, bool) {
	if len(h) == 0 {
		return ListMovement{}, false
	}
	return h[len(h)-1], true
}

// FirstEntryInto returns the earliest movement into listID.
func (h CardHistory) FirstEntryInto(listID string) (ListMovement, bool) {
	for _, m := range h {
		if m.List.Matches(listID) {
			return m, true
		}
	}
	return ListMovement{}, false
}

// MostRecentEntryBefore returns the latest movement into listID strictly before cutoff.
func (h CardHistory) MostRecentEntryBefore(listID string, cutoff time.Time) (ListMovement, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		m := h[i]
		if m.List.Matches(listID) && m.EnteredAt.Before(cutoff) {
			return m, true
		}
	}
	return ListMovement{}, false
}

// LastEntryInto returns the latest movement into listID.
func (h CardHistory) LastEntryInto(listID string) (ListMovement, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].List.Matches(listID) {
			return h[i], true
		}
	}
	return ListMovement{}, false
}

// CountEntriesInto returns how many times the card entered listID.
func (h CardHistory) CountEntriesInto(listID string) int {
	n := 0
	for _, m := range h {
		if m.List.Matches(listID) {
			n++
		}
	}
	return n
}

// DaysFromCurrentWorkToReleased measures whole days from the last entry into the
// current-work list before release to the first entry into the released list.
// ok is false when the card was never released or never in current work before release.
// Rework cycles are not distinguished: the most recent pre-release entry starts the clock.
func (h CardHistory) DaysFromCurrentWorkToReleased(currentWorkListID, releasedListID string) (int, bool) {
	released, ok := h.FirstEntryInto(releasedListID)
	if !ok {
		return 0, false
	}
	started, ok := h.MostRecentEntryBefore(currentWorkListID, released.EnteredAt)
	if !ok {
		return 0, false
	}
	days := released.EnteredAt.Sub(started.EnteredAt).Hours() / 24
	return int(math.Round(days)), true
}
