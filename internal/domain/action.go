package domain

import "time"

// ActionKind classifies a card action once at the collaborator boundary.
type ActionKind string

// ActionKind values.
const (
	ActionCreated   ActionKind = "created"
	ActionMoved     ActionKind = "moved"
	ActionCompleted ActionKind = "completed"
	ActionOther     ActionKind = "other"
)

// Action is one decoded card event.
// List is set for Created, ListBefore/ListAfter for Moved.
type Action struct {
	ID         string
	CardID     string
	Kind       ActionKind
	Date       time.Time
	List       ListRef
	ListBefore ListRef
	ListAfter  ListRef
}

// LastCompletion returns the most recent completion instant among actions, if any.
func LastCompletion(actions []Action) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, a := range actions {
		if a.Kind != ActionCompleted {
			continue
		}
		if !found || a.Date.After(latest) {
			latest = a.Date
			found = true
		}
	}
	return latest, found
}
