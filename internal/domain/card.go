package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// List represents one board list.
type List struct {
	ID      string
	BoardID string
	Name    string
}

// ListRef identifies a list as recorded in an action payload. Either field may be empty.
type ListRef struct {
	ID   string
	Name string
}

// IsZero reports whether the reference carries neither id nor name.
func (r ListRef) IsZero() bool {
	return r.ID == "" && r.Name == ""
}

// Matches reports whether the reference points at the list with the given id.
func (r ListRef) Matches(listID string) bool {
	return listID != "" && r.ID == listID
}

// Card represents the card fields the power-ups read.
type Card struct {
	ID          string
	BoardID     string
	ListID      string
	Name        string
	Due         *time.Time
	DueComplete bool
	MemberIDs   []string
}

// Member represents one board member.
type Member struct {
	ID       string
	FullName string
	Username string
}

// DisplayName returns the best available human label for the member.
func (m Member) DisplayName() string {
	if name := strings.TrimSpace(m.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(m.Username); name != "" {
		return name
	}
	return m.ID
}

// CustomFieldOption is one dropdown choice of a custom field.
type CustomFieldOption struct {
	ID    string
	Value string
}

// CustomFieldDefinition describes one board-level custom field.
type CustomFieldDefinition struct {
	ID      string
	Name    string
	Type    string
	Options []CustomFieldOption
}

// OptionValue resolves a dropdown option id to its text.
func (d CustomFieldDefinition) OptionValue(optionID string) (string, bool) {
	for _, opt := range d.Options {
		if opt.ID == optionID {
			return opt.Value, true
		}
	}
	return "", false
}

// CustomFieldValue is one card's value for a custom field: free text or a dropdown option id.
type CustomFieldValue struct {
	FieldID  string
	Text     string
	OptionID string
}

// cardIDLength is the length of a well-formed card identifier in hex characters.
const cardIDLength = 24

// CardCreatedAt decodes the creation instant embedded in a card identifier.
// The first 8 hex characters are a big-endian Unix-second timestamp.
func CardCreatedAt(cardID string) (time.Time, error) {
	if len(cardID) != cardIDLength {
		return time.Time{}, fmt.Errorf("%w: %q must be %d hex characters", ErrInvalidCardID, cardID, cardIDLength)
	}
	raw, err := hex.DecodeString(cardID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidCardID, cardID, err)
	}
	secs := int64(raw[0])<<24 | int64(raw[1])<<16 | int64(raw[2])<<8 | int64(raw[3])
	return time.Unix(secs, 0).UTC(), nil
}
