// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrAuthRequired reports missing or rejected Trello credentials.
var ErrAuthRequired = errors.New("auth required")

// ErrFetchFailed reports an upstream fetch that failed after retries.
var ErrFetchFailed = errors.New("fetch failed")

// ErrServiceUnavailable reports a surface whose backing service is not configured.
var ErrServiceUnavailable = errors.New("service unavailable")

// BadgeView is the time-in-list badge returned to HTTP and MCP callers.
type BadgeView struct {
	CardID             string    `json:"card_id"`
	CardName           string    `json:"card_name"`
	BoardID            string    `json:"board_id"`
	ListID             string    `json:"list_id"`
	ListName           string    `json:"list_name"`
	EnteredAt          time.Time `json:"entered_at"`
	ElapsedMinutes     int       `json:"elapsed_minutes"`
	Text               string    `json:"text"`
	Timer              string    `json:"timer"`
	Paused             bool      `json:"paused"`
	PauseReason        string    `json:"pause_reason,omitempty"`
	TotalPausedMinutes int       `json:"total_paused_minutes"`
	AutoTransitioned   bool      `json:"auto_transitioned"`
}

// TimerView is the timer state after a toggle.
type TimerView struct {
	CardID string `json:"card_id"`
	Timer  string `json:"timer"`
	Paused bool   `json:"paused"`
	Reason string `json:"reason,omitempty"`
}

// ListReportView is one generated list report.
type ListReportView struct {
	RunID       string `json:"run_id"`
	ListID      string `json:"list_id"`
	ListName    string `json:"list_name"`
	FileName    string `json:"file_name"`
	CardCount   int    `json:"card_count"`
	MemberCount int    `json:"member_count"`
	CSV         string `json:"csv"`
}

// ReportRunView is one entry of a list's report history.
type ReportRunView struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	ListID      string    `json:"list_id"`
	ListName    string    `json:"list_name"`
	FileName    string    `json:"file_name"`
	CardCount   int       `json:"card_count"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// TimeInListService is the app-facing surface shared by every transport.
type TimeInListService interface {
	CardBadge(context.Context, string) (BadgeView, error)
	ToggleTimer(context.Context, string) (TimerView, error)
	ListReport(context.Context, string) (ListReportView, error)
	ListReportRuns(context.Context, string, int) ([]ReportRunView, error)
}
