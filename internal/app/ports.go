package app

import (
	"context"
	"time"

	"github.com/evanschultz/cardclock/internal/domain"
)

// BoardReader reads board data from the remote board service.
type BoardReader interface {
	GetList(context.Context, string) (domain.List, error)
	ListLists(context.Context, string) ([]domain.List, error)
	ListCards(context.Context, string) ([]domain.Card, error)
	GetCard(context.Context, string) (domain.Card, error)
	ListCardActions(context.Context, string) ([]domain.Action, error)
	ListCustomFields(context.Context, string) ([]domain.CustomFieldDefinition, error)
	ListCardCustomFieldValues(context.Context, string) ([]domain.CustomFieldValue, error)
	GetMember(context.Context, string) (domain.Member, error)
}

// ScopeKind identifies the owner class of a stored value.
type ScopeKind string

// ScopeKind values.
const (
	ScopeBoard        ScopeKind = "board"
	ScopeCard         ScopeKind = "card"
	ScopeOrganization ScopeKind = "organization"
)

// Scope identifies the private storage area of one board, card or organization.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// Store persists scoped values and report runs. GetValue returns ErrNotFound for missing keys.
type Store interface {
	GetValue(context.Context, Scope, string) ([]byte, error)
	SetValue(context.Context, Scope, string, []byte) error
	CreateReportRun(context.Context, ReportRun) error
	ListReportRuns(context.Context, string, int) ([]ReportRun, error)
}

// ReportRun records one generated list report.
type ReportRun struct {
	ID          string
	BoardID     string
	ListID      string
	ListName    string
	FileName    string
	CardCount   int
	MemberCount int
	CreatedAt   time.Time
}

// Logger receives structured service logs.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// noopLogger discards everything.
type noopLogger struct{}

func (noopLogger) Debug(any, ...any) {}
func (noopLogger) Info(any, ...any)  {}
func (noopLogger) Warn(any, ...any)  {}
