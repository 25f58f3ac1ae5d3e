package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/evanschultz/cardclock/internal/domain"
)

// DefaultOrganization scopes organization-private values when none is configured.
const DefaultOrganization = "default"

// defaultReportConcurrency bounds in-flight card fetches during report generation.
const defaultReportConcurrency = 4

// Storage keys used within each scope.
const (
	keyPauseEvents = "pause_events"
	keyLastList    = "last_list"
	keyBoardLists  = "board_lists"
	keyAuthToken   = "auth_token"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Organization      string
	BoardDefaults     map[string]BoardLists
	ReportConcurrency int
	Calendar          *domain.BusinessCalendar
	Logger            Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service implements the power-up use cases over a board reader and scoped storage.
type Service struct {
	reader        BoardReader
	store         Store
	idGen         IDGenerator
	clock         Clock
	calendar      *domain.BusinessCalendar
	logger        Logger
	organization  string
	boardDefaults map[string]BoardLists
	concurrency   int

	mu               sync.Mutex
	resolvedDefaults map[string]BoardLists
}

// NewService constructs a new value for this package.
func NewService(reader BoardReader, store Store, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Calendar == nil {
		rules, _ := domain.HolidaySet(domain.DefaultHolidaySet)
		cal, err := domain.NewBusinessCalendar(rules, time.UTC)
		if err != nil {
			panic(fmt.Sprintf("default holiday set is invalid: %v", err))
		}
		cfg.Calendar = cal
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if strings.TrimSpace(cfg.Organization) == "" {
		cfg.Organization = DefaultOrganization
	}
	if cfg.ReportConcurrency <= 0 {
		cfg.ReportConcurrency = defaultReportConcurrency
	}
	defaults := make(map[string]BoardLists, len(cfg.BoardDefaults))
	for boardID, lists := range cfg.BoardDefaults {
		defaults[strings.TrimSpace(boardID)] = lists.normalized()
	}

	return &Service{
		reader:        reader,
		store:         store,
		idGen:         idGen,
		clock:         clock,
		calendar:      cfg.Calendar,
		logger:        cfg.Logger,
		organization:  strings.TrimSpace(cfg.Organization),
		boardDefaults: defaults,
		concurrency:   cfg.ReportConcurrency,

		resolvedDefaults: map[string]BoardLists{},
	}
}

// Calendar returns the business calendar used for elapsed-time math.
func (s *Service) Calendar() *domain.BusinessCalendar {
	return s.calendar
}

// SetAuthToken stores the board service token in organization-private storage.
func (s *Service) SetAuthToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	if err := s.store.SetValue(ctx, s.orgScope(), keyAuthToken, []byte(token)); err != nil {
		return err
	}
	s.logger.Info("auth token stored", "organization", s.organization)
	return nil
}

// AuthToken returns the stored token, or ErrAuthRequired when none was saved.
func (s *Service) AuthToken(ctx context.Context) (string, error) {
	raw, err := s.store.GetValue(ctx, s.orgScope(), keyAuthToken)
	if errors.Is(err, ErrNotFound) {
		return "", ErrAuthRequired
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrAuthRequired
	}
	return token, nil
}

func (s *Service) orgScope() Scope {
	return Scope{Kind: ScopeOrganization, ID: s.organization}
}

// loadJSON decodes a stored value into out. found is false when the key is absent.
func (s *Service) loadJSON(ctx context.Context, scope Scope, key string, out any) (bool, error) {
	raw, err := s.store.GetValue(ctx, scope, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s %s/%s: %w", key, scope.Kind, scope.ID, err)
	}
	return true, nil
}

func (s *Service) saveJSON(ctx context.Context, scope Scope, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s %s/%s: %w", key, scope.Kind, scope.ID, err)
	}
	return s.store.SetValue(ctx, scope, key, raw)
}
