package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/cardclock/internal/domain"
)

// Badge is the "time in list" surface for one card.
type Badge struct {
	CardID             string
	CardName           string
	BoardID            string
	ListID             string
	ListName           string
	EnteredAt          time.Time
	ElapsedMinutes     int
	Text               string
	Timer              domain.TimerState
	TotalPausedMinutes int
	AutoTransitioned   bool
}

// CardBadge computes business time in the card's current list, net of pauses overlapping that stay.
// It runs the auto pause/resume observation first and persists any resulting transition.
func (s *Service) CardBadge(ctx context.Context, cardID string) (Badge, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return Badge{}, fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	card, err := s.reader.GetCard(ctx, cardID)
	if err != nil {
		return Badge{}, fmt.Errorf("get card %s: %w", cardID, err)
	}
	actions, err := s.reader.ListCardActions(ctx, cardID)
	if err != nil {
		return Badge{}, fmt.Errorf("list card %s actions: %w", cardID, err)
	}
	history, err := domain.BuildHistory(actions, card.ID)
	if err != nil {
		return Badge{}, err
	}
	entry, err := currentEntry(card, history)
	if err != nil {
		return Badge{}, err
	}

	lists, err := s.BoardLists(ctx, card.BoardID)
	if err != nil {
		return Badge{}, err
	}
	ledger, err := s.pauseLedger(ctx, card.ID)
	if err != nil {
		return Badge{}, err
	}
	lastList, err := s.lastObservedList(ctx, card.ID)
	if err != nil {
		return Badge{}, err
	}

	now := s.clock()
	ledger, changed := ledger.ObserveList(lastList, card.ListID, lists.IsAutoPause, now)
	if changed {
		if err := s.saveJSON(ctx, cardScope(card.ID), keyPauseEvents, ledger); err != nil {
			return Badge{}, err
		}
		s.logger.Info("timer auto transition", "card_id", card.ID, "from_list", lastList, "to_list", card.ListID, "state", ledger.State().String())
	}
	if lastList != card.ListID {
		if err := s.store.SetValue(ctx, cardScope(card.ID), keyLastList, []byte(card.ListID)); err != nil {
			return Badge{}, err
		}
	}

	elapsed := s.calendar.BusinessMinutesBetween(entry.EnteredAt, now)
	elapsed -= ledger.PausedMinutesInWindow(s.calendar, entry.EnteredAt, now)
	if elapsed < 0 {
		elapsed = 0
	}
	return Badge{
		CardID:             card.ID,
		CardName:           card.Name,
		BoardID:            card.BoardID,
		ListID:             card.ListID,
		ListName:           entry.List.Name,
		EnteredAt:          entry.EnteredAt,
		ElapsedMinutes:     elapsed,
		Text:               domain.FormatDuration(elapsed),
		Timer:              ledger.State(),
		TotalPausedMinutes: ledger.TotalPausedMinutes(s.calendar, now),
		AutoTransitioned:   changed,
	}, nil
}

// currentEntry returns the movement that placed the card in its current list.
// An empty history falls back to the creation instant encoded in the card id.
func currentEntry(card domain.Card, history domain.CardHistory) (domain.ListMovement, error) {
	if latest, ok := history.LastEntryInto(card.ListID); ok {
		return latest, nil
	}
	if current, ok := history.Current(); ok {
		return current, nil
	}
	createdAt, err := domain.CardCreatedAt(card.ID)
	if err != nil {
		return domain.ListMovement{}, err
	}
	return domain.ListMovement{List: domain.ListRef{ID: card.ListID}, EnteredAt: createdAt}, nil
}

// ToggleTimer applies a manual pause toggle to the card's timer and persists it.
func (s *Service) ToggleTimer(ctx context.Context, cardID string) (domain.TimerState, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return domain.TimerState{}, fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	ledger, err := s.pauseLedger(ctx, cardID)
	if err != nil {
		return domain.TimerState{}, err
	}
	ledger = ledger.Toggle(s.clock())
	if err := s.saveJSON(ctx, cardScope(cardID), keyPauseEvents, ledger); err != nil {
		return domain.TimerState{}, err
	}
	state := ledger.State()
	s.logger.Info("timer toggled", "card_id", cardID, "state", state.String())
	return state, nil
}

// PauseEvents returns the card's pause ledger, oldest first.
func (s *Service) PauseEvents(ctx context.Context, cardID string) (domain.PauseLedger, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	return s.pauseLedger(ctx, cardID)
}

func (s *Service) pauseLedger(ctx context.Context, cardID string) (domain.PauseLedger, error) {
	var ledger domain.PauseLedger
	if _, err := s.loadJSON(ctx, cardScope(cardID), keyPauseEvents, &ledger); err != nil {
		return nil, err
	}
	if err := ledger.Validate(); err != nil {
		return nil, fmt.Errorf("card %s: %w", cardID, err)
	}
	return ledger, nil
}

func (s *Service) lastObservedList(ctx context.Context, cardID string) (string, error) {
	raw, err := s.store.GetValue(ctx, cardScope(cardID), keyLastList)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func cardScope(cardID string) Scope {
	return Scope{Kind: ScopeCard, ID: cardID}
}
