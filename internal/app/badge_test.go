package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evanschultz/cardclock/internal/domain"
)

var monday = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func createdIn(listID, name string, at time.Time) domain.Action {
	return domain.Action{Kind: domain.ActionCreated, Date: at, List: domain.ListRef{ID: listID, Name: name}}
}

func movedBetween(fromID, toID, toName string, at time.Time) domain.Action {
	return domain.Action{
		Kind:       domain.ActionMoved,
		Date:       at,
		ListBefore: domain.ListRef{ID: fromID},
		ListAfter:  domain.ListRef{ID: toID, Name: toName},
	}
}

func TestCardBadgeCountsBusinessTimeInList(t *testing.T) {
	reader := newFakeReader()
	seedBoard(reader)
	id := cardIDAt(monday, 1)
	reader.cards[id] = domain.Card{ID: id, BoardID: "b1", ListID: "l-doing", Name: "one"}
	reader.actions[id] = []domain.Action{createdIn("l-doing", "Doing", monday)}
	store := newFakeStore()
	clock := &testClock{now: monday.Add(48 * time.Hour)}
	svc := newTestService(t, reader, store, clock, ServiceConfig{})

	badge, err := svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if badge.ElapsedMinutes != 2880 || badge.Text != "2 days" {
		t.Fatalf("unexpected badge elapsed %d %q", badge.ElapsedMinutes, badge.Text)
	}
	if badge.ListName != "Doing" || !badge.EnteredAt.Equal(monday) {
		t.Fatalf("unexpected badge entry %q at %s", badge.ListName, badge.EnteredAt)
	}
	if badge.Timer.Paused || badge.AutoTransitioned {
		t.Fatalf("expected active timer without transition, got %+v", badge)
	}
	if got := string(store.values["card/"+id+"/last_list"]); got != "l-doing" {
		t.Fatalf("last observed list = %q, want l-doing", got)
	}
}

func TestCardBadgeFallsBackToCardCreationWithoutHistory(t *testing.T) {
	reader := newFakeReader()
	seedBoard(reader)
	id := cardIDAt(monday, 2)
	reader.cards[id] = domain.Card{ID: id, BoardID: "b1", ListID: "l-todo"}
	svc := newTestService(t, reader, newFakeStore(), &testClock{now: monday.Add(90 * time.Minute)}, ServiceConfig{})

	badge, err := svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if badge.ElapsedMinutes != 90 || badge.Text != "1h 30m" {
		t.Fatalf("unexpected badge %+v", badge)
	}
}

func TestCardBadgeAutoPausesAndResumes(t *testing.T) {
	reader := newFakeReader()
	seedBoard(reader)
	id := cardIDAt(monday, 3)
	reader.cards[id] = domain.Card{ID: id, BoardID: "b1", ListID: "l-blocked"}
	reader.actions[id] = []domain.Action{
		movedBetween("l-doing", "l-blocked", "Blocked", monday.Add(24*time.Hour)),
		createdIn("l-doing", "Doing", monday),
	}
	store := newFakeStore()
	clock := &testClock{now: monday.Add(48 * time.Hour)}
	svc := newTestService(t, reader, store, clock, ServiceConfig{})
	if _, err := svc.SetBoardLists(context.Background(), "b1", BoardLists{AutoPause: []string{"Blocked"}}); err != nil {
		t.Fatalf("SetBoardLists() error = %v", err)
	}

	badge, err := svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if !badge.AutoTransitioned || badge.Timer != (domain.TimerState{Paused: true, Reason: domain.PauseAuto}) {
		t.Fatalf("expected auto pause, got %+v", badge)
	}
	if badge.ElapsedMinutes != 1440 {
		t.Fatalf("ElapsedMinutes = %d, want 1440", badge.ElapsedMinutes)
	}

	clock.now = monday.Add(72 * time.Hour)
	badge, err = svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if badge.AutoTransitioned || badge.ElapsedMinutes != 1440 || badge.TotalPausedMinutes != 1440 {
		t.Fatalf("expected paused day to be excluded, got %+v", badge)
	}

	reader.mu.Lock()
	card := reader.cards[id]
	card.ListID = "l-doing"
	reader.cards[id] = card
	reader.actions[id] = append([]domain.Action{movedBetween("l-blocked", "l-doing", "Doing", monday.Add(73*time.Hour))}, reader.actions[id]...)
	reader.mu.Unlock()

	clock.now = monday.Add(75 * time.Hour)
	badge, err = svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if !badge.AutoTransitioned || badge.Timer.Paused {
		t.Fatalf("expected auto resume, got %+v", badge)
	}
	if badge.ElapsedMinutes != 0 || badge.TotalPausedMinutes != 1620 {
		t.Fatalf("unexpected minutes after resume %+v", badge)
	}

	ledger, err := svc.PauseEvents(context.Background(), id)
	if err != nil {
		t.Fatalf("PauseEvents() error = %v", err)
	}
	if len(ledger) != 1 || ledger[0].IsOpen() || ledger[0].Reason != domain.PauseManual {
		t.Fatalf("unexpected ledger %#v", ledger)
	}
}

func TestCardBadgeSubtractsSubMinutePausesConsistently(t *testing.T) {
	reader := newFakeReader()
	seedBoard(reader)
	id := cardIDAt(monday, 5)
	reader.cards[id] = domain.Card{ID: id, BoardID: "b1", ListID: "l-doing", Name: "five"}
	reader.actions[id] = []domain.Action{createdIn("l-doing", "Doing", monday.Add(120*time.Millisecond))}
	clock := &testClock{now: monday.Add(10*time.Minute + 40*time.Second)}
	svc := newTestService(t, reader, newFakeStore(), clock, ServiceConfig{})

	if _, err := svc.ToggleTimer(context.Background(), id); err != nil {
		t.Fatalf("ToggleTimer() pause error = %v", err)
	}
	clock.now = monday.Add(20*time.Minute + 20*time.Second)
	if _, err := svc.ToggleTimer(context.Background(), id); err != nil {
		t.Fatalf("ToggleTimer() resume error = %v", err)
	}
	clock.now = monday.Add(time.Hour + 30*time.Second)

	badge, err := svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	active := svc.calendar.BusinessMinutesBetween(monday, monday.Add(10*time.Minute+40*time.Second)) +
		svc.calendar.BusinessMinutesBetween(monday.Add(20*time.Minute+20*time.Second), clock.now)
	if badge.ElapsedMinutes != 50 || badge.ElapsedMinutes != active {
		t.Fatalf("ElapsedMinutes = %d, want 50 (active segments sum to %d)", badge.ElapsedMinutes, active)
	}
	if badge.TotalPausedMinutes != 10 {
		t.Fatalf("TotalPausedMinutes = %d, want 10", badge.TotalPausedMinutes)
	}
}

func TestManualPauseSurvivesLeavingTriggerList(t *testing.T) {
	reader := newFakeReader()
	seedBoard(reader)
	id := cardIDAt(monday, 4)
	reader.cards[id] = domain.Card{ID: id, BoardID: "b1", ListID: "l-blocked"}
	reader.actions[id] = []domain.Action{createdIn("l-blocked", "Blocked", monday)}
	clock := &testClock{now: monday.Add(time.Hour)}
	svc := newTestService(t, reader, newFakeStore(), clock, ServiceConfig{
		BoardDefaults: map[string]BoardLists{"b1": {AutoPause: []string{"Blocked"}}},
	})

	state, err := svc.ToggleTimer(context.Background(), id)
	if err != nil {
		t.Fatalf("ToggleTimer() error = %v", err)
	}
	if state != (domain.TimerState{Paused: true, Reason: domain.PauseManual}) {
		t.Fatalf("ToggleTimer() = %s, want Paused(manual)", state)
	}
	if _, err := svc.CardBadge(context.Background(), id); err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}

	reader.mu.Lock()
	card := reader.cards[id]
	card.ListID = "l-doing"
	reader.cards[id] = card
	reader.mu.Unlock()

	clock.now = monday.Add(2 * time.Hour)
	badge, err := svc.CardBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("CardBadge() error = %v", err)
	}
	if badge.Timer != (domain.TimerState{Paused: true, Reason: domain.PauseManual}) {
		t.Fatalf("expected manual pause to persist, got %s", badge.Timer)
	}

	state, err = svc.ToggleTimer(context.Background(), id)
	if err != nil {
		t.Fatalf("ToggleTimer() error = %v", err)
	}
	if state.Paused {
		t.Fatalf("expected manual toggle to resume, got %s", state)
	}
}

func TestCardBadgeErrors(t *testing.T) {
	svc := newTestService(t, newFakeReader(), newFakeStore(), &testClock{now: monday}, ServiceConfig{})
	if _, err := svc.CardBadge(context.Background(), " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("CardBadge(blank) error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.CardBadge(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CardBadge(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.ToggleTimer(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ToggleTimer(blank) error = %v, want ErrInvalidInput", err)
	}
}
