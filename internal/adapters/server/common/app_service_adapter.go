package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

var _ TimeInListService = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// CardBadge returns the badge for one card.
func (a *AppServiceAdapter) CardBadge(ctx context.Context, cardID string) (BadgeView, error) {
	if a == nil || a.service == nil {
		return BadgeView{}, fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	cardID, err := requireID("card_id", cardID)
	if err != nil {
		return BadgeView{}, err
	}
	badge, err := a.service.CardBadge(ctx, cardID)
	if err != nil {
		return BadgeView{}, mapAppError("card badge", err)
	}
	view := BadgeView{
		CardID:             badge.CardID,
		CardName:           badge.CardName,
		BoardID:            badge.BoardID,
		ListID:             badge.ListID,
		ListName:           badge.ListName,
		EnteredAt:          badge.EnteredAt.UTC(),
		ElapsedMinutes:     badge.ElapsedMinutes,
		Text:               badge.Text,
		Timer:              badge.Timer.String(),
		Paused:             badge.Timer.Paused,
		TotalPausedMinutes: badge.TotalPausedMinutes,
		AutoTransitioned:   badge.AutoTransitioned,
	}
	if badge.Timer.Paused {
		view.PauseReason = string(badge.Timer.Reason)
	}
	return view, nil
}

// ToggleTimer flips the manual pause state of one card.
func (a *AppServiceAdapter) ToggleTimer(ctx context.Context, cardID string) (TimerView, error) {
	if a == nil || a.service == nil {
		return TimerView{}, fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	cardID, err := requireID("card_id", cardID)
	if err != nil {
		return TimerView{}, err
	}
	state, err := a.service.ToggleTimer(ctx, cardID)
	if err != nil {
		return TimerView{}, mapAppError("toggle timer", err)
	}
	return timerView(cardID, state), nil
}

// ListReport generates the CSV report for one list.
func (a *AppServiceAdapter) ListReport(ctx context.Context, listID string) (ListReportView, error) {
	if a == nil || a.service == nil {
		return ListReportView{}, fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	listID, err := requireID("list_id", listID)
	if err != nil {
		return ListReportView{}, err
	}
	rep, err := a.service.GenerateListReport(ctx, listID)
	if err != nil {
		return ListReportView{}, mapAppError("list report", err)
	}
	view := ListReportView{
		RunID:    rep.RunID,
		ListID:   rep.ListID,
		ListName: rep.ListName,
		FileName: rep.FileName,
		CSV:      rep.CSV,
	}
	if rep.Result != nil {
		view.CardCount = rep.Result.CardCount
		view.MemberCount = len(rep.Result.MemberIDs())
	}
	return view, nil
}

// ListReportRuns returns past report runs for one list, newest first.
func (a *AppServiceAdapter) ListReportRuns(ctx context.Context, listID string, limit int) ([]ReportRunView, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	listID, err := requireID("list_id", listID)
	if err != nil {
		return nil, err
	}
	runs, err := a.service.ListReportRuns(ctx, listID, limit)
	if err != nil {
		return nil, mapAppError("list report runs", err)
	}
	out := make([]ReportRunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, ReportRunView{
			ID:          run.ID,
			BoardID:     run.BoardID,
			ListID:      run.ListID,
			ListName:    run.ListName,
			FileName:    run.FileName,
			CardCount:   run.CardCount,
			MemberCount: run.MemberCount,
			CreatedAt:   run.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func timerView(cardID string, state domain.TimerState) TimerView {
	view := TimerView{CardID: cardID, Timer: state.String(), Paused: state.Paused}
	if state.Paused {
		view.Reason = string(state.Reason)
	}
	return view
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidRequest)
	}
	return value, nil
}

// mapAppError maps app and domain errors into transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrAuthRequired):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrAuthRequired, err))
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrFetchFailed):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrFetchFailed, err))
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidCardID):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
