package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/evanschultz/cardclock/internal/domain"
	"github.com/evanschultz/cardclock/internal/report"
)

// defaultReportRunLimit caps ListReportRuns when no limit is given.
const defaultReportRunLimit = 20

// ListReport is one generated list report. CSV is complete or the report is not returned at all.
type ListReport struct {
	RunID    string
	ListID   string
	ListName string
	FileName string
	CSV      string
	Result   *report.Result
}

// GenerateListReport fetches every card in the list and renders the member report.
// Card fetches run concurrently up to the configured limit; the first failure aborts the run.
func (s *Service) GenerateListReport(ctx context.Context, listID string) (ListReport, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return ListReport{}, fmt.Errorf("%w: list id is required", ErrInvalidInput)
	}
	list, err := s.reader.GetList(ctx, listID)
	if err != nil {
		return ListReport{}, fmt.Errorf("get list %s: %w", listID, err)
	}
	s.logger.Info("report started", "list_id", list.ID, "list", list.Name)

	cards, err := s.reader.ListCards(ctx, list.ID)
	if err != nil {
		return ListReport{}, fmt.Errorf("list cards for %s: %w", list.ID, err)
	}
	fields, err := s.reader.ListCustomFields(ctx, list.BoardID)
	if err != nil {
		return ListReport{}, fmt.Errorf("list custom fields for board %s: %w", list.BoardID, err)
	}
	lists, err := s.BoardLists(ctx, list.BoardID)
	if err != nil {
		return ListReport{}, err
	}

	records, err := s.fetchCardRecords(ctx, cards)
	if err != nil {
		s.logger.Warn("report aborted", "list_id", list.ID, "err", err)
		return ListReport{}, err
	}
	result := report.Aggregate(records, fields, lists.ReportConfig())

	members, err := s.fetchMembers(ctx, result.MemberIDs())
	if err != nil {
		s.logger.Warn("report aborted", "list_id", list.ID, "err", err)
		return ListReport{}, err
	}
	result.ResolveMembers(members)

	now := s.clock()
	out := ListReport{
		RunID:    s.idGen(),
		ListID:   list.ID,
		ListName: list.Name,
		FileName: report.FileName(list.Name, now),
		CSV:      report.ToCSV(result),
		Result:   result,
	}
	run := ReportRun{
		ID:          out.RunID,
		BoardID:     list.BoardID,
		ListID:      list.ID,
		ListName:    list.Name,
		FileName:    out.FileName,
		CardCount:   len(records),
		MemberCount: len(members),
		CreatedAt:   now.UTC(),
	}
	if err := s.store.CreateReportRun(ctx, run); err != nil {
		return ListReport{}, fmt.Errorf("record report run: %w", err)
	}
	s.logger.Info("report generated", "list_id", list.ID, "run_id", run.ID, "cards", run.CardCount, "members", run.MemberCount, "file", run.FileName)
	return out, nil
}

// fetchCardRecords loads actions and field values per card. Each record is complete or the call fails.
func (s *Service) fetchCardRecords(ctx context.Context, cards []domain.Card) ([]report.CardRecord, error) {
	records := make([]report.CardRecord, len(cards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, card := range cards {
		g.Go(func() error {
			actions, err := s.reader.ListCardActions(gctx, card.ID)
			if err != nil {
				return cardFetchError(card, err)
			}
			values, err := s.reader.ListCardCustomFieldValues(gctx, card.ID)
			if err != nil {
				return cardFetchError(card, err)
			}
			rec, err := report.NewCardRecord(card, actions, values)
			if err != nil {
				return cardFetchError(card, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func cardFetchError(card domain.Card, err error) error {
	return fmt.Errorf("fetch card %q (%s): %w", card.Name, card.ID, err)
}

// fetchMembers resolves member records once per distinct id.
func (s *Service) fetchMembers(ctx context.Context, ids []string) ([]domain.Member, error) {
	var (
		mu      sync.Mutex
		members = make([]domain.Member, 0, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			member, err := s.reader.GetMember(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch member %s: %w", id, err)
			}
			mu.Lock()
			members = append(members, member)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return members, nil
}

// ListReportRuns returns recorded report runs for a list, newest first.
func (s *Service) ListReportRuns(ctx context.Context, listID string, limit int) ([]ReportRun, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return nil, fmt.Errorf("%w: list id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultReportRunLimit
	}
	return s.store.ListReportRuns(ctx, listID, limit)
}
