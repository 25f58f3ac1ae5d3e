package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/evanschultz/cardclock/internal/domain"
	"github.com/evanschultz/cardclock/internal/report"
)

// BoardLists holds one board's list configuration.
// Values are list ids once resolved; input may also name lists case-insensitively.
type BoardLists struct {
	CurrentWork string   `json:"currentWork,omitempty"`
	Released    string   `json:"released,omitempty"`
	QA          string   `json:"qa,omitempty"`
	AutoPause   []string `json:"autoPause,omitempty"`
}

// normalized trims references and drops empty or duplicate auto-pause entries.
func (b BoardLists) normalized() BoardLists {
	out := BoardLists{
		CurrentWork: strings.TrimSpace(b.CurrentWork),
		Released:    strings.TrimSpace(b.Released),
		QA:          strings.TrimSpace(b.QA),
	}
	for _, ref := range b.AutoPause {
		ref = strings.TrimSpace(ref)
		if ref == "" || slices.Contains(out.AutoPause, ref) {
			continue
		}
		out.AutoPause = append(out.AutoPause, ref)
	}
	return out
}

func (b BoardLists) clone() BoardLists {
	b.AutoPause = slices.Clone(b.AutoPause)
	return b
}

// IsZero reports whether no list is configured.
func (b BoardLists) IsZero() bool {
	return b.CurrentWork == "" && b.Released == "" && b.QA == "" && len(b.AutoPause) == 0
}

// IsAutoPause reports whether listID triggers an automatic timer pause.
func (b BoardLists) IsAutoPause(listID string) bool {
	return listID != "" && slices.Contains(b.AutoPause, listID)
}

// ReportConfig returns the lists that drive the optional report columns.
func (b BoardLists) ReportConfig() report.ListConfig {
	return report.ListConfig{
		CurrentWorkListID: b.CurrentWork,
		ReleasedListID:    b.Released,
		QAListID:          b.QA,
	}
}

// SetBoardLists resolves list references against the board and stores them in board-private storage.
// The stored value replaces the board's configured defaults entirely, including empty fields.
func (s *Service) SetBoardLists(ctx context.Context, boardID string, in BoardLists) (BoardLists, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return BoardLists{}, fmt.Errorf("%w: board id is required", ErrInvalidInput)
	}
	resolved, err := s.resolveBoardLists(ctx, boardID, in.normalized(), true)
	if err != nil {
		return BoardLists{}, err
	}
	if err := s.saveJSON(ctx, boardScope(boardID), keyBoardLists, resolved); err != nil {
		return BoardLists{}, err
	}
	s.logger.Info("board lists saved",
		"board_id", boardID,
		"current_work", resolved.CurrentWork,
		"released", resolved.Released,
		"qa", resolved.QA,
		"auto_pause", len(resolved.AutoPause),
	)
	return resolved, nil
}

// BoardLists returns the board's stored list configuration, or the configured defaults when nothing was stored.
// Default references that no longer match a board list are dropped. Resolved defaults are cached per board.
func (s *Service) BoardLists(ctx context.Context, boardID string) (BoardLists, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return BoardLists{}, fmt.Errorf("%w: board id is required", ErrInvalidInput)
	}
	var stored BoardLists
	found, err := s.loadJSON(ctx, boardScope(boardID), keyBoardLists, &stored)
	if err != nil {
		return BoardLists{}, err
	}
	if found {
		return stored.normalized(), nil
	}
	return s.boardDefaultsFor(ctx, boardID)
}

func (s *Service) boardDefaultsFor(ctx context.Context, boardID string) (BoardLists, error) {
	defaults, ok := s.boardDefaults[boardID]
	if !ok || defaults.IsZero() {
		return BoardLists{}, nil
	}
	s.mu.Lock()
	cached, ok := s.resolvedDefaults[boardID]
	s.mu.Unlock()
	if ok {
		return cached.clone(), nil
	}
	resolved, err := s.resolveBoardLists(ctx, boardID, defaults, false)
	if err != nil {
		return BoardLists{}, err
	}
	s.mu.Lock()
	s.resolvedDefaults[boardID] = resolved
	s.mu.Unlock()
	return resolved.clone(), nil
}

// resolveBoardLists maps each reference to a list id, matching ids first and names case-insensitively.
// In strict mode an unknown reference fails; otherwise it is dropped.
func (s *Service) resolveBoardLists(ctx context.Context, boardID string, in BoardLists, strict bool) (BoardLists, error) {
	if in.IsZero() {
		return in, nil
	}
	lists, err := s.reader.ListLists(ctx, boardID)
	if err != nil {
		return BoardLists{}, fmt.Errorf("list board %s lists: %w", boardID, err)
	}
	resolve := func(field, ref string) (string, error) {
		if ref == "" {
			return "", nil
		}
		if id, ok := matchList(lists, ref); ok {
			return id, nil
		}
		if strict {
			return "", fmt.Errorf("%w: %s list %q not found on board %s", ErrInvalidInput, field, ref, boardID)
		}
		s.logger.Warn("configured list not found", "board_id", boardID, "field", field, "ref", ref)
		return "", nil
	}

	var out BoardLists
	if out.CurrentWork, err = resolve("current_work", in.CurrentWork); err != nil {
		return BoardLists{}, err
	}
	if out.Released, err = resolve("released", in.Released); err != nil {
		return BoardLists{}, err
	}
	if out.QA, err = resolve("qa", in.QA); err != nil {
		return BoardLists{}, err
	}
	for _, ref := range in.AutoPause {
		id, err := resolve("auto_pause", ref)
		if err != nil {
			return BoardLists{}, err
		}
		if id != "" && !slices.Contains(out.AutoPause, id) {
			out.AutoPause = append(out.AutoPause, id)
		}
	}
	return out, nil
}

func matchList(lists []domain.List, ref string) (string, bool) {
	for _, l := range lists {
		if l.ID == ref {
			return l.ID, true
		}
	}
	for _, l := range lists {
		if strings.EqualFold(strings.TrimSpace(l.Name), ref) {
			return l.ID, true
		}
	}
	return "", false
}

func boardScope(boardID string) Scope {
	return Scope{Kind: ScopeBoard, ID: boardID}
}
