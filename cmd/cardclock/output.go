package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	clockStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// renderBadge formats one card badge as labelled lines.
func renderBadge(b app.Badge) string {
	lines := []string{
		titleStyle.Render(b.CardName) + " " + mutedStyle.Render(b.CardID),
		field("list", valueStyle.Render(b.ListName)),
		field("in list", clockStyle.Render(b.Text)),
		field("since", valueStyle.Render(b.EnteredAt.UTC().Format(time.RFC3339))),
		field("timer", timerStyle(b.Timer).Render(b.Timer.String())),
		field("paused total", valueStyle.Render(domain.FormatDuration(b.TotalPausedMinutes))),
	}
	if b.AutoTransitioned {
		lines = append(lines, mutedStyle.Render("timer changed automatically on list move"))
	}
	return strings.Join(lines, "\n")
}

// renderTimer formats the state after a manual toggle.
func renderTimer(cardID string, state domain.TimerState) string {
	return mutedStyle.Render(cardID) + " " + timerStyle(state).Render(state.String())
}

// renderBoardLists formats the effective list roles for a board.
func renderBoardLists(boardID string, lists app.BoardLists) string {
	lines := []string{
		titleStyle.Render("board " + boardID),
		field("current work", orUnset(lists.CurrentWork)),
		field("released", orUnset(lists.Released)),
		field("qa", orUnset(lists.QA)),
		field("auto pause", orUnset(strings.Join(lists.AutoPause, ", "))),
	}
	return strings.Join(lines, "\n")
}

// renderReportRuns formats report history as a table, newest first.
func renderReportRuns(runs []app.ReportRun) string {
	if len(runs) == 0 {
		return mutedStyle.Render("no reports generated for this list")
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.FileName,
			strconv.Itoa(run.CardCount),
			strconv.Itoa(run.MemberCount),
			run.ID,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers("Created", "File", "Cards", "Members", "Run").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String()
}

func field(label, value string) string {
	return labelStyle.Render(label) + value
}

func timerStyle(state domain.TimerState) lipgloss.Style {
	if state.Paused {
		return pausedStyle
	}
	return activeStyle
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return mutedStyle.Render("(unset)")
	}
	return valueStyle.Render(value)
}
