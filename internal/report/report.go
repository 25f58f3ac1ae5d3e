// Package report aggregates card histories into the member-centric list report.
package report

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/evanschultz/cardclock/internal/domain"
)

// Board custom field names read by the report, matched case-insensitively.
const (
	SizeFieldName          = "Size"
	DaysToReleaseFieldName = "Days to Release"
)

// Output labels for sentinel buckets and fixed columns.
const (
	UnassignedLabel   = "Unassigned"
	TotalsLabel       = "TOTALS"
	NoSizeHeader      = "No Size"
	NoDaysHeader      = "No Days to Release"
	OnTimeHeader      = "On Time"
	PastDueHeader     = "Past Due"
	TotalCardsHeader  = "Total Cards"
	AvgCycleHeader    = "Avg days (current → released)"
	AvgQAHeader       = "Avg QA times"
	memberHeader      = "Member"
	sizeHeaderPrefix  = "Size "
	daysHeaderPrefix  = "Days to Release "
	unassignedKey     = ""
	hoursSuffix       = "hs"
	qaAverageDecimals = 1
)

// ListConfig holds the board lists that enable the optional cycle and QA columns.
type ListConfig struct {
	CurrentWorkListID string
	ReleasedListID    string
	QAListID          string
}

// CycleEnabled reports whether both ends of the tracked work cycle are configured.
func (c ListConfig) CycleEnabled() bool {
	return strings.TrimSpace(c.CurrentWorkListID) != "" && strings.TrimSpace(c.ReleasedListID) != ""
}

// QAEnabled reports whether a QA list is configured.
func (c ListConfig) QAEnabled() bool {
	return strings.TrimSpace(c.QAListID) != ""
}

// CardRecord is one card's complete input to aggregation.
type CardRecord struct {
	Card        domain.Card
	Actions     []domain.Action
	FieldValues []domain.CustomFieldValue
	History     domain.CardHistory
}

// NewCardRecord reconstructs the card history and bundles it with the raw inputs.
func NewCardRecord(card domain.Card, actions []domain.Action, values []domain.CustomFieldValue) (CardRecord, error) {
	history, err := domain.BuildHistory(actions, card.ID)
	if err != nil {
		return CardRecord{}, fmt.Errorf("build history for card %s: %w", card.ID, err)
	}
	if err := history.Validate(); err != nil {
		return CardRecord{}, fmt.Errorf("build history for card %s: %w", card.ID, err)
	}
	return CardRecord{
		Card:        card,
		Actions:     actions,
		FieldValues: values,
		History:     history,
	}, nil
}

// MemberAggregate accumulates one member's (or the unassigned bucket's) figures.
type MemberAggregate struct {
	MemberID   string
	Sizes      map[string]int
	Days       map[string]int
	OnTime     int
	PastDue    int
	TotalCards int
	CycleSum   int
	CycleCount int
	QAEntries  int
}

func newMemberAggregate(memberID string) *MemberAggregate {
	return &MemberAggregate{
		MemberID: memberID,
		Sizes:    map[string]int{},
		Days:     map[string]int{},
	}
}

// Unassigned reports whether the aggregate is the sentinel bucket for cards without members.
func (m *MemberAggregate) Unassigned() bool {
	return m.MemberID == unassignedKey
}

// Result is the outcome of one aggregation pass.
type Result struct {
	Members      map[string]*MemberAggregate
	DisplayNames map[string]string
	SizeColumns  []string
	DaysColumns  []string
	CycleEnabled bool
	QAEnabled    bool
	CycleSum     int
	CycleCount   int
	QAEntries    int
	QACards      int
	CardCount    int
}

// fieldColumn tracks the distinct values seen for one custom field.
type fieldColumn struct {
	def       domain.CustomFieldDefinition
	prefix    string
	sentinel  string
	seen      map[string]struct{}
	sawAbsent bool
}

func newFieldColumn(fields []domain.CustomFieldDefinition, name, prefix, sentinel string) *fieldColumn {
	for _, def := range fields {
		if strings.EqualFold(strings.TrimSpace(def.Name), name) {
			return &fieldColumn{def: def, prefix: prefix, sentinel: sentinel, seen: map[string]struct{}{}}
		}
	}
	return nil
}

// header resolves the card's value for this field into its column header.
func (f *fieldColumn) header(values []domain.CustomFieldValue) string {
	for _, v := range values {
		if v.FieldID != f.def.ID {
			continue
		}
		value := strings.TrimSpace(v.Text)
		if v.OptionID != "" {
			value, _ = f.def.OptionValue(v.OptionID)
			value = strings.TrimSpace(value)
		}
		if value == "" {
			break
		}
		f.seen[value] = struct{}{}
		return f.prefix + value
	}
	f.sawAbsent = true
	return f.sentinel
}

// columns returns headers ordered by dropdown option order, then lexically, sentinel last.
func (f *fieldColumn) columns() []string {
	optionRank := map[string]int{}
	for i, opt := range f.def.Options {
		value := strings.TrimSpace(opt.Value)
		if _, ok := optionRank[value]; !ok {
			optionRank[value] = i
		}
	}
	values := make([]string, 0, len(f.seen))
	for v := range f.seen {
		values = append(values, v)
	}
	slices.SortFunc(values, func(a, b string) int {
		ra, aok := optionRank[a]
		rb, bok := optionRank[b]
		switch {
		case aok && bok:
			return cmp.Compare(ra, rb)
		case aok:
			return -1
		case bok:
			return 1
		}
		return strings.Compare(a, b)
	})
	out := make([]string, 0, len(values)+1)
	for _, v := range values {
		out = append(out, f.prefix+v)
	}
	if f.sawAbsent {
		out = append(out, f.sentinel)
	}
	return out
}

// Aggregate folds card records into per-member figures.
// Each card contributes to every assigned member, or to the unassigned bucket.
func Aggregate(records []CardRecord, fields []domain.CustomFieldDefinition, cfg ListConfig) *Result {
	result := &Result{
		Members:      map[string]*MemberAggregate{},
		DisplayNames: map[string]string{},
		CycleEnabled: cfg.CycleEnabled(),
		QAEnabled:    cfg.QAEnabled(),
	}
	sizes := newFieldColumn(fields, SizeFieldName, sizeHeaderPrefix, NoSizeHeader)
	days := newFieldColumn(fields, DaysToReleaseFieldName, daysHeaderPrefix, NoDaysHeader)

	for _, rec := range records {
		result.CardCount++

		var sizeHeader, daysHeader string
		if sizes != nil {
			sizeHeader = sizes.header(rec.FieldValues)
		}
		if days != nil {
			daysHeader = days.header(rec.FieldValues)
		}

		onTime, pastDue := dueOutcome(rec)

		cycleDays, cycleOK := 0, false
		if result.CycleEnabled {
			cycleDays, cycleOK = rec.History.DaysFromCurrentWorkToReleased(cfg.CurrentWorkListID, cfg.ReleasedListID)
			if cycleOK {
				result.CycleSum += cycleDays
				result.CycleCount++
			}
		}
		qaEntries := 0
		if result.QAEnabled {
			qaEntries = rec.History.CountEntriesInto(cfg.QAListID)
			result.QAEntries += qaEntries
			result.QACards++
		}

		for _, memberID := range cardMembers(rec.Card) {
			agg, ok := result.Members[memberID]
			if !ok {
				agg = newMemberAggregate(memberID)
				result.Members[memberID] = agg
			}
			agg.TotalCards++
			if sizeHeader != "" {
				agg.Sizes[sizeHeader]++
			}
			if daysHeader != "" {
				agg.Days[daysHeader]++
			}
			if onTime {
				agg.OnTime++
			}
			if pastDue {
				agg.PastDue++
			}
			if cycleOK {
				agg.CycleSum += cycleDays
				agg.CycleCount++
			}
			agg.QAEntries += qaEntries
		}
	}

	if sizes != nil {
		result.SizeColumns = sizes.columns()
	}
	if days != nil {
		result.DaysColumns = days.columns()
	}
	return result
}

// cardMembers returns the distinct assigned members, or the unassigned key.
func cardMembers(card domain.Card) []string {
	out := make([]string, 0, len(card.MemberIDs))
	seen := map[string]struct{}{}
	for _, id := range card.MemberIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return []string{unassignedKey}
	}
	return out
}

// dueOutcome classifies a card with both a due date and a completion event.
// Cards missing either are neither on time nor past due.
func dueOutcome(rec CardRecord) (onTime, pastDue bool) {
	if rec.Card.Due == nil {
		return false, false
	}
	completedAt, ok := domain.LastCompletion(rec.Actions)
	if !ok {
		return false, false
	}
	if completedAt.After(*rec.Card.Due) {
		return false, true
	}
	return true, false
}

// MemberIDs returns the distinct assigned member ids, sorted, excluding the unassigned bucket.
func (r *Result) MemberIDs() []string {
	out := make([]string, 0, len(r.Members))
	for id := range r.Members {
		if id == unassignedKey {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ResolveMembers records display names for the given members.
func (r *Result) ResolveMembers(members []domain.Member) {
	if r.DisplayNames == nil {
		r.DisplayNames = map[string]string{}
	}
	for _, m := range members {
		r.DisplayNames[m.ID] = m.DisplayName()
	}
}

// DisplayName returns the resolved label for a member id, falling back to the id.
func (r *Result) DisplayName(memberID string) string {
	if memberID == unassignedKey {
		return UnassignedLabel
	}
	if name, ok := r.DisplayNames[memberID]; ok && name != "" {
		return name
	}
	return memberID
}

// OrderedMembers returns aggregates sorted by display name, unassigned last.
func (r *Result) OrderedMembers() []*MemberAggregate {
	out := make([]*MemberAggregate, 0, len(r.Members))
	for _, agg := range r.Members {
		out = append(out, agg)
	}
	slices.SortFunc(out, func(a, b *MemberAggregate) int {
		switch {
		case a.Unassigned() && !b.Unassigned():
			return 1
		case b.Unassigned() && !a.Unassigned():
			return -1
		}
		if c := strings.Compare(r.DisplayName(a.MemberID), r.DisplayName(b.MemberID)); c != 0 {
			return c
		}
		return strings.Compare(a.MemberID, b.MemberID)
	})
	return out
}

// Header returns the CSV column headers in output order.
func (r *Result) Header() []string {
	header := []string{memberHeader}
	header = append(header, r.SizeColumns...)
	header = append(header, r.DaysColumns...)
	header = append(header, OnTimeHeader, PastDueHeader, TotalCardsHeader)
	if r.CycleEnabled {
		header = append(header, AvgCycleHeader)
	}
	if r.QAEnabled {
		header = append(header, AvgQAHeader)
	}
	return header
}

// Rows returns one row per member followed by the TOTALS row.
func (r *Result) Rows() [][]string {
	members := r.OrderedMembers()
	rows := make([][]string, 0, len(members)+1)
	totals := newMemberAggregate(unassignedKey)
	for _, agg := range members {
		rows = append(rows, r.row(r.DisplayName(agg.MemberID), agg, formatCycle(agg.CycleSum, agg.CycleCount), formatQA(agg.QAEntries, agg.TotalCards)))
		for k, v := range agg.Sizes {
			totals.Sizes[k] += v
		}
		for k, v := range agg.Days {
			totals.Days[k] += v
		}
		totals.OnTime += agg.OnTime
		totals.PastDue += agg.PastDue
		totals.TotalCards += agg.TotalCards
	}
	rows = append(rows, r.row(TotalsLabel, totals, formatCycle(r.CycleSum, r.CycleCount), formatQA(r.QAEntries, r.QACards)))
	return rows
}

func (r *Result) row(label string, agg *MemberAggregate, cycle, qa string) []string {
	row := []string{label}
	for _, col := range r.SizeColumns {
		row = append(row, strconv.Itoa(agg.Sizes[col]))
	}
	for _, col := range r.DaysColumns {
		row = append(row, strconv.Itoa(agg.Days[col]))
	}
	row = append(row, strconv.Itoa(agg.OnTime), strconv.Itoa(agg.PastDue), strconv.Itoa(agg.TotalCards))
	if r.CycleEnabled {
		row = append(row, cycle)
	}
	if r.QAEnabled {
		row = append(row, qa)
	}
	return row
}

// formatCycle renders an average cycle in whole days, or whole hours below one day.
func formatCycle(sum, count int) string {
	if count == 0 {
		return ""
	}
	avg := float64(sum) / float64(count)
	if avg >= 1 {
		return strconv.Itoa(int(math.Round(avg)))
	}
	return strconv.Itoa(int(math.Round(avg*24))) + hoursSuffix
}

func formatQA(entries, cards int) string {
	if cards == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(entries)/float64(cards), 'f', qaAverageDecimals, 64)
}
