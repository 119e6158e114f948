package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/salience"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
)

// Row is one petition as displayed for a constituency
type Row struct {
	PetitionID      model.PetitionID `json:"id"`
	Action          string           `json:"petition"`
	URL             string           `json:"url,omitempty"`
	Count           int              `json:"count"`
	UKTotal         int              `json:"ukTotal"`
	Salience        salience.Result  `json:"salience"`
	SalienceClass   string           `json:"salienceClass"`
	Topic           string           `json:"topic"`
	State           model.State      `json:"state,omitempty"`
	WrittenResponse bool             `json:"hasWrittenResponse"`
	Debated         bool             `json:"hasDebate"`
	Created         string           `json:"created,omitempty"`
}

// Build returns the rows of a constituency sorted by count, highest first.
// It reports false for an unknown constituency.
func Build(s *store.Store, j *topics.Joiner, constituency string) ([]Row, bool) {
	if _, ok := s.Index.Get(constituency); !ok {
		return nil, false
	}

	srows := s.Rows(constituency)
	rows := make([]Row, 0, len(srows))
	for _, sr := range srows {
		r := Row{
			PetitionID:    sr.Entry.ID,
			Action:        sr.Entry.Action,
			Count:         sr.Entry.Count,
			UKTotal:       sr.UKTotal,
			Salience:      sr.Salience,
			SalienceClass: sr.Salience.Category.Class(),
			Topic:         j.TopicFor(sr.Entry.ID),
			URL:           PetitionURL(sr.Entry.ID),
		}
		if p := sr.Petition; p != nil {
			if p.Attributes.URL != "" {
				r.URL = p.Attributes.URL
			}
			r.State = p.Attributes.State
			r.WrittenResponse = p.HasWrittenResponse()
			r.Debated = p.HasDebate()
			r.Created = p.Attributes.CreatedAt
		}
		rows = append(rows, r)
	}

	Sort(rows, ColumnCount, true)
	return rows, true
}

// PetitionURL returns the public page of a petition
func PetitionURL(id model.PetitionID) string {
	return "https://petition.parliament.uk/petitions/" + id.String()
}

// Column names a sortable column
type Column string

const (
	ColumnPetition Column = "petition"
	ColumnCount    Column = "count"
	ColumnSalience Column = "salience"
	ColumnUKTotal  Column = "uk_total"
	ColumnState    Column = "state"
	ColumnTopic    Column = "topic"
	ColumnCreated  Column = "created"
)

// ParseColumn accepts a column name; "ratio" is an alias for salience
func ParseColumn(s string) (Column, error) {
	switch c := Column(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ColumnCount, nil
	case "ratio":
		return ColumnSalience, nil
	case ColumnPetition, ColumnCount, ColumnSalience, ColumnUKTotal, ColumnState, ColumnTopic, ColumnCreated:
		return c, nil
	}
	return "", fmt.Errorf("unknown sort column %q", s)
}

// Sort orders rows in place by column; ties keep their current order
func Sort(rows []Row, col Column, desc bool) {
	less := lessFunc(col)
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

func lessFunc(col Column) func(a, b Row) bool {
	switch col {
	case ColumnPetition:
		return func(a, b Row) bool { return strings.ToLower(a.Action) < strings.ToLower(b.Action) }
	case ColumnSalience:
		return func(a, b Row) bool { return a.Salience.Ratio < b.Salience.Ratio }
	case ColumnUKTotal:
		return func(a, b Row) bool { return a.UKTotal < b.UKTotal }
	case ColumnState:
		return func(a, b Row) bool { return a.State < b.State }
	case ColumnTopic:
		return func(a, b Row) bool { return a.Topic < b.Topic }
	case ColumnCreated:
		return func(a, b Row) bool { return createdTime(a).Before(createdTime(b)) }
	default:
		return func(a, b Row) bool { return a.Count < b.Count }
	}
}

// createdTime parses the creation timestamp; unparseable values sort first
func createdTime(r Row) time.Time {
	t, _ := parseTimestamp(r.Created)
	return t
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDateUK renders a timestamp as "5 January 2024", "N/A" when absent, "Invalid Date" when unparseable
func FormatDateUK(s string) string {
	if s == "" {
		return "N/A"
	}
	t, ok := parseTimestamp(s)
	if !ok {
		return "Invalid Date"
	}
	return t.UTC().Format("2 January 2006")
}
