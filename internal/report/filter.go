package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/petitionlens/internal/salience"
)

// Choice is a yes/no filter that may be left open
type Choice int

const (
	ChoiceAny Choice = iota
	ChoiceYes
	ChoiceNo
)

// ParseChoice accepts yes, no, all, or empty
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return ChoiceAny, nil
	case "yes", "y", "true":
		return ChoiceYes, nil
	case "no", "n", "false":
		return ChoiceNo, nil
	}
	return ChoiceAny, fmt.Errorf("expected yes, no or all, got %q", s)
}

func (c Choice) match(v bool) bool {
	switch c {
	case ChoiceYes:
		return v
	case ChoiceNo:
		return !v
	default:
		return true
	}
}

// Filter narrows the rows of a constituency view.
// The zero value keeps every row.
type Filter struct {
	Name            string
	MinSignatures   int
	CreatedAfter    string // YYYY-MM-DD, inclusive
	Band            salience.Band
	WrittenResponse Choice
	Debated         Choice
	Topic           string
}

// Validate checks the fields that come from user input
func (f Filter) Validate() error {
	if f.CreatedAfter != "" {
		if _, err := time.Parse("2006-01-02", f.CreatedAfter); err != nil {
			return fmt.Errorf("created-after must be YYYY-MM-DD: %w", err)
		}
	}
	if _, ok := salience.ParseBand(string(f.Band)); !ok {
		return fmt.Errorf("unknown salience band %q", f.Band)
	}
	if f.MinSignatures < 0 {
		return fmt.Errorf("minimum signatures must not be negative")
	}
	return nil
}

// Match reports whether a row passes every set criterion
func (f Filter) Match(r Row) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(r.Action), strings.ToLower(f.Name)) {
		return false
	}
	if r.Count < f.MinSignatures {
		return false
	}
	// ISO timestamps compare lexically against a date, so the start day itself passes
	if f.CreatedAfter != "" && (r.Created == "" || r.Created < f.CreatedAfter) {
		return false
	}
	if !f.Band.Contains(r.Salience.Ratio) {
		return false
	}
	if !f.WrittenResponse.match(r.WrittenResponse) || !f.Debated.match(r.Debated) {
		return false
	}
	if f.Topic != "" && !strings.EqualFold(r.Topic, f.Topic) {
		return false
	}
	return true
}

// Apply returns the rows passing the filter, keeping their order
func (f Filter) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// ParseBand accepts more, about, less, all, or empty
func ParseBand(s string) (salience.Band, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return salience.BandAny, nil
	}
	b, ok := salience.ParseBand(s)
	if !ok {
		return salience.BandAny, fmt.Errorf("unknown salience band %q (want more, about, less or all)", s)
	}
	return b, nil
}
