package index

import (
	"fmt"

	"github.com/ppiankov/petitionlens/internal/constituency"
	"github.com/ppiankov/petitionlens/internal/model"
)

// IssueKind classifies a data problem found while building the index
type IssueKind string

const (
	IssueMissingData           IssueKind = "missing_constituency_data"
	IssueNegativeCount         IssueKind = "negative_count"
	IssueCountOverTotal        IssueKind = "count_over_total"
	IssueDuplicateConstituency IssueKind = "duplicate_constituency"
	IssueUnknownConstituency   IssueKind = "unknown_constituency"
	IssueActionCollision       IssueKind = "action_collision"
	IssueUnknownState          IssueKind = "unknown_state"
)

// Issue is one recoverable data problem attached to a petition
type Issue struct {
	Kind         IssueKind
	PetitionID   model.PetitionID
	Constituency string
	Detail       string
}

func (i Issue) String() string {
	if i.Constituency != "" {
		return fmt.Sprintf("%s: petition %s, %s: %s", i.Kind, i.PetitionID, i.Constituency, i.Detail)
	}
	return fmt.Sprintf("%s: petition %s: %s", i.Kind, i.PetitionID, i.Detail)
}

// Report summarizes a build
type Report struct {
	Petitions int
	Indexed   int
	Skipped   int
	Entries   int
	Issues    []Issue
}

// Count returns the number of issues of the given kind
func (r *Report) Count(kind IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Report) add(kind IssueKind, id model.PetitionID, name, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Kind:         kind,
		PetitionID:   id,
		Constituency: name,
		Detail:       fmt.Sprintf(format, args...),
	})
}

type options struct {
	registry *constituency.Registry
}

// Option configures Build
type Option func(*options)

// WithRegistry drops entries whose constituency is not in the registry
func WithRegistry(r *constituency.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// Build folds petitions into a constituency index.
// Petitions are visited in input order; a petition without an identifier fails the whole build.
// Within a constituency a later petition replaces an earlier one with identical action text.
func Build(petitions []model.Petition, opts ...Option) (*model.ConstituencyIndex, *Report, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	idx := model.NewConstituencyIndex()
	report := &Report{Petitions: len(petitions)}
	actions := make(map[string]model.PetitionID)

	for i := range petitions {
		p := &petitions[i]
		if p.ID == "" {
			return nil, nil, fmt.Errorf("%w: petition at position %d has no id", model.ErrInvalidInputFormat, i)
		}

		if st := p.Attributes.State; st != "" && !st.Known() {
			report.add(IssueUnknownState, p.ID, "", "unrecognised state %q", st)
		}

		if !p.HasConstituencyData() {
			report.Skipped++
			report.add(IssueMissingData, p.ID, "", "no per-constituency breakdown")
			continue
		}

		indexed := foldPetition(idx, p, o.registry, report)
		if indexed == 0 {
			report.Skipped++
			continue
		}
		report.Indexed++

		action := p.Attributes.Action
		if prev, ok := actions[action]; ok && prev != p.ID {
			report.add(IssueActionCollision, p.ID, "", "shares action text with petition %s and replaces it", prev)
		}
		actions[action] = p.ID
	}

	for _, name := range idx.Constituencies() {
		cp, _ := idx.Get(name)
		report.Entries += cp.Len()
	}

	return idx, report, nil
}

// foldPetition writes one petition's breakdown into the index and returns the number of entries kept
func foldPetition(idx *model.ConstituencyIndex, p *model.Petition, registry *constituency.Registry, report *Report) int {
	total := p.UKTotal()
	seen := make(map[string]struct{}, len(p.Attributes.SignaturesByConstituency))
	kept := 0

	for _, sig := range p.Attributes.SignaturesByConstituency {
		name := sig.Name
		count := int(sig.SignatureCount)

		if name == "" {
			report.add(IssueUnknownConstituency, p.ID, name, "entry has no constituency name")
			continue
		}
		if registry != nil && !registry.Contains(name) {
			report.add(IssueUnknownConstituency, p.ID, name, "not in constituency registry")
			continue
		}
		if count < 0 {
			report.add(IssueNegativeCount, p.ID, name, "count %d dropped", count)
			continue
		}
		if count > total {
			report.add(IssueCountOverTotal, p.ID, name, "count %d exceeds UK total %d", count, total)
		}
		if _, dup := seen[name]; dup {
			report.add(IssueDuplicateConstituency, p.ID, name, "repeated entry, keeping count %d", count)
		} else {
			seen[name] = struct{}{}
			kept++
		}

		idx.Ensure(name).Set(model.IndexEntry{
			Action: p.Attributes.Action,
			Count:  count,
			ID:     p.ID,
		})
	}

	return kept
}
