package topics

import (
	"sort"
	"strings"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
)

// SelectionKind says whether a selection was made by group or by single topic
type SelectionKind string

const (
	SelectGroup SelectionKind = "group"
	SelectTopic SelectionKind = "topic"
)

// Selection is the set of petitions about one topic or topic group
type Selection struct {
	Name       string            `json:"name"`
	Kind       SelectionKind     `json:"kind"`
	Petitions  []*model.Petition `json:"petitions"`
	Signatures int               `json:"signatures"`
}

// Petitions returns the petitions whose topic is name, or whose topic falls in the group called name.
// Group names take precedence and match case-insensitively. Results are sorted by UK total, largest first.
func Petitions(s *store.Store, tm model.TopicMap, name string) Selection {
	sel := Selection{Name: strings.TrimSpace(name), Kind: SelectTopic, Petitions: []*model.Petition{}}

	match := func(topic string) bool { return topic == strings.ToLower(sel.Name) }
	for _, g := range Groups {
		if strings.EqualFold(g.Name, sel.Name) {
			sel.Name, sel.Kind = g.Name, SelectGroup
			members := make(map[string]struct{}, len(g.Topics))
			for _, t := range g.Topics {
				members[t] = struct{}{}
			}
			match = func(topic string) bool {
				_, ok := members[topic]
				return ok
			}
			break
		}
	}

	if s == nil || sel.Name == "" {
		return sel
	}

	for _, p := range s.Petitions() {
		topic, ok := tm[p.ID]
		if !ok || !match(topic) {
			continue
		}
		sel.Petitions = append(sel.Petitions, p)
		sel.Signatures += p.UKTotal()
	}

	sort.SliceStable(sel.Petitions, func(i, j int) bool {
		return sel.Petitions[i].UKTotal() > sel.Petitions[j].UKTotal()
	})
	return sel
}
