package topics

import (
	"sort"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
)

// Joiner resolves topic labels for petitions in a store.
// It only reads its inputs and is safe for concurrent use.
type Joiner struct {
	topics model.TopicMap
	store  *store.Store
}

// NewJoiner creates a joiner over a topic map and store; either may be nil
func NewJoiner(topics model.TopicMap, s *store.Store) *Joiner {
	return &Joiner{topics: topics, store: s}
}

// TopicFor returns the topic of a petition or "N/A" when it has none
func (j *Joiner) TopicFor(id model.PetitionID) string {
	if j == nil {
		return model.TopicNotAvailable
	}
	if t, ok := j.topics[id]; ok && t != "" {
		return t
	}
	return model.TopicNotAvailable
}

// ConstituencyTopics returns the sorted distinct topics of petitions signed in a constituency, excluding "N/A"
func (j *Joiner) ConstituencyTopics(constituency string) []string {
	if j == nil || j.store == nil {
		return nil
	}
	cp, ok := j.store.Index.Get(constituency)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	for _, e := range cp.Entries() {
		t := j.TopicFor(e.ID)
		if t == model.TopicNotAvailable {
			continue
		}
		seen[t] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Coverage returns how many petitions in the store have a topic
func (j *Joiner) Coverage() (labelled, total int) {
	if j == nil || j.store == nil {
		return 0, 0
	}
	for _, p := range j.store.Petitions() {
		total++
		if j.TopicFor(p.ID) != model.TopicNotAvailable {
			labelled++
		}
	}
	return labelled, total
}
