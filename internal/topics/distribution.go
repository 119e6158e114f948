package topics

import (
	"math"
	"sort"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
)

// Share is one topic's portion of petitions or signatures
type Share struct {
	Topic      string  `json:"topic"`
	Percentage float64 `json:"percentage"`
	RawCount   int     `json:"rawCount"`
}

// GroupShare aggregates the shares of the topics in one group
type GroupShare struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	RawCount   int     `json:"rawCount"`
	Topics     []Share `json:"topics"`
}

// Distribution is the topic breakdown of a dataset
type Distribution struct {
	Petitions  []Share `json:"petitionPercentages"`
	Signatures []Share `json:"signaturePercentages"`
}

// Compute builds the petition and signature breakdowns.
// Petition shares are over every entry in the topic map; signature shares are over every petition in the store.
func Compute(s *store.Store, tm model.TopicMap) Distribution {
	return Distribution{
		Petitions:  petitionShares(tm),
		Signatures: signatureShares(s, tm),
	}
}

func petitionShares(tm model.TopicMap) []Share {
	counts := make(map[string]int)
	for _, topic := range tm {
		counts[topic]++
	}
	return toShares(counts, len(tm))
}

func signatureShares(s *store.Store, tm model.TopicMap) []Share {
	if s == nil {
		return nil
	}

	total := 0
	counts := make(map[string]int)
	for _, p := range s.Petitions() {
		n := p.UKTotal()
		total += n
		if topic, ok := tm[p.ID]; ok && topic != "" {
			counts[topic] += n
		}
	}
	return toShares(counts, total)
}

func toShares(counts map[string]int, total int) []Share {
	out := make([]Share, 0, len(counts))
	for topic, n := range counts {
		pct := 0.0
		if total > 0 {
			pct = round2(float64(n) / float64(total) * 100)
		}
		out = append(out, Share{Topic: topic, Percentage: pct, RawCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RawCount != out[j].RawCount {
			return out[i].RawCount > out[j].RawCount
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// Grouped folds topic shares into the fixed groups; labels outside the taxonomy are left out
func Grouped(shares []Share) []GroupShare {
	byTopic := make(map[string]Share, len(shares))
	for _, s := range shares {
		byTopic[s.Topic] = s
	}

	out := make([]GroupShare, 0, len(Groups))
	for _, g := range Groups {
		gs := GroupShare{Name: g.Name}
		for _, t := range g.Topics {
			s, ok := byTopic[t]
			if !ok {
				continue
			}
			gs.Percentage += s.Percentage
			gs.RawCount += s.RawCount
			gs.Topics = append(gs.Topics, s)
		}
		gs.Percentage = round2(gs.Percentage)
		out = append(out, gs)
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
