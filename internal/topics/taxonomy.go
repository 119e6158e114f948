package topics

import (
	"strings"

	"github.com/ppiankov/petitionlens/internal/model"
)

// Group is a named cluster of related topics used for summary charts
type Group struct {
	Name   string
	Topics []string
}

// Groups lists the topic groups in display order
var Groups = []Group{
	{"Brexit and the EU", []string{"brexit", "the eu"}},
	{"Coronavirus", []string{"coronavirus"}},
	{"Economy, business and transport", []string{"business", "economy", "transport", "work and incomes"}},
	{"Home affairs", []string{"communities", "crime", "culture", "culture, media and sport", "family and civil law", "immigration", "justice", "security"}},
	{"Parliament and elections", []string{"devolution", "elections", "government", "local government", "parliament"}},
	{"Science, climate and technology", []string{"climate change", "energy", "environment", "sciences", "technology"}},
	{"Social policy", []string{"education", "families and social services", "health", "housing and planning", "welfare and pensions"}},
	{"Other", []string{"africa", "americas", "asia", "europe", "middle east", "defence", "institutions", model.TopicOther}},
}

// Taxonomy returns every topic label in group order
func Taxonomy() []string {
	var out []string
	for _, g := range Groups {
		out = append(out, g.Topics...)
	}
	return out
}

var known = func() map[string]string {
	m := make(map[string]string)
	for _, g := range Groups {
		for _, t := range g.Topics {
			m[t] = g.Name
		}
	}
	return m
}()

// Normalize maps free model output onto a taxonomy label, falling back to "other"
func Normalize(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.Trim(s, "\"'`.*:- ")
	s = strings.TrimPrefix(s, "topic:")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.Join(strings.Fields(s), " ")

	if _, ok := known[s]; ok {
		return s
	}
	if s == "eu" || s == "european union" {
		return "the eu"
	}
	if s == "covid" || s == "covid-19" {
		return "coronavirus"
	}

	// Accept a label the model wrapped in extra words, preferring the longest match
	best := ""
	for _, t := range Taxonomy() {
		if t != model.TopicOther && strings.Contains(s, t) && len(t) > len(best) {
			best = t
		}
	}
	if best != "" {
		return best
	}
	return model.TopicOther
}

// GroupOf returns the group a topic belongs to, or "" for labels outside the taxonomy
func GroupOf(topic string) string {
	return known[topic]
}
