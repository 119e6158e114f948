package topics

import (
	"testing"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
)

func TestPetitionsByTopicAndGroup(t *testing.T) {
	s, _, err := store.Build([]model.Petition{
		{ID: "10", Attributes: model.Attributes{Action: "Small", SignatureCount: 50}},
		{ID: "11", Attributes: model.Attributes{Action: "Large", SignatureCount: 900}},
		{ID: "12", Attributes: model.Attributes{Action: "Middle", SignatureCount: 300}},
		{ID: "13", Attributes: model.Attributes{Action: "Unlabelled", SignatureCount: 5000}},
	})
	if err != nil {
		t.Fatal(err)
	}
	tm := model.TopicMap{"10": "health", "11": "health", "12": "housing and planning", "99": "health"}

	tests := []struct {
		name       string
		kind       SelectionKind
		resolved   string
		ids        []model.PetitionID
		signatures int
	}{
		{"health", SelectTopic, "health", []model.PetitionID{"11", "10"}, 950},
		{" Health ", SelectTopic, "Health", []model.PetitionID{"11", "10"}, 950},
		{"social policy", SelectGroup, "Social policy", []model.PetitionID{"11", "12", "10"}, 1250},
		{"Home affairs", SelectGroup, "Home affairs", nil, 0},
		{"nothing", SelectTopic, "nothing", nil, 0},
	}

	for _, tt := range tests {
		sel := Petitions(s, tm, tt.name)
		if sel.Kind != tt.kind || sel.Name != tt.resolved {
			t.Errorf("%q: got kind %s name %q", tt.name, sel.Kind, sel.Name)
		}
		if sel.Signatures != tt.signatures {
			t.Errorf("%q: expected %d signatures, got %d", tt.name, tt.signatures, sel.Signatures)
		}
		if len(sel.Petitions) != len(tt.ids) {
			t.Errorf("%q: expected %d petitions, got %d", tt.name, len(tt.ids), len(sel.Petitions))
			continue
		}
		for i, id := range tt.ids {
			if sel.Petitions[i].ID != id {
				t.Errorf("%q: position %d is %s, want %s", tt.name, i, sel.Petitions[i].ID, id)
			}
		}
	}
}

func TestPetitionsWithoutStore(t *testing.T) {
	sel := Petitions(nil, model.TopicMap{"1": "health"}, "health")
	if sel.Petitions == nil || len(sel.Petitions) != 0 {
		t.Errorf("expected an empty, non-nil list, got %v", sel.Petitions)
	}
}
