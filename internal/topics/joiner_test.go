package topics

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
)

func buildStore(t *testing.T) *store.Store {
	t.Helper()
	petitions := []model.Petition{
		{ID: "1", Attributes: model.Attributes{Action: "A", SignatureCount: 600, SignaturesByConstituency: model.ConstituencySignatures{{Name: "Foyle", SignatureCount: 5}}}},
		{ID: "2", Attributes: model.Attributes{Action: "B", SignatureCount: 300, SignaturesByConstituency: model.ConstituencySignatures{{Name: "Foyle", SignatureCount: 2}}}},
		{ID: "3", Attributes: model.Attributes{Action: "C", SignatureCount: 100, SignaturesByConstituency: model.ConstituencySignatures{{Name: "Foyle", SignatureCount: 1}}}},
	}
	s, _, err := store.Build(petitions)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTopicForMissReturnsSentinel(t *testing.T) {
	j := NewJoiner(model.TopicMap{"1": "health", "2": ""}, nil)

	tests := []struct {
		id   model.PetitionID
		want string
	}{
		{"1", "health"},
		{"2", model.TopicNotAvailable},
		{"999", model.TopicNotAvailable},
	}
	for _, tt := range tests {
		if got := j.TopicFor(tt.id); got != tt.want {
			t.Errorf("TopicFor(%s) = %q, want %q", tt.id, got, tt.want)
		}
	}

	var nilJoiner *Joiner
	if got := nilJoiner.TopicFor("1"); got != model.TopicNotAvailable {
		t.Errorf("nil joiner returned %q", got)
	}
	if got := NewJoiner(nil, nil).TopicFor("1"); got != model.TopicNotAvailable {
		t.Errorf("nil topic map returned %q", got)
	}
}

func TestConstituencyTopics(t *testing.T) {
	j := NewJoiner(model.TopicMap{"1": "health", "2": "crime", "3": "health"}, buildStore(t))

	got := j.ConstituencyTopics("Foyle")
	if !reflect.DeepEqual(got, []string{"crime", "health"}) {
		t.Errorf("unexpected topics: %v", got)
	}
	if got := j.ConstituencyTopics("Strangford"); got != nil {
		t.Errorf("expected nil for unknown constituency, got %v", got)
	}
}

func TestCoverage(t *testing.T) {
	j := NewJoiner(model.TopicMap{"1": "health"}, buildStore(t))

	labelled, total := j.Coverage()
	if labelled != 1 || total != 3 {
		t.Errorf("expected 1/3, got %d/%d", labelled, total)
	}
}

func TestLoadTopicMapMissingFile(t *testing.T) {
	tm, err := LoadTopicMap(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tm) != 0 {
		t.Errorf("expected empty map, got %v", tm)
	}
}

func TestSaveAndLoadTopicMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics_by_petition.json")
	want := model.TopicMap{"1": "health", "22": "transport"}

	if err := SaveTopicMap(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadTopicMap(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLoadTopicMapInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`["not", "a", "map"]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTopicMap(path); err == nil {
		t.Error("expected error for non-object topic file")
	}
}
