package store

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/salience"
)

const holborn = "Holborn and St Pancras"

func samplePetitions() []model.Petition {
	return []model.Petition{
		{
			ID: "100",
			Attributes: model.Attributes{
				Action:         "Petition A",
				State:          model.StateOpen,
				SignatureCount: 1000,
				SignaturesByConstituency: model.ConstituencySignatures{
					{Name: holborn, SignatureCount: 10},
					{Name: "Islington North", SignatureCount: 4},
				},
			},
		},
		{
			ID: "200",
			Attributes: model.Attributes{
				Action:         "Petition B",
				State:          model.StateClosed,
				SignatureCount: 500000,
				SignaturesByConstituency: model.ConstituencySignatures{
					{Name: holborn, SignatureCount: 1},
				},
			},
		},
		{
			ID: "300",
			Attributes: model.Attributes{
				Action:         "Petition C",
				State:          model.StateRejected,
				SignatureCount: 3,
			},
		},
	}
}

func TestBuildHolbornScenario(t *testing.T) {
	s, _, err := Build(samplePetitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := s.Rows(holborn)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	want := []struct {
		count    int
		ratio    float64
		category salience.Category
	}{
		{10, 6.5, salience.MoreSalient},
		{1, 0.0013, salience.LessSalient},
	}
	for i, w := range want {
		if rows[i].Entry.Count != w.count {
			t.Errorf("row %d: expected count %d, got %d", i, w.count, rows[i].Entry.Count)
		}
		if math.Abs(rows[i].Salience.Ratio-w.ratio) > 1e-9 {
			t.Errorf("row %d: expected ratio %v, got %v", i, w.ratio, rows[i].Salience.Ratio)
		}
		if rows[i].Salience.Category != w.category {
			t.Errorf("row %d: expected %q, got %q", i, w.category, rows[i].Salience.Category)
		}
	}
}

func TestPetitionWithoutBreakdownStillStored(t *testing.T) {
	s, report, err := Build(samplePetitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := s.Petition("300"); !ok {
		t.Error("expected petition 300 in raw petitions")
	}
	if report.Skipped != 1 {
		t.Errorf("expected 1 skipped petition, got %d", report.Skipped)
	}
	for _, name := range s.Constituencies() {
		cp, _ := s.Index.Get(name)
		if _, ok := cp.Get("300"); ok {
			t.Errorf("petition 300 unexpectedly indexed under %s", name)
		}
	}
}

func TestRoundTripObjectEncoding(t *testing.T) {
	s, _, err := Build(samplePetitions())
	if err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Index.Equal(s.Index) {
		t.Error("round-tripped index differs")
	}
	if decoded.Len() != s.Len() {
		t.Errorf("expected %d petitions, got %d", s.Len(), decoded.Len())
	}
	if decoded.UKTotal("200") != 500000 {
		t.Errorf("unexpected UK total: %d", decoded.UKTotal("200"))
	}
}

func TestRoundTripWithSharedActionText(t *testing.T) {
	petitions := []model.Petition{
		{ID: "1", Attributes: model.Attributes{Action: "Same", SignatureCount: 100,
			SignaturesByConstituency: model.ConstituencySignatures{{Name: holborn, SignatureCount: 3}}}},
		{ID: "2", Attributes: model.Attributes{Action: "Other", SignatureCount: 100,
			SignaturesByConstituency: model.ConstituencySignatures{{Name: holborn, SignatureCount: 4}}}},
		{ID: "3", Attributes: model.Attributes{Action: "Same", SignatureCount: 100,
			SignaturesByConstituency: model.ConstituencySignatures{{Name: holborn, SignatureCount: 5}}}},
	}

	s, _, err := Build(petitions)
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}

	if !decoded.Index.Equal(s.Index) {
		t.Error("round-tripped index differs from the built one")
	}
	built, loaded := s.Rows(holborn), decoded.Rows(holborn)
	if len(built) != 2 || len(loaded) != len(built) {
		t.Fatalf("expected 2 rows both ways, got built=%d loaded=%d", len(built), len(loaded))
	}
	if built[0].Entry.ID != "3" || loaded[0].Entry.ID != "3" {
		t.Errorf("expected petition 3 in the first slot, got %s and %s", built[0].Entry.ID, loaded[0].Entry.ID)
	}
}

func TestRoundTripArrayEncoding(t *testing.T) {
	petitions := samplePetitions()
	s, _, err := Build(petitions)
	if err != nil {
		t.Fatal(err)
	}

	idx, err := s.Index.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(petitions)
	if err != nil {
		t.Fatal(err)
	}
	data := `{"signaturesByConstituency":` + string(idx) + `,"rawPetitionsData":` + string(raw) + `}`

	decoded, err := Unmarshal([]byte(data))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Index.Equal(s.Index) {
		t.Error("round-tripped index differs")
	}

	p, ok := decoded.Petition("100")
	if !ok || p.Attributes.Action != "Petition A" {
		t.Errorf("unexpected petition: %+v", p)
	}
	if got := decoded.Petitions(); len(got) != 3 || got[2].ID != "300" {
		t.Errorf("expected input order preserved, got %d petitions", len(got))
	}
}

func TestMarshalKeepsInsertionOrder(t *testing.T) {
	s, _, err := Build(samplePetitions())
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(s)
	if err != nil {
		t.Fatal(err)
	}

	text := string(data)
	if strings.Index(text, holborn) > strings.Index(text, "Islington North") {
		t.Error("expected Holborn before Islington North")
	}
	if strings.Index(text, `"100":`) > strings.Index(text, `"300":`) {
		t.Error("expected petition 100 before 300")
	}
	if !strings.Contains(text, `"Petition A":{"count":10,"id":"100"}`) {
		t.Errorf("unexpected entry encoding: %s", text)
	}
}

func TestUnmarshalNumericIDs(t *testing.T) {
	data := `{
		"signaturesByConstituency": {"Foyle": {"Fix roads": {"count": 3, "id": 42}}},
		"rawPetitionsData": {"42": {"id": 42, "attributes": {"action": "Fix roads", "signature_count": "90"}}}
	}`

	s, err := Unmarshal([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := s.Rows("Foyle")
	if len(rows) != 1 || rows[0].Entry.ID != "42" || rows[0].UKTotal != 90 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestUnmarshalFillsIDFromKey(t *testing.T) {
	data := `{"signaturesByConstituency": {}, "rawPetitionsData": {"7": {"attributes": {"action": "x"}}}}`

	s, err := Unmarshal([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Petition("7"); !ok {
		t.Error("expected petition keyed by 7")
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"array", `[]`},
		{"null", `null`},
		{"missing index", `{"rawPetitionsData": {}}`},
		{"missing petitions", `{"signaturesByConstituency": {}}`},
		{"index is array", `{"signaturesByConstituency": [], "rawPetitionsData": {}}`},
		{"petitions is string", `{"signaturesByConstituency": {}, "rawPetitionsData": "x"}`},
		{"petition element scalar", `{"signaturesByConstituency": {}, "rawPetitionsData": [1]}`},
		{"array element without id", `{"signaturesByConstituency": {}, "rawPetitionsData": [{"attributes": {}}]}`},
		{"bad entry", `{"signaturesByConstituency": {"Foyle": {"x": "y"}}, "rawPetitionsData": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if !errors.Is(err, ErrMalformedStore) {
				t.Errorf("expected ErrMalformedStore, got %v", err)
			}
		})
	}
}

func TestRowsUnknownConstituency(t *testing.T) {
	s, _, err := Build(samplePetitions())
	if err != nil {
		t.Fatal(err)
	}
	if rows := s.Rows("Orkney and Shetland"); len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestSaveAndLoad(t *testing.T) {
	s, _, err := Build(samplePetitions())
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "constituencies_data.json")
	if err := Save(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Index.Equal(s.Index) {
		t.Error("loaded index differs")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte(`{"signaturesByConstituency": {}}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, ErrMalformedStore) {
		t.Errorf("expected ErrMalformedStore, got %v", err)
	}
}
