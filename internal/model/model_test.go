package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPetitionIDDecoding(t *testing.T) {
	tests := []struct {
		input string
		want  PetitionID
	}{
		{`700001`, "700001"},
		{`"700001"`, "700001"},
		{`" 42 "`, "42"},
		{`null`, ""},
	}

	for _, tt := range tests {
		var id PetitionID
		if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
			t.Errorf("%s: %v", tt.input, err)
			continue
		}
		if id != tt.want {
			t.Errorf("%s: got %q, want %q", tt.input, id, tt.want)
		}
	}

	out, err := json.Marshal(PetitionID("12"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"12"` {
		t.Errorf("marshal = %s, want a string", out)
	}
}

func TestTallyTolerance(t *testing.T) {
	tests := []struct {
		input string
		want  Tally
	}{
		{`1234`, 1234},
		{`"56"`, 56},
		{`null`, 0},
		{`"lots"`, 0},
		{`{}`, 0},
		{`true`, 0},
		{`12.0`, 12},
		{`-3`, -3},
		{`"NaN"`, 0},
		{`"Infinity"`, 0},
		{`"-Inf"`, 0},
		{`1e30`, 0},
		{`"-1e30"`, 0},
		{`2147483647`, 2147483647},
	}

	for _, tt := range tests {
		var n Tally
		if err := json.Unmarshal([]byte(tt.input), &n); err != nil {
			t.Errorf("%s: %v", tt.input, err)
			continue
		}
		if n != tt.want {
			t.Errorf("%s: got %d, want %d", tt.input, n, tt.want)
		}
	}
}

func TestConstituencySignaturesShape(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"array", `[{"name":"Holborn and St Pancras","signature_count":10}]`, 1},
		{"null", `null`, 0},
		{"object", `{"name":"x"}`, 0},
		{"non-object elements", `[1, "x", {"name":"Islington North","signature_count":"3"}]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Petition
			doc := `{"id":1,"attributes":{"action":"a","signatures_by_constituency":` + tt.input + `}}`
			if err := json.Unmarshal([]byte(doc), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := len(p.Attributes.SignaturesByConstituency); got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
			if p.HasConstituencyData() != (tt.want > 0) {
				t.Errorf("HasConstituencyData = %v", p.HasConstituencyData())
			}
		})
	}
}

func TestAttributesDateAliases(t *testing.T) {
	var a Attributes
	if err := json.Unmarshal([]byte(`{"opening_at":"2020-01-01T00:00:00Z","closing_at":"2020-07-01T00:00:00Z"}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.OpenedAt != "2020-01-01T00:00:00Z" || a.ClosedAt != "2020-07-01T00:00:00Z" {
		t.Errorf("aliases not applied: opened %q closed %q", a.OpenedAt, a.ClosedAt)
	}
}

func TestDecodePetitions(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"array", `[{"id":1,"attributes":{"action":"a"}},{"id":"2","attributes":{"action":"b"}}]`, 2, false},
		{"empty array", `[]`, 0, false},
		{"object", `{"id":1}`, 0, true},
		{"null", `null`, 0, true},
		{"scalar element", `[{"id":1}, 7]`, 0, true},
		{"garbage", `not json`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePetitions(strings.NewReader(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInputFormat) {
					t.Fatalf("err = %v, want ErrInvalidInputFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("petitions = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestPetitionFlags(t *testing.T) {
	p := Petition{Attributes: Attributes{
		SignatureCount:     1000,
		GovernmentResponse: &GovernmentResponse{Summary: "no"},
	}}
	if !p.HasWrittenResponse() || p.HasDebate() || p.UKTotal() != 1000 {
		t.Errorf("flags = response %v debate %v total %d", p.HasWrittenResponse(), p.HasDebate(), p.UKTotal())
	}

	q := Petition{Attributes: Attributes{Action: "Act", Background: "Why", AdditionalDetails: "More"}}
	text := q.DescriptionText()
	for _, want := range []string{"Desired action:\nAct", "Background:\nWhy", "Additional details:\nMore"} {
		if !strings.Contains(text, want) {
			t.Errorf("description missing %q", want)
		}
	}
}

func TestNonFiniteCountsDecodeAsZero(t *testing.T) {
	data := `{"id": 7, "attributes": {"action": "A", "signature_count": "NaN",
		"signatures_by_constituency": [{"name": "Foyle", "signature_count": "Infinity"}]}}`

	var p Petition
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatal(err)
	}
	if p.UKTotal() != 0 {
		t.Errorf("UK total = %d, want 0", p.UKTotal())
	}
	if got := p.Attributes.SignaturesByConstituency[0].SignatureCount; got != 0 {
		t.Errorf("constituency count = %d, want 0", got)
	}
}

func TestConstituencyIndexOrderAndCollisions(t *testing.T) {
	idx := NewConstituencyIndex()
	cp := idx.Ensure("Holborn and St Pancras")
	cp.Set(IndexEntry{ID: "2", Action: "Same text", Count: 1})
	cp.Set(IndexEntry{ID: "1", Action: "Other", Count: 5})
	if evicted := cp.Set(IndexEntry{ID: "3", Action: "Same text", Count: 9}); evicted != "2" {
		t.Errorf("Set evicted %q, want 2", evicted)
	}
	idx.Ensure("Islington North")

	if cp.Len() != 2 {
		t.Errorf("expected 2 entries after replacement, got %d", cp.Len())
	}
	if _, ok := cp.Get("2"); ok {
		t.Error("replaced petition is still reachable by id")
	}

	out, err := json.Marshal(idx)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"Holborn and St Pancras":{"Same text":{"count":9,"id":"3"},"Other":{"count":5,"id":"1"}},"Islington North":{}}`
	if string(out) != want {
		t.Errorf("marshal =\n%s\nwant\n%s", out, want)
	}

	if e, ok := cp.ByAction("Same text"); !ok || e.ID != "3" {
		t.Errorf("ByAction = %+v, want the later petition", e)
	}

	var back ConstituencyIndex
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	names := back.Constituencies()
	if len(names) != 2 || names[0] != "Holborn and St Pancras" {
		t.Errorf("order = %v", names)
	}
}

func TestConstituencyPetitionsActionChange(t *testing.T) {
	cp := NewConstituencyPetitions()
	cp.Set(IndexEntry{ID: "1", Action: "Old", Count: 1})
	cp.Set(IndexEntry{ID: "2", Action: "New", Count: 2})

	// petition 1 is re-recorded under petition 2's action text
	if evicted := cp.Set(IndexEntry{ID: "1", Action: "New", Count: 3}); evicted != "2" {
		t.Errorf("Set evicted %q, want 2", evicted)
	}
	if _, ok := cp.ByAction("Old"); ok {
		t.Error("stale action text still resolves")
	}
	entries := cp.Entries()
	if len(entries) != 1 || entries[0].ID != "1" || entries[0].Count != 3 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestDecodeOrderedObjectRejectsArrays(t *testing.T) {
	err := DecodeOrderedObject([]byte(`[1,2]`), func(string, json.RawMessage) error { return nil })
	if err == nil {
		t.Error("expected an error for a non-object")
	}
}
