package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/salience"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
)

const holborn = "Holborn and St Pancras"

func buildRows(t *testing.T) []Row {
	t.Helper()
	petitions := []model.Petition{
		{ID: "1", Attributes: model.Attributes{
			Action: "Protect local libraries", URL: "https://petition.parliament.uk/petitions/1",
			State: model.StateOpen, SignatureCount: 1000, CreatedAt: "2024-03-10T09:00:00.000Z",
			GovernmentResponse:       &model.GovernmentResponse{Summary: "No"},
			SignaturesByConstituency: model.ConstituencySignatures{{Name: holborn, SignatureCount: 10}},
		}},
		{ID: "2", Attributes: model.Attributes{
			Action: "Fund rural | bus routes", State: model.StateClosed, SignatureCount: 500000,
			CreatedAt:                "2023-11-01T12:00:00Z",
			Debate:                   &model.Debate{DebatedOn: "2024-01-15"},
			SignaturesByConstituency: model.ConstituencySignatures{{Name: holborn, SignatureCount: 1}},
		}},
		{ID: "3", Attributes: model.Attributes{
			Action: "Plant more trees", SignatureCount: 6500,
			SignaturesByConstituency: model.ConstituencySignatures{{Name: holborn, SignatureCount: 10}},
		}},
	}
	s, _, err := store.Build(petitions)
	if err != nil {
		t.Fatal(err)
	}
	j := topics.NewJoiner(model.TopicMap{"1": "culture, media and sport", "2": "transport"}, s)

	rows, ok := Build(s, j, holborn)
	if !ok {
		t.Fatal("constituency not found")
	}
	return rows
}

func TestBuild(t *testing.T) {
	rows := buildRows(t)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	// default order is count descending, ties keep index order
	ids := []model.PetitionID{rows[0].PetitionID, rows[1].PetitionID, rows[2].PetitionID}
	if ids[0] != "1" || ids[1] != "3" || ids[2] != "2" {
		t.Errorf("unexpected order %v", ids)
	}

	r := rows[0]
	if r.Salience.Ratio != 6.5 || r.Salience.Category != salience.MoreSalient {
		t.Errorf("unexpected salience %+v", r.Salience)
	}
	if !r.WrittenResponse || r.Debated || r.Topic != "culture, media and sport" || r.State != model.StateOpen {
		t.Errorf("unexpected row %+v", r)
	}
	classes := []string{"more-salient", "about-salient", "less-salient"}
	for i, want := range classes {
		if rows[i].SalienceClass != want {
			t.Errorf("row %d: class %q, want %q", i, rows[i].SalienceClass, want)
		}
	}
	if rows[2].URL != "https://petition.parliament.uk/petitions/2" {
		t.Errorf("expected a URL built from the id, got %q", rows[2].URL)
	}
	if rows[1].Topic != model.TopicNotAvailable {
		t.Errorf("expected N/A topic, got %q", rows[1].Topic)
	}
	if rows[1].Salience.Category != salience.AboutSalient {
		t.Errorf("expected about salient, got %v", rows[1].Salience)
	}
	if rows[2].Salience.Category != salience.LessSalient {
		t.Errorf("expected less salient, got %v", rows[2].Salience)
	}

	s, _, _ := store.Build(nil)
	if _, ok := Build(s, nil, "Nowhere"); ok {
		t.Error("unknown constituency should report false")
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		col  Column
		desc bool
		want []model.PetitionID
	}{
		{ColumnCount, false, []model.PetitionID{"2", "1", "3"}},
		{ColumnPetition, false, []model.PetitionID{"2", "3", "1"}},
		{ColumnSalience, true, []model.PetitionID{"1", "3", "2"}},
		{ColumnUKTotal, true, []model.PetitionID{"2", "3", "1"}},
		{ColumnCreated, false, []model.PetitionID{"3", "2", "1"}},
		{ColumnTopic, false, []model.PetitionID{"3", "1", "2"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.col), func(t *testing.T) {
			rows := buildRows(t)
			Sort(rows, tt.col, tt.desc)
			for i, id := range tt.want {
				if rows[i].PetitionID != id {
					t.Errorf("position %d: got %s, want %s", i, rows[i].PetitionID, id)
				}
			}
		})
	}
}

func TestParseColumn(t *testing.T) {
	if c, err := ParseColumn("ratio"); err != nil || c != ColumnSalience {
		t.Errorf("ratio alias: %v %v", c, err)
	}
	if c, err := ParseColumn(""); err != nil || c != ColumnCount {
		t.Errorf("default column: %v %v", c, err)
	}
	if _, err := ParseColumn("colour"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []model.PetitionID
	}{
		{"zero value keeps all", Filter{}, []model.PetitionID{"1", "3", "2"}},
		{"name substring", Filter{Name: "LIBRAR"}, []model.PetitionID{"1"}},
		{"min signatures", Filter{MinSignatures: 2}, []model.PetitionID{"1", "3"}},
		{"created after includes start day", Filter{CreatedAfter: "2024-03-10"}, []model.PetitionID{"1"}},
		{"created after drops undated", Filter{CreatedAfter: "2000-01-01"}, []model.PetitionID{"1", "2"}},
		{"band more", Filter{Band: salience.BandMore}, []model.PetitionID{"1"}},
		{"band about", Filter{Band: salience.BandAbout}, []model.PetitionID{"3"}},
		{"band less", Filter{Band: salience.BandLess}, []model.PetitionID{"2"}},
		{"written response", Filter{WrittenResponse: ChoiceYes}, []model.PetitionID{"1"}},
		{"not debated", Filter{Debated: ChoiceNo}, []model.PetitionID{"1", "3"}},
		{"topic", Filter{Topic: "Transport"}, []model.PetitionID{"2"}},
		{"combined", Filter{MinSignatures: 5, Debated: ChoiceYes}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(buildRows(t))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d rows, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].PetitionID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].PetitionID, id)
				}
			}
		})
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (Filter{CreatedAfter: "10/03/2024"}).Validate(); err == nil {
		t.Error("expected error for non-ISO date")
	}
	if err := (Filter{Band: "huge"}).Validate(); err == nil {
		t.Error("expected error for unknown band")
	}
	if err := (Filter{MinSignatures: -1}).Validate(); err == nil {
		t.Error("expected error for negative minimum")
	}
	if err := (Filter{CreatedAfter: "2024-01-01", Band: salience.BandLess}).Validate(); err != nil {
		t.Errorf("valid filter rejected: %v", err)
	}
}

func TestParseChoiceAndBand(t *testing.T) {
	choices := map[string]Choice{"": ChoiceAny, "all": ChoiceAny, "yes": ChoiceYes, "No": ChoiceNo}
	for in, want := range choices {
		if got, err := ParseChoice(in); err != nil || got != want {
			t.Errorf("ParseChoice(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseChoice("maybe"); err == nil {
		t.Error("expected error for maybe")
	}

	if b, err := ParseBand("all"); err != nil || b != salience.BandAny {
		t.Errorf("ParseBand(all) = %v, %v", b, err)
	}
	if b, err := ParseBand("More"); err != nil || b != salience.BandMore {
		t.Errorf("ParseBand(More) = %v, %v", b, err)
	}
	if _, err := ParseBand("lots"); err == nil {
		t.Error("expected error for unknown band")
	}
}

func TestFormatDateUK(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024-03-10T09:00:00.000Z", "10 March 2024"},
		{"2023-11-01T12:00:00Z", "1 November 2023"},
		{"2024-01-15", "15 January 2024"},
		{"", "N/A"},
		{"yesterday", "Invalid Date"},
	}
	for _, tt := range tests {
		if got := FormatDateUK(tt.in); got != tt.want {
			t.Errorf("FormatDateUK(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, buildRows(t)); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "Petition,Count,Local Salience,Actual:Expected Salience,UK Total,State,Written Response?,Debated?,Created,Topic" {
		t.Errorf("unexpected header %v", records[0])
	}

	want := []string{"Protect local libraries", "10", "more salient", "6.50", "1000", "open", "Yes", "No", "10 March 2024", "culture, media and sport"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("column %d: got %q, want %q", i, records[1][i], v)
		}
	}
	if records[2][5] != "N/A" || records[2][8] != "N/A" || records[2][9] != model.TopicNotAvailable {
		t.Errorf("expected N/A for missing state and date, got %v", records[2])
	}
}

func TestWriteMarkdownAndHTML(t *testing.T) {
	rows := buildRows(t)

	var md bytes.Buffer
	if err := WriteMarkdown(&md, holborn, rows); err != nil {
		t.Fatal(err)
	}
	out := md.String()
	for _, want := range []string{"# Holborn and St Pancras", "| 500,000 |", `Fund rural \| bus routes`, "[Protect local libraries](https://petition.parliament.uk/petitions/1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}

	var html bytes.Buffer
	if err := WriteHTML(&html, holborn, rows); err != nil {
		t.Fatal(err)
	}
	page := html.String()
	for _, want := range []string{"<table>", "6.50", `<a href="https://petition.parliament.uk/petitions/1">`, "Open Government Licence"} {
		if !strings.Contains(page, want) {
			t.Errorf("html missing %q", want)
		}
	}

	var empty bytes.Buffer
	if err := WriteMarkdown(&empty, "Nowhere", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(empty.String(), "No petitions match.") {
		t.Errorf("unexpected empty output %q", empty.String())
	}
}
