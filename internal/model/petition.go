package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidInputFormat is returned when raw petition input is not a sequence of petition records
var ErrInvalidInputFormat = errors.New("invalid input format")

// PetitionID is the stable identifier of a petition.
// The petitions API emits integers; older exports carry strings. Both decode, and it always encodes as a string.
type PetitionID string

// UnmarshalJSON accepts a JSON string or number
func (id *PetitionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("petition id: %w", err)
		}
		*id = PetitionID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("petition id: %w", err)
	}
	*id = PetitionID(n.String())
	return nil
}

// String returns the identifier as a string
func (id PetitionID) String() string {
	return string(id)
}

// Tally is a signature count that tolerates upstream drift.
// Missing, null, or non-numeric values decode as zero instead of failing the record.
type Tally int

// UnmarshalJSON decodes numbers and numeric strings, anything else becomes zero.
// NaN, infinities and magnitudes beyond MaxInt32 are not counts and also become zero;
// negative counts survive so the index builder can report them.
func (t *Tally) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = 0

	if len(data) == 0 || data[0] == 'n' || data[0] == '{' || data[0] == '[' || data[0] == 't' || data[0] == 'f' {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	*t = Tally(f)
	return nil
}

// State is the lifecycle state of a petition
type State string

const (
	StateOpen      State = "open"
	StateClosed    State = "closed"
	StateRejected  State = "rejected"
	StateHidden    State = "hidden"
	StatePending   State = "pending"
	StateValidated State = "validated"
	StateSponsored State = "sponsored"
	StateFlagged   State = "flagged"
)

// Known reports whether the state is one the petitions service documents
func (s State) Known() bool {
	switch s {
	case StateOpen, StateClosed, StateRejected, StateHidden,
		StatePending, StateValidated, StateSponsored, StateFlagged:
		return true
	}
	return false
}

// Petition is one petition detail resource as served by the petitions API
type Petition struct {
	ID         PetitionID `json:"id"`
	Type       string     `json:"type,omitempty"`
	Links      *Links     `json:"links,omitempty"`
	Attributes Attributes `json:"attributes"`
}

// Links holds resource links
type Links struct {
	Self string `json:"self,omitempty"`
}

// Attributes holds the petition body
type Attributes struct {
	Action            string `json:"action"`
	URL               string `json:"url,omitempty"`
	Background        string `json:"background"`
	AdditionalDetails string `json:"additional_details"`
	CreatorName       string `json:"creator_name,omitempty"`
	PetitionType      string `json:"petition_type,omitempty"`
	State             State  `json:"state"`
	SignatureCount    Tally  `json:"signature_count"`

	CreatedAt                    string `json:"created_at,omitempty"`
	UpdatedAt                    string `json:"updated_at,omitempty"`
	OpenedAt                     string `json:"opened_at,omitempty"`
	ClosedAt                     string `json:"closed_at,omitempty"`
	RejectedAt                   string `json:"rejected_at,omitempty"`
	ModerationThresholdReachedAt string `json:"moderation_threshold_reached_at,omitempty"`
	ResponseThresholdReachedAt   string `json:"response_threshold_reached_at,omitempty"`
	GovernmentResponseAt         string `json:"government_response_at,omitempty"`
	DebateThresholdReachedAt     string `json:"debate_threshold_reached_at,omitempty"`
	ScheduledDebateDate          string `json:"scheduled_debate_date,omitempty"`
	DebateOutcomeAt              string `json:"debate_outcome_at,omitempty"`

	GovernmentResponse *GovernmentResponse `json:"government_response,omitempty"`
	Debate             *Debate             `json:"debate,omitempty"`
	Rejection          *Rejection          `json:"rejection,omitempty"`

	Departments []Department `json:"departments,omitempty"`
	Topics      []string     `json:"topics,omitempty"`

	SignaturesByConstituency ConstituencySignatures `json:"signatures_by_constituency,omitempty"`
	SignaturesByCountry      []CountrySignature     `json:"signatures_by_country,omitempty"`
}

// UnmarshalJSON decodes attributes, accepting opening_at/closing_at as aliases seen in older exports
func (a *Attributes) UnmarshalJSON(data []byte) error {
	type plain Attributes
	aux := struct {
		*plain
		OpeningAt string `json:"opening_at"`
		ClosingAt string `json:"closing_at"`
	}{plain: (*plain)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if a.OpenedAt == "" {
		a.OpenedAt = aux.OpeningAt
	}
	if a.ClosedAt == "" {
		a.ClosedAt = aux.ClosingAt
	}
	return nil
}

// GovernmentResponse is the written government response to a petition
type GovernmentResponse struct {
	RespondedOn string `json:"responded_on,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Details     string `json:"details,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Debate describes a parliamentary debate held on a petition
type Debate struct {
	DebatedOn     string `json:"debated_on,omitempty"`
	TranscriptURL string `json:"transcript_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	DebatePackURL string `json:"debate_pack_url,omitempty"`
	Overview      string `json:"overview,omitempty"`
}

// Rejection explains why a petition was rejected
type Rejection struct {
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Department is a government department the petition was routed to
type Department struct {
	Acronym string `json:"acronym,omitempty"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
}

// ConstituencySignature is the signature count of one petition in one constituency
type ConstituencySignature struct {
	Name           string `json:"name"`
	ONSCode        string `json:"ons_code,omitempty"`
	MP             string `json:"mp,omitempty"`
	SignatureCount Tally  `json:"signature_count"`
}

// CountrySignature is the signature count of one petition in one country
type CountrySignature struct {
	Name           string `json:"name"`
	Code           string `json:"code,omitempty"`
	SignatureCount Tally  `json:"signature_count"`
}

// ConstituencySignatures is the per-constituency breakdown of a petition.
// A breakdown that is null or not an array decodes as absent.
type ConstituencySignatures []ConstituencySignature

// UnmarshalJSON decodes an array of entries and treats any other shape as absent
func (cs *ConstituencySignatures) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		*cs = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*cs = nil
		return nil
	}

	out := make(ConstituencySignatures, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var entry ConstituencySignature
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	*cs = out
	return nil
}

// HasConstituencyData reports whether the petition carries a per-constituency breakdown
func (p *Petition) HasConstituencyData() bool {
	return len(p.Attributes.SignaturesByConstituency) > 0
}

// UKTotal returns the UK-wide signature count
func (p *Petition) UKTotal() int {
	return int(p.Attributes.SignatureCount)
}

// HasWrittenResponse reports whether the government responded in writing
func (p *Petition) HasWrittenResponse() bool {
	return p.Attributes.GovernmentResponse != nil
}

// HasDebate reports whether the petition was debated
func (p *Petition) HasDebate() bool {
	return p.Attributes.Debate != nil
}

// DescriptionText consolidates the free-text fields used for topic classification
func (p *Petition) DescriptionText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Desired action:\n%s\n", p.Attributes.Action)
	fmt.Fprintf(&b, "Background:\n%s\n", p.Attributes.Background)
	fmt.Fprintf(&b, "Additional details:\n%s\n", p.Attributes.AdditionalDetails)
	return b.String()
}

// DecodePetitions reads a JSON array of petition records.
// Any other top-level shape, or an element that is not an object, fails with ErrInvalidInputFormat.
func DecodePetitions(r io.Reader) ([]Petition, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: expected an array of petitions: %v", ErrInvalidInputFormat, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected an array of petitions, got null", ErrInvalidInputFormat)
	}

	petitions := make([]Petition, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrInvalidInputFormat, i)
		}

		var p Petition
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalidInputFormat, i, err)
		}
		petitions = append(petitions, p)
	}

	return petitions, nil
}
