package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/petitionlens/internal/index"
	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/salience"
	"github.com/ppiankov/petitionlens/internal/util"
)

// ErrMalformedStore is returned when a persisted store fails shape validation
var ErrMalformedStore = errors.New("malformed store")

const (
	fieldIndex     = "signaturesByConstituency"
	fieldPetitions = "rawPetitionsData"
)

// Store is the aggregate of the constituency index and the petitions it was built from.
// It is read-only once built.
type Store struct {
	Index     *model.ConstituencyIndex
	petitions map[model.PetitionID]*model.Petition
	order     []model.PetitionID
}

// Row is one petition as seen from one constituency
type Row struct {
	Entry    model.IndexEntry
	Petition *model.Petition
	UKTotal  int
	Salience salience.Result
}

// Build runs the index builder and packages the result with the raw petitions.
// Petitions sharing an identifier collapse onto the last one while keeping the first position.
func Build(petitions []model.Petition, opts ...index.Option) (*Store, *index.Report, error) {
	idx, report, err := index.Build(petitions, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("build index: %w", err)
	}

	s := newStore(idx)
	for i := range petitions {
		s.put(petitions[i])
	}
	return s, report, nil
}

func newStore(idx *model.ConstituencyIndex) *Store {
	return &Store{
		Index:     idx,
		petitions: make(map[model.PetitionID]*model.Petition),
	}
}

func (s *Store) put(p model.Petition) {
	if _, ok := s.petitions[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.petitions[p.ID] = &p
}

// Petition returns the raw record for an identifier
func (s *Store) Petition(id model.PetitionID) (*model.Petition, bool) {
	p, ok := s.petitions[id]
	return p, ok
}

// Petitions returns raw records in insertion order
func (s *Store) Petitions() []*model.Petition {
	out := make([]*model.Petition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.petitions[id])
	}
	return out
}

// Len returns the number of raw petitions
func (s *Store) Len() int {
	return len(s.order)
}

// UKTotal returns the UK-wide signature count of a petition, zero when unknown
func (s *Store) UKTotal(id model.PetitionID) int {
	if p, ok := s.petitions[id]; ok {
		return p.UKTotal()
	}
	return 0
}

// Constituencies returns constituency names in index order
func (s *Store) Constituencies() []string {
	return s.Index.Constituencies()
}

// Rows returns the petitions signed in a constituency with salience computed against their UK totals.
// An unknown constituency yields no rows.
func (s *Store) Rows(constituency string) []Row {
	cp, ok := s.Index.Get(constituency)
	if !ok {
		return nil
	}

	entries := cp.Entries()
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		p, _ := s.Petition(e.ID)
		total := s.UKTotal(e.ID)
		rows = append(rows, Row{
			Entry:    e,
			Petition: p,
			UKTotal:  total,
			Salience: salience.Compute(e.Count, total),
		})
	}
	return rows
}

// Marshal encodes the store with both fields in insertion order
func Marshal(s *Store) ([]byte, error) {
	idx, err := s.Index.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"` + fieldIndex + `":`)
	buf.Write(idx)
	buf.WriteString(`,"` + fieldPetitions + `":{`)

	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id.String())
		if err != nil {
			return nil, fmt.Errorf("marshal petition id: %w", err)
		}
		v, err := json.Marshal(s.petitions[id])
		if err != nil {
			return nil, fmt.Errorf("marshal petition %s: %w", id, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Unmarshal decodes a persisted store.
// rawPetitionsData may be an array of petitions or an object keyed by identifier.
func Unmarshal(data []byte) (*Store, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: top level is null", ErrMalformedStore)
	}

	rawIndex, ok := top[fieldIndex]
	if !ok || !isObject(rawIndex) {
		return nil, fmt.Errorf("%w: missing or invalid %s", ErrMalformedStore, fieldIndex)
	}
	rawPetitions, ok := top[fieldPetitions]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedStore, fieldPetitions)
	}

	idx := model.NewConstituencyIndex()
	if err := idx.UnmarshalJSON(rawIndex); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedStore, fieldIndex, err)
	}

	s := newStore(idx)
	petitions, err := decodePetitions(rawPetitions)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedStore, fieldPetitions, err)
	}
	for _, p := range petitions {
		s.put(p)
	}
	return s, nil
}

// decodePetitions normalizes either encoding of rawPetitionsData into an ordered list
func decodePetitions(raw json.RawMessage) ([]model.Petition, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case isArray(raw):
		petitions, err := model.DecodePetitions(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		for i, p := range petitions {
			if p.ID == "" {
				return nil, fmt.Errorf("element %d has no id", i)
			}
		}
		return petitions, nil

	case isObject(raw):
		var petitions []model.Petition
		err := model.DecodeOrderedObject(raw, func(key string, value json.RawMessage) error {
			if !isObject(value) {
				return fmt.Errorf("petition %q is not an object", key)
			}
			var p model.Petition
			if err := json.Unmarshal(value, &p); err != nil {
				return fmt.Errorf("petition %q: %w", key, err)
			}
			if p.ID == "" {
				p.ID = model.PetitionID(key)
			}
			petitions = append(petitions, p)
			return nil
		})
		return petitions, err

	default:
		return nil, fmt.Errorf("expected array or object")
	}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Save writes the store atomically
func Save(path string, s *Store) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// Load reads and validates a persisted store
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}
