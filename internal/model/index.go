package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IndexEntry is one petition's signature count within one constituency
type IndexEntry struct {
	Action string     `json:"-"`
	Count  int        `json:"count"`
	ID     PetitionID `json:"id"`
}

// ConstituencyPetitions is the ordered set of petitions signed in one constituency, keyed by petition ID.
// Action text is unique within the set: a petition whose action matches another's replaces it in place.
type ConstituencyPetitions struct {
	order    []PetitionID
	entries  map[PetitionID]IndexEntry
	byAction map[string]PetitionID
}

// NewConstituencyPetitions creates an empty set
func NewConstituencyPetitions() *ConstituencyPetitions {
	return &ConstituencyPetitions{
		entries:  make(map[PetitionID]IndexEntry),
		byAction: make(map[string]PetitionID),
	}
}

// Set inserts or overwrites the entry for a petition, keeping first-insertion order.
// An entry of another petition with the same action text is evicted and its position taken over.
// It returns the evicted petition's ID, or "" when nothing was evicted.
func (c *ConstituencyPetitions) Set(e IndexEntry) PetitionID {
	old, exists := c.entries[e.ID]
	if exists && old.Action != e.Action && c.byAction[old.Action] == e.ID {
		delete(c.byAction, old.Action)
	}

	evicted, clash := c.byAction[e.Action]
	if clash && evicted == e.ID {
		clash = false
	}

	switch {
	case clash && exists:
		c.removeFromOrder(evicted)
		delete(c.entries, evicted)
	case clash:
		for i, id := range c.order {
			if id == evicted {
				c.order[i] = e.ID
				break
			}
		}
		delete(c.entries, evicted)
	case !exists:
		c.order = append(c.order, e.ID)
	}

	c.entries[e.ID] = e
	c.byAction[e.Action] = e.ID
	if !clash {
		return ""
	}
	return evicted
}

func (c *ConstituencyPetitions) removeFromOrder(id PetitionID) {
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Get returns the entry for a petition
func (c *ConstituencyPetitions) Get(id PetitionID) (IndexEntry, bool) {
	if c == nil {
		return IndexEntry{}, false
	}
	e, ok := c.entries[id]
	return e, ok
}

// ByAction returns the entry displayed under the given action text
func (c *ConstituencyPetitions) ByAction(action string) (IndexEntry, bool) {
	if c == nil {
		return IndexEntry{}, false
	}
	id, ok := c.byAction[action]
	if !ok {
		return IndexEntry{}, false
	}
	return c.entries[id], true
}

// Entries returns entries in insertion order
func (c *ConstituencyPetitions) Entries() []IndexEntry {
	if c == nil {
		return nil
	}
	out := make([]IndexEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// Len returns the number of petitions
func (c *ConstituencyPetitions) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// MarshalJSON encodes as {action: {count, id}} in insertion order
func (c *ConstituencyPetitions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, e := range c.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Action)
		if err != nil {
			return nil, fmt.Errorf("marshal action: %w", err)
		}
		v, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal entry: %w", err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes {action: {count, id}} preserving key order
func (c *ConstituencyPetitions) UnmarshalJSON(data []byte) error {
	*c = *NewConstituencyPetitions()

	return DecodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var e IndexEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("entry %q: %w", key, err)
		}
		e.Action = key
		c.Set(e)
		return nil
	})
}

// ConstituencyIndex maps constituency name to the petitions signed there.
// Constituencies keep the order in which they were first seen.
type ConstituencyIndex struct {
	order          []string
	constituencies map[string]*ConstituencyPetitions
}

// NewConstituencyIndex creates an empty index
func NewConstituencyIndex() *ConstituencyIndex {
	return &ConstituencyIndex{constituencies: make(map[string]*ConstituencyPetitions)}
}

// Ensure returns the petitions of a constituency, creating an empty set on first sight
func (idx *ConstituencyIndex) Ensure(name string) *ConstituencyPetitions {
	if cp, ok := idx.constituencies[name]; ok {
		return cp
	}
	cp := NewConstituencyPetitions()
	idx.constituencies[name] = cp
	idx.order = append(idx.order, name)
	return cp
}

// Get returns the petitions of a constituency; a missing constituency yields nil and false
func (idx *ConstituencyIndex) Get(name string) (*ConstituencyPetitions, bool) {
	if idx == nil {
		return nil, false
	}
	cp, ok := idx.constituencies[name]
	return cp, ok
}

// Constituencies returns constituency names in insertion order
func (idx *ConstituencyIndex) Constituencies() []string {
	if idx == nil {
		return nil
	}
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the number of constituencies
func (idx *ConstituencyIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.order)
}

// Equal reports whether two indexes hold the same constituencies and entries, ignoring order
func (idx *ConstituencyIndex) Equal(other *ConstituencyIndex) bool {
	if idx.Len() != other.Len() {
		return false
	}
	for _, name := range idx.Constituencies() {
		a, _ := idx.Get(name)
		b, ok := other.Get(name)
		if !ok || a.Len() != b.Len() {
			return false
		}
		for _, e := range a.Entries() {
			o, ok := b.Get(e.ID)
			if !ok || o != e {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the index as an object in insertion order
func (idx *ConstituencyIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, name := range idx.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("marshal constituency: %w", err)
		}
		v, err := idx.constituencies[name].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the index preserving key order
func (idx *ConstituencyIndex) UnmarshalJSON(data []byte) error {
	*idx = ConstituencyIndex{constituencies: make(map[string]*ConstituencyPetitions)}

	return DecodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		cp := idx.Ensure(key)
		if err := cp.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("constituency %q: %w", key, err)
		}
		return nil
	})
}

// DecodeOrderedObject walks a JSON object calling fn for each member in document order
func DecodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read value for %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	return nil
}
