package mapping

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetsmith/internal/schema"
)

var (
	// ErrSetSaved is returned when a saved Set is edited.
	ErrSetSaved = errors.New("mappings already saved")

	// ErrUnknownTarget is returned when a mapping names a field the schema lacks.
	ErrUnknownTarget = errors.New("unknown target field")

	// ErrUnknownSource is returned when a mapping names a column the table lacks.
	ErrUnknownSource = errors.New("unknown source column")
)

// Set is the editable mapping for one table. Each source column maps to at
// most one field and each field is claimed by at most one column. A Set is
// not safe for concurrent use.
type Set struct {
	sources map[string]bool
	fields  map[string]bool
	order   []string
	current map[string]ColumnMapping
	saved   bool
}

// NewSet returns an empty Set over the given columns and fields.
func NewSet(headers []string, fields []schema.TargetField) *Set {
	s := &Set{
		sources: make(map[string]bool, len(headers)),
		fields:  make(map[string]bool, len(fields)),
		current: make(map[string]ColumnMapping),
	}
	for _, h := range headers {
		s.sources[h] = true
	}
	for _, f := range fields {
		s.fields[f.Name] = true
	}
	return s
}

// Apply replaces the whole set with ms, typically a fresh suggestion.
// Entries are checked as SetMapping would, but keep their own confidence
// and reasoning.
func (s *Set) Apply(ms []ColumnMapping) error {
	if s.saved {
		return ErrSetSaved
	}
	for _, m := range ms {
		if err := s.check(m.SourceColumn, m.TargetField); err != nil {
			return err
		}
	}
	s.order = s.order[:0]
	s.current = make(map[string]ColumnMapping, len(ms))
	for _, m := range ms {
		s.put(m)
	}
	return nil
}

// SetMapping maps source to target by hand with confidence 1.0. Any other
// column holding target loses it.
func (s *Set) SetMapping(source, target string) (ColumnMapping, error) {
	if s.saved {
		return ColumnMapping{}, ErrSetSaved
	}
	if err := s.check(source, target); err != nil {
		return ColumnMapping{}, err
	}
	m := ColumnMapping{
		SourceColumn: source,
		TargetField:  target,
		Confidence:   1.0,
		Reasoning:    ReasonManual,
	}
	s.put(m)
	return m, nil
}

// Remove unmaps source. Unmapped sources are ignored.
func (s *Set) Remove(source string) error {
	if s.saved {
		return ErrSetSaved
	}
	s.drop(source)
	return nil
}

// Mappings returns the current mappings in the order they were first set.
func (s *Set) Mappings() []ColumnMapping {
	out := make([]ColumnMapping, 0, len(s.order))
	for _, src := range s.order {
		out = append(out, s.current[src])
	}
	return out
}

// Len returns the number of mapped columns.
func (s *Set) Len() int {
	return len(s.order)
}

// Save freezes the set and returns its contents. Saving an already saved
// set returns the same contents again.
func (s *Set) Save() Snapshot {
	s.saved = true
	return Snapshot{mappings: s.Mappings()}
}

// Saved reports whether the set is frozen.
func (s *Set) Saved() bool {
	return s.saved
}

// Reopen makes a saved set editable again.
func (s *Set) Reopen() {
	s.saved = false
}

func (s *Set) check(source, target string) error {
	if !s.sources[source] {
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if !s.fields[target] {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	return nil
}

func (s *Set) put(m ColumnMapping) {
	for src, cur := range s.current {
		if src != m.SourceColumn && cur.TargetField == m.TargetField {
			s.drop(src)
		}
	}
	if _, ok := s.current[m.SourceColumn]; !ok {
		s.order = append(s.order, m.SourceColumn)
	}
	s.current[m.SourceColumn] = m
}

func (s *Set) drop(source string) {
	if _, ok := s.current[source]; !ok {
		return
	}
	delete(s.current, source)
	for i, src := range s.order {
		if src == source {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Snapshot is an immutable copy of a saved Set.
type Snapshot struct {
	mappings []ColumnMapping
}

// Mappings returns a copy of the saved mappings.
func (s Snapshot) Mappings() []ColumnMapping {
	return append([]ColumnMapping(nil), s.mappings...)
}

// Len returns the number of saved mappings.
func (s Snapshot) Len() int {
	return len(s.mappings)
}
