package record

import (
	"strings"

	"github.com/tuannm99/novacsv/internal/codec"
)

// Column describes one column of a static table. Only IsUnique and PageCount
// change after load; the index builder updates them.
type Column struct {
	Name      string     `json:"name"`
	Ordinal   int        `json:"ordinal"`
	Type      codec.Kind `json:"type"`
	IsKey     bool       `json:"is_key,omitempty"`
	IsIndexed bool       `json:"is_indexed,omitempty"`
	IsUnique  bool       `json:"is_unique,omitempty"`
	PageCount int32      `json:"page_count,omitempty"`
}

type Schema struct {
	Cols []Column `json:"cols"`
}

func (s Schema) NumCols() int { return len(s.Cols) }

// Col looks a column up by name, case-insensitively.
func (s Schema) Col(name string) (*Column, bool) {
	for i := range s.Cols {
		if strings.EqualFold(s.Cols[i].Name, name) {
			return &s.Cols[i], true
		}
	}
	return nil, false
}

// KeyColumn returns the column used for unconditional scans: the key column,
// or the first indexed column when the table has no key.
func (s Schema) KeyColumn() (*Column, bool) {
	for i := range s.Cols {
		if s.Cols[i].IsKey {
			return &s.Cols[i], true
		}
	}
	for i := range s.Cols {
		if s.Cols[i].IsIndexed {
			return &s.Cols[i], true
		}
	}
	return nil, false
}

// Names returns the column names in ordinal order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Cols))
	for i := range s.Cols {
		out[i] = s.Cols[i].Name
	}
	return out
}

// Normalize assigns ordinals from position and forces key columns indexed.
func (s *Schema) Normalize() {
	for i := range s.Cols {
		s.Cols[i].Ordinal = i
		if s.Cols[i].IsKey {
			s.Cols[i].IsIndexed = true
		}
	}
}
