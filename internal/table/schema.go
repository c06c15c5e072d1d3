package table

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Schema maps logical field names to physical column positions, resolved
// once when a table is opened. A missing physical column resolves to -1;
// callers check Has instead of probing headers mid-loop.
type Schema struct {
	fields map[string]int
}

// ResolveSchema resolves a logical-name -> physical-header mapping against
// the table. Logical names with an empty physical header resolve as absent.
func ResolveSchema(t *Table, logical map[string]string) *Schema {
	s := &Schema{fields: make(map[string]int, len(logical))}
	for field, header := range logical {
		if header == "" {
			s.fields[field] = -1
			continue
		}
		s.fields[field] = t.ColumnIndex(header)
	}
	return s
}

// Has reports whether the logical field resolved to a physical column.
func (s *Schema) Has(field string) bool {
	idx, ok := s.fields[field]
	return ok && idx >= 0
}

// Index returns the physical column index for a logical field, or -1.
func (s *Schema) Index(field string) int {
	idx, ok := s.fields[field]
	if !ok {
		return -1
	}
	return idx
}

// Value returns the trimmed cell for a logical field, or "" when absent.
func (s *Schema) Value(t *Table, row int, field string) string {
	return t.Get(row, s.Index(field))
}

// ParseFloat converts a cell to a float pointer. Empty cells and
// unparseable values (NA markers and the like) map to nil.
func ParseFloat(cell string) *float64 {
	if cell == "" {
		return nil
	}
	v, err := cast.ToFloat64E(cell)
	if err != nil {
		return nil
	}
	return &v
}

// ParseInt converts a cell to an int pointer, nil when empty or invalid.
func ParseInt(cell string) *int {
	if cell == "" {
		return nil
	}
	v, err := cast.ToIntE(cell)
	if err != nil {
		return nil
	}
	return &v
}

// ParseBool converts a cell to a bool pointer, nil when empty or invalid.
// Accepts the usual spellings (true/false, 1/0, yes/no). The yes/no pair is
// handled here because survey exports use it and cast only parses the
// strconv spellings.
func ParseBool(cell string) *bool {
	if cell == "" {
		return nil
	}
	switch strings.ToLower(cell) {
	case "yes", "y", "on":
		v := true
		return &v
	case "no", "n", "off":
		v := false
		return &v
	}
	v, err := cast.ToBoolE(cell)
	if err != nil {
		return nil
	}
	return &v
}

// FormatFloat renders a float pointer for CSV output; nil becomes the empty
// cell. Uses the shortest representation that round-trips.
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// FormatInt renders an int pointer for CSV output; nil becomes the empty cell.
func FormatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
