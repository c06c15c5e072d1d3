// Package survey implements duplicate detection and resolution for raw
// survey exports. Records are grouped by exact identity keys (ResponseId,
// email, name pair) and each group is resolved to a single survivor by
// submission timestamp.
package survey

import (
	"strings"
	"time"

	"github.com/survey-pipeline/internal/table"
)

// Record is one raw survey submission with the fields used for identity
// matching. Row is the index of the underlying table row; Index is the
// original position used for stable tie-breaking.
type Record struct {
	Index       int
	Row         int
	ResponseID  string
	SubmittedAt time.Time
	HasTime     bool
	Email       string
	FirstName   string
	LastName    string
}

// KeyType identifies which identity key a duplicate group was built on.
type KeyType int

const (
	KeyResponseID KeyType = iota
	KeyEmail
	KeyNamePair
)

func (k KeyType) String() string {
	switch k {
	case KeyResponseID:
		return "response_id"
	case KeyEmail:
		return "email"
	case KeyNamePair:
		return "name_pair"
	}
	return "unknown"
}

// IdentityKey is one (type, value) pair extracted from a record.
type IdentityKey struct {
	Type  KeyType
	Value string
}

// timestampLayouts are the accepted submission timestamp formats, tried in
// order. Survey platforms export the first form; the others appear in
// hand-edited files.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

// ParseTimestamp parses a submission timestamp cell. The second return is
// false when the cell is empty or matches no known layout; such records
// sort last in group resolution.
func ParseTimestamp(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ExtractKeys derives the identity keys of a record.
//
// The ResponseId key is always produced. The email key requires a non-empty
// trimmed email and is matched exact-string, case-sensitive: the reference
// behaviour does not canonicalize addresses and neither do we. The name-pair
// key requires BOTH first and last name; a record with only one of them
// never joins a name group.
func ExtractKeys(r Record) []IdentityKey {
	keys := []IdentityKey{{Type: KeyResponseID, Value: r.ResponseID}}

	if email := strings.TrimSpace(r.Email); email != "" {
		keys = append(keys, IdentityKey{Type: KeyEmail, Value: email})
	}

	first := strings.TrimSpace(r.FirstName)
	last := strings.TrimSpace(r.LastName)
	if first != "" && last != "" {
		keys = append(keys, IdentityKey{Type: KeyNamePair, Value: first + "\x1f" + last})
	}

	return keys
}

// Key returns the record's key of the given type, or "" when the record
// does not produce one.
func (r Record) Key(kt KeyType) string {
	for _, k := range ExtractKeys(r) {
		if k.Type == kt {
			return k.Value
		}
	}
	return ""
}

// FromTable extracts records from a raw response table using the resolved
// schema. Unparseable timestamps are counted, not fatal; the affected
// records carry HasTime=false.
func FromTable(t *table.Table, s *table.Schema) (records []Record, badTimestamps int) {
	for i := range t.Rows {
		rec := Record{
			Index:      i,
			Row:        i,
			ResponseID: s.Value(t, i, "response_id"),
			Email:      s.Value(t, i, "email"),
			FirstName:  s.Value(t, i, "first_name"),
			LastName:   s.Value(t, i, "last_name"),
		}

		cell := s.Value(t, i, "submitted_at")
		rec.SubmittedAt, rec.HasTime = ParseTimestamp(cell)
		if cell != "" && !rec.HasTime {
			badTimestamps++
		}

		records = append(records, rec)
	}
	return records, badTimestamps
}
