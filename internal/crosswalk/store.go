// Package crosswalk implements the free-text-to-canonical-code crosswalk:
// a persisted store of raw labels and their manually reviewed codes, and a
// resolver that classifies survey responses against it.
package crosswalk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// MaxCodes is the number of code slots per crosswalk entry.
const MaxCodes = 4

// Entry is one row of the crosswalk store: a raw free-text label and up to
// four canonical codes assigned by manual review. Cleaned is true once a
// review pass has decided the first slot, including an explicit "no code
// applies" decision (all slots nil).
type Entry struct {
	RawLabel      string
	Cleaned       bool
	Codes         [MaxCodes]*int
	OfficialNames [MaxCodes]string
}

// Store is the in-memory copy of the crosswalk file. The access discipline
// is load-whole, mutate in memory, write-whole: there is no concurrent
// writer in this design. Entries keep insertion order so re-running the
// pipeline on unchanged inputs writes byte-identical output.
type Store struct {
	entries []Entry
	index   map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Load reads the store file. A missing file yields an empty store: the
// store grows from nothing on the first pipeline run.
func Load(path string) (*Store, error) {
	s := NewStore()

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open crosswalk store %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read crosswalk header: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read crosswalk record: %w", err)
		}
		for len(record) < 2+2*MaxCodes {
			record = append(record, "")
		}

		e := Entry{RawLabel: record[0]}
		e.Cleaned = record[1] == "true" || record[1] == "1"
		for i := 0; i < MaxCodes; i++ {
			if cell := record[2+i]; cell != "" {
				if code, err := strconv.Atoi(cell); err == nil {
					e.Codes[i] = &code
				}
			}
			e.OfficialNames[i] = record[2+MaxCodes+i]
		}

		// Duplicate labels in the file keep the first occurrence; Compact
		// reports them explicitly when asked.
		if _, dup := s.index[e.RawLabel]; dup {
			s.entries = append(s.entries, e)
			continue
		}
		s.index[e.RawLabel] = len(s.entries)
		s.entries = append(s.entries, e)
	}

	return s, nil
}

// Save writes the full store back to path.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create crosswalk store %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"raw_label", "cleaned"}
	for i := 1; i <= MaxCodes; i++ {
		header = append(header, fmt.Sprintf("code_%d", i))
	}
	for i := 1; i <= MaxCodes; i++ {
		header = append(header, fmt.Sprintf("official_name_%d", i))
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range s.entries {
		record := []string{e.RawLabel, strconv.FormatBool(e.Cleaned)}
		for i := 0; i < MaxCodes; i++ {
			if e.Codes[i] != nil {
				record = append(record, strconv.Itoa(*e.Codes[i]))
			} else {
				record = append(record, "")
			}
		}
		for i := 0; i < MaxCodes; i++ {
			record = append(record, e.OfficialNames[i])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write entry %q: %w", e.RawLabel, err)
		}
	}
	writer.Flush()

	return writer.Error()
}

// Lookup returns the entry for a raw label.
func (s *Store) Lookup(rawLabel string) (Entry, bool) {
	idx, ok := s.index[rawLabel]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// StageUncleaned inserts a new uncleaned entry for an unseen label. The
// call is idempotent: a label already present, cleaned or not, is left
// untouched. Returns true when a new entry was staged.
func (s *Store) StageUncleaned(rawLabel string) bool {
	if rawLabel == "" {
		return false
	}
	if _, exists := s.index[rawLabel]; exists {
		return false
	}
	s.index[rawLabel] = len(s.entries)
	s.entries = append(s.entries, Entry{RawLabel: rawLabel})
	return true
}

// ApplyManualReview records a review decision for a label: the code slots
// are populated and the entry is marked cleaned. An empty codes slice is
// the explicit "no code applies" decision. Review results are append-only
// truth: this call never reverts cleaned to false, and there is no
// operation that does.
func (s *Store) ApplyManualReview(rawLabel string, codes []int, officialNames []string) error {
	if len(codes) > MaxCodes {
		return fmt.Errorf("at most %d codes per label, got %d", MaxCodes, len(codes))
	}

	idx, ok := s.index[rawLabel]
	if !ok {
		s.index[rawLabel] = len(s.entries)
		s.entries = append(s.entries, Entry{RawLabel: rawLabel})
		idx = s.index[rawLabel]
	}

	e := &s.entries[idx]
	e.Cleaned = true
	e.Codes = [MaxCodes]*int{}
	e.OfficialNames = [MaxCodes]string{}
	for i, code := range codes {
		c := code
		e.Codes[i] = &c
		if i < len(officialNames) {
			e.OfficialNames[i] = officialNames[i]
		}
	}

	return nil
}

// Compact removes exact-duplicate raw labels, keeping the first occurrence
// of each, and returns the number of rows removed.
func (s *Store) Compact() int {
	seen := make(map[string]bool, len(s.entries))
	var kept []Entry
	removed := 0

	for _, e := range s.entries {
		if seen[e.RawLabel] {
			removed++
			continue
		}
		seen[e.RawLabel] = true
		kept = append(kept, e)
	}

	s.entries = kept
	s.index = make(map[string]int, len(kept))
	for i, e := range kept {
		s.index[e.RawLabel] = i
	}

	return removed
}

// Pending returns the labels awaiting manual review, in store order.
func (s *Store) Pending() []string {
	var pending []string
	for _, e := range s.entries {
		if !e.Cleaned {
			pending = append(pending, e.RawLabel)
		}
	}
	return pending
}

// Len returns the number of entries, duplicates included.
func (s *Store) Len() int {
	return len(s.entries)
}
