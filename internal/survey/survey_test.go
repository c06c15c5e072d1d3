package survey

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", s, err)
	}
	return ts
}

func rec(t *testing.T, idx int, id, submitted, email, first, last string) Record {
	t.Helper()
	r := Record{Index: idx, Row: idx, ResponseID: id, Email: email, FirstName: first, LastName: last}
	if submitted != "" {
		r.SubmittedAt = mustTime(t, submitted)
		r.HasTime = true
	}
	return r
}

func TestExtractKeys(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		wantKeys []KeyType
	}{
		{
			name:     "response id only",
			record:   Record{ResponseID: "R1"},
			wantKeys: []KeyType{KeyResponseID},
		},
		{
			name:     "with email",
			record:   Record{ResponseID: "R1", Email: "a@x.com"},
			wantKeys: []KeyType{KeyResponseID, KeyEmail},
		},
		{
			name:     "whitespace email dropped",
			record:   Record{ResponseID: "R1", Email: "   "},
			wantKeys: []KeyType{KeyResponseID},
		},
		{
			name:     "first name alone produces no name key",
			record:   Record{ResponseID: "R1", FirstName: "Anna"},
			wantKeys: []KeyType{KeyResponseID},
		},
		{
			name:     "last name alone produces no name key",
			record:   Record{ResponseID: "R1", LastName: "Muster"},
			wantKeys: []KeyType{KeyResponseID},
		},
		{
			name:     "full name pair",
			record:   Record{ResponseID: "R1", FirstName: "Anna", LastName: "Muster"},
			wantKeys: []KeyType{KeyResponseID, KeyNamePair},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := ExtractKeys(tt.record)
			if len(keys) != len(tt.wantKeys) {
				t.Fatalf("got %d keys, want %d", len(keys), len(tt.wantKeys))
			}
			for i, k := range keys {
				if k.Type != tt.wantKeys[i] {
					t.Errorf("key %d type = %v, want %v", i, k.Type, tt.wantKeys[i])
				}
			}
		})
	}
}

func TestEmailKeyIsCaseSensitive(t *testing.T) {
	// Exact-string matching mirrors the reference behaviour; differently
	// cased addresses must not collide.
	a := Record{ResponseID: "R1", Email: "Anna@X.com"}
	b := Record{ResponseID: "R2", Email: "anna@x.com"}

	if a.Key(KeyEmail) == b.Key(KeyEmail) {
		t.Error("differently cased emails should produce distinct keys")
	}
}

func TestNamePairKeyAvoidsConcatCollision(t *testing.T) {
	// "AB"+"C" and "A"+"BC" must not share a key.
	a := Record{ResponseID: "R1", FirstName: "AB", LastName: "C"}
	b := Record{ResponseID: "R2", FirstName: "A", LastName: "BC"}

	if a.Key(KeyNamePair) == b.Key(KeyNamePair) {
		t.Error("name pair keys collided across different name splits")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
	}{
		{"standard export format", "2024-01-05 14:23:11", true},
		{"rfc3339", "2024-01-05T14:23:11Z", true},
		{"date only", "2024-01-05", true},
		{"empty", "", false},
		{"garbage", "not-a-date", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseTimestamp(tt.input)
			if ok != tt.wantOK {
				t.Errorf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
		})
	}
}

func TestGroupDuplicates(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "", "a@x.com", "", ""),
		rec(t, 1, "R2", "", "a@x.com", "", ""),
		rec(t, 2, "R3", "", "b@x.com", "", ""),
		rec(t, 3, "R4", "", "", "", ""),
		rec(t, 4, "R5", "", "", "", ""),
		rec(t, 5, "R6", "", "c@x.com", "", ""),
		rec(t, 6, "R7", "", "c@x.com", "", ""),
	}

	groups := GroupDuplicates(records, KeyEmail)

	// Two collision groups; the singleton b@x.com and the two records with
	// missing email must not be grouped.
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	seen := make(map[int]bool)
	for _, g := range groups {
		if len(g.Members) != 2 {
			t.Errorf("group %q has %d members, want 2", g.Value, len(g.Members))
		}
		if seen[g.ID] {
			t.Errorf("group id %d assigned twice", g.ID)
		}
		seen[g.ID] = true
	}
}

func TestGroupDuplicatesDeterministic(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "", "a@x.com", "", ""),
		rec(t, 1, "R2", "", "b@x.com", "", ""),
		rec(t, 2, "R3", "", "a@x.com", "", ""),
		rec(t, 3, "R4", "", "b@x.com", "", ""),
	}

	first := GroupDuplicates(records, KeyEmail)
	second := GroupDuplicates(records, KeyEmail)

	if len(first) != len(second) {
		t.Fatalf("group counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Value != second[i].Value || first[i].ID != second[i].ID {
			t.Errorf("grouping not deterministic at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestResolveKeepMostRecent(t *testing.T) {
	// End-to-end scenario: two rows sharing an email, policy keep-latest.
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 1, "R2", "2024-01-05 10:00:00", "a@x.com", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{})

	if len(res.Survivors) != 1 {
		t.Fatalf("got %d survivors, want 1", len(res.Survivors))
	}
	if res.Survivors[0].ResponseID != "R2" {
		t.Errorf("survivor = %s, want R2 (most recent)", res.Survivors[0].ResponseID)
	}
}

func TestResolveKeepEarliest(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 1, "R2", "2024-01-05 10:00:00", "a@x.com", "", ""),
	}

	res := Resolve(records, KeepEarliest, Options{})

	if len(res.Survivors) != 1 || res.Survivors[0].ResponseID != "R1" {
		t.Errorf("want single survivor R1, got %+v", res.Survivors)
	}
}

func TestResolveConservation(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "Anna", "Muster"),
		rec(t, 1, "R1", "2024-01-02 10:00:00", "", "", ""),
		rec(t, 2, "R3", "2024-01-03 10:00:00", "a@x.com", "", ""),
		rec(t, 3, "R4", "2024-01-04 10:00:00", "", "Anna", "Muster"),
		rec(t, 4, "R5", "", "", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{})

	if got := len(res.Survivors) + len(res.Eliminated); got != len(records) {
		t.Errorf("|survivors|+|eliminated| = %d, want %d", got, len(records))
	}
}

func TestResolveResponseIDUnique(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "", "", ""),
		rec(t, 1, "R1", "2024-01-02 10:00:00", "", "", ""),
		rec(t, 2, "R1", "", "", "", ""),
		rec(t, 3, "R2", "2024-01-01 10:00:00", "", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{})

	seen := make(map[string]bool)
	for _, s := range res.Survivors {
		if seen[s.ResponseID] {
			t.Errorf("duplicate ResponseId %s in survivors", s.ResponseID)
		}
		seen[s.ResponseID] = true
	}
}

func TestResolveIdempotent(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 1, "R2", "2024-01-05 10:00:00", "a@x.com", "", ""),
		rec(t, 2, "R3", "2024-01-03 10:00:00", "b@x.com", "", ""),
	}

	first := Resolve(records, KeepLatest, Options{})
	second := Resolve(first.Survivors, KeepLatest, Options{})

	if len(second.Survivors) != len(first.Survivors) {
		t.Fatalf("second pass changed survivor count: %d vs %d", len(second.Survivors), len(first.Survivors))
	}
	for i := range first.Survivors {
		if first.Survivors[i].ResponseID != second.Survivors[i].ResponseID {
			t.Errorf("survivor %d differs between passes", i)
		}
	}
	if len(second.Eliminated) != 0 {
		t.Errorf("second pass eliminated %d records, want 0", len(second.Eliminated))
	}
}

func TestResolveUnknownTimestampRanksLast(t *testing.T) {
	// Keep-latest must still prefer the record with a known timestamp over
	// one without, even though "unknown" could be newer.
	records := []Record{
		rec(t, 0, "R1", "", "a@x.com", "", ""),
		rec(t, 1, "R2", "2020-06-01 08:00:00", "a@x.com", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{})

	if len(res.Survivors) != 1 || res.Survivors[0].ResponseID != "R2" {
		t.Errorf("record with known timestamp should survive, got %+v", res.Survivors)
	}
}

func TestResolveTimestampTie(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 1, "R2", "2024-01-01 10:00:00", "a@x.com", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{})

	// Exactly one survivor; which one is an implementation detail.
	if len(res.Survivors) != 1 {
		t.Errorf("got %d survivors on tie, want 1", len(res.Survivors))
	}
}

func TestResolveResponseIDPassRunsFirst(t *testing.T) {
	// R1 appears twice (data entry error). The losing copy carries an email
	// that would otherwise collide with R2; once the ResponseId pass removes
	// it, R2 must be left alone.
	records := []Record{
		rec(t, 0, "R1", "2024-01-02 10:00:00", "", "", ""),
		rec(t, 1, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 2, "R2", "2024-01-03 10:00:00", "a@x.com", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{})

	if len(res.Survivors) != 2 {
		t.Fatalf("got %d survivors, want 2", len(res.Survivors))
	}
	ids := map[string]bool{}
	for _, s := range res.Survivors {
		ids[s.ResponseID] = true
	}
	if !ids["R1"] || !ids["R2"] {
		t.Errorf("want survivors R1 and R2, got %v", ids)
	}
}

func TestResolveOverlappingGroupsDropLoserInEither(t *testing.T) {
	// R2 wins the email group (latest) but loses the name group to R3.
	// A loser in either group is dropped, so only R3 survives of the three.
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 1, "R2", "2024-01-05 10:00:00", "a@x.com", "Anna", "Muster"),
		rec(t, 2, "R3", "2024-01-07 10:00:00", "", "Anna", "Muster"),
	}

	res := Resolve(records, KeepLatest, Options{})

	if len(res.Survivors) != 1 {
		t.Fatalf("got %d survivors, want 1", len(res.Survivors))
	}
	if res.Survivors[0].ResponseID != "R3" {
		t.Errorf("survivor = %s, want R3", res.Survivors[0].ResponseID)
	}
}

func TestResolveDegradedModeSkipsPass(t *testing.T) {
	records := []Record{
		rec(t, 0, "R1", "2024-01-01 10:00:00", "a@x.com", "", ""),
		rec(t, 1, "R2", "2024-01-05 10:00:00", "a@x.com", "", ""),
	}

	res := Resolve(records, KeepLatest, Options{SkipEmail: true, SkipNamePair: true})

	// With both identity passes skipped, only ResponseId dedup applies and
	// both records survive.
	if len(res.Survivors) != 2 {
		t.Errorf("got %d survivors, want 2", len(res.Survivors))
	}
	if len(res.SkippedPasses) != 2 {
		t.Errorf("got %d skipped passes, want 2", len(res.SkippedPasses))
	}
}
