package table

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestReadCSVPadsShortRows(t *testing.T) {
	path := writeCSV(t, "a,b,c\n1,2,3\n4,5\n")

	tbl, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(tbl.Rows))
	}
	if got := tbl.Get(1, 2); got != "" {
		t.Errorf("padded cell = %q, want empty", got)
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	if _, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	tbl := New("id", "name")
	tbl.Rows = append(tbl.Rows, []string{"1", "Anna"}, []string{"2", "Ben, Jr."})

	path := filepath.Join(t.TempDir(), "out", "nested.csv")
	if err := tbl.WriteCSV(path); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if got.Get(1, 1) != "Ben, Jr." {
		t.Errorf("quoted cell = %q, want it preserved", got.Get(1, 1))
	}
}

func TestColumnIndexCaseInsensitive(t *testing.T) {
	tbl := New("ResponseId", " StartDate ")

	if idx := tbl.ColumnIndex("responseid"); idx != 0 {
		t.Errorf("ColumnIndex(responseid) = %d, want 0", idx)
	}
	if idx := tbl.ColumnIndex("startdate"); idx != 1 {
		t.Errorf("ColumnIndex(startdate) = %d, want 1", idx)
	}
	if idx := tbl.ColumnIndex("missing"); idx != -1 {
		t.Errorf("ColumnIndex(missing) = %d, want -1", idx)
	}
}

func TestDropColumns(t *testing.T) {
	tbl := New("id", "email", "name", "answer")
	tbl.Rows = append(tbl.Rows, []string{"1", "a@example.com", "Anna", "yes"})

	tbl.DropColumns("email", "name", "not_there")

	if len(tbl.Columns) != 2 {
		t.Fatalf("columns = %v, want id and answer", tbl.Columns)
	}
	if tbl.Get(0, 0) != "1" || tbl.Get(0, 1) != "yes" {
		t.Errorf("row after drop = %v", tbl.Rows[0])
	}
}

func TestKeepRows(t *testing.T) {
	tbl := New("id")
	tbl.Rows = append(tbl.Rows, []string{"1"}, []string{"2"}, []string{"3"})

	tbl.KeepRows(map[int]bool{0: true, 2: true})

	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(tbl.Rows))
	}
	if tbl.Get(0, 0) != "1" || tbl.Get(1, 0) != "3" {
		t.Errorf("rows = %v, want order preserved", tbl.Rows)
	}
}

func TestAddColumn(t *testing.T) {
	tbl := New("id")
	tbl.Rows = append(tbl.Rows, []string{"1"})

	idx := tbl.AddColumn("extra", "x")
	if idx != 1 {
		t.Errorf("AddColumn index = %d, want 1", idx)
	}
	if tbl.Get(0, idx) != "x" {
		t.Errorf("fill value = %q, want x", tbl.Get(0, idx))
	}
}

func TestResolveSchema(t *testing.T) {
	tbl := New("ResponseId", "StartDate", "plan_1")
	s := ResolveSchema(tbl, map[string]string{
		"response_id":  "ResponseId",
		"submitted_at": "StartDate",
		"email":        "email",
		"female":       "",
	})

	if !s.Has("response_id") || !s.Has("submitted_at") {
		t.Error("resolved fields reported absent")
	}
	if s.Has("email") {
		t.Error("missing physical column reported present")
	}
	if s.Has("female") {
		t.Error("empty header mapping must resolve as absent")
	}

	tbl.Rows = append(tbl.Rows, []string{"R1", " 2024-03-01 ", "x"})
	if got := s.Value(tbl, 0, "submitted_at"); got != "2024-03-01" {
		t.Errorf("Value = %q, want trimmed cell", got)
	}
	if got := s.Value(tbl, 0, "email"); got != "" {
		t.Errorf("Value of absent field = %q, want empty", got)
	}
}

func TestParseHelpers(t *testing.T) {
	if v := ParseFloat("42.5"); v == nil || *v != 42.5 {
		t.Errorf("ParseFloat(42.5) = %v", v)
	}
	if v := ParseFloat("NA"); v != nil {
		t.Errorf("ParseFloat(NA) = %v, want nil", v)
	}
	if v := ParseFloat(""); v != nil {
		t.Errorf("ParseFloat(empty) = %v, want nil", v)
	}
	if v := ParseInt("70400"); v == nil || *v != 70400 {
		t.Errorf("ParseInt(70400) = %v", v)
	}
	if v := ParseBool("1"); v == nil || !*v {
		t.Errorf("ParseBool(1) = %v", v)
	}
}

func TestParseBoolSpellings(t *testing.T) {
	tests := []struct {
		cell string
		want *bool
	}{
		{"true", boolPtr(true)},
		{"false", boolPtr(false)},
		{"1", boolPtr(true)},
		{"0", boolPtr(false)},
		{"yes", boolPtr(true)},
		{"Yes", boolPtr(true)},
		{"no", boolPtr(false)},
		{"NO", boolPtr(false)},
		{"on", boolPtr(true)},
		{"off", boolPtr(false)},
		{"maybe", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := ParseBool(tt.cell)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseBool(%q) = %v, want nil", tt.cell, *got)
		case tt.want != nil && got == nil:
			t.Errorf("ParseBool(%q) = nil, want %v", tt.cell, *tt.want)
		case tt.want != nil && got != nil && *got != *tt.want:
			t.Errorf("ParseBool(%q) = %v, want %v", tt.cell, *got, *tt.want)
		}
	}
}

func boolPtr(v bool) *bool { return &v }

func TestFormatHelpers(t *testing.T) {
	f := 0.1
	if got := FormatFloat(&f); got != "0.1" {
		t.Errorf("FormatFloat(0.1) = %q", got)
	}
	if got := FormatFloat(nil); got != "" {
		t.Errorf("FormatFloat(nil) = %q, want empty", got)
	}
	i := 7
	if got := FormatInt(&i); got != "7" {
		t.Errorf("FormatInt(7) = %q", got)
	}
	if got := FormatInt(nil); got != "" {
		t.Errorf("FormatInt(nil) = %q, want empty", got)
	}
}
