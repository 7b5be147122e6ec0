package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mkbdata/odeingest/internal/frame"
)

func testReader() *Reader {
	return NewReader(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ----------------------------------------------------------------------------
// Encoding Tests
// ----------------------------------------------------------------------------

func TestRead_UTF8(t *testing.T) {
	path := writeFile(t, "f.csv", []byte("Navn;Beloeb\nSøren;12,5\n"))

	f, diag, err := testReader().Read(context.Background(), path, Plan{}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if diag.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", diag.Encoding)
	}
	col, _ := f.Column("Navn")
	if got := col.Cells[0].String(); got != "Søren" {
		t.Errorf("Navn[0] = %q, want Søren", got)
	}
}

func TestRead_UTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a;b\n1;2\n")...)
	path := writeFile(t, "f.csv", data)

	f, diag, err := testReader().Read(context.Background(), path, Plan{}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if diag.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", diag.Encoding)
	}
	if !f.HasColumn("a") {
		t.Errorf("BOM not stripped from first header, columns = %v", f.Names())
	}
}

func TestRead_Latin1Fallback(t *testing.T) {
	// "Søren" with æøå in ISO 8859-1 single bytes: invalid as UTF-8.
	data := []byte("Navn;By\nS\xf8ren;\xc6r\xf8\n")
	path := writeFile(t, "f.csv", data)

	f, diag, err := testReader().Read(context.Background(), path, Plan{}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if diag.Encoding != "latin-1" {
		t.Errorf("Encoding = %q, want latin-1", diag.Encoding)
	}
	col, _ := f.Column("Navn")
	if got := col.Cells[0].String(); got != "Søren" {
		t.Errorf("Navn[0] = %q, want Søren", got)
	}
	col, _ = f.Column("By")
	if got := col.Cells[0].String(); got != "Ærø" {
		t.Errorf("By[0] = %q, want Ærø", got)
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, _, err := testReader().Read(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), Plan{}, nil)
	if err == nil {
		t.Fatal("Read() of missing file succeeded, want error")
	}
}

// ----------------------------------------------------------------------------
// Structural Cleaning Tests
// ----------------------------------------------------------------------------

func TestRead_NullTokensAndPlaceholders(t *testing.T) {
	data := []byte("Dato-ID;Beloeb;;Note\n" +
		"01-12-2024;12,5;x;NULL\n" +
		"nan;-;y;N/A\n")
	path := writeFile(t, "f.csv", data)

	f, diag, err := testReader().Read(context.Background(), path, Plan{}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	// The empty header cell became a placeholder column and was dropped.
	if got := f.Names(); !reflect.DeepEqual(got, []string{"Dato-ID", "Beloeb", "Note"}) {
		t.Errorf("Names() = %v", got)
	}
	if len(diag.DroppedColumns) != 1 {
		t.Errorf("DroppedColumns = %v, want one entry", diag.DroppedColumns)
	}

	for _, probe := range []struct {
		column string
		row    int
	}{
		{"Dato-ID", 1}, // nan
		{"Beloeb", 1},  // -
		{"Note", 0},    // NULL
		{"Note", 1},    // N/A
	} {
		col, _ := f.Column(probe.column)
		if col.Cells[probe.row].Valid {
			t.Errorf("%s[%d] should be missing", probe.column, probe.row)
		}
	}
}

func TestRead_RaggedRows(t *testing.T) {
	path := writeFile(t, "f.csv", []byte("a;b;c\n1;2;3\n4\n"))

	f, _, err := testReader().Read(context.Background(), path, Plan{}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if f.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", f.NumRows())
	}
	c, _ := f.Column("c")
	if c.Cells[1].Valid {
		t.Error("short row should pad column c with a missing value")
	}
}

// ----------------------------------------------------------------------------
// Type Plan Tests
// ----------------------------------------------------------------------------

func TestRead_TypePlan(t *testing.T) {
	data := []byte("Dato-ID;Antal;Beloeb\n" +
		"01-12-2024;1.234;1.234,56\n" +
		"15-06-2023;56;12,5\n" +
		"bad-date;;\n")
	path := writeFile(t, "f.csv", data)

	plan := Plan{
		DateColumns:    []string{"Dato-ID"},
		IntegerColumns: []string{"Antal"},
		FloatColumns:   []string{"Beloeb"},
	}
	f, diag, err := testReader().Read(context.Background(), path, plan, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	dato, _ := f.Column("Dato-ID")
	if dato.Kind != frame.KindDate {
		t.Errorf("Dato-ID kind = %v, want date", dato.Kind)
	}
	if got := dato.Cells[0].String(); got != "01122024" {
		t.Errorf("Dato-ID[0] = %q, want canonical 01122024", got)
	}
	if dato.Cells[2].Valid {
		t.Error("unparseable date should become missing")
	}
	if diag.DateLayouts["Dato-ID"] != "02-01-2006" {
		t.Errorf("DateLayouts = %v", diag.DateLayouts)
	}

	antal, _ := f.Column("Antal")
	if antal.Kind != frame.KindInteger {
		t.Errorf("Antal kind = %v, want integer", antal.Kind)
	}
	if antal.Cells[0].Int != 1234 {
		t.Errorf("Antal[0] = %d, want 1234", antal.Cells[0].Int)
	}

	beloeb, _ := f.Column("Beloeb")
	if beloeb.Cells[0].Float != 1234.56 {
		t.Errorf("Beloeb[0] = %v, want 1234.56", beloeb.Cells[0].Float)
	}
}

func TestRead_IntegerRedirectsToFloat(t *testing.T) {
	// One comma anywhere makes the whole declared-integer column float.
	data := []byte("Antal\n1\n2,5\n3\n")
	path := writeFile(t, "f.csv", data)

	f, diag, err := testReader().Read(context.Background(), path, Plan{IntegerColumns: []string{"Antal"}}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	col, _ := f.Column("Antal")
	if col.Kind != frame.KindFloat {
		t.Errorf("Antal kind = %v, want float after redirect", col.Kind)
	}
	if col.Cells[0].Float != 1.0 || col.Cells[1].Float != 2.5 {
		t.Errorf("Antal values = %v, %v", col.Cells[0].Float, col.Cells[1].Float)
	}
	if !reflect.DeepEqual(diag.FloatRedirects, []string{"Antal"}) {
		t.Errorf("FloatRedirects = %v", diag.FloatRedirects)
	}
}

func TestRead_SkipsDeclaredColumnNotInFile(t *testing.T) {
	path := writeFile(t, "f.csv", []byte("a\n1\n"))

	_, diag, err := testReader().Read(context.Background(), path, Plan{DateColumns: []string{"Fantom"}}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(diag.SkippedColumns, []string{"Fantom"}) {
		t.Errorf("SkippedColumns = %v, want [Fantom]", diag.SkippedColumns)
	}
}

func TestRead_UndateableColumnStaysText(t *testing.T) {
	path := writeFile(t, "f.csv", []byte("Dato\nikke en dato\nheller ikke\n"))

	f, diag, err := testReader().Read(context.Background(), path, Plan{DateColumns: []string{"Dato"}}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	col, _ := f.Column("Dato")
	if col.Kind != frame.KindText {
		t.Errorf("Dato kind = %v, want text", col.Kind)
	}
	if col.Cells[0].String() != "ikke en dato" {
		t.Error("undateable column should keep its raw values")
	}
	if _, ok := diag.DateLayouts["Dato"]; ok {
		t.Errorf("DateLayouts should not record the column, got %v", diag.DateLayouts)
	}
}

func TestRead_DateAutoFallback(t *testing.T) {
	// Single-digit day/month is outside the fixed layouts but the day-first
	// fallback resolves it.
	path := writeFile(t, "f.csv", []byte("Dato\n3/4/2025\n"))

	f, diag, err := testReader().Read(context.Background(), path, Plan{DateColumns: []string{"Dato"}}, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	col, _ := f.Column("Dato")
	if got := col.Cells[0].String(); got != "03042025" {
		t.Errorf("Dato[0] = %q, want 03042025", got)
	}
	if diag.DateLayouts["Dato"] != "auto" {
		t.Errorf("DateLayouts = %v, want auto", diag.DateLayouts)
	}
}

// ----------------------------------------------------------------------------
// Date Filter Tests
// ----------------------------------------------------------------------------

func filterFixture(t *testing.T) string {
	return writeFile(t, "f.csv", []byte("Dato-ID;Beloeb\n"+
		"01-06-2025;1\n"+
		"15-06-2025;2\n"+
		"01-07-2025;3\n"))
}

func TestRead_DateFilter(t *testing.T) {
	filter := &DateRangeFilter{
		Columns: []string{"Dato-ID"},
		Start:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	f, diag, err := testReader().Read(context.Background(), filterFixture(t),
		Plan{DateColumns: []string{"Dato-ID"}}, filter)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	// Bounds are inclusive: 01-06 and 15-06 stay, 01-07 goes.
	if f.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", f.NumRows())
	}
	if !diag.FilterApplied || diag.FilterFallback {
		t.Errorf("diag = applied %v fallback %v, want applied without fallback",
			diag.FilterApplied, diag.FilterFallback)
	}
	if diag.Rows != 2 {
		t.Errorf("diag.Rows = %d, want post-filter count 2", diag.Rows)
	}
}

func TestRead_DateFilterZeroMatchesPassesThrough(t *testing.T) {
	filter := &DateRangeFilter{
		Columns: []string{"Dato-ID"},
		Start:   time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(1990, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	f, diag, err := testReader().Read(context.Background(), filterFixture(t),
		Plan{DateColumns: []string{"Dato-ID"}}, filter)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	// Zero matches returns the unfiltered frame and flags the fallback.
	if f.NumRows() != 3 {
		t.Fatalf("NumRows() = %d, want unfiltered 3", f.NumRows())
	}
	if !diag.FilterApplied || !diag.FilterFallback {
		t.Errorf("diag = applied %v fallback %v, want both true",
			diag.FilterApplied, diag.FilterFallback)
	}
}

func TestRead_DateFilterMissingColumnIsNoOp(t *testing.T) {
	filter := &DateRangeFilter{
		Columns: []string{"Findes-Ikke"},
		Start:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	f, diag, err := testReader().Read(context.Background(), filterFixture(t),
		Plan{DateColumns: []string{"Dato-ID"}}, filter)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if f.NumRows() != 3 {
		t.Fatalf("NumRows() = %d, want untouched 3", f.NumRows())
	}
	if diag.FilterApplied {
		t.Error("filter over a missing column should not count as applied")
	}
}

// ----------------------------------------------------------------------------
// Analyze Tests
// ----------------------------------------------------------------------------

func TestAnalyze(t *testing.T) {
	data := []byte("Dato-ID;Antal;Beloeb;Navn\n" +
		"01-12-2024;1.234;12,5;Søren\n" +
		"15-06-2023;56;1,0;Mette\n")
	path := writeFile(t, "f.csv", data)

	a, err := testReader().Analyze(path)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if a.Encoding != "utf-8" {
		t.Errorf("Encoding = %q", a.Encoding)
	}
	if a.TotalColumns != 4 {
		t.Errorf("TotalColumns = %d, want 4", a.TotalColumns)
	}

	want := map[string]string{
		"Dato-ID": "date",
		"Antal":   "integer",
		"Beloeb":  "float",
		"Navn":    "text",
	}
	for column, hint := range want {
		if got := string(a.SuggestedTypes[column]); got != hint {
			t.Errorf("SuggestedTypes[%s] = %q, want %q", column, got, hint)
		}
	}

	if got := a.Samples["Navn"]; !reflect.DeepEqual(got, []string{"Søren", "Mette"}) {
		t.Errorf("Samples[Navn] = %v", got)
	}
}
