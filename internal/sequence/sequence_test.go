package sequence

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// SortKey Tests
// ----------------------------------------------------------------------------

func TestSortKey(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantDate time.Time
		wantSeq  int
	}{
		{
			name:     "date and sequence",
			path:     "/exports/0751_ODE_2025-06-17_002_01-Bilag-master_Delta_001af2.csv",
			wantDate: time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC),
			wantSeq:  2,
		},
		{
			name:     "date without sequence token",
			path:     "Rykker_Total_2024-01-31.csv",
			wantDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			wantSeq:  0,
		},
		{
			name:     "no date falls back to sentinel",
			path:     "undated_file.csv",
			wantDate: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
			wantSeq:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := SortKey(tt.path)
			if !k.Date.Equal(tt.wantDate) {
				t.Errorf("SortKey(%q).Date = %v, want %v", tt.path, k.Date, tt.wantDate)
			}
			if k.Seq != tt.wantSeq {
				t.Errorf("SortKey(%q).Seq = %d, want %d", tt.path, k.Seq, tt.wantSeq)
			}
			if k.Name != filepath.Base(tt.path) {
				t.Errorf("SortKey(%q).Name = %q, want base name", tt.path, k.Name)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Sort Tests
// ----------------------------------------------------------------------------

func TestSort(t *testing.T) {
	input := []string{
		"ODE_2025-06-17_002_Bilag_Delta.csv",
		"undated_file.csv",
		"ODE_2025-06-17_001_Bilag_Delta.csv",
		"ODE_2025-01-01_005_Bilag_Delta.csv",
	}
	// Undateable files sort first under the sentinel date, then by date and
	// sequence.
	want := []string{
		"undated_file.csv",
		"ODE_2025-01-01_005_Bilag_Delta.csv",
		"ODE_2025-06-17_001_Bilag_Delta.csv",
		"ODE_2025-06-17_002_Bilag_Delta.csv",
	}

	got := Sort(input)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sort() = %v, want %v", got, want)
	}

	// Input must not be reordered in place.
	if input[0] != "ODE_2025-06-17_002_Bilag_Delta.csv" {
		t.Error("Sort() modified its input")
	}
}

func TestSort_NameTiebreak(t *testing.T) {
	input := []string{
		"b_2025-06-17_001_x.csv",
		"a_2025-06-17_001_x.csv",
	}
	got := Sort(input)
	if got[0] != "a_2025-06-17_001_x.csv" {
		t.Errorf("equal date and seq should order by name, got %v", got)
	}
}

// ----------------------------------------------------------------------------
// Find Tests
// ----------------------------------------------------------------------------

func TestFind(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "june")
	processed := filepath.Join(dir, ProcessedDirName)
	for _, d := range []string{sub, processed} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	files := map[string]string{
		"ODE_2025-06-17_001_Rykker_Delta.csv": dir,
		"ODE_2025-06-18_001_Rykker_Delta.csv": sub,
		"ODE_2025-06-17_001_Rykker_Total.csv": dir,       // wrong marker
		"ODE_2025-06-17_001_Bilag_Delta.csv":  dir,       // wrong table
		"ODE_2025-06-01_001_Rykker_Delta.csv": processed, // already applied
	}
	for name, d := range files {
		if err := os.WriteFile(filepath.Join(d, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Find(dir, "Rykker", MarkerDelta)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Find() returned %d files, want 2: %v", len(got), got)
	}
	for _, p := range got {
		base := filepath.Base(p)
		if base != "ODE_2025-06-17_001_Rykker_Delta.csv" && base != "ODE_2025-06-18_001_Rykker_Delta.csv" {
			t.Errorf("Find() returned unexpected file %q", base)
		}
	}
}

func TestFind_Total(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ODE_2025-06-17_001_Rykker_Total.csv",
		"ODE_2025-06-17_001_Rykker_Delta.csv",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Find(dir, "Rykker", MarkerTotal)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "ODE_2025-06-17_001_Rykker_Total.csv" {
		t.Errorf("Find(Total) = %v, want the single Total file", got)
	}
}
