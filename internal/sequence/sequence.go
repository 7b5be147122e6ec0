// Package sequence derives the processing order for a batch of export files.
//
// Export filenames embed a yyyy-mm-dd date stamp and a three-digit sequence
// token, e.g. "0751_ODE_2025-06-17_002_01-Bilag-master_Delta_001af2.csv".
// Files are applied oldest-first, lowest-sequence-first, with the filename
// itself as the final tiebreak so the order is total and stable.
package sequence

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Marker distinguishes full-snapshot exports from incremental ones.
type Marker string

const (
	MarkerTotal Marker = "Total"
	MarkerDelta Marker = "Delta"
)

// ProcessedDirName is the subdirectory that holds already applied delta
// files. Discovery skips it so a re-run never picks up processed files.
const ProcessedDirName = "processed_delta_files"

var (
	datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	seqPattern  = regexp.MustCompile(`_(\d{3})_`)
)

// sentinelDate is the fallback sort date for filenames without a parseable
// date stamp. It sorts such files first; that can misorder undateable files
// against the oldest-first intent, but the behavior is kept as-is for
// compatibility with the existing export flow.
var sentinelDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Key is a file's sort identity.
type Key struct {
	Date time.Time
	Seq  int
	Name string
}

// SortKey extracts the sort identity from a file path.
func SortKey(path string) Key {
	name := filepath.Base(path)

	k := Key{Date: sentinelDate, Name: name}
	if m := datePattern.FindString(name); m != "" {
		if d, err := time.Parse("2006-01-02", m); err == nil {
			k.Date = d
		}
	}
	if m := seqPattern.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		k.Seq = n
	}
	return k
}

// Less orders keys by date, then sequence number, then filename.
func (k Key) Less(other Key) bool {
	if !k.Date.Equal(other.Date) {
		return k.Date.Before(other.Date)
	}
	if k.Seq != other.Seq {
		return k.Seq < other.Seq
	}
	return k.Name < other.Name
}

// Sort returns the paths in processing order. The input is not modified.
func Sort(paths []string) []string {
	out := make([]string, len(paths))
	copy(out, paths)
	sort.SliceStable(out, func(i, j int) bool {
		return SortKey(out[i]).Less(SortKey(out[j]))
	})
	return out
}

// Find walks root and returns every file whose base name contains the
// table token followed by the marker, e.g. "Bilag-master_Delta". The
// processed-files subdirectory is skipped. Results are in discovery order;
// callers sort with Sort.
func Find(root, table string, marker Marker) ([]string, error) {
	token := table + "_" + string(marker)
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ProcessedDirName {
				return fs.SkipDir
			}
			return nil
		}
		if strings.Contains(d.Name(), token) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
