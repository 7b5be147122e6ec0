package ingest

import (
	"fmt"

	"github.com/mkbdata/odeingest/internal/classify"
)

// AnalyzeSampleRows is how many data rows Analyze reads from the file.
const AnalyzeSampleRows = 100

// SampleValuesPerColumn bounds the example values returned per column.
const SampleValuesPerColumn = 5

// Analysis is the diagnostic summary for a sampled file, used by upstream
// tooling to decide which columns to declare as date/integer/float before a
// full ingestion run.
type Analysis struct {
	File           string                   `json:"file"`
	Encoding       string                   `json:"encoding"`
	TotalColumns   int                      `json:"totalColumns"`
	Columns        []string                 `json:"columns"`
	SuggestedTypes map[string]classify.Hint `json:"suggestedTypes"`
	Samples        map[string][]string      `json:"samples"`
}

// Analyze reads a bounded sample of the file and suggests a type per column.
// The same encoding fallback and structural cleaning as Read apply.
func (r *Reader) Analyze(path string) (*Analysis, error) {
	data, encoding, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	f, _, err := parseFrame(data, AnalyzeSampleRows)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	a := &Analysis{
		File:           path,
		Encoding:       encoding,
		TotalColumns:   f.NumColumns(),
		Columns:        f.Names(),
		SuggestedTypes: make(map[string]classify.Hint, f.NumColumns()),
		Samples:        make(map[string][]string, f.NumColumns()),
	}
	for i := 0; i < f.NumColumns(); i++ {
		col := f.ColumnAt(i)
		a.SuggestedTypes[col.Name] = classify.Suggest(col.NonNull(classify.SampleSize))
		a.Samples[col.Name] = col.NonNull(SampleValuesPerColumn)
	}
	return a, nil
}
