// Package frame provides the in-memory record set that ingestion produces and
// the merge engine consumes. A Frame is column-oriented: every column holds
// one Value per row, and all columns are kept at equal length.
//
// Values form a small tagged union over text, integer, float and date. A date
// is stored as its canonical ddmmyyyy string rather than a time.Time, because
// that is the textual contract the warehouse expects.
package frame

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the resolved type of a column or value.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindFloat
	KindDate
)

// String returns the lowercase label used in diagnostics and config.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "text"
	}
}

// Value is one cell. Valid=false marks a missing value (NULL).
type Value struct {
	Kind  Kind
	Valid bool
	Text  string // KindText, and KindDate in canonical ddmmyyyy form
	Int   int64
	Float float64
}

// Text returns a valid text value, or a missing one for empty input.
func Text(s string) Value {
	if s == "" {
		return Value{Kind: KindText}
	}
	return Value{Kind: KindText, Valid: true, Text: s}
}

// Int returns a valid integer value.
func Int(i int64) Value {
	return Value{Kind: KindInteger, Valid: true, Int: i}
}

// Float returns a valid float value.
func Float(f float64) Value {
	return Value{Kind: KindFloat, Valid: true, Float: f}
}

// Date returns a valid date value holding the canonical ddmmyyyy string.
func Date(canonical string) Value {
	return Value{Kind: KindDate, Valid: true, Text: canonical}
}

// Null returns a missing value of the given kind.
func Null(k Kind) Value {
	return Value{Kind: k}
}

// String renders the value for display and storage. Missing values render
// as the empty string.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return v.Text
	}
}

// StoreArg returns the database argument for this value: nil for missing,
// otherwise the textual form. Target tables persist every column as varchar,
// so typed values are flattened to their canonical text at the boundary.
func (v Value) StoreArg() any {
	if !v.Valid {
		return nil
	}
	return v.String()
}

// Column is a named, ordered sequence of values.
type Column struct {
	Name  string
	Kind  Kind
	Cells []Value
}

// NonNull returns up to max non-missing cell renderings, in row order.
// max <= 0 means no limit.
func (c *Column) NonNull(max int) []string {
	var out []string
	for _, v := range c.Cells {
		if !v.Valid {
			continue
		}
		out = append(out, v.String())
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// Frame is an ordered collection of equal-length columns.
type Frame struct {
	cols   []*Column
	byName map[string]int
}

// New creates an empty frame with the given column names, in order.
// Duplicate names keep the first occurrence's index for lookup.
func New(names []string) *Frame {
	f := &Frame{byName: make(map[string]int, len(names))}
	for _, name := range names {
		f.addColumn(&Column{Name: name, Kind: KindText})
	}
	return f
}

func (f *Frame) addColumn(c *Column) {
	if _, ok := f.byName[c.Name]; !ok {
		f.byName[c.Name] = len(f.cols)
	}
	f.cols = append(f.cols, c)
}

func (f *Frame) reindex() {
	f.byName = make(map[string]int, len(f.cols))
	for i, c := range f.cols {
		if _, ok := f.byName[c.Name]; !ok {
			f.byName[c.Name] = i
		}
	}
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int { return len(f.cols) }

// NumRows returns the number of rows. All columns share this length.
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return len(f.cols[0].Cells)
}

// Column returns the column with the given name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// ColumnAt returns the column at position i.
func (f *Frame) ColumnAt(i int) *Column { return f.cols[i] }

// HasColumn reports whether a column with the given name exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// AppendRow appends one value per column. Short rows are padded with missing
// values and long rows truncated, keeping all columns equal-length.
func (f *Frame) AppendRow(cells []Value) {
	for i, c := range f.cols {
		if i < len(cells) {
			c.Cells = append(c.Cells, cells[i])
		} else {
			c.Cells = append(c.Cells, Null(c.Kind))
		}
	}
}

// Row returns the values of row i, in column order.
func (f *Frame) Row(i int) []Value {
	row := make([]Value, len(f.cols))
	for j, c := range f.cols {
		row[j] = c.Cells[i]
	}
	return row
}

// Drop removes the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := f.cols[:0]
	for _, c := range f.cols {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	f.cols = kept
	f.reindex()
}

// Restrict keeps only the named columns, preserving frame order.
// Names absent from the frame are ignored.
func (f *Frame) Restrict(names []string) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	kept := f.cols[:0]
	for _, c := range f.cols {
		if keep[c.Name] {
			kept = append(kept, c)
		}
	}
	f.cols = kept
	f.reindex()
}

// Select returns a new frame containing only the rows where mask is true.
// The mask must be NumRows() long.
func (f *Frame) Select(mask []bool) (*Frame, error) {
	if len(mask) != f.NumRows() {
		return nil, fmt.Errorf("mask length %d does not match %d rows", len(mask), f.NumRows())
	}
	out := &Frame{byName: make(map[string]int, len(f.cols))}
	for _, c := range f.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		for i, v := range c.Cells {
			if mask[i] {
				nc.Cells = append(nc.Cells, v)
			}
		}
		out.addColumn(nc)
	}
	return out, nil
}

// placeholderPattern matches auto-generated column names that carry no data
// identity, such as the trailing separator artifacts export tools emit.
var placeholderPattern = regexp.MustCompile(`(?i)^unnamed`)

// NormalizeName trims a header cell and replaces spaces with underscores.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// IsPlaceholderName reports whether a column name is an auto-generated
// placeholder that should be dropped during structural cleaning.
func IsPlaceholderName(name string) bool {
	return placeholderPattern.MatchString(name)
}

// CleanColumns normalizes all column names and drops placeholder columns.
// It returns the names of the dropped columns.
func (f *Frame) CleanColumns() []string {
	var dropped []string
	kept := f.cols[:0]
	for _, c := range f.cols {
		c.Name = NormalizeName(c.Name)
		if IsPlaceholderName(c.Name) {
			dropped = append(dropped, c.Name)
			continue
		}
		kept = append(kept, c)
	}
	f.cols = kept
	f.reindex()
	return dropped
}
