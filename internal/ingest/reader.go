// Package ingest reads delimited export files into typed frames.
//
// Files arrive in the Danish convention: semicolon-separated, comma decimal,
// period thousands separator, and in whatever encoding the exporting system
// felt like that day. Reading tries a fixed fallback chain of encodings,
// performs structural cleaning, and applies the declared per-column type
// plan. Every fallback the reader takes is recorded in Diagnostics so the
// caller can see what actually happened to the file.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/mkbdata/odeingest/internal/frame"
)

// nullTokens are the cell values treated as missing after trimming.
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"NaN":  true,
	"NULL": true,
	"null": true,
	"-":    true,
	"N/A":  true,
}

// decoder turns raw file bytes into UTF-8 text, or reports that the file is
// not valid under this encoding.
type decoder struct {
	name   string
	decode func([]byte) ([]byte, error)
}

// decoders is the fallback chain, tried in order. The first decoder that
// accepts the file wins; exhausting the chain is fatal for the file.
var decoders = []decoder{
	{name: "utf-8", decode: decodeUTF8},
	{name: "latin-1", decode: decodeCharmap(charmap.ISO8859_1)},
	{name: "windows-1252", decode: decodeCharmap(charmap.Windows1252)},
}

func decodeUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid UTF-8")
	}
	return data, nil
}

func decodeCharmap(cm *charmap.Charmap) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return cm.NewDecoder().Bytes(data)
	}
}

// decodeFile reads the file and resolves its encoding against the fallback
// chain. Returns the decoded bytes and the name of the winning encoding.
func decodeFile(path string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}

	var tried []string
	for _, d := range decoders {
		decoded, err := d.decode(raw)
		if err == nil {
			return decoded, d.name, nil
		}
		tried = append(tried, d.name)
	}
	return nil, "", fmt.Errorf("decode %s: no encoding in fallback list applies (tried %s)",
		path, strings.Join(tried, ", "))
}

// parseFrame parses decoded CSV bytes into a frame, applying structural
// cleaning: header names are normalized, empty header cells are auto-named
// so the placeholder rule drops them, cells are trimmed, and null tokens
// become missing values. Ragged rows are padded with missing values.
// Returns the frame and the names of the dropped placeholder columns.
func parseFrame(data []byte, maxRows int) (*frame.Frame, []string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		name := frame.NormalizeName(h)
		if name == "" {
			name = "unnamed_" + strconv.Itoa(i)
		}
		names[i] = name
	}

	f := frame.New(names)
	rows := 0
	for {
		if maxRows > 0 && rows >= maxRows {
			break
		}
		record, err := r.Read()
		if err != nil {
			break
		}
		cells := make([]frame.Value, len(record))
		for i, raw := range record {
			cells[i] = cleanCell(raw)
		}
		f.AppendRow(cells)
		rows++
	}

	dropped := f.CleanColumns()
	return f, dropped, nil
}

// cleanCell trims a raw cell and maps null tokens to a missing value.
func cleanCell(raw string) frame.Value {
	s := strings.TrimSpace(raw)
	if nullTokens[s] {
		return frame.Null(frame.KindText)
	}
	return frame.Text(s)
}
