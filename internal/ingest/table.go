// Package ingest reads the tabular inputs of a catchment run (CSV, XLSX and
// shapefile attribute tables) into typed records, decoding legacy charsets
// and validating required columns up front.
package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/catchment-cli/internal/catchment"
)

// Table is a header plus string rows, as read from any supported format.
type Table struct {
	Source string
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a Table, cleaning header names of BOMs, NULs and padding.
func NewTable(source string, header []string, rows [][]string) *Table {
	t := &Table{Source: source, Header: make([]string, len(header)), Rows: rows}
	t.index = make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimRight(strings.TrimPrefix(h, "\ufeff"), "\x00"))
		t.Header[i] = name
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	return t
}

// Column returns the index of name. An exact match wins; otherwise the first
// case-insensitive match is used, since DBF field names are often upper-cased.
func (t *Table) Column(name string) (int, bool) {
	if i, ok := t.index[name]; ok {
		return i, true
	}
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return -1, false
}

// Require resolves every named column or returns a *catchment.SchemaError for
// the first one missing.
func (t *Table) Require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, &catchment.SchemaError{Source: t.Source, Column: n, Available: t.Header}
		}
		idx[i] = c
	}
	return idx, nil
}

// Cell returns row[col] trimmed, or "" when the row is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// ParseNumber parses a numeric cell, accepting thousands separators. Blank
// and unparseable cells report ok=false.
func ParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NormalizeID canonicalises an identifier so that "12", "12.0" and " 12 "
// join to each other. Only float-formatted values (with a decimal point or
// exponent) are rewritten, so zero-padded codes like "007" stay distinct
// from "7". Other identifiers are only trimmed.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, ".eE") {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return s
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return s
}
