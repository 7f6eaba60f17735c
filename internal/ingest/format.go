package ingest

import (
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Format holds reader settings for one kind of source table. The zero value
// reads comma-separated CSV and the first sheet of a workbook.
type Format struct {
	Delimiter  string `yaml:"delimiter"`
	Comment    string `yaml:"comment"`
	LazyQuotes bool   `yaml:"lazy_quotes"`
	Sheet      string `yaml:"sheet"`
	SheetIndex int    `yaml:"sheet_index"`
}

// Validate checks that Delimiter and Comment are single characters and
// SheetIndex is not negative.
func (f Format) Validate() error {
	_, err := f.csvOptions()
	if err != nil {
		return err
	}
	if f.SheetIndex < 0 {
		return eris.Errorf("format: sheet_index must not be negative, got %d", f.SheetIndex)
	}
	return nil
}

func (f Format) csvOptions() (CSVOptions, error) {
	delim, err := singleRune("delimiter", f.Delimiter)
	if err != nil {
		return CSVOptions{}, err
	}
	comment, err := singleRune("comment", f.Comment)
	if err != nil {
		return CSVOptions{}, err
	}
	if delim != 0 && delim == comment {
		return CSVOptions{}, eris.Errorf("format: delimiter and comment are both %q", delim)
	}
	return CSVOptions{Delimiter: delim, Comment: comment, LazyQuotes: f.LazyQuotes}, nil
}

func (f Format) xlsxOptions() XLSXOptions {
	return XLSXOptions{SheetIndex: f.SheetIndex, SheetName: f.Sheet}
}

// singleRune decodes a one-character setting. "tab" and `\t` both name a tab.
func singleRune(name, s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, eris.Errorf("format: %s must be a single character, got %q", name, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
