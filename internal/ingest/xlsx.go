package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX loads one sheet of a workbook into a Table. The first row is the header.
func ReadXLSX(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %q of %s is empty", sheet.Name, path)
	}

	header := rowToStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return NewTable(path, header, rows), nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
