package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := newCSVReader(r, opts)

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func newCSVReader(r io.Reader, opts CSVOptions) *csv.Reader {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields
	return reader
}

// ReadCSV loads a whole CSV file into a Table. The file may be in any charset
// ToUTF8 recognises and may carry a BOM. Only the Delimiter, Comment and
// LazyQuotes fields of opts are used; the first row is always the header.
func ReadCSV(ctx context.Context, path string, opts CSVOptions) (*Table, error) {
	data, err := readUTF8(path)
	if err != nil {
		return nil, err
	}
	return readCSV(ctx, path, bytes.NewReader(data), opts)
}

// readCSVHeader returns the first record of a CSV file without parsing the
// rest of it.
func readCSVHeader(path string, opts CSVOptions) ([]string, error) {
	data, err := readUTF8(path)
	if err != nil {
		return nil, err
	}
	header, err := newCSVReader(bytes.NewReader(data), opts).Read()
	if err == io.EOF {
		return nil, eris.Errorf("csv: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "csv: parse header of %s", path)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	return header, nil
}

func readUTF8(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: read %s", path)
	}
	data, _, err := ToUTF8(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: decode %s", path)
	}
	return data, nil
}

func readCSV(ctx context.Context, source string, r io.Reader, opts CSVOptions) (*Table, error) {
	headerCh := make(chan []string, 1)
	opts.HasHeader = true
	opts.HeaderCh = headerCh
	opts.TrimSpace = true
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrapf(err, "csv: parse %s", source)
		}
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.Errorf("csv: %s is empty", source)
	}
	return NewTable(source, header, rows), nil
}
