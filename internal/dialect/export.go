package dialect

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportTimeLayout renders System Time in exported tables.
const ExportTimeLayout = "2006-01-02 15:04:05"

// ExportOptions controls table serialization.
type ExportOptions struct {
	// BOM prefixes the output with a UTF-8 byte order mark so spreadsheet
	// tools pick the right encoding.
	BOM bool
}

// WriteTable writes records as CSV with the Columns header.
func WriteTable(w io.Writer, records []Record, opts ExportOptions) error {
	if opts.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		if err := cw.Write(recordFields(&records[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordFields(r *Record) []string {
	return []string{
		r.SystemTime.Format(ExportTimeLayout),
		r.StepTime,
		formatFloat(r.V),
		formatFloat(r.I),
		formatFloat(r.T),
		formatFloat(r.R),
		formatFloat(r.P),
		formatFloat(r.MAh),
		formatFloat(r.Wh),
		r.TotalTime,
		r.StepName,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ReadTable parses a table written by WriteTable. The header must match
// Columns exactly; a leading byte order mark is ignored.
func ReadTable(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Columns {
		if header[i] != col {
			return nil, fmt.Errorf("column %d is %q, want %q", i, header[i], col)
		}
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		rec, err := parseExported(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseExported(row []string) (Record, error) {
	ts, err := time.Parse(ExportTimeLayout, row[0])
	if err != nil {
		return Record{}, fmt.Errorf("invalid date %q: %w", row[0], err)
	}

	var nums [7]float64
	for i := range nums {
		v, err := parseFloat(row[2+i])
		if err != nil {
			return Record{}, fmt.Errorf("invalid number in %s: %q", Columns[2+i], row[2+i])
		}
		nums[i] = v
	}

	return Record{
		SystemTime: ts,
		StepTime:   row[1],
		V:          nums[0],
		I:          nums[1],
		T:          nums[2],
		R:          nums[3],
		P:          nums[4],
		MAh:        nums[5],
		Wh:         nums[6],
		TotalTime:  row[9],
		StepName:   row[10],
	}, nil
}
