package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Columns is the fixed column contract of both output tables.
var Columns = []string{
	"System Time", "Step Time", "V", "I", "T", "R", "P", "mAh", "Wh", "Total Time", "Step name",
}

// DataColumns is the number of columns a data line carries before the step
// name is appended.
const DataColumns = 10

// TimeLayout is the tester's two-digit-year sample timestamp.
const TimeLayout = "06/01/02 15:04:05"

// Record is one typed sample row.
type Record struct {
	SystemTime time.Time `json:"system_time"`
	StepTime   string    `json:"step_time"`
	V          float64   `json:"v"`
	I          float64   `json:"i"`
	T          float64   `json:"t"`
	R          float64   `json:"r"`
	P          float64   `json:"p"`
	MAh        float64   `json:"mah"`
	Wh         float64   `json:"wh"`
	TotalTime  string    `json:"total_time"`
	StepName   string    `json:"step_name"`
}

// Result is the outcome of parsing one file.
type Result struct {
	// Detail holds every coerced record in file order.
	Detail []Record

	// Steps holds the records at the step boundaries.
	Steps []Record

	// Boundaries are the raw boundary indices from the scan.
	Boundaries []int

	// Dropped counts accepted rows removed because a field failed to parse.
	Dropped int

	// Encoding names the decoder that produced the text.
	Encoding string

	// Lines counts classified lines by kind.
	Lines map[LineKind]int
}

// Materialize converts accepted rows into typed records and selects the step
// rows.
//
// A row whose timestamp or any measurement fails to parse is dropped and
// counted. Boundary indices address positions in the final detail table;
// positions outside it are skipped and duplicates are kept.
func Materialize(rows [][]string, boundaries []int) (*Result, error) {
	res := &Result{
		Detail:     make([]Record, 0, len(rows)),
		Boundaries: boundaries,
	}

	for _, row := range rows {
		if len(row) != DataColumns+1 {
			return nil, fmt.Errorf("%w: data rows have %d columns, want %d",
				ErrFormatMismatch, len(row)-1, DataColumns)
		}
		rec, ok := coerce(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Detail = append(res.Detail, rec)
	}

	if len(rows) > 0 && len(res.Detail) == 0 {
		return nil, fmt.Errorf("%w (%d rows)", ErrCoercion, len(rows))
	}

	res.Steps = SelectSteps(res.Detail, boundaries)
	return res, nil
}

// SelectSteps picks detail[i] for every boundary i inside the table.
func SelectSteps(detail []Record, boundaries []int) []Record {
	steps := make([]Record, 0, len(boundaries))
	for _, i := range boundaries {
		if i < 0 || i >= len(detail) {
			continue
		}
		steps = append(steps, detail[i])
	}
	return steps
}

// coerce parses one accepted row. ok is false if any typed field is invalid.
func coerce(row []string) (rec Record, ok bool) {
	ts, err := time.Parse(TimeLayout, row[0])
	if err != nil {
		return Record{}, false
	}

	var nums [7]float64
	for i := range nums {
		v, err := parseFloat(row[2+i])
		if err != nil {
			return Record{}, false
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
	}, true
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Parse decodes raw file bytes and runs the scanner and materializer.
func Parse(data []byte) (*Result, error) {
	enc, text, err := decodeTrial(data)
	if err != nil {
		return nil, err
	}
	return ParseText(text, enc.Name)
}

// ParseText runs the scanner and materializer over already decoded text.
// encodingName is recorded on the result.
func ParseText(text, encodingName string) (*Result, error) {
	state, err := Scan(text)
	if err != nil {
		return nil, err
	}
	res, err := Materialize(state.Rows, state.Boundaries)
	if err != nil {
		return nil, err
	}
	res.Encoding = encodingName
	res.Lines = state.Lines
	return res, nil
}
