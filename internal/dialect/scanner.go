package dialect

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxLineLength is the longest line the scanner will read. Anything longer
// cannot come from the tester and fails the scan.
const MaxLineLength = 1 << 20

// ScannerState is the mutable state of one scan. It is never shared between
// files, so separate files can be scanned concurrently.
type ScannerState struct {
	// StepName is the name captured from the latest step-definition line,
	// "" until one is seen.
	StepName string

	// ExpectedColumns is the header width, fixed before the first data line.
	ExpectedColumns int

	// Boundaries holds the index of the last accepted row at every boundary
	// marker, plus one closing entry appended by Close. Scan closes the
	// state itself; callers driving Feed directly must call Close before
	// reading Boundaries, otherwise the closing entry is missing and the
	// final step is lost when the rows are materialized.
	Boundaries []int

	// Rows are the accepted data lines; each ends with the step name.
	Rows [][]string

	// Lines counts classified lines by kind.
	Lines map[LineKind]int

	closed bool
}

// NewScannerState returns a state expecting data lines of the given width.
func NewScannerState(expectedColumns int) *ScannerState {
	return &ScannerState{
		ExpectedColumns: expectedColumns,
		Lines:           make(map[LineKind]int),
	}
}

// Feed classifies one raw line and applies it to the state.
func (s *ScannerState) Feed(raw string) LineKind {
	line := Classify(raw, s.ExpectedColumns)
	s.Lines[line.Kind]++

	switch line.Kind {
	case LineStepDefinition:
		s.StepName = line.StepName
	case LineBoundary:
		s.Boundaries = append(s.Boundaries, len(s.Rows)-1)
	case LineData:
		s.Rows = append(s.Rows, append(line.Fields, s.StepName))
	}
	return line.Kind
}

// Close records the boundary of the final, unterminated step. Calling it
// more than once has no further effect.
func (s *ScannerState) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.Boundaries = append(s.Boundaries, len(s.Rows)-1)
}

// Scan runs the dialect scanner over decoded text. The header width is
// resolved first; then every line is fed once, in order.
//
// A failed line read and a scan that accepts no data rows both return
// ErrFormatMismatch. Lines of the wrong shape are dropped silently.
func Scan(text string) (*ScannerState, error) {
	width, err := findHeaderWidth(text)
	if err != nil {
		return nil, err
	}

	state := NewScannerState(width)
	sc := newLineScanner(strings.NewReader(text))
	for sc.Scan() {
		state.Feed(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormatMismatch, err)
	}
	state.Close()

	if len(state.Rows) == 0 {
		if width == 0 {
			return nil, fmt.Errorf("%w: no %q header line", ErrFormatMismatch, HeaderToken)
		}
		return nil, fmt.Errorf("%w: no line matched the %d-column data layout", ErrFormatMismatch, width)
	}
	return state, nil
}

// findHeaderWidth returns the width of the first header line, 0 if none.
func findHeaderWidth(text string) (int, error) {
	sc := newLineScanner(strings.NewReader(text))
	for sc.Scan() {
		if n, ok := headerWidth(sc.Text()); ok {
			return n, nil
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFormatMismatch, err)
	}
	return 0, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineLength)
	return sc
}
