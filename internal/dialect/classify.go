package dialect

import (
	"regexp"
	"strings"
)

// Delimiter separates fields in the cycler's log format. Fields are never quoted.
const Delimiter = ","

// HeaderToken is the first field of the column header line. Its field count
// decides how wide a data line must be.
const HeaderToken = "System Time"

// LineKind tags the outcome of classifying one line.
type LineKind int

const (
	LineBlank LineKind = iota
	LineMetadata
	LineStepDefinition
	LineBoundary
	LineData
	LineUnrecognized
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineMetadata:
		return "metadata"
	case LineStepDefinition:
		return "step-definition"
	case LineBoundary:
		return "boundary"
	case LineData:
		return "data"
	case LineUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Line is a classified input line. Fields is set for every kind except
// LineBlank; StepName only for LineStepDefinition.
type Line struct {
	Kind     LineKind
	Fields   []string
	StepName string
}

// metadataFields are first-field values that mark a section or header line.
var metadataFields = map[string]bool{
	"%":          true,
	"@":          true,
	"Label":      true,
	"":           true,
	"$":          true,
	HeaderToken:  true,
	"Start Time": true,
}

// metadataPrefixes catch the same lines when the sentinel is glued to more text.
var metadataPrefixes = []string{"%", "@", "Label", "$", HeaderToken, "Start Time", Delimiter + Delimiter}

// timestampPattern is the tester's "yy/mm/dd HH:MM:SS" sample time.
var timestampPattern = regexp.MustCompile(`^[0-9]{2}/[0-9]{2}/[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2}$`)

// Classify assigns raw to exactly one LineKind. The checks run in a fixed
// order: blank, metadata (step definition, boundary, other), data, and
// anything else is unrecognized. expectedColumns is the header width.
func Classify(raw string, expectedColumns int) Line {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Line{Kind: LineBlank}
	}

	fields := strings.Split(text, Delimiter)

	if isMetadata(text, fields) {
		switch {
		case len(fields) >= 3 && fields[0] == "" && fields[1] == "":
			return Line{Kind: LineStepDefinition, Fields: fields, StepName: fields[2]}
		case fields[0] == "%" && len(fields) >= 2:
			return Line{Kind: LineBoundary, Fields: fields}
		default:
			return Line{Kind: LineMetadata, Fields: fields}
		}
	}

	if len(fields) == expectedColumns && IsTimestamp(fields[0]) {
		return Line{Kind: LineData, Fields: fields}
	}
	return Line{Kind: LineUnrecognized, Fields: fields}
}

// IsTimestamp reports whether s has the shape DD/DD/DD DD:DD:DD.
func IsTimestamp(s string) bool {
	return timestampPattern.MatchString(s)
}

func isMetadata(text string, fields []string) bool {
	if metadataFields[fields[0]] {
		return true
	}
	for _, p := range metadataPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// headerWidth returns the field count of the header line, or 0 if text has none.
func headerWidth(line string) (int, bool) {
	fields := strings.Split(strings.TrimSpace(line), Delimiter)
	if fields[0] == HeaderToken {
		return len(fields), true
	}
	return 0, false
}
