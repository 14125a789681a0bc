package dialect

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

// ============================================================================
// Line Classification Benchmarks
// ============================================================================

// BenchmarkClassify runs every line shape through the classifier.
// This is the per-line hot path of a parse.
func BenchmarkClassify(b *testing.B) {
	lines := []string{
		sample("24/01/01 00:00:10", "3.650"),
		",,CC-CV,I=2.500,V=3.700",
		"%,Time",
		header,
		"",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, l := range lines {
			Classify(l, DataColumns)
		}
	}
}

// BenchmarkIsTimestamp benchmarks the data-line timestamp check.
func BenchmarkIsTimestamp(b *testing.B) {
	for i := 0; i < b.N; i++ {
		IsTimestamp("24/01/01 00:00:10")
	}
}

// ============================================================================
// Whole-File Benchmarks
// ============================================================================

// syntheticLog builds a log with steps of rowsPerStep samples each.
func syntheticLog(steps, rowsPerStep int) []byte {
	var sb strings.Builder
	sb.WriteString(logText("%,Time", ",,CC-CV,I=2.500,V=3.700", header))
	for s := 0; s < steps; s++ {
		if s > 0 {
			sb.WriteString(logText("%,Time", fmt.Sprintf(",,Step%d,Time=00:10:00", s)))
		}
		for r := 0; r < rowsPerStep; r++ {
			sec := (s*rowsPerStep + r) % 60
			sb.WriteString(logText(sample(fmt.Sprintf("24/01/01 00:00:%02d", sec), "3.650")))
		}
	}
	return []byte(sb.String())
}

// BenchmarkParse_Small benchmarks a typical short test run.
func BenchmarkParse_Small(b *testing.B) {
	data := syntheticLog(10, 100)
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParse_Large benchmarks a long cycling run.
func BenchmarkParse_Large(b *testing.B) {
	data := syntheticLog(200, 500)
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWriteTable benchmarks exporting a parsed detail table.
func BenchmarkWriteTable(b *testing.B) {
	res, err := Parse(syntheticLog(50, 200))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := WriteTable(io.Discard, res.Detail, ExportOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
