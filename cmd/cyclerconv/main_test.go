package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cyclerLog = "%,Time\r\n" +
	",,CC-CV,I=2.500,V=3.700\r\n" +
	"System Time,Step Time,V,I,T,R,P,mAh,Wh,Total Time\r\n" +
	"24/01/01 00:00:00,00:00:00,3.600,2.500,25.1,0.012,9.25,0.0,0.000,00:00:00\r\n" +
	"%,Time\r\n" +
	",,Rest,Time=00:10:00\r\n" +
	"24/01/01 00:00:20,00:00:00,3.640,0.000,25.0,0.000,0.00,0.0,0.000,00:00:20\r\n"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRun_Summary(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	good := writeFile(t, in, "cell.csv", cyclerLog)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-o", out, good}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Converted 1 of 1 files") {
		t.Errorf("summary = %q", stdout.String())
	}
	for _, name := range []string{"cell_detail.csv", "cell_step.csv"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestRun_JSONWithFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	good := writeFile(t, in, "cell.csv", cyclerLog)
	bad := writeFile(t, in, "bad.csv", "hello\n")
	missing := filepath.Join(in, "missing.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--json", "--out", out, good, bad, missing}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	var got jsonSummary
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if !got.Success || len(got.ProcessedFiles) != 1 {
		t.Errorf("processed = %+v", got.ProcessedFiles)
	}
	if len(got.Errors) != 2 {
		t.Fatalf("errors = %+v, want 2", got.Errors)
	}
	if got.Errors[0].File != "bad.csv" || got.Errors[0].Code != "FMT001" {
		t.Errorf("errors[0] = %+v", got.Errors[0])
	}
	if got.Errors[1].File != "missing.csv" || got.Errors[1].Code != "FILE006" {
		t.Errorf("errors[1] = %+v", got.Errors[1])
	}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no files", nil, 2},
		{"help", []string{"--help"}, 0},
		{"unknown flag", []string{"--nope"}, 2},
		{"bad codec", []string{"--codec", "rar", "x.csv"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := tt.args
			if tt.name == "bad codec" {
				args = append([]string{"-o", t.TempDir()}, args...)
			}
			if code := run(context.Background(), args, &stdout, &stderr); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestRun_DetectEncoding(t *testing.T) {
	in := t.TempDir()
	good := writeFile(t, in, "cell.csv", cyclerLog)
	latin := writeFile(t, in, "latin.csv", "caf\xe9\n")
	missing := filepath.Join(in, "missing.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--detect", "--json", good, latin, missing}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	var got []detection
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if len(got) != 3 {
		t.Fatalf("results = %+v", got)
	}
	if got[0].Encoding != "utf-8" {
		t.Errorf("cell.csv encoding = %q, want utf-8", got[0].Encoding)
	}
	if got[1].Encoding != "windows-1252" {
		t.Errorf("latin.csv encoding = %q, want windows-1252", got[1].Encoding)
	}
	if got[2].Code != "FILE006" || got[2].Encoding != "" {
		t.Errorf("missing.csv = %+v, want FILE006", got[2])
	}

	entries, err := os.ReadDir(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("detect wrote files: %d entries in input dir", len(entries))
	}
}
