// Command cyclerconv converts battery cycler logs into detail and step tables
// on the local disk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/JonMunkholm/cyclerconv/internal/core"
	"github.com/JonMunkholm/cyclerconv/internal/dialect"
	"github.com/JonMunkholm/cyclerconv/internal/logging"
	"github.com/JonMunkholm/cyclerconv/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	out      string
	codec    string
	bom      bool
	json     bool
	detect   bool
	parallel int
	logLevel string
}

// run executes the command and returns the process exit code: 0 when every
// file converted, 1 when any failed, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("cyclerconv", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: cyclerconv [options] FILE...\n\n")
		fmt.Fprintf(stderr, "Converts battery cycler CSV logs into <name>_detail.csv and <name>_step.csv.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  cyclerconv cell01.csv              # write tables to ./processed\n")
		fmt.Fprintf(stderr, "  cyclerconv -o out --bom *.csv      # Excel-friendly tables in ./out\n")
		fmt.Fprintf(stderr, "  cyclerconv --json cell01.csv       # machine-readable summary\n")
		fmt.Fprintf(stderr, "  cyclerconv --detect logs/*.csv     # show which encoding each file uses\n")
	}

	var opts options
	fs.StringVarP(&opts.out, "out", "o", "processed", "Directory for the converted tables")
	fs.StringVar(&opts.codec, "codec", "none", "Compress tables at rest: none, lz4, zstd, s2")
	fs.BoolVar(&opts.bom, "bom", false, "Prefix tables with a UTF-8 byte order mark")
	fs.BoolVarP(&opts.json, "json", "j", false, "Print the summary as JSON")
	fs.BoolVar(&opts.detect, "detect", false,
		"Only report each file's text encoding, trying "+strings.Join(dialect.Candidates(), ", "))
	fs.IntVarP(&opts.parallel, "parallel", "p", core.DefaultMaxConcurrentConversions, "Files converted at once")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	help := fs.BoolP("help", "h", false, "Show this help message")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		fs.Usage()
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logging.SetupWriter(stderr, opts.logLevel, "text")

	if opts.detect {
		return detectEncodings(fs.Args(), opts.json, stdout, stderr)
	}

	store, err := storage.New(opts.out, opts.codec)
	if err != nil {
		fmt.Fprintf(stderr, "cyclerconv: %v\n", err)
		return 2
	}

	service := core.NewService(store, nil, nil, core.Options{
		BOM:              opts.bom,
		BatchParallelism: opts.parallel,
	})

	batch, err := service.ConvertBatch(ctx, localUploads(fs.Args()))
	if err != nil {
		fmt.Fprintf(stderr, "cyclerconv: %s\n", core.UserError(err))
		return 1
	}

	if opts.json {
		err = writeJSONSummary(stdout, batch)
	} else {
		err = writeSummary(stdout, store.Dir(), batch)
	}
	if err != nil {
		fmt.Fprintf(stderr, "cyclerconv: %v\n", err)
		return 1
	}

	if len(batch.Failed) > 0 {
		return 1
	}
	return 0
}

// localUploads turns paths into uploads named after their base name.
func localUploads(paths []string) []core.Upload {
	uploads := make([]core.Upload, 0, len(paths))
	for _, p := range paths {
		p := p
		size := int64(-1)
		if fi, err := os.Stat(p); err == nil {
			size = fi.Size()
		}
		uploads = append(uploads, core.Upload{
			Name: filepath.Base(p),
			Size: size,
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return uploads
}

// detection is the --detect result for one file.
type detection struct {
	File     string `json:"file"`
	Encoding string `json:"encoding,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

// detectEncodings resolves the encoding of every path without converting.
func detectEncodings(paths []string, asJSON bool, stdout, stderr io.Writer) int {
	results := make([]detection, 0, len(paths))
	code := 0
	for _, p := range paths {
		d := detection{File: p}
		enc, err := dialect.ResolveFile(p)
		if err != nil {
			msg := core.MapError(err)
			d.Error, d.Code = msg.Message, msg.Code
			code = 1
		} else {
			d.Encoding = enc.Name
		}
		results = append(results, d)
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(stderr, "cyclerconv: %v\n", err)
			return 1
		}
		return code
	}

	p := &linePrinter{w: stdout}
	for _, d := range results {
		if d.Error != "" {
			p.println(fmt.Sprintf("%s: %s (%s)", d.File, d.Error, d.Code))
			continue
		}
		p.println(d.File + ": " + d.Encoding)
	}
	if p.err != nil {
		fmt.Fprintf(stderr, "cyclerconv: %v\n", p.err)
		return 1
	}
	return code
}

type jsonSummary struct {
	Success        bool              `json:"success"`
	ProcessedFiles []core.FileResult `json:"processed_files"`
	Errors         []core.FileError  `json:"errors"`
}

func writeJSONSummary(w io.Writer, batch *core.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonSummary{
		Success:        batch.Success(),
		ProcessedFiles: batch.Processed,
		Errors:         batch.Failed,
	})
}

func writeSummary(w io.Writer, dir string, batch *core.BatchResult) error {
	r := lipgloss.NewRenderer(w)
	var (
		titleStyle = r.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
		okStyle    = r.NewStyle().Foreground(lipgloss.Color("42"))
		errStyle   = r.NewStyle().Foreground(lipgloss.Color("196"))
		dimStyle   = r.NewStyle().Foreground(lipgloss.Color("240"))
	)

	p := &linePrinter{w: w}
	p.println(titleStyle.Render(fmt.Sprintf("Converted %d of %d files", len(batch.Processed), len(batch.Processed)+len(batch.Failed))))
	for _, f := range batch.Processed {
		p.println(okStyle.Render("✓ "+f.Original) + " " + f.Message)
		p.println(dimStyle.Render(fmt.Sprintf("    %s, %s (%s, %d dropped)",
			filepath.Join(dir, f.DetailFile), filepath.Join(dir, f.StepFile), f.Encoding, f.DroppedRows)))
	}
	for _, f := range batch.Failed {
		p.println(errStyle.Render("✗ "+f.File) + " " + f.Message)
		p.println(dimStyle.Render(fmt.Sprintf("    %s (%s)", f.Action, f.Code)))
	}
	return p.err
}

type linePrinter struct {
	w   io.Writer
	err error
}

func (p *linePrinter) println(s string) {
	if p.err == nil {
		_, p.err = fmt.Fprintln(p.w, s)
	}
}
