package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/cyclerconv/internal/dialect"
	"github.com/JonMunkholm/cyclerconv/internal/logging"
	"github.com/JonMunkholm/cyclerconv/internal/storage"
)

// Options tunes a Service.
type Options struct {
	// AllowedExtensions lists accepted upload suffixes. Empty allows all.
	AllowedExtensions []string

	// MaxFileSize caps one upload in bytes. Zero disables the check.
	MaxFileSize int64

	// BOM prefixes exported tables with a UTF-8 byte order mark.
	BOM bool

	// BatchParallelism bounds concurrent conversions within one batch.
	BatchParallelism int

	// PreviewRows is the default row count for Preview.
	PreviewRows int
}

// Service converts cycler logs and manages the resulting artifacts.
type Service struct {
	store   *storage.Store
	history HistoryStore
	limiter *ConversionLimiter
	opts    Options

	// pairs serializes the detail and step saves of uploads sharing a stem.
	pairs stemLocks

	now func() time.Time
}

// NewService wires a service. A nil history falls back to memory and a nil
// limiter to one sized by opts.BatchParallelism.
func NewService(store *storage.Store, history HistoryStore, limiter *ConversionLimiter, opts Options) *Service {
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryCapacity)
	}
	if opts.BatchParallelism <= 0 {
		opts.BatchParallelism = DefaultMaxConcurrentConversions
	}
	if limiter == nil {
		limiter = NewConversionLimiter(opts.BatchParallelism, DefaultMaxWaitTime)
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 20
	}
	return &Service{
		store:   store,
		history: history,
		limiter: limiter,
		opts:    opts,
		now:     time.Now,
	}
}

// Limiter exposes the conversion limiter for health reporting and shutdown.
func (s *Service) Limiter() *ConversionLimiter { return s.limiter }

// Convert parses one uploaded file and stores its detail and step tables.
// The attempt is recorded in the history whether or not it succeeds.
func (s *Service) Convert(ctx context.Context, fileName string, r io.Reader) (*FileResult, error) {
	id := uuid.NewString()
	log := logging.WithFields(ctx, "conversion_id", id, "file", fileName)
	start := s.now()

	entry := HistoryEntry{
		ID:        id,
		FileName:  fileName,
		IPAddress: IPAddressFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		CreatedAt: start,
	}

	res, err := s.convert(ctx, id, fileName, r, &entry)
	entry.DurationMS = s.now().Sub(start).Milliseconds()

	if err != nil {
		msg := MapError(err)
		entry.Status = StatusFailed
		entry.ErrorCode = msg.Code
		entry.ErrorDetail = err.Error()
		log.Warn("conversion failed", "code", msg.Code, "error", err)
	} else {
		entry.Status = StatusSucceeded
		res.DurationMS = entry.DurationMS
		log.Info("conversion completed",
			"rows", res.TotalRows,
			"steps", res.StepRows,
			"dropped", res.DroppedRows,
			"encoding", res.Encoding,
			"duration_ms", res.DurationMS,
		)
	}

	if herr := s.history.Record(context.WithoutCancel(ctx), entry); herr != nil {
		log.Error("record conversion history", "error", herr)
	}

	return res, err
}

func (s *Service) convert(ctx context.Context, id, fileName string, r io.Reader, entry *HistoryEntry) (*FileResult, error) {
	if !hasAllowedExtension(fileName, s.opts.AllowedExtensions) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, fileName)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	data, err := s.readUpload(r)
	entry.SizeBytes = int64(len(data))
	if err != nil {
		return nil, err
	}
	checksum := Checksum(data)
	entry.Checksum = checksum

	parsed, err := dialect.Parse(data)
	if err != nil {
		return nil, err
	}
	entry.Encoding = parsed.Encoding
	entry.TotalRows = len(parsed.Detail)
	entry.StepRows = len(parsed.Steps)
	entry.DroppedRows = parsed.Dropped

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detailName, stepName := ArtifactNames(fileName)
	if err := s.savePair(detailName, stepName, parsed); err != nil {
		return nil, err
	}

	return &FileResult{
		ID:          id,
		Original:    SanitizeFileName(fileName),
		DetailFile:  detailName,
		StepFile:    stepName,
		Message:     fmt.Sprintf("Processed %d rows, produced %d step records", len(parsed.Detail), len(parsed.Steps)),
		TotalRows:   len(parsed.Detail),
		StepRows:    len(parsed.Steps),
		DroppedRows: parsed.Dropped,
		Encoding:    parsed.Encoding,
		Checksum:    checksum,
	}, nil
}

// savePair writes both tables while holding the stem lock, so a concurrent
// upload with the same stem never leaves one file from each.
func (s *Service) savePair(detailName, stepName string, parsed *dialect.Result) error {
	unlock := s.pairs.lock(detailName)
	defer unlock()

	if err := s.saveTable(detailName, parsed.Detail); err != nil {
		return err
	}
	return s.saveTable(stepName, parsed.Steps)
}

// readUpload reads the whole upload, enforcing MaxFileSize.
func (s *Service) readUpload(r io.Reader) ([]byte, error) {
	if s.opts.MaxFileSize > 0 {
		r = io.LimitReader(r, s.opts.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return data, fmt.Errorf("%w: %w", dialect.ErrIO, err)
	}
	if s.opts.MaxFileSize > 0 && int64(len(data)) > s.opts.MaxFileSize {
		return data[:s.opts.MaxFileSize], fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.opts.MaxFileSize)
	}
	return data, nil
}

func (s *Service) saveTable(name string, records []dialect.Record) error {
	_, err := s.store.Save(name, func(w io.Writer) error {
		return dialect.WriteTable(w, records, dialect.ExportOptions{BOM: s.opts.BOM})
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// ConvertBatch converts every upload with bounded parallelism. A failing
// file never stops the others; results keep submission order.
func (s *Service) ConvertBatch(ctx context.Context, uploads []Upload) (*BatchResult, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}

	type outcome struct {
		res *FileResult
		err error
	}
	outcomes := make([]outcome, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.opts.BatchParallelism)

	for i, up := range uploads {
		i, up := i, up
		g.Go(func() error {
			res, err := s.convertUpload(ctx, up)
			outcomes[i] = outcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{
		Processed: make([]FileResult, 0, len(uploads)),
		Failed:    make([]FileError, 0),
	}
	for i, o := range outcomes {
		if o.err != nil {
			msg := MapError(o.err)
			batch.Failed = append(batch.Failed, FileError{
				File:    uploads[i].Name,
				Message: msg.Message,
				Action:  msg.Action,
				Code:    msg.Code,
				Err:     o.err,
			})
			continue
		}
		batch.Processed = append(batch.Processed, *o.res)
	}

	slog.Debug("batch converted",
		"files", len(uploads),
		"succeeded", len(batch.Processed),
		"failed", len(batch.Failed),
	)
	return batch, nil
}

func (s *Service) convertUpload(ctx context.Context, up Upload) (*FileResult, error) {
	if s.opts.MaxFileSize > 0 && up.Size > s.opts.MaxFileSize {
		// Record the rejection without reading the body.
		return s.Convert(ctx, up.Name, errReader{fmt.Errorf("%w: %d bytes", ErrFileTooLarge, up.Size)})
	}

	rc, err := up.Open()
	if err != nil {
		return s.Convert(ctx, up.Name, errReader{err})
	}
	defer rc.Close()
	return s.Convert(ctx, up.Name, rc)
}

// errReader fails every read with err.
type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// Files lists stored artifacts.
func (s *Service) Files() ([]storage.Artifact, error) {
	return s.store.List()
}

// OpenArtifact opens a stored table for download.
func (s *Service) OpenArtifact(name string) (io.ReadCloser, error) {
	return s.store.Open(name)
}

// WriteBundle zips every artifact to w.
func (s *Service) WriteBundle(w io.Writer) (int, error) {
	return s.store.WriteZip(w)
}

// Clear removes every artifact.
func (s *Service) Clear(ctx context.Context) (int, error) {
	n, err := s.store.Clear()
	if err != nil {
		return n, fmt.Errorf("clear artifacts: %w", err)
	}
	logging.FromContext(ctx).Info("artifacts cleared", "removed", n)
	return n, nil
}

// Preview is the head of one stored table.
type Preview struct {
	Name      string           `json:"name"`
	Columns   []string         `json:"columns"`
	Rows      []dialect.Record `json:"rows"`
	TotalRows int              `json:"total_rows"`
	Truncated bool             `json:"truncated"`
}

// Preview reads a stored table and returns its first limit rows. A
// non-positive limit uses the configured default.
func (s *Service) Preview(name string, limit int) (*Preview, error) {
	if limit <= 0 {
		limit = s.opts.PreviewRows
	}

	rc, err := s.store.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := dialect.ReadTable(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	p := &Preview{Name: name, Columns: dialect.Columns, TotalRows: len(records)}
	if len(records) > limit {
		records = records[:limit]
		p.Truncated = true
	}
	p.Rows = records
	return p, nil
}

// History returns the most recent conversions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return s.history.Recent(ctx, limit)
}

// Cleanup removes artifacts and history older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (artifacts int, entries int64, err error) {
	cutoff := s.now().Add(-retention)

	artifacts, aerr := s.store.PurgeOlderThan(cutoff)
	entries, herr := s.history.PurgeOlderThan(ctx, cutoff)
	return artifacts, entries, errors.Join(aerr, herr)
}

