package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var (
	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedExtension is returned for names outside the allowed extensions.
	ErrUnsupportedExtension = errors.New("unsupported file type")

	// ErrNoFiles is returned when a batch holds no files.
	ErrNoFiles = errors.New("no file provided")
)

// Upload is one file submitted for conversion.
type Upload struct {
	Name string
	Size int64 // -1 when unknown
	Open func() (io.ReadCloser, error)
}

// FileResult describes one successfully converted file.
type FileResult struct {
	ID          string `json:"id"`
	Original    string `json:"original"`
	DetailFile  string `json:"detail_file"`
	StepFile    string `json:"step_file"`
	Message     string `json:"message"`
	TotalRows   int    `json:"total_rows"`
	StepRows    int    `json:"step_rows"`
	DroppedRows int    `json:"dropped_rows"`
	Encoding    string `json:"encoding"`
	Checksum    string `json:"checksum"`
	DurationMS  int64  `json:"duration_ms"`
}

// FileError describes one file that could not be converted.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
	Err     error  `json:"-"`
}

// String renders the error as "file: message".
func (e FileError) String() string {
	return e.File + ": " + e.Message
}

// BatchResult collects per-file outcomes in submission order.
type BatchResult struct {
	Processed []FileResult
	Failed    []FileError
}

// Success reports whether at least one file converted.
func (b *BatchResult) Success() bool {
	return len(b.Processed) > 0
}

// ConversionStatus is the outcome recorded in the history.
type ConversionStatus string

const (
	StatusSucceeded ConversionStatus = "succeeded"
	StatusFailed    ConversionStatus = "failed"
)

// HistoryEntry is one recorded conversion attempt.
type HistoryEntry struct {
	ID          string           `json:"id"`
	FileName    string           `json:"file_name"`
	Status      ConversionStatus `json:"status"`
	ErrorCode   string           `json:"error_code,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	TotalRows   int              `json:"total_rows"`
	StepRows    int              `json:"step_rows"`
	DroppedRows int              `json:"dropped_rows"`
	Encoding    string           `json:"encoding,omitempty"`
	Checksum    string           `json:"checksum,omitempty"`
	SizeBytes   int64            `json:"size_bytes"`
	IPAddress   string           `json:"ip_address,omitempty"`
	UserAgent   string           `json:"user_agent,omitempty"`
	DurationMS  int64            `json:"duration_ms"`
	CreatedAt   time.Time        `json:"created_at"`
}
