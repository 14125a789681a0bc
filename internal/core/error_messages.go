package core

// # Error Codes Reference
//
// Codes are quoted back to users so support can find the cause quickly.
//
// # Format Errors (FMT001-FMT099)
//
//	FMT001 - Format mismatch: file is not a cycler log
//	         Action: Export the test again as CSV from the tester software
//	         Matched by: dialect.ErrFormatMismatch
//
//	FMT002 - Coercion: every data row had an unreadable number or timestamp
//	         Action: Check the export settings for decimal separator and date format
//	         Matched by: dialect.ErrCoercion
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	          Action: Split the test log into smaller exports
//	          Matched by: ErrFileTooLarge, "request body too large"
//
//	FILE003 - Encoding error: no candidate encoding could decode the file
//	          Action: Save the file as UTF-8, Big5 or GBK
//	          Matched by: dialect.ErrDecode
//
//	FILE004 - No file selected
//	          Matched by: ErrNoFiles
//
//	FILE006 - Unreadable file
//	          Action: Upload the file again
//	          Matched by: dialect.ErrIO
//
//	FILE007 - Unsupported extension
//	          Action: Upload a .csv, .xls or .xlsx export
//	          Matched by: ErrUnsupportedExtension
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy: every conversion slot is in use
//	         Matched by: ErrTooManyConversions
//
//	UPL004 - Request cancelled
//	         Matched by: context.Canceled
//
//	UPL005 - Request timeout
//	         Matched by: context.DeadlineExceeded
//
// # Artifact Errors (ART001-ART099)
//
//	ART001 - Artifact not found
//	         Action: Convert the file again; old results are purged periodically
//	         Matched by: storage.ErrNotFound, storage.ErrInvalidName
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error. Check the application logs for the original error.
//
// Sentinel errors are checked with errors.Is first. Errors that lost their
// chain (for example from a remote history database) fall back to
// case-insensitive substring patterns. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/cyclerconv/internal/dialect"
	"github.com/JonMunkholm/cyclerconv/internal/storage"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFormatMismatch = UserMessage{
		Message: "The file is not in the expected cycler log format",
		Action:  "Export the test again as CSV from the tester software",
		Code:    "FMT001",
	}
	msgCoercion = UserMessage{
		Message: "No data row had readable numbers and timestamps",
		Action:  "Check the export settings for decimal separator and date format",
		Code:    "FMT002",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the test log into smaller exports",
		Code:    "FILE001",
	}
	msgEncoding = UserMessage{
		Message: "File contains characters in an unsupported encoding",
		Action:  "Save the file as UTF-8, Big5 or GBK",
		Code:    "FILE003",
	}
	msgNoFiles = UserMessage{
		Message: "No file was selected",
		Action:  "Please select at least one cycler log to upload",
		Code:    "FILE004",
	}
	msgUnreadable = UserMessage{
		Message: "The uploaded file could not be read",
		Action:  "Please upload the file again",
		Code:    "FILE006",
	}
	msgExtension = UserMessage{
		Message: "Not a supported file type",
		Action:  "Upload a .csv, .xls or .xlsx export",
		Code:    "FILE007",
	}
	msgBusy = UserMessage{
		Message: "System is busy converting other files",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try converting fewer files at once",
		Code:    "UPL005",
	}
	msgNotFound = UserMessage{
		Message: "The requested file does not exist",
		Action:  "Convert the file again; old results are purged periodically",
		Code:    "ART001",
	}
	msgDefault = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
)

// sentinels is checked in order with errors.Is.
var sentinels = []struct {
	err error
	msg UserMessage
}{
	{dialect.ErrCoercion, msgCoercion},
	{dialect.ErrFormatMismatch, msgFormatMismatch},
	{dialect.ErrDecode, msgEncoding},
	{ErrFileTooLarge, msgTooLarge},
	{dialect.ErrIO, msgUnreadable},
	{ErrUnsupportedExtension, msgExtension},
	{ErrNoFiles, msgNoFiles},
	{ErrTooManyConversions, msgBusy},
	{storage.ErrNotFound, msgNotFound},
	{storage.ErrInvalidName, msgNotFound},
	{context.DeadlineExceeded, msgTimeout},
	{context.Canceled, msgCancelled},
}

// errorPatterns is the fallback for errors without a usable chain.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"request body too large", msgTooLarge},
	{"file too large", msgTooLarge},
	{"too many conversions", msgBusy},
	{"context deadline exceeded", msgTimeout},
	{"context canceled", msgCancelled},
}

// MapError converts an error into a user-facing message.
// Returns an empty message for nil and the default message for unrecognized errors.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}

	return msgDefault
}

// UserError formats err for display: "message. action (code)".
func UserError(err error) string {
	m := MapError(err)
	return fmt.Sprintf("%s. %s (%s)", m.Message, m.Action, m.Code)
}
