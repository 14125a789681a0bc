package dialect

import "errors"

// Error kinds returned by the parser. Callers branch on them with errors.Is;
// the wrapped message carries the detail.
var (
	// ErrFormatMismatch means the text could not be read as the cycler's log
	// layout: no data rows were recognised or a line could not be read.
	ErrFormatMismatch = errors.New("file is not in the expected cycler log format, please check the selected file")

	// ErrDecode means no decoder could turn the raw bytes into text.
	ErrDecode = errors.New("encoding error")

	// ErrIO means the source could not be opened or read.
	ErrIO = errors.New("read file")

	// ErrCoercion means data rows were recognised but none survived type coercion.
	ErrCoercion = errors.New("invalid number or timestamp in every data row")
)
