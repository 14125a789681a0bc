// Package core converts uploaded cycler logs into detail and step tables
// and manages what the conversions leave behind.
//
// It has no HTTP or terminal dependencies; the web server and the CLI both
// drive it through [Service].
//
// # Conversion
//
// [Service.Convert] handles one file:
//
//  1. The extension is checked against [Options.AllowedExtensions].
//  2. A slot is taken from the [ConversionLimiter], shared by all requests.
//  3. The body is read up to [Options.MaxFileSize] and fingerprinted with xxhash.
//  4. The dialect package decodes and parses it.
//  5. The detail and step tables are written to the artifact store as
//     <stem>_detail.csv and <stem>_step.csv.
//  6. The attempt is appended to the [HistoryStore].
//
// [Service.ConvertBatch] runs several conversions with bounded parallelism.
// Each file succeeds or fails on its own.
//
// # Error Handling
//
// Errors keep their sentinel chain (dialect.ErrFormatMismatch, ErrFileTooLarge
// and so on). [MapError] turns them into a [UserMessage] with a support code:
//
//   - FMT001-FMT002: the file is not a usable cycler log
//   - FILE001-FILE007: size, encoding, readability and file type problems
//   - UPL002-UPL005: busy, cancelled or timed out
//   - ART001: artifact not found
//
// # History
//
// With DATABASE_URL set, history goes to Postgres through [PgHistory];
// otherwise [MemoryHistory] keeps the most recent entries. The cleanup
// scheduler purges both artifacts and history past the retention window.
package core
