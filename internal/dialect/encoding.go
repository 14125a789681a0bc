package dialect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding is a text decoding strategy chosen for one file.
type Encoding struct {
	Name string

	enc encoding.Encoding // nil for the replacement fallback
}

// ReplacementFallback decodes as UTF-8 and replaces undecodable bytes with '?'.
// It never fails on well-formed input streams.
var ReplacementFallback = Encoding{Name: "utf-8 (replaced)"}

// candidates are tried in order; the first one that decodes cleanly wins.
var candidates = []Encoding{
	{Name: "utf-8", enc: unicode.UTF8BOM},
	{Name: "big5", enc: traditionalchinese.Big5},
	{Name: "gbk", enc: simplifiedchinese.GBK},
	{Name: "windows-1252", enc: charmap.Windows1252},
}

// gbFirst swaps big5 and gbk for input that looks like GB2312. Most GBK
// text also decodes as Big5 without error, so order alone would misread it.
var gbFirst = []Encoding{candidates[0], candidates[2], candidates[1], candidates[3]}

// minGB2312Pairs is how many double-byte pairs must be seen before the
// GB2312 shape is trusted.
const minGB2312Pairs = 2

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Candidates returns the names of the encodings Resolve tries, in order.
func Candidates() []string {
	names := make([]string, 0, len(candidates)+1)
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return append(names, ReplacementFallback.Name)
}

// Decode converts raw bytes to text using this encoding.
func (e Encoding) Decode(data []byte) (string, error) {
	out, err := io.ReadAll(e.NewReader(bytes.NewReader(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrDecode, e.Name, err)
	}
	return string(out), nil
}

// NewReader wraps r so that reads yield UTF-8 text.
func (e Encoding) NewReader(r io.Reader) io.Reader {
	if e.enc == nil {
		return newReplacingReader(newBOMSkippingReader(r))
	}
	return transform.NewReader(r, e.enc.NewDecoder())
}

// Resolve picks the first candidate encoding that decodes data without
// producing replacement characters, falling back to ReplacementFallback.
func Resolve(data []byte) (Encoding, error) {
	enc, _, err := decodeTrial(data)
	return enc, err
}

// ResolveFile reads path and resolves its encoding. Failing to open or read
// the file is reported as ErrIO.
func ResolveFile(path string) (Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Encoding{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return Resolve(data)
}

// decodeTrial runs the candidate list and returns the winning encoding along
// with the decoded text.
func decodeTrial(data []byte) (Encoding, string, error) {
	order := candidates
	if gb2312Shaped(data) {
		order = gbFirst
	}
	for _, c := range order {
		if c.Name == "utf-8" {
			// Valid UTF-8 may legitimately contain U+FFFD, so check validity
			// on the raw bytes instead of scanning the output.
			if !utf8.Valid(bytes.TrimPrefix(data, utf8BOM)) {
				continue
			}
		}
		out, _, err := transform.Bytes(c.enc.NewDecoder(), data)
		if err != nil {
			continue
		}
		if c.Name != "utf-8" && bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return c, string(out), nil
	}

	text, err := ReplacementFallback.Decode(data)
	if err != nil {
		return Encoding{}, "", err
	}
	return ReplacementFallback, text, nil
}

// gb2312Shaped reports whether every non-ASCII byte in data pairs up as a
// GB2312 code: lead in the symbol rows 0xA1-0xA9 or the hanzi rows
// 0xB0-0xF7, trail in 0xA1-0xFE. Big5 trails below 0xA1 fail the check.
func gb2312Shaped(data []byte) bool {
	pairs := 0
	for i := 0; i < len(data); i++ {
		lead := data[i]
		if lead < 0x80 {
			continue
		}
		if i+1 >= len(data) {
			return false
		}
		trail := data[i+1]
		if !(lead >= 0xA1 && lead <= 0xA9 || lead >= 0xB0 && lead <= 0xF7) || trail < 0xA1 || trail == 0xFF {
			return false
		}
		pairs++
		i++
	}
	return pairs >= minGB2312Pairs
}
