package dialect

// sanitize.go holds the readers behind ReplacementFallback: a BOM skipper and
// a UTF-8 repairer that swaps invalid bytes for '?' without growing the data.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

// bomSkippingReader drops a leading UTF-8 byte order mark.
type bomSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{br: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if head, err := r.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// replacingReader rewrites invalid UTF-8 as '?'. A multi-byte sequence split
// across two reads is held back until the next read completes it.
type replacingReader struct {
	r       io.Reader
	pending []byte
}

func newReplacingReader(r io.Reader) *replacingReader {
	return &replacingReader{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *replacingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	return s.repair(p[:n], err == io.EOF), err
}

// repair fixes data in place and returns the length of the usable prefix.
// Unless atEOF, a truncated trailing sequence moves to pending.
func (s *replacingReader) repair(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if data[read] < utf8.RuneSelf {
			data[write] = data[read]
			write++
			read++
			continue
		}
		if !atEOF && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}
