package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	detailSuffix = "_detail.csv"
	stepSuffix   = "_step.csv"
)

// SanitizeFileName reduces an uploaded name to a safe base name. Letters
// and digits in any script are kept so tester exports named in Chinese
// survive; whitespace becomes '_' and other characters are dropped.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}

	clean := strings.TrimLeft(b.String(), "._")
	if clean == "" {
		return "upload"
	}
	return clean
}

// ArtifactNames returns the detail and step table names for an upload.
// The stem is the sanitized name up to its first '.'.
func ArtifactNames(fileName string) (detail, step string) {
	stem := SanitizeFileName(fileName)
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	if stem == "" {
		stem = "upload"
	}
	return stem + detailSuffix, stem + stepSuffix
}

// hasAllowedExtension reports whether name ends in one of exts, ignoring case.
// An empty list allows everything.
func hasAllowedExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range exts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// Checksum fingerprints upload bytes.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// stemLocks is a set of mutexes keyed by artifact name. Entries are dropped
// once no goroutine holds or waits on them. The zero value is ready to use.
type stemLocks struct {
	mu    sync.Mutex
	locks map[string]*stemLock
}

type stemLock struct {
	sync.Mutex
	refs int
}

// lock blocks until key is free and returns the matching unlock.
func (l *stemLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*stemLock)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &stemLock{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
