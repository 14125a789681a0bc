// Package storage keeps converted tables on disk, optionally compressed,
// and bundles them for download.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no artifact has the requested name.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidName is returned for names that are not a plain file name.
	ErrInvalidName = errors.New("invalid artifact name")
)

const tempPrefix = ".tmp-"

// Artifact describes one stored table.
type Artifact struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Codec   string    `json:"codec"`
	ModTime time.Time `json:"modified"`
}

// Store is a directory of artifacts. Names are logical: the codec
// extension on disk is never exposed to callers.
type Store struct {
	dir   string
	codec Codec

	mu sync.RWMutex
}

// New opens the store rooted at dir, creating it if needed.
func New(dir, codecName string) (*Store, error) {
	codec, err := CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir, codec: codec}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Codec returns the codec used for new artifacts.
func (s *Store) Codec() Codec { return s.codec }

// ValidName reports whether name can be used as an artifact name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, tempPrefix) {
		return false
	}
	return filepath.Base(name) == name
}

// Save writes an artifact through fill. The artifact becomes visible only
// once fill and compression succeed; a stored artifact with the same name is
// replaced.
func (s *Store) Save(name string, fill func(w io.Writer) error) (Artifact, error) {
	if !ValidName(name) {
		return Artifact{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return Artifact{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := s.write(tmp, fill); err != nil {
		tmp.Close()
		return Artifact{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Artifact{}, fmt.Errorf("close %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeVariants(name)
	path := filepath.Join(s.dir, name+s.codec.Ext())
	if err := os.Rename(tmpName, path); err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return Artifact{Name: name, Size: info.Size(), Codec: s.codec.Name(), ModTime: info.ModTime()}, nil
}

func (s *Store) write(f *os.File, fill func(io.Writer) error) error {
	cw, err := s.codec.NewWriter(f)
	if err != nil {
		return err
	}
	if err := fill(cw); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

// Open returns a reader over the decompressed artifact.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path, codec, err := s.locate(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	r, err := codec.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &artifactReader{ReadCloser: r, file: f}, nil
}

type artifactReader struct {
	io.ReadCloser
	file *os.File
}

func (r *artifactReader) Close() error {
	err := r.ReadCloser.Close()
	if ferr := r.file.Close(); err == nil {
		err = ferr
	}
	return err
}

// locate finds the file holding name under any codec, so artifacts survive
// a codec change in configuration. Caller holds s.mu.
func (s *Store) locate(name string) (string, Codec, error) {
	for _, c := range Codecs {
		path := filepath.Join(s.dir, name+c.Ext())
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, c, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// removeVariants deletes name under every codec. Caller holds s.mu.
func (s *Store) removeVariants(name string) int {
	removed := 0
	for _, c := range Codecs {
		err := os.Remove(filepath.Join(s.dir, name+c.Ext()))
		if err == nil {
			removed++
		} else if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("storage: remove failed", "name", name, "codec", c.Name(), "error", err)
		}
	}
	return removed
}

// List returns every artifact sorted by name.
func (s *Store) List() ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list()
}

func (s *Store) list() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		name, codec := splitCodec(e.Name())
		artifacts = append(artifacts, Artifact{
			Name:    name,
			Size:    info.Size(),
			Codec:   codec.Name(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

func splitCodec(file string) (string, Codec) {
	for _, c := range Codecs {
		if ext := c.Ext(); ext != "" && strings.HasSuffix(file, ext) {
			return strings.TrimSuffix(file, ext), c
		}
	}
	return file, noneCodec{}
}

// Clear deletes every artifact and returns how many were removed.
func (s *Store) Clear() (int, error) {
	return s.purge(func(Artifact) bool { return true })
}

// PurgeOlderThan deletes artifacts last modified before cutoff.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int, error) {
	return s.purge(func(a Artifact) bool { return a.ModTime.Before(cutoff) })
}

func (s *Store) purge(match func(Artifact) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts, err := s.list()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, a := range artifacts {
		if !match(a) {
			continue
		}
		path := filepath.Join(s.dir, a.Name+codecExt(a.Codec))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", a.Name, err)
		}
		removed++
	}
	return removed, nil
}

func codecExt(name string) string {
	c, err := CodecByName(name)
	if err != nil {
		return ""
	}
	return c.Ext()
}
