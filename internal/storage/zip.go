package storage

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// BundleName is the file name offered for the zip of all artifacts.
const BundleName = "battery_test_results.zip"

// WriteZip streams every artifact, decompressed, into a zip archive on w.
// It returns the number of entries written.
func (s *Store) WriteZip(w io.Writer) (int, error) {
	artifacts, err := s.List()
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	for i, a := range artifacts {
		if err := s.addToZip(zw, a); err != nil {
			zw.Close()
			return i, err
		}
	}
	if err := zw.Close(); err != nil {
		return len(artifacts), fmt.Errorf("finish zip: %w", err)
	}
	return len(artifacts), nil
}

func (s *Store) addToZip(zw *zip.Writer, a Artifact) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     a.Name,
		Method:   zip.Deflate,
		Modified: a.ModTime,
	})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", a.Name, err)
	}

	r, err := s.Open(a.Name)
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("zip copy %s: %w", a.Name, err)
	}
	return nil
}
