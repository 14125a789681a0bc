package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "System Time,Step Time,V,I,T,R,P,mAh,Wh,Total Time,Step name\n" +
	"2024-01-01 00:00:00,00:00:00,3.6,2.5,25,0.012,9,0,0,00:00:00,CC-CV\n"

func save(t *testing.T, s *Store, name, content string) Artifact {
	t.Helper()
	a, err := s.Save(name, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	})
	require.NoError(t, err)
	return a
}

func readAll(t *testing.T, s *Store, name string) string {
	t.Helper()
	r, err := s.Open(name)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestStore_CodecRoundTrip(t *testing.T) {
	for _, c := range Codecs {
		t.Run(c.Name(), func(t *testing.T) {
			dir := t.TempDir()
			s, err := New(dir, c.Name())
			require.NoError(t, err)

			content := strings.Repeat(table, 200)
			a := save(t, s, "run_detail.csv", content)
			assert.Equal(t, "run_detail.csv", a.Name)
			assert.Equal(t, c.Name(), a.Codec)

			assert.Equal(t, content, readAll(t, s, "run_detail.csv"))

			_, err = os.Stat(filepath.Join(dir, "run_detail.csv"+c.Ext()))
			assert.NoError(t, err)
		})
	}
}

func TestStore_OpenAfterCodecChange(t *testing.T) {
	dir := t.TempDir()
	old, err := New(dir, "zstd")
	require.NoError(t, err)
	save(t, old, "a_step.csv", table)

	s, err := New(dir, "none")
	require.NoError(t, err)
	assert.Equal(t, table, readAll(t, s, "a_step.csv"))

	// Saving again under the new codec replaces the old variant.
	save(t, s, "a_step.csv", "x\n")
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "none", list[0].Codec)
}

func TestStore_InvalidNames(t *testing.T) {
	s, err := New(t.TempDir(), "none")
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../x.csv", "a/b.csv", `a\b.csv`, ".tmp-1"} {
		_, err := s.Open(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
		_, err = s.Save(name, func(io.Writer) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestStore_NotFound(t *testing.T) {
	s, err := New(t.TempDir(), "lz4")
	require.NoError(t, err)

	_, err = s.Open("missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_FailedFillLeavesNothing(t *testing.T) {
	s, err := New(t.TempDir(), "s2")
	require.NoError(t, err)

	_, err = s.Save("bad.csv", func(io.Writer) error { return io.ErrUnexpectedEOF })
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_ListClear(t *testing.T) {
	s, err := New(t.TempDir(), "lz4")
	require.NoError(t, err)

	save(t, s, "b_detail.csv", table)
	save(t, s, "a_detail.csv", table)
	save(t, s, "a_step.csv", table)

	list, err := s.List()
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, a := range list {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"a_detail.csv", "a_step.csv", "b_detail.csv"}, names)

	n, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_PurgeOlderThan(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "zstd")
	require.NoError(t, err)

	save(t, s, "old.csv", table)
	save(t, s, "new.csv", table)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.csv.zst"), past, past))

	n, err := s.PurgeOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new.csv", list[0].Name)
}

func TestStore_WriteZip(t *testing.T) {
	s, err := New(t.TempDir(), "s2")
	require.NoError(t, err)

	save(t, s, "run_detail.csv", table)
	save(t, s, "run_step.csv", "step\n")

	var buf bytes.Buffer
	n, err := s.WriteZip(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = string(b)
	}
	assert.Equal(t, table, got["run_detail.csv"])
	assert.Equal(t, "step\n", got["run_step.csv"])
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, ".zst", c.Ext())

	_, err = CodecByName("gzip")
	assert.Error(t, err)
}
