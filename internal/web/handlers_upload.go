package web

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/cyclerconv/internal/core"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// uploadResponse is the JSON body of POST /upload.
type uploadResponse struct {
	Success        bool              `json:"success"`
	ProcessedFiles []core.FileResult `json:"processed_files"`
	Errors         []string          `json:"errors"`
	Failures       []core.FileError  `json:"failures"`
}

// handleUpload converts every file in the multipart form. Files are read
// from "files[]" and, for single-file clients, "file". One bad file never
// stops the rest; the response lists each outcome.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxRequestSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || core.MapError(err).Code == "FILE001" {
			s.respondError(w, r, core.ErrFileTooLarge)
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			s.respondNoFiles(w)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid upload form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploads := formUploads(r.MultipartForm)
	if len(uploads) == 0 {
		s.respondNoFiles(w)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Upload.Timeout)
	defer cancel()

	batch, err := s.service.ConvertBatch(ctx, uploads)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := uploadResponse{
		Success:        batch.Success(),
		ProcessedFiles: batch.Processed,
		Errors:         make([]string, 0, len(batch.Failed)),
		Failures:       batch.Failed,
	}
	for _, f := range batch.Failed {
		resp.Errors = append(resp.Errors, f.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) respondNoFiles(w http.ResponseWriter) {
	msg := core.MapError(core.ErrNoFiles)
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"message": msg.Message,
		"code":    msg.Code,
	})
}

// formUploads collects the named file parts, skipping empty file inputs.
func formUploads(form *multipart.Form) []core.Upload {
	var uploads []core.Upload
	for _, field := range []string{"files[]", "file"} {
		for _, fh := range form.File[field] {
			fh := fh
			if fh.Filename == "" {
				continue
			}
			uploads = append(uploads, core.Upload{
				Name: fh.Filename,
				Size: fh.Size,
				Open: func() (io.ReadCloser, error) { return fh.Open() },
			})
		}
	}
	return uploads
}
