package web

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/cyclerconv/internal/core"
	"github.com/JonMunkholm/cyclerconv/internal/logging"
	"github.com/JonMunkholm/cyclerconv/internal/storage"
	"github.com/JonMunkholm/cyclerconv/internal/web/templates"
)

const (
	indexHistoryRows  = 10
	defaultHistoryAPI = 50
	maxHistoryAPI     = 500
)

// handleIndex renders the upload page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	data := templates.IndexData{
		MaxFileSize: s.cfg.Upload.MaxFileSize,
		Extensions:  s.cfg.Upload.AllowedExtensions,
	}

	files, err := s.service.Files()
	if err != nil {
		log.Error("list artifacts", "error", err)
	}
	for _, f := range files {
		data.Files = append(data.Files, templates.FileRow{Name: f.Name, Size: f.Size, Modified: f.ModTime})
	}

	history, err := s.service.History(r.Context(), indexHistoryRows)
	if err != nil {
		log.Error("load history", "error", err)
	}
	for _, h := range history {
		row := templates.HistoryRow{
			FileName:  h.FileName,
			Succeeded: h.Status == core.StatusSucceeded,
			When:      h.CreatedAt,
		}
		if row.Succeeded {
			row.Detail = strconv.Itoa(h.TotalRows) + " rows, " + strconv.Itoa(h.StepRows) + " steps"
		} else {
			row.Detail = h.ErrorCode
		}
		data.History = append(data.History, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(data).Render(r.Context(), w); err != nil {
		log.Error("render index", "error", err)
	}
}

// handleDownload streams one artifact, decompressed, as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "filename")

	rc, err := s.service.OpenArtifact(name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(name))
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Error("stream artifact", "file", name, "error", err)
	}
}

// handleDownloadAll sends every artifact as one zip archive.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.service.WriteBundle(&buf)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(storage.BundleName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Error("write bundle", "files", n, "error", err)
	}
}

// handleClear removes every stored artifact.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Clear(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Files cleared",
		"removed": n,
	})
}

// handleHealth reports liveness and conversion load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	limiter := s.service.Limiter()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"active_conversions": limiter.ActiveCount(),
		"limiter":            limiter.Status(),
	})
}

// handleListFiles returns the stored artifacts.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.Files()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if files == nil {
		files = []storage.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

// handlePreview returns the first rows of a stored table. ?rows= overrides
// the configured row count.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.Preview(urlParam(r, "filename"), parseIntParam(r, "rows", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleHistory returns recent conversions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", defaultHistoryAPI), maxHistoryAPI)

	entries, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries, "count": len(entries)})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// urlParam returns a decoded chi path parameter.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func attachment(name string) string {
	v := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if v == "" {
		slog.Warn("content disposition fallback", "file", name)
		return "attachment"
	}
	return v
}
