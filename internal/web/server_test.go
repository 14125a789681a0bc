package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/cyclerconv/internal/config"
	"github.com/JonMunkholm/cyclerconv/internal/core"
	"github.com/JonMunkholm/cyclerconv/internal/storage"
)

const cyclerLog = "%,Time\r\n" +
	",,CC-CV,I=2.500,V=3.700\r\n" +
	"System Time,Step Time,V,I,T,R,P,mAh,Wh,Total Time\r\n" +
	"24/01/01 00:00:00,00:00:00,3.600,2.500,25.1,0.012,9.25,0.0,0.000,00:00:00\r\n" +
	"24/01/01 00:00:10,00:00:10,3.650,2.500,25.1,0.012,9.25,1.5,0.005,00:00:10\r\n" +
	"%,Time\r\n" +
	",,Rest,Time=00:10:00\r\n" +
	"24/01/01 00:00:20,00:00:00,3.640,0.000,25.0,0.000,0.00,0.0,0.000,00:00:20\r\n"

func newTestServer(t *testing.T, env map[string]string) *Server {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	env["STORAGE_DIR"] = t.TempDir()

	cfg, err := config.LoadFrom(config.MapLookup(env))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	store, err := storage.New(cfg.Storage.Dir, cfg.Storage.Codec)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	svc := core.NewService(store, core.NewMemoryHistory(20), core.NewConversionLimiter(2, time.Second), core.Options{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		PreviewRows:       cfg.Export.PreviewRows,
	})

	s := NewServer(svc, cfg)
	t.Cleanup(s.Close)
	return s
}

type part struct {
	field, name, body string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write([]byte(p.body)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Active    int    `json:"active_conversions"`
	}
	decode(t, rec, &body)
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", body.Timestamp, err)
	}
}

func TestUpload_PartialSuccess(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, multipartRequest(t,
		part{"files[]", "cell.csv", cyclerLog},
		part{"files[]", "notes.txt", "hello"},
		part{"files[]", "garbage.csv", "not a cycler log\n"},
	))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body uploadResponse
	decode(t, rec, &body)

	if !body.Success {
		t.Error("success = false, want true")
	}
	if len(body.ProcessedFiles) != 1 {
		t.Fatalf("processed = %d, want 1", len(body.ProcessedFiles))
	}
	got := body.ProcessedFiles[0]
	if got.DetailFile != "cell_detail.csv" || got.StepFile != "cell_step.csv" {
		t.Errorf("artifacts = %q, %q", got.DetailFile, got.StepFile)
	}
	if got.TotalRows != 3 || got.StepRows != 2 {
		t.Errorf("rows = %d, steps = %d", got.TotalRows, got.StepRows)
	}

	if len(body.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", body.Errors)
	}
	if !strings.HasPrefix(body.Errors[0], "notes.txt: ") {
		t.Errorf("errors[0] = %q", body.Errors[0])
	}
	if body.Failures[0].Code != "FILE007" {
		t.Errorf("notes.txt code = %q, want FILE007", body.Failures[0].Code)
	}
	if body.Failures[1].Code != "FMT001" {
		t.Errorf("garbage.csv code = %q, want FMT001", body.Failures[1].Code)
	}
}

func TestUpload_SingleFileField(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, multipartRequest(t, part{"file", "one.csv", cyclerLog}))

	var body uploadResponse
	decode(t, rec, &body)
	if !body.Success || len(body.ProcessedFiles) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestUpload_NoFiles(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"empty form", func() *http.Request { return multipartRequest(t) }},
		{"empty filename", func() *http.Request { return multipartRequest(t, part{"files[]", "", ""}) }},
		{"not multipart", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.req())
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body map[string]any
			decode(t, rec, &body)
			if body["success"] != false {
				t.Errorf("success = %v", body["success"])
			}
			if body["message"] == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestUpload_RequestTooLarge(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"UPLOAD_MAX_FILE_SIZE":    "64",
		"UPLOAD_MAX_REQUEST_SIZE": "1024",
	})
	rec := serve(s, multipartRequest(t, part{"files[]", "big.csv", strings.Repeat("x", 4096)}))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	var body ErrorResponse
	decode(t, rec, &body)
	if body.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", body.Code)
	}
}

func TestDownload(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, multipartRequest(t, part{"files[]", "cell.csv", cyclerLog}))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/download/cell_step.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename=cell_step.csv`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "System Time,Step Time,") {
		t.Errorf("body = %q", rec.Body.String())
	}

	missing := serve(s, httptest.NewRequest(http.MethodGet, "/download/nope.csv", nil))
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", missing.Code)
	}
	traversal := serve(s, httptest.NewRequest(http.MethodGet, "/download/..%2Fconfig.go", nil))
	if traversal.Code != http.StatusNotFound {
		t.Errorf("traversal status = %d, want 404", traversal.Code)
	}
}

func TestDownloadAll(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, multipartRequest(t, part{"files[]", "cell.csv", cyclerLog}))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/download_all", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, storage.BundleName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["cell_detail.csv"] || !names["cell_step.csv"] || len(names) != 2 {
		t.Errorf("zip entries = %v", names)
	}
}

func TestClear(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, multipartRequest(t, part{"files[]", "cell.csv", cyclerLog}))

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/clear", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /clear status = %d, want 405", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Removed int  `json:"removed"`
	}
	decode(t, rec, &body)
	if !body.Success || body.Removed != 2 {
		t.Errorf("body = %+v, want success with 2 removed", body)
	}

	var files struct {
		Count int `json:"count"`
	}
	decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/api/files", nil)), &files)
	if files.Count != 0 {
		t.Errorf("files after clear = %d", files.Count)
	}
}

func TestAPI_PreviewAndHistory(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, multipartRequest(t, part{"files[]", "cell.csv", cyclerLog}))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/preview/cell_detail.csv?rows=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body)
	}
	var p core.Preview
	decode(t, rec, &p)
	if len(p.Rows) != 1 || p.TotalRows != 3 || !p.Truncated {
		t.Errorf("preview rows = %d, total = %d, truncated = %v", len(p.Rows), p.TotalRows, p.Truncated)
	}
	if p.Rows[0].StepName != "CC-CV" {
		t.Errorf("step name = %q", p.Rows[0].StepName)
	}

	missing := serve(s, httptest.NewRequest(http.MethodGet, "/api/preview/nope.csv", nil))
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing preview status = %d", missing.Code)
	}
	var errBody ErrorResponse
	decode(t, missing, &errBody)
	if errBody.Code != "ART001" {
		t.Errorf("code = %q, want ART001", errBody.Code)
	}

	var h struct {
		History []core.HistoryEntry `json:"history"`
		Count   int                 `json:"count"`
	}
	decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)), &h)
	if h.Count != 1 || h.History[0].Status != core.StatusSucceeded {
		t.Errorf("history = %+v", h)
	}
	if h.History[0].IPAddress == "" {
		t.Error("history entry has no client IP")
	}
}

func TestAPI_RequiresKey(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"REQUIRE_API_KEY": "true",
		"API_KEYS":        "secret",
	})

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/files", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}
	if rec := serve(s, httptest.NewRequest(http.MethodPost, "/clear", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("clear without key status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := serve(s, req); rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want 200", rec.Code)
	}

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, multipartRequest(t, part{"files[]", "cell.csv", cyclerLog}))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`name="files[]"`, "/download/cell_step.csv", "/download_all", "cell.csv"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantCSP bool
	}{
		{"csp enabled", nil, true},
		{"csp disabled", map[string]string{"SECURITY_ENABLE_CSP": "false"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.env)
			rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing nosniff")
			}
			if got := rec.Header().Get("Content-Security-Policy") != ""; got != tt.wantCSP {
				t.Errorf("CSP present = %v, want %v", got, tt.wantCSP)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, map[string]string{"RATE_LIMIT_REQUESTS_PER_MINUTE": "2"})

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != want {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, want)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") {
		t.Fatal("first request denied")
	}
	if rl.allow("a") {
		t.Fatal("second request allowed within window")
	}
	if !rl.allow("b") {
		t.Fatal("other client denied")
	}

	now = now.Add(61 * time.Second)
	if !rl.allow("a") {
		t.Fatal("request denied after window reset")
	}

	now = now.Add(3 * time.Minute)
	rl.evict()
	if len(rl.visitors) != 0 {
		t.Errorf("visitors after evict = %d", len(rl.visitors))
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"FILE001", http.StatusRequestEntityTooLarge},
		{"ART001", http.StatusNotFound},
		{"UPL002", http.StatusServiceUnavailable},
		{"UPL005", http.StatusGatewayTimeout},
		{"FMT001", http.StatusBadRequest},
		{"FILE007", http.StatusBadRequest},
		{"ERR000", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForCode(tt.code); got != tt.want {
			t.Errorf("statusForCode(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
