// Package httpapi serves report uploads, history and artifact downloads.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joelkehle/ddr-generator/internal/extract"
	"github.com/joelkehle/ddr-generator/internal/generator"
	"github.com/joelkehle/ddr-generator/internal/render"
	"github.com/joelkehle/ddr-generator/internal/store"
)

const maxUploadBytes = 2*extract.MaxFileBytes + 1<<20

type ReportGenerator interface {
	Generate(ctx context.Context, req generator.Request) (generator.Envelope, error)
}

type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (store.Run, error)
}

type Options struct {
	Generator        ReportGenerator
	History          RunHistory
	Artifacts        *store.ArtifactStore
	PDF              render.PDFRenderer
	Logger           *zap.Logger
	WebDir           string
	UploadDir        string
	UploadsPerMinute int
	HistoryLimit     int
}

type Server struct {
	generator    ReportGenerator
	history      RunHistory
	artifacts    *store.ArtifactStore
	pdf          render.PDFRenderer
	logger       *zap.Logger
	webDir       string
	uploadDir    string
	historyLimit int
	limiter      *rate.Limiter
}

func NewServer(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.UploadsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.UploadsPerMinute)), opts.UploadsPerMinute)
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 50
	}
	s := &Server{
		generator:    opts.Generator,
		history:      opts.History,
		artifacts:    opts.Artifacts,
		pdf:          opts.PDF,
		logger:       logger.Named("httpapi"),
		webDir:       opts.WebDir,
		uploadDir:    opts.UploadDir,
		historyLimit: historyLimit,
		limiter:      limiter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/download/", s.handleDownload)
	mux.HandleFunc("/api/processing-trace", s.handleProcessingTrace)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

// statusFor maps generator and extraction errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case generator.StageNameFromError(err) == generator.StageExtract:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if s.webDir == "" {
		http.NotFound(w, r)
		return
	}
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		http.ServeFile(w, r, filepath.Join(s.webDir, "index.html"))
		return
	}
	rel := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	if _, err := fs.Stat(os.DirFS(s.webDir), rel); err == nil {
		http.ServeFile(w, r, filepath.Join(s.webDir, rel))
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (s *Server) handleProcessingTrace(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{"trace": generator.ProcessingTrace()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many uploads, try again shortly")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, 400, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	batch := uuid.NewString()
	inspectionPath, status, err := s.saveUpload(r, "inspection", batch)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	thermalPath, status, err := s.saveUpload(r, "thermal", batch)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	env, err := s.generator.Generate(r.Context(), generator.Request{
		InspectionPath: inspectionPath,
		ThermalPath:    thermalPath,
	})
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("report generation failed",
			zap.String("stage", generator.StageNameFromError(err)),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return
	}

	downloads := map[string]string{}
	for kind := range env.Artifacts {
		downloads[kind] = fmt.Sprintf("/api/download/%s?id=%s", kind, env.ID)
	}
	writeJSON(w, 200, map[string]any{
		"report_id":            env.ID,
		"created_at":           env.CreatedAt,
		"report":               env.Report,
		"report_markdown":      env.ReportMarkdown,
		"ingestion_notes":      env.IngestionNotes,
		"ingestion_confidence": env.IngestionConfidence,
		"stats":                env.Stats,
		"downloads":            downloads,
	})
}

// saveUpload copies one multipart file into the upload directory and returns its path
// with an HTTP status for the failure case.
func (s *Server) saveUpload(r *http.Request, field, batch string) (string, int, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", 400, fmt.Errorf("%s file is required", field)
	}
	defer file.Close()
	if header.Size > extract.MaxFileBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("%s file exceeds %d bytes", field, extract.MaxFileBytes)
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", 500, errors.New("failed to prepare upload directory")
	}
	dst := filepath.Join(s.uploadDir, batch+"-"+field+"-"+uploadName(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		return "", 500, errors.New("failed to save uploaded file")
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return "", 500, errors.New("failed to write uploaded file")
	}
	return dst, 0, nil
}

// uploadName keeps the extension, which selects the extractor, and sanitizes the rest.
func uploadName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := filepath.Ext(base)
	stem := sanitizeFilename(strings.TrimSuffix(base, ext))
	if len(ext) <= 1 {
		return stem
	}
	return stem + "." + sanitizeFilename(strings.ToLower(ext[1:]))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeJSON(w, 200, map[string]any{"items": []store.Run{}})
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), s.historyLimit)
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		writeError(w, 500, "failed to load history")
		return
	}
	writeJSON(w, 200, map[string]any{"items": runs})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, 400, "id is required")
		return
	}
	if s.history == nil {
		writeError(w, 404, "report not found")
		return
	}
	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == 404 {
			writeError(w, status, "report not found")
			return
		}
		s.logger.Error("get run", zap.String("report_id", id), zap.Error(err))
		writeError(w, status, "failed to load report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	_, _ = io.WriteString(w, run.ReportJSON)
}

var downloadKinds = map[string]struct {
	artifact    string
	contentType string
}{
	"json":     {store.ArtifactJSON, "application/json"},
	"markdown": {store.ArtifactMarkdown, "text/markdown; charset=utf-8"},
	"pdf":      {store.ArtifactPDF, "application/pdf"},
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	kind := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/download/"), "/")
	dl, ok := downloadKinds[kind]
	if !ok {
		writeError(w, 404, "unknown download kind")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, 400, "id is required")
		return
	}
	if s.artifacts == nil {
		writeError(w, 404, "artifact not found")
		return
	}
	if _, err := s.artifacts.Path(id, dl.artifact); err != nil {
		writeError(w, 400, "invalid report id")
		return
	}

	blob, err := s.artifacts.Read(id, dl.artifact)
	if errors.Is(err, store.ErrNotFound) && dl.artifact == store.ArtifactPDF {
		blob, err = s.renderPDF(r.Context(), id)
	}
	if err != nil {
		status := statusFor(err)
		if status == 404 {
			writeError(w, status, "artifact not found")
			return
		}
		s.logger.Error("read artifact", zap.String("report_id", id), zap.String("kind", kind), zap.Error(err))
		writeError(w, status, "failed to read artifact")
		return
	}

	filename := fmt.Sprintf("ddr-%s.%s", sanitizeFilename(id), dl.artifact)
	w.Header().Set("Content-Type", dl.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(200)
	_, _ = w.Write(blob)
}

// renderPDF builds a missing PDF from the stored JSON envelope and caches it.
func (s *Server) renderPDF(ctx context.Context, id string) ([]byte, error) {
	if s.pdf == nil {
		return nil, store.ErrNotFound
	}
	envelope, err := s.artifacts.Read(id, store.ArtifactJSON)
	if err != nil {
		return nil, err
	}
	pdf, err := s.pdf.Render(ctx, string(envelope))
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if _, err := s.artifacts.Write(id, store.ArtifactPDF, pdf); err != nil {
		s.logger.Warn("cache rendered pdf", zap.String("report_id", id), zap.Error(err))
	}
	return pdf, nil
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "report"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}
