package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/service"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// maxUploadBytes caps a single uploaded image.
const maxUploadBytes = 20 << 20

type Dependencies struct {
	Logger          *slog.Logger
	Addr            string
	AuditService    *service.AuditService
	SettingsService *service.SettingsService
	CaptureService  *service.CaptureService
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	audit      *service.AuditService
	settings   *service.SettingsService
	captures   *service.CaptureService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		logger:   logger,
		mux:      mux,
		audit:    d.AuditService,
		settings: d.SettingsService,
		captures: d.CaptureService,
	}

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/audit/start", s.handleStart)
	mux.HandleFunc("POST /api/audit/stop", s.handleStop)
	mux.HandleFunc("POST /api/audit/reset", s.handleReset)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/capture", s.handleCapture)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/saved", s.handleListSaved)
	mux.HandleFunc("GET /api/saved/{id}", s.handleGetSaved)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings/{lock}", s.handleSetPIN)
	mux.HandleFunc("POST /api/verify_pin", s.handleVerifyPIN)

	handler := loggingMiddleware(logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Audit lifecycle ──────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: s.audit.Status()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.writeMetrics(w, r, s.audit.Start(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeMetrics(w, r, s.audit.Stop(r.Context()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.writeMetrics(w, r, s.audit.Reset(r.Context()))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeMetrics(w, r, s.audit.Metrics(r.Context()))
}

func (s *Server) writeMetrics(w http.ResponseWriter, r *http.Request, m types.Metrics) {
	if wantsProtobuf(r) {
		msg, err := metricsToProto(m)
		if err != nil {
			s.logger.Error("metrics proto conversion failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ── Captures ─────────────────────────────────────────────────────────────────

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req types.CaptureRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.captures.Capture(r.Context(), req.FilePIN)
	if err != nil {
		s.writeServiceError(w, "capture", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_form", "expected multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_form", "missing file field")
		return
	}
	defer file.Close()

	if !isImagePart(header) {
		writeError(w, http.StatusBadRequest, "invalid_image", service.ErrInvalidImage.Error())
		return
	}

	persist := false
	if v := r.FormValue("save"); v != "" {
		persist, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_form", "save must be a boolean")
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_form", "could not read file")
		return
	}

	resp, err := s.captures.Upload(r.Context(), data, persist, r.FormValue("file_pin"))
	if err != nil {
		s.writeServiceError(w, "upload", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	ids, err := s.captures.List(r.Context(), r.URL.Query().Get("file_pin"))
	if err != nil {
		s.writeServiceError(w, "list saved", err)
		return
	}
	writeJSON(w, http.StatusOK, types.SavedListResponse{Files: ids})
}

func (s *Server) handleGetSaved(w http.ResponseWriter, r *http.Request) {
	rec, img, err := s.captures.Get(r.Context(), r.PathValue("id"), r.URL.Query().Get("file_pin"))
	if err != nil {
		s.writeServiceError(w, "get saved", err)
		return
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// ── Settings & PIN ───────────────────────────────────────────────────────────

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.LockConfig(r.Context())
	if err != nil {
		s.writeServiceError(w, "settings", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	lock, ok := strings.CutSuffix(r.PathValue("lock"), "_pin")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown setting")
		return
	}

	var req types.SetPINRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if err := s.settings.SetPIN(r.Context(), lock, req.Enabled, req.PIN); err != nil {
		s.writeServiceError(w, "set pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{lock + "_pin_enabled": req.Enabled})
}

func (s *Server) handleVerifyPIN(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyPINRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	ok, err := s.settings.Verify(r.Context(), req.Lock, req.PIN)
	if err != nil {
		s.writeServiceError(w, "verify pin", err)
		return
	}
	writeJSON(w, http.StatusOK, types.VerifyPINResponse{Valid: ok})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPIN):
		writeError(w, http.StatusForbidden, "invalid_pin", err.Error())
	case errors.Is(err, service.ErrPINRequired):
		writeError(w, http.StatusBadRequest, "pin_required", err.Error())
	case errors.Is(err, service.ErrUnknownLock):
		writeError(w, http.StatusBadRequest, "invalid_pin_type", err.Error())
	case errors.Is(err, service.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", err.Error())
	case errors.Is(err, service.ErrInvalidImage), errors.Is(err, service.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
	case errors.Is(err, service.ErrCaptureUnavailable):
		s.logger.Warn(op+" unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "capture_unavailable", service.ErrCaptureUnavailable.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "file not found")
	default:
		s.logger.Error(op+" error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func isImagePart(h *multipart.FileHeader) bool {
	return strings.HasPrefix(h.Header.Get("Content-Type"), "image/")
}
