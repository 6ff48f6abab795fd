package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/export"
	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/service"
	"github.com/local/pdfmerger/internal/session"
	"github.com/local/pdfmerger/internal/statuscheck"
)

type Dependencies struct {
	Service     *service.Service
	Status      *statuscheck.Checker
	MaxUploadMB int64
}

type API struct {
	deps Dependencies
}

func New(deps Dependencies) *API {
	if deps.MaxUploadMB <= 0 {
		deps.MaxUploadMB = 64
	}
	return &API{deps: deps}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /status", a.handleStatus)

	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/files", a.handleAddFiles)
	mux.HandleFunc("DELETE /api/sessions/{id}/files/{fileID}", a.handleRemoveFile)
	mux.HandleFunc("GET /api/sessions/{id}/files/{fileID}/preview", a.handlePreview)
	mux.HandleFunc("POST /api/sessions/{id}/clear", a.handleClear)
	mux.HandleFunc("PUT /api/sessions/{id}/output_name", a.handleOutputName)
	mux.HandleFunc("POST /api/sessions/{id}/merge", a.handleMerge)
}

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	FileID  string `json:"file_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorResp{Error: kind, Message: msg})
}

// writeServiceError maps lookup failures shared by most routes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "file_not_found", "file not found")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Status.Summary(r.Context()))
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := a.deps.Service.Sessions().Create()
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": s.ID, "output_name": s.List.OutputName()})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	v, err := a.deps.Service.Describe(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !a.deps.Service.Sessions().Delete(r.PathValue("id")) {
		writeServiceError(w, session.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "missing_files", "no files selected")
		return
	}
	res, err := a.deps.Service.AddFiles(r.Context(), r.PathValue("id"), service.FromMultipart(headers))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Service.RemoveFile(r.PathValue("id"), r.PathValue("fileID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	thumb, err := a.deps.Service.Thumbnail(r.PathValue("id"), r.PathValue("fileID"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, service.ErrFileNotFound) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "preview_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb.PNG)))
	_, _ = w.Write(thumb.PNG)
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Service.Clear(r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type outputNameReq struct {
	FileName string `json:"file_name"`
}

func (a *API) handleOutputName(w http.ResponseWriter, r *http.Request) {
	var req outputNameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	name, err := a.deps.Service.SetOutputName(r.PathValue("id"), req.FileName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output_name": name})
}

func (a *API) handleMerge(w http.ResponseWriter, r *http.Request) {
	_, err := a.deps.Service.Merge(r.Context(), r.PathValue("id"), export.HTTPDownload(w))
	if err == nil {
		return
	}
	if errors.Is(err, export.ErrPartialDownload) {
		// headers are already out
		log.Warn().Err(err).Str("session_id", r.PathValue("id")).Msg("merge download interrupted")
		return
	}
	WriteMergeError(w, err)
}

// WriteMergeError converts a merge action failure into a JSON response.
func WriteMergeError(w http.ResponseWriter, err error) {
	var insufficient *merge.InsufficientInputError
	var inputErr *service.InputError
	switch {
	case errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_input", service.InsufficientInputMessage)
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{
			Error:   "decode_error",
			Message: inputErr.File.Name + " is not a readable PDF",
			File:    inputErr.File.Name,
			FileID:  inputErr.File.ID,
		})
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "busy", "a merge is already running, try again shortly")
	default:
		writeServiceError(w, err)
	}
}
