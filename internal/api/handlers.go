package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
	"github.com/FocuswithJustin/OTMapKit/internal/manager"
	"github.com/FocuswithJustin/OTMapKit/internal/validation"
)

// Version is reported by the root and health endpoints.
const Version = "0.3.0"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the body of GET /health.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Jobs    int    `json:"jobs"`
	Clients int    `json:"clients"`
}

// FormatInfo describes one map format the server can read and write.
type FormatInfo struct {
	Format     mapversion.Format      `json:"format"`
	Structures []mapversion.Structure `json:"structures"`
	Extensions []string               `json:"extensions"`
}

// FormatsInfo is the body of GET /api/formats.
type FormatsInfo struct {
	Formats     []FormatInfo             `json:"formats"`
	Clients     []mapversion.Client      `json:"clients"`
	Compression []mapversion.Compression `json:"compression"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"name":    "OTMapKit API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /api/formats",
			"GET /api/detect?path=",
			"GET /api/info?path=",
			"GET /api/jobs",
			"POST /api/jobs",
			"GET /api/jobs/:id",
			"DELETE /api/jobs/:id",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	respond(w, http.StatusOK, HealthInfo{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Jobs:    len(s.jobs.List()),
		Clients: s.hub.ClientCount(),
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	info := FormatsInfo{
		Clients:     s.mgr.Versions().Clients(),
		Compression: []mapversion.Compression{mapversion.CompressionNone, mapversion.CompressionXZ, mapversion.CompressionZstd},
	}
	for _, f := range s.mgr.SupportedFormats() {
		info.Formats = append(info.Formats, FormatInfo{
			Format:     f,
			Structures: s.mgr.SupportedVersions(f),
			Extensions: manager.Extensions(f),
		})
	}
	respond(w, http.StatusOK, info)
}

// resolve confines a client path to the base directory.
func (s *Server) resolve(w http.ResponseWriter, p string) (string, bool) {
	path, err := validation.ResolvePath(s.cfg.BaseDir, p)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PATH", err.Error())
		return "", false
	}
	return path, true
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	path, ok := s.resolve(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "File not found")
		return
	}
	respond(w, http.StatusOK, s.mgr.Detect(path))
}

// mapInfoResponse is the body of GET /api/info.
type mapInfoResponse struct {
	Map  manager.MapInfo    `json:"map"`
	Load manager.LoadResult `json:"load"`
}

// infoKey identifies one revision of a file; a rewrite changes its
// modification time or size.
type infoKey struct {
	path string
	mod  int64
	size int64
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	path, ok := s.resolve(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	st, err := os.Stat(path)
	if err != nil {
		respondErr(w, errors.NewIO("stat", path, err))
		return
	}
	key := infoKey{path: path, mod: st.ModTime().UnixNano(), size: st.Size()}
	if cached, ok := s.info.Get(key); ok {
		logging.DebugContext(r.Context(), "map info cache hit", "path", path)
		respond(w, http.StatusOK, cached)
		return
	}

	m := mapdata.New(0, 0)
	res := s.mgr.LoadMap(r.Context(), m, path)
	if !res.Success {
		respondErr(w, res.Err)
		return
	}
	out := mapInfoResponse{Map: manager.Describe(m), Load: res}
	s.info.Set(key, out)
	respond(w, http.StatusOK, out)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondList(w, jobs, len(jobs))
	case http.MethodPost:
		s.submit.ServeHTTP(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func (s *Server) createJobHandler(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body: "+err.Error())
		return
	}
	if req.Input == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "input is required")
		return
	}
	if req.Output == "" {
		req.Output = req.Input
	}

	inPath, ok := s.resolve(w, req.Input)
	if !ok {
		return
	}
	outPath, ok := s.resolve(w, req.Output)
	if !ok {
		return
	}
	if err := validation.ValidateFilename(filepath.Base(outPath)); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PATH", err.Error())
		return
	}

	f, err := os.Open(inPath)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Input file not found")
		return
	}
	ft, err := validation.ValidateFileType(f, filepath.Base(inPath))
	f.Close()
	if err != nil || !ft.IsMap() {
		respondError(w, http.StatusBadRequest, "INVALID_FILE", "Input is not a map file")
		return
	}

	if req.Format == mapversion.FormatUnknown {
		req.Format = manager.FormatForPath(outPath)
	}
	if req.Client != 0 && !s.mgr.Versions().SupportsClient(req.Client) {
		respondError(w, http.StatusBadRequest, "UNSUPPORTED_VERSION", "Unknown client "+req.Client.String())
		return
	}

	parent := logging.WithRequestID(s.ctx, logging.GetRequestID(r.Context()))
	job, ctx, err := s.jobs.Create(parent, req)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_FULL", "Too many running jobs")
		return
	}
	logging.JobEvent(ctx, job.ID, "created", "input", req.Input, "output", req.Output)

	s.wg.Add(1)
	go s.runJob(ctx, job.ID, req, inPath, outPath)

	respond(w, http.StatusAccepted, job)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.jobs.Get(id)
		if err != nil {
			respondErr(w, err)
			return
		}
		respond(w, http.StatusOK, job)
	case http.MethodDelete:
		s.deleteJobHandler(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}

// deleteJobHandler cancels a job that is still running and forgets one
// that has finished.
func (s *Server) deleteJobHandler(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.jobs.Get(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if job.Status.Done() {
		if err := s.jobs.Delete(id); err != nil {
			respondErr(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]string{"message": "Job deleted"})
		return
	}
	if err := s.jobs.Cancel(id); err != nil {
		respondErr(w, err)
		return
	}
	logging.JobEvent(r.Context(), id, "cancel_requested")
	respond(w, http.StatusAccepted, map[string]string{"message": "Job cancellation requested"})
}

// respondErr maps an error to a status and code.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrIO):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "File not found or unreadable")
	case errors.Is(err, errors.ErrUnrecognizedFormat):
		respondError(w, http.StatusUnprocessableEntity, "UNRECOGNIZED_FORMAT", err.Error())
	case errors.Is(err, errors.ErrUnsupportedVersion):
		respondError(w, http.StatusUnprocessableEntity, "UNSUPPORTED_VERSION", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, errors.ErrCancelled):
		respondError(w, http.StatusRequestTimeout, "CANCELLED", err.Error())
	default:
		respondError(w, http.StatusUnprocessableEntity, "MAP_ERROR", err.Error())
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Error: &APIError{Code: code, Message: message},
		Meta:  &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
