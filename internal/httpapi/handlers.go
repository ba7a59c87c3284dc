package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
	"github.com/Sakimotor/TranslationFramework2/internal/config"
	"github.com/Sakimotor/TranslationFramework2/internal/jobs"
	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/internal/subtitle"
)

const defaultRunLimit = 20

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	statuses, err := s.svc.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ret := make([]assetResponse, 0, len(statuses))
	for _, st := range statuses {
		ret = append(ret, newAssetResponse(st))
	}
	writeJSON(w, http.StatusOK, ret)
}

type assetResponse struct {
	Path        string `json:"path"`
	Total       int    `json:"total"`
	Translated  int    `json:"translated"`
	HasOverlay  bool   `json:"has_overlay"`
	Stale       bool   `json:"needs_rebuild"`
	LastRebuild string `json:"last_rebuild,omitempty"`
	Error       string `json:"error,omitempty"`
}

func newAssetResponse(st service.AssetStatus) assetResponse {
	ret := assetResponse{
		Path:       st.RelativePath,
		Total:      st.Total,
		Translated: st.Translated,
		HasOverlay: st.HasOverlay,
		Stale:      st.Stale(),
		Error:      st.Error,
	}
	if !st.LastRebuild.IsZero() {
		ret.LastRebuild = st.LastRebuild.UTC().Format("2006-01-02T15:04:05Z")
	}
	return ret
}

type entryResponse struct {
	Offset      int64  `json:"offset"`
	Kind        string `json:"kind"`
	MaxLength   int    `json:"max_length"`
	Original    string `json:"original"`
	Translation string `json:"translation"`
}

type entriesResponse struct {
	Asset       string          `json:"asset"`
	FromOverlay bool            `json:"from_overlay"`
	Language    string          `json:"language"`
	Stats       subtitle.Stats  `json:"stats"`
	Entries     []entryResponse `json:"entries"`
}

type editRequest struct {
	Translations []struct {
		Offset      int64  `json:"offset"`
		Translation string `json:"translation"`
	} `json:"translations"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		f, err := s.svc.OpenPath(asset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		s.writeEntries(w, http.StatusOK, f)
	case http.MethodPut:
		var req editRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if len(req.Translations) == 0 {
			writeError(w, http.StatusBadRequest, "translations are required")
			return
		}
		translations := make(map[int64]string, len(req.Translations))
		for _, t := range req.Translations {
			translations[t.Offset] = t.Translation
		}

		s.editMu.Lock()
		defer s.editMu.Unlock()

		f, err := s.svc.OpenPath(asset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		applied, applyErr := f.ApplyTranslations(translations)
		if applied > 0 {
			if err := f.Save(); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		if applyErr != nil {
			writeJSON(w, statusFor(applyErr), map[string]any{
				"applied": applied,
				"error":   applyErr.Error(),
			})
			return
		}
		s.writeEntries(w, http.StatusOK, f)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeEntries(w http.ResponseWriter, status int, f *subtitle.File) {
	entries, err := f.Entries()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ret := entriesResponse{
		Asset:       f.RelativePath(),
		FromOverlay: f.FromOverlay(),
		Language:    f.Language().String(),
		Stats:       f.Stats(),
		Entries:     make([]entryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		ret.Entries = append(ret.Entries, entryResponse{
			Offset:      e.Offset,
			Kind:        e.Kind.String(),
			MaxLength:   e.MaxLength,
			Original:    e.Original,
			Translation: e.Translation,
		})
	}
	writeJSON(w, status, ret)
}

type rebuildRequest struct {
	Asset   string `json:"asset"`
	Changed bool   `json:"changed"`
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// an empty body rebuilds every asset
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var (
		run *jobs.RebuildRun
		err error
	)
	switch {
	case req.Asset != "":
		asset, assetErr := s.svc.AssetFor(req.Asset)
		if assetErr != nil {
			writeServiceError(w, assetErr)
			return
		}
		run, err = s.svc.RebuildAsset(r.Context(), asset)
	case req.Changed:
		run, err = s.svc.RebuildChanged(r.Context(), jobs.SourceManual)
	default:
		run, err = s.svc.RebuildAll(r.Context(), jobs.SourceManual)
	}
	if run == nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{"run": run}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.svc.History(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Project())
	case http.MethodPut:
		if s.projectFile == "" {
			writeError(w, http.StatusNotImplemented, "project file is not configured")
			return
		}
		var req config.Project
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := config.WriteProjectFile(s.projectFile, req); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// the running service keeps its settings until restarted
		writeJSON(w, http.StatusOK, map[string]any{
			"project":          req,
			"restart_required": true,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func statusFor(err error) int {
	switch service.Classify(err).Type {
	case service.ErrFileNotFound:
		return http.StatusNotFound
	case service.ErrValidation, service.ErrConfig:
		return http.StatusBadRequest
	case service.ErrMismatch:
		return http.StatusConflict
	case service.ErrOverflow, service.ErrFormat:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	body := map[string]any{"error": err.Error()}
	var overflow *cmnbin.OverflowError
	if errors.As(err, &overflow) {
		body["offset"] = overflow.Offset
		body["length"] = overflow.Length
		body["max_length"] = overflow.MaxLength
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
