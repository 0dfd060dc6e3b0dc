// Package api exposes the service over HTTP: session lifecycle, form
// navigation, captcha, search, history, and PDF artifacts.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/artifact"
	"github.com/anveshgarg/courtscout/internal/history"
	"github.com/anveshgarg/courtscout/internal/monitoring"
	"github.com/anveshgarg/courtscout/internal/render"
	"github.com/anveshgarg/courtscout/internal/session"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry  *session.Registry
	ledger    *history.Ledger
	artifacts *artifact.Store
	composer  *render.Composer
	renderer  render.Renderer
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

func NewHandler(
	registry *session.Registry,
	ledger *history.Ledger,
	artifacts *artifact.Store,
	composer *render.Composer,
	renderer render.Renderer,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Handler {
	return &Handler{
		registry:  registry,
		ledger:    ledger,
		artifacts: artifacts,
		composer:  composer,
		renderer:  renderer,
		metrics:   metrics,
		log:       log,
	}
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	info, err := h.registry.Create(r.Context(), req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, info)
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Close(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetForm handles GET /v1/sessions/{id}/form
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := h.registry.LoadForm(r.Context(), id, r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

// CascadeCaseTypes handles POST /v1/sessions/{id}/case-types
func (h *Handler) CascadeCaseTypes(w http.ResponseWriter, r *http.Request) {
	var req models.CascadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CourtValue == "" {
		http.Error(w, "courtValue is required", http.StatusBadRequest)
		return
	}

	opts, err := h.registry.Cascade(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"caseTypes": opts})
}

// ReloadForm handles POST /v1/sessions/{id}/reload
func (h *Handler) ReloadForm(w http.ResponseWriter, r *http.Request) {
	var req models.ReloadRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap, err := h.registry.Reload(r.Context(), mux.Vars(r)["id"], req.Mode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

// GetCaptcha handles GET /v1/sessions/{id}/captcha
func (h *Handler) GetCaptcha(w http.ResponseWriter, r *http.Request) {
	png, err := h.registry.CaptchaImage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(png)
}

// SolveCaptcha handles POST /v1/sessions/{id}/captcha/solve
func (h *Handler) SolveCaptcha(w http.ResponseWriter, r *http.Request) {
	var req models.SolveCaptchaRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	text, err := h.registry.SolveCaptcha(r.Context(), mux.Vars(r)["id"], req.Engine)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"captcha": text})
}

// Search handles POST /v1/sessions/{id}/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CourtValue == "" || req.CaseTypeValue == "" || req.Captcha == "" {
		http.Error(w, "courtValue, caseTypeValue and captcha are required", http.StatusBadRequest)
		return
	}

	outcome, err := h.registry.Search(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"courtName":    outcome.CourtName,
		"caseTypeName": outcome.CaseTypeName,
		"resultsCount": outcome.ResultsCount,
	})
}

// ListResults handles GET /v1/sessions/{id}/results
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.registry.Results(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// ViewCaseDetail handles POST /v1/sessions/{id}/cases/{cno}
func (h *Handler) ViewCaseDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	set, err := h.registry.CaseDetail(r.Context(), vars["id"], vars["cno"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, set)
}

// GetHistory handles GET /v1/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.ledger.All())
}

// GetHistoryEntry handles GET /v1/history/{sessionId}. If the session is
// still alive its accumulated result fragments ride along.
func (h *Handler) GetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	entry, err := h.ledger.FindBySession(sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	detail := models.HistoryDetail{HistoryEntry: entry}
	if results, err := h.registry.Results(sessionID); err == nil {
		detail.Results = results
	}
	h.respondJSON(w, http.StatusOK, detail)
}

// ResultsPDF handles GET /v1/sessions/{id}/results/pdf
func (h *Handler) ResultsPDF(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	results, err := h.registry.Results(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.composer.ResultsDocument(id, results)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), doc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.servePDF(w, fmt.Sprintf("results_%s.pdf", id), pdf)
}

// HistoryPDF handles GET /v1/history/{sessionId}/pdf
func (h *Handler) HistoryPDF(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	entry, err := h.ledger.FindBySession(sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	detail := models.HistoryDetail{HistoryEntry: entry}
	if results, err := h.registry.Results(sessionID); err == nil {
		detail.Results = results
	}

	doc, err := h.composer.HistoryDocument(detail)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), doc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.servePDF(w, fmt.Sprintf("history_%s.pdf", sessionID), pdf)
}

// CaseDetailPDF handles POST /v1/sessions/{id}/cases/{cno}/pdf. It renders
// the cached detail (extracting it first when needed), persists the
// artifact, and annotates the session's history entry.
func (h *Handler) CaseDetailPDF(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, cno := vars["id"], vars["cno"]

	set, err := h.registry.CachedDetail(id, cno)
	if errors.Is(err, models.ErrNotFound) {
		set, err = h.registry.CaseDetail(r.Context(), id, cno)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.composer.DetailDocument(cno, set)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), doc)
	if err != nil {
		h.writeError(w, err)
		return
	}

	filename := fmt.Sprintf("case_%s_%s.pdf", cno, time.Now().Format("20060102_150405"))
	if err := h.artifacts.Save(filename, pdf); err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ArtifactSaved()

	if err := h.ledger.AttachArtifact(id, models.ArtifactRef{CNO: cno, Filename: filename}); err != nil {
		h.log.Warn("attaching artifact to history failed",
			zap.String("session_id", id), zap.String("cno", cno), zap.Error(err))
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"filename": filename})
}

// GetArtifact handles GET /v1/artifacts/{filename}
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	data, err := h.artifacts.Load(filename)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.servePDF(w, filename, data)
}

func (h *Handler) servePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("encoding response failed", zap.Error(err))
	}
}

// writeError maps domain sentinels onto HTTP statuses. Automation errors
// are flagged retryable so clients know a fresh attempt may succeed.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	retryable := false

	switch {
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrCaptchaUnresolved), errors.Is(err, models.ErrCaptchaImageUnavailable):
		status = http.StatusUnprocessableEntity
		retryable = true
	case errors.Is(err, models.ErrAutomationTimeout), errors.Is(err, models.ErrAutomationFailure):
		status = http.StatusBadGateway
		retryable = true
	case errors.Is(err, models.ErrInvalidArtifact):
		status = http.StatusBadRequest
	}

	h.respondJSON(w, status, map[string]any{
		"error":     err.Error(),
		"retryable": retryable,
	})
}
