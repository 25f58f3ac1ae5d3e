// Package httpapi provides the REST HTTP adapter for the power-up host shell.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/evanschultz/cardclock/internal/adapters/server/common"
)

// maxReportRunsLimit caps the history page size.
const maxReportRunsLimit = 200

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.TimeInListService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service common.TimeInListService) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "time-in-list service is not configured",
		})
		return
	}

	segments := strings.Split(normalizePath(r.URL.Path), "/")
	switch {
	case matchRoute(segments, "cards", "*", "badge"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleCardBadge(w, r, segments[1])
	case matchRoute(segments, "cards", "*", "timer", "toggle"):
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleToggleTimer(w, r, segments[1])
	case matchRoute(segments, "lists", "*", "report.csv"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListReport(w, r, segments[1])
	case matchRoute(segments, "lists", "*", "reports"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListReportRuns(w, r, segments[1])
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleCardBadge serves GET `/cards/{id}/badge`.
func (h *Handler) handleCardBadge(w http.ResponseWriter, r *http.Request, cardID string) {
	badge, err := h.service.CardBadge(r.Context(), cardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

// handleToggleTimer serves POST `/cards/{id}/timer/toggle`.
func (h *Handler) handleToggleTimer(w http.ResponseWriter, r *http.Request, cardID string) {
	timer, err := h.service.ToggleTimer(r.Context(), cardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timer)
}

// handleListReport serves GET `/lists/{id}/report.csv` as a download.
func (h *Handler) handleListReport(w http.ResponseWriter, r *http.Request, listID string) {
	rep, err := h.service.ListReport(r.Context(), listID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rep.FileName}))
	w.Header().Set("X-Report-Run-Id", rep.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rep.CSV))
}

// handleListReportRuns serves GET `/lists/{id}/reports`.
func (h *Handler) handleListReportRuns(w http.ResponseWriter, r *http.Request, listID string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxReportRunsLimit {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: fmt.Sprintf("limit must be between 1 and %d", maxReportRunsLimit),
			})
			return
		}
		limit = parsed
	}
	runs, err := h.service.ListReportRuns(r.Context(), listID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// matchRoute reports whether segments match pattern, where "*" matches one non-empty segment.
func matchRoute(segments []string, pattern ...string) bool {
	if len(segments) != len(pattern) {
		return false
	}
	for i, want := range pattern {
		got := strings.TrimSpace(segments[i])
		if got == "" {
			return false
		}
		if want != "*" && got != want {
			return false
		}
	}
	return true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrAuthRequired):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "auth_required",
			Message: err.Error(),
			Hint:    "Authorize the power-up or run `cardclock auth set-token`.",
		})
	case errors.Is(err, common.ErrFetchFailed):
		writeJSONError(w, http.StatusBadGateway, APIError{
			Code:    "fetch_failed",
			Message: err.Error(),
			Hint:    "Trello did not answer after retries. Try again shortly.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrServiceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}
