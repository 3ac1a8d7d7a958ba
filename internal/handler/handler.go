// Package handler exposes stored grading results as a read-only JSON
// API for gradebook tooling.
package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/papergrader/internal/analytics"
	"github.com/pavelanni/papergrader/internal/model"
	"github.com/pavelanni/papergrader/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
}

// New creates a new Handler.
func New(s *store.Store) *Handler {
	return &Handler{store: s}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/exams", h.handleListExams)
	r.Get("/api/exams/{examID}", h.handleGetExam)
	r.Get("/api/review-queue", h.handleReviewQueue)
	r.Get("/api/analytics", h.handleAnalytics)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.ExamCount()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "exams": count})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	reports, err := h.store.ListExamReports()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []model.ExamReport{}
	}
	writeJSON(w, reports)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	rep, err := h.store.GetExamReport(examID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "exam not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rep)
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ReviewItems()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.ReviewItem{}
	}
	writeJSON(w, model.ReviewQueue{TotalFlagged: len(items), Items: items})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	reports, err := h.store.ListExamReports()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// The localizer middleware set up in main decides the insight language.
	result := analytics.Compute(r.Context(), reports)
	if result.Insights == nil {
		result.Insights = []string{}
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
