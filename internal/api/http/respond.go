package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vts-learning/courseware/internal/billing"
	"github.com/vts-learning/courseware/internal/catalog"
	"github.com/vts-learning/courseware/internal/exam"
	"github.com/vts-learning/courseware/internal/progress"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainErr maps domain sentinels onto HTTP statuses. Ownership
// failures read as 404 so closed resources look absent, not forbidden.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, catalog.ErrNoAccess),
		errors.Is(err, progress.ErrNotFound),
		errors.Is(err, progress.ErrNoAccess),
		errors.Is(err, billing.ErrNotFound):
		http.Error(w, "not found", 404)
	case errors.Is(err, exam.ErrAlreadySubmitted):
		http.Error(w, "attempt already submitted", 400)
	case errors.Is(err, exam.ErrAlreadyPassed):
		http.Error(w, "exam already passed", 400)
	case errors.Is(err, exam.ErrNoAttemptsRemaining):
		http.Error(w, "no attempts remaining", 400)
	case errors.Is(err, exam.ErrNotEligible):
		http.Error(w, "not eligible", 400)
	case errors.Is(err, exam.ErrExamNotConfigured):
		http.Error(w, "not eligible", 400)
	case errors.Is(err, exam.ErrNotSubmitted):
		http.Error(w, "attempt not submitted", 400)
	case errors.Is(err, exam.ErrBadAnswer):
		http.Error(w, "answer must be one of a, b, c, d", 400)
	default:
		http.Error(w, err.Error(), 500)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
