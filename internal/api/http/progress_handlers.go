package http

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vts-learning/courseware/internal/auth/middleware"
	"github.com/vts-learning/courseware/internal/certificate"
	"github.com/vts-learning/courseware/internal/progress"
)

// RecordPlayHandler marks one lesson video as watched and returns the
// refreshed progress snapshot. Replays are no-ops.
func RecordPlayHandler(tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ItemID string `json:"item_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.ItemID == "" {
			http.Error(w, "item_id required", 400)
			return
		}
		snap, err := tracker.RecordPlay(r.Context(),
			authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "courseID"), req.ItemID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, snap)
	}
}

func CompletionHandler(tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := tracker.Completion(r.Context(),
			authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "courseID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, snap)
	}
}

// MyCertificatesHandler lists the caller's earned certificates.
func MyCertificatesHandler(db *sql.DB, issuer *certificate.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := issuer.ForUser(r.Context(), db, authmw.SubjectFromContext(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, list)
	}
}
