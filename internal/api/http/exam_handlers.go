package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vts-learning/courseware/internal/auth/middleware"
	"github.com/vts-learning/courseware/internal/exam"
)

func EligibilityHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.Eligibility(r.Context(),
			authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "courseID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, out)
	}
}

func StartAttemptHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, resumed, err := store.StartAttempt(r.Context(),
			authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "courseID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, struct {
			exam.Attempt
			Resumed bool `json:"resumed"`
		}{a, resumed})
	}
}

func QuestionsHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := store.Questions(r.Context(),
			chi.URLParam(r, "attemptID"),
			authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, qs)
	}
}

func TimeLeftHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tl, err := store.TimeLeft(r.Context(),
			chi.URLParam(r, "attemptID"),
			authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, tl)
	}
}

func SaveAnswerHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID string `json:"question_id"`
			Selected   string `json:"selected_answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.QuestionID == "" {
			http.Error(w, "question_id required", 400)
			return
		}
		err := store.SaveAnswer(r.Context(),
			chi.URLParam(r, "attemptID"),
			authmw.SubjectFromContext(r.Context()),
			req.QuestionID, req.Selected)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]bool{"success": true})
	}
}

func SubmitAttemptHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := store.Submit(r.Context(),
			chi.URLParam(r, "attemptID"),
			authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, struct {
			Success bool `json:"success"`
			exam.Result
		}{true, res})
	}
}

func RecordViolationHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ViolationType string `json:"violation_type"`
			Description   string `json:"description"`
			AutoSubmit    bool   `json:"auto_submit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		out, err := store.RecordViolation(r.Context(),
			chi.URLParam(r, "attemptID"),
			authmw.SubjectFromContext(r.Context()),
			req.ViolationType, req.Description, req.AutoSubmit)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, out)
	}
}

func ResultsHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := store.Results(r.Context(),
			chi.URLParam(r, "attemptID"),
			authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, view)
	}
}

func MyResultsHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.MyResults(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, list)
	}
}
