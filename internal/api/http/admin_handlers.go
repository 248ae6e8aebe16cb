package http

import (
	"encoding/json"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/audit"
	"github.com/vts-learning/courseware/internal/catalog"
	"github.com/vts-learning/courseware/internal/exam"
	"github.com/vts-learning/courseware/internal/storage"
)

func UpsertCourseHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c catalog.Course
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if c.Name == "" || c.Slug == "" {
			http.Error(w, "name and slug required", 400)
			return
		}
		out, err := store.UpsertCourse(r.Context(), c)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, out)
	}
}

func UpsertItemHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var it catalog.Item
		if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		it.CourseID = chi.URLParam(r, "courseID")
		if it.Title == "" {
			http.Error(w, "title required", 400)
			return
		}
		out, err := store.UpsertItem(r.Context(), it)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, out)
	}
}

// UpsertExamHandler replaces a course's exam configuration and question
// roster in one shot.
func UpsertExamHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var up exam.ExamUpsert
		if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		e, err := store.UpsertExam(r.Context(), chi.URLParam(r, "courseID"), up)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, e)
	}
}

func GetExamAdminHandler(store *exam.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := store.ExamForCourse(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		qs, err := store.QuestionsForExam(r.Context(), e.ID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, struct {
			exam.Exam
			Questions []exam.Question `json:"questions"`
		}{e, qs})
	}
}

// GrantAccessHandler is the manual enrollment path (offline sales,
// support interventions). Idempotent like the payment-driven grant.
func GrantAccessHandler(store *catalog.SQLStore, events *audit.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID   string `json:"user_id"`
			CourseID string `json:"course_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.UserID == "" || req.CourseID == "" {
			http.Error(w, "user_id and course_id required", 400)
			return
		}
		a, err := store.GrantAccess(r.Context(), req.UserID, req.CourseID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		data, _ := json.Marshal(map[string]string{"course_id": req.CourseID, "source": "manual"})
		_ = events.Append(r.Context(), audit.Event{
			Type: audit.TypeAccessGranted, Key: a.ID, Data: string(data),
		})
		writeJSON(w, 200, a)
	}
}

// UploadBrochureHandler stores the PDF blob and points the course's
// brochure record at it.
func UploadBrochureHandler(store *catalog.SQLStore, blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart form", 400)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field: file", 400)
			return
		}
		defer f.Close()

		courseID := chi.URLParam(r, "courseID")
		title := r.FormValue("title")
		if title == "" {
			title = hdr.Filename
		}
		key := path.Join("brochures", courseID, uuid.NewString()+".pdf")
		if _, err := blobs.Put(key, f); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		b, err := store.UpsertBrochure(r.Context(), catalog.Brochure{
			CourseID: courseID, Title: title, BlobKey: key,
		})
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, b)
	}
}
