package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vts-learning/courseware/internal/auth/middleware"
	"github.com/vts-learning/courseware/internal/catalog"
	"github.com/vts-learning/courseware/internal/storage"
)

func ListCoursesHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListCourses(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, list)
	}
}

func GetCourseHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.GetCourse(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, c)
	}
}

// ListItemsHandler is the lesson schedule for enrolled users.
func ListItemsHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		courseID := chi.URLParam(r, "courseID")
		if _, err := store.ActiveAccess(r.Context(), userID, courseID); err != nil {
			writeDomainErr(w, err)
			return
		}
		items, err := store.ListItems(r.Context(), courseID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, items)
	}
}

// BrochureHandler streams the course brochure PDF. Public: brochures
// are sales collateral.
func BrochureHandler(store *catalog.SQLStore, blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := store.GetBrochure(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		info, err := blobs.Stat(b.BlobKey)
		if errors.Is(err, storage.ErrNotExist) {
			http.Error(w, "not found", 404)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		rc, err := blobs.Get(b.BlobKey)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.Header().Set("Content-Disposition", `attachment; filename="`+b.Title+`.pdf"`)
		_, _ = io.Copy(w, rc)
	}
}

// MyCoursesHandler lists the courses the caller can consume.
func MyCoursesHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		list, err := store.CoursesForUser(r.Context(), userID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, list)
	}
}
