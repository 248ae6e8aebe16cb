package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/vts-learning/courseware/internal/api/http"
	"github.com/vts-learning/courseware/internal/audit"
	auth "github.com/vts-learning/courseware/internal/auth/middleware"
	"github.com/vts-learning/courseware/internal/billing"
	"github.com/vts-learning/courseware/internal/catalog"
	"github.com/vts-learning/courseware/internal/certificate"
	"github.com/vts-learning/courseware/internal/config"
	"github.com/vts-learning/courseware/internal/db"
	"github.com/vts-learning/courseware/internal/exam"
	"github.com/vts-learning/courseware/internal/progress"
	"github.com/vts-learning/courseware/internal/rbac"
	"github.com/vts-learning/courseware/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	events := audit.NewEventRepo(dbh)
	issuer := certificate.NewIssuer()
	catalogStore := catalog.NewSQLStore(dbh)
	tracker := progress.NewTracker(dbh, issuer, events)
	examStore := exam.NewSQLStore(dbh, issuer, events)
	payments := billing.NewService(dbh, catalogStore, events, cfg.PaymentWebhookSecret, cfg.PaymentCurrency)

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public surface: sales pages and the payment gateway webhook. The
	// webhook authenticates itself with an HMAC signature, not a JWT.
	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	r.Get("/courses", api.ListCoursesHandler(catalogStore))
	r.Get("/courses/{courseID}", api.GetCourseHandler(catalogStore))
	r.Get("/courses/{courseID}/brochure", api.BrochureHandler(catalogStore, blobs))
	r.Post("/payments/callback", api.PaymentCallbackHandler(payments))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("catalog:view")).
			Get("/my/courses", api.MyCoursesHandler(catalogStore))

		pr.With(rbac.Require("lesson:play")).
			Get("/courses/{courseID}/items", api.ListItemsHandler(catalogStore))
		pr.With(rbac.Require("lesson:play")).
			Post("/courses/{courseID}/play", api.RecordPlayHandler(tracker))
		pr.With(rbac.Require("progress:view-own")).
			Get("/courses/{courseID}/completion", api.CompletionHandler(tracker))
		pr.With(rbac.Require("progress:view-own")).
			Get("/my/certificates", api.MyCertificatesHandler(dbh, issuer))

		// Exam flow. Ownership of attempts is enforced in the store, so
		// these only need the coarse permission.
		pr.With(rbac.Require("exam:take")).
			Get("/courses/{courseID}/exam/eligibility", api.EligibilityHandler(examStore))
		pr.With(rbac.Require("exam:take")).
			Post("/courses/{courseID}/exam/attempts", api.StartAttemptHandler(examStore))
		pr.With(rbac.Require("exam:take")).
			Get("/attempts/{attemptID}/questions", api.QuestionsHandler(examStore))
		pr.With(rbac.Require("exam:take")).
			Get("/attempts/{attemptID}/time-left", api.TimeLeftHandler(examStore))
		pr.With(rbac.Require("exam:take")).
			Post("/attempts/{attemptID}/answers", api.SaveAnswerHandler(examStore))
		pr.With(rbac.Require("exam:take")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(examStore))
		pr.With(rbac.Require("exam:take")).
			Post("/attempts/{attemptID}/violations", api.RecordViolationHandler(examStore))
		pr.With(rbac.Require("attempt:view-own")).
			Get("/attempts/{attemptID}/results", api.ResultsHandler(examStore))
		pr.With(rbac.Require("attempt:view-own")).
			Get("/my/results", api.MyResultsHandler(examStore))

		pr.With(rbac.Require("billing:order")).
			Post("/orders", api.CreateOrderHandler(payments))
		pr.With(rbac.Require("billing:order")).
			Get("/my/orders", api.MyOrdersHandler(payments))

		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))

		// Admin surface
		pr.With(rbac.Require("catalog:manage")).
			Put("/admin/courses", api.UpsertCourseHandler(catalogStore))
		pr.With(rbac.Require("catalog:manage")).
			Put("/admin/courses/{courseID}/items", api.UpsertItemHandler(catalogStore))
		pr.With(rbac.Require("catalog:manage")).
			Post("/admin/courses/{courseID}/brochure", api.UploadBrochureHandler(catalogStore, blobs))
		pr.With(rbac.Require("exam:manage")).
			Put("/admin/courses/{courseID}/exam", api.UpsertExamHandler(examStore))
		pr.With(rbac.Require("exam:manage")).
			Get("/admin/courses/{courseID}/exam", api.GetExamAdminHandler(examStore))
		pr.With(rbac.Require("access:grant")).
			Post("/admin/access", api.GrantAccessHandler(catalogStore, events))
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db not ready", 503)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
