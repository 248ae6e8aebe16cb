package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/db"
)

func newTestStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:cattest_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	if err := db.EnsureSchema(context.Background(), dbh, db.DriverSQLite); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewSQLStore(dbh), dbh
}

func TestUpsertCourseBySlug(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	price := 9999.0

	c1, err := store.UpsertCourse(ctx, Course{
		Name: "Intraday Trading", Slug: "intraday", OriginalPrice: &price, IsActive: true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c2, err := store.UpsertCourse(ctx, Course{
		Name: "Intraday Trading (2026)", Slug: "intraday", IsActive: true,
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("same slug must update in place: %s vs %s", c1.ID, c2.ID)
	}
	if c2.Name != "Intraday Trading (2026)" {
		t.Fatalf("name not updated: %+v", c2)
	}

	list, err := store.ListCourses(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("want one course, got %d", len(list))
	}
}

func TestGetCourseHidesInactive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	c, err := store.UpsertCourse(ctx, Course{Name: "Hidden", Slug: "hidden", IsActive: false})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.GetCourse(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive course must read as not found, got %v", err)
	}
}

func TestGrantAccessIdempotent(t *testing.T) {
	store, dbh := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	userID := uuid.NewString()
	if _, err := dbh.Exec(`INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1,$2,'x','student',$3)`, userID, "u-"+userID[:8], now); err != nil {
		t.Fatal(err)
	}
	c, err := store.UpsertCourse(ctx, Course{Name: "C", Slug: "c", IsActive: true})
	if err != nil {
		t.Fatalf("course: %v", err)
	}

	a1, err := store.GrantAccess(ctx, userID, c.ID)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	a2, err := store.GrantAccess(ctx, userID, c.ID)
	if err != nil {
		t.Fatalf("regrant: %v", err)
	}
	if a1.ID != a2.ID {
		t.Fatalf("regrant must reuse the grant: %s vs %s", a1.ID, a2.ID)
	}

	// The grant carries exactly one progress row.
	var progressRows int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM course_progress WHERE access_id=$1`, a1.ID).Scan(&progressRows); err != nil {
		t.Fatal(err)
	}
	if progressRows != 1 {
		t.Fatalf("want one progress row, got %d", progressRows)
	}

	mine, err := store.CoursesForUser(ctx, userID)
	if err != nil {
		t.Fatalf("courses for user: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != c.ID {
		t.Fatalf("unexpected enrollment list: %+v", mine)
	}
}

func TestUpsertBrochureKeepsOneActive(t *testing.T) {
	store, dbh := newTestStore(t)
	ctx := context.Background()

	c, err := store.UpsertCourse(ctx, Course{Name: "C", Slug: "c", IsActive: true})
	if err != nil {
		t.Fatalf("course: %v", err)
	}
	if _, err := store.UpsertBrochure(ctx, Brochure{CourseID: c.ID, Title: "v1", BlobKey: "brochures/a.pdf"}); err != nil {
		t.Fatalf("brochure v1: %v", err)
	}
	b2, err := store.UpsertBrochure(ctx, Brochure{CourseID: c.ID, Title: "v2", BlobKey: "brochures/b.pdf"})
	if err != nil {
		t.Fatalf("brochure v2: %v", err)
	}

	got, err := store.GetBrochure(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != b2.ID || got.BlobKey != "brochures/b.pdf" {
		t.Fatalf("latest brochure must win: %+v", got)
	}

	var active int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM course_brochures WHERE course_id=$1 AND is_active=1`, c.ID).Scan(&active); err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Fatalf("want one active brochure, got %d", active)
	}
}
