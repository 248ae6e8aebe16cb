package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/audit"
	"github.com/vts-learning/courseware/internal/certificate"
	"github.com/vts-learning/courseware/internal/db"
)

func newTestTracker(t *testing.T) (*Tracker, *sql.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:progtest_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	if err := db.EnsureSchema(context.Background(), dbh, db.DriverSQLite); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewTracker(dbh, certificate.NewIssuer(), audit.NewEventRepo(dbh)), dbh
}

func seedCourse(t *testing.T, dbh *sql.DB, items int) (userID, courseID string, itemIDs []string) {
	t.Helper()
	now := time.Now().Unix()
	userID, courseID = uuid.NewString(), uuid.NewString()

	must(t, dbh, `INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1,$2,'x','student',$3)`, userID, "u-"+userID[:8], now)
	must(t, dbh, `INSERT INTO courses (id, name, slug, created_at)
		VALUES ($1,'Options Basics',$2,$3)`, courseID, "c-"+courseID[:8], now)
	must(t, dbh, `INSERT INTO course_access (id, user_id, course_id, created_at)
		VALUES ($1,$2,$3,$4)`, uuid.NewString(), userID, courseID, now)
	for i := 0; i < items; i++ {
		id := uuid.NewString()
		must(t, dbh, `INSERT INTO course_items (id, course_id, title, position)
			VALUES ($1,$2,$3,$4)`, id, courseID, fmt.Sprintf("Day %d", i+1), i)
		itemIDs = append(itemIDs, id)
	}
	return
}

func must(t *testing.T, dbh *sql.DB, q string, args ...any) {
	t.Helper()
	if _, err := dbh.Exec(q, args...); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func TestRecordPlayIdempotent(t *testing.T) {
	tr, dbh := newTestTracker(t)
	userID, courseID, items := seedCourse(t, dbh, 4)
	ctx := context.Background()

	snap, err := tr.RecordPlay(ctx, userID, courseID, items[0])
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if snap.Completed != 1 || snap.Total != 4 || snap.ProgressPercentage != 25 {
		t.Fatalf("bad snapshot: %+v", snap)
	}

	// Replaying the same item never double counts.
	snap, err = tr.RecordPlay(ctx, userID, courseID, items[0])
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if snap.Completed != 1 {
		t.Fatalf("replay double counted: %+v", snap)
	}
}

func TestRecordPlayRejectsBadItems(t *testing.T) {
	tr, dbh := newTestTracker(t)
	userID, courseID, items := seedCourse(t, dbh, 2)
	ctx := context.Background()

	if _, err := tr.RecordPlay(ctx, userID, courseID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown item: want ErrNotFound, got %v", err)
	}
	must(t, dbh, `UPDATE course_items SET is_active=0 WHERE id=$1`, items[0])
	if _, err := tr.RecordPlay(ctx, userID, courseID, items[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive item: want ErrNotFound, got %v", err)
	}
	if _, err := tr.RecordPlay(ctx, uuid.NewString(), courseID, items[1]); !errors.Is(err, ErrNoAccess) {
		t.Fatalf("no grant: want ErrNoAccess, got %v", err)
	}
}

func TestCompletionSetsReadyAndIssuesCertificate(t *testing.T) {
	tr, dbh := newTestTracker(t)
	userID, courseID, items := seedCourse(t, dbh, 2)
	ctx := context.Background()

	var snap Snapshot
	var err error
	for _, id := range items {
		if snap, err = tr.RecordPlay(ctx, userID, courseID, id); err != nil {
			t.Fatalf("play: %v", err)
		}
	}
	if !snap.AllWatched || !snap.ReadyForExam || !snap.IsCompleted {
		t.Fatalf("full watch must flip all flags: %+v", snap)
	}
	if snap.ProgressPercentage != 100 {
		t.Fatalf("want 100%%, got %v", snap.ProgressPercentage)
	}

	var certs int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&certs); err != nil {
		t.Fatal(err)
	}
	if certs != 1 {
		t.Fatalf("completion issues exactly one certificate, got %d", certs)
	}
	if !strings.HasPrefix(snap.CertificateNumber, "CERT-") {
		t.Fatalf("snapshot must carry the certificate number, got %+v", snap)
	}

	var events int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM event_log WHERE typ=$1`,
		audit.TypeCertificateIssued).Scan(&events); err != nil {
		t.Fatal(err)
	}
	if events != 1 {
		t.Fatalf("issuance must be logged to the event log, got %d", events)
	}

	// Completion is a read-and-refresh; calling it again stays stable
	// and issues nothing new.
	snap, err = tr.Completion(ctx, userID, courseID)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if !snap.ReadyForExam || !snap.IsCompleted {
		t.Fatalf("flags must be monotonic: %+v", snap)
	}
	if snap.CertificateNumber == "" {
		t.Fatalf("later snapshots keep surfacing the number: %+v", snap)
	}
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&certs); err != nil {
		t.Fatal(err)
	}
	if certs != 1 {
		t.Fatalf("repeat completion re-issued: %d", certs)
	}
}

func TestReadyForExamSurvivesRosterGrowth(t *testing.T) {
	tr, dbh := newTestTracker(t)
	userID, courseID, items := seedCourse(t, dbh, 1)
	ctx := context.Background()

	if _, err := tr.RecordPlay(ctx, userID, courseID, items[0]); err != nil {
		t.Fatalf("play: %v", err)
	}

	// Admin adds a lesson afterwards; the flag stays set even though
	// all_watched drops.
	must(t, dbh, `INSERT INTO course_items (id, course_id, title, position)
		VALUES ($1,$2,'Bonus Day',9)`, uuid.NewString(), courseID)

	snap, err := tr.Completion(ctx, userID, courseID)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if snap.AllWatched {
		t.Fatalf("new lesson must drop all_watched: %+v", snap)
	}
	if !snap.ReadyForExam {
		t.Fatalf("ready_for_exam must survive roster growth: %+v", snap)
	}
}
