package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/audit"
	"github.com/vts-learning/courseware/internal/catalog"
	"github.com/vts-learning/courseware/internal/db"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:billtest_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	if err := db.EnsureSchema(context.Background(), dbh, db.DriverSQLite); err != nil {
		t.Fatalf("schema: %v", err)
	}
	cat := catalog.NewSQLStore(dbh)
	return NewService(dbh, cat, audit.NewEventRepo(dbh), "webhook-secret", "INR"), dbh
}

func seedUserAndCourse(t *testing.T, dbh *sql.DB) (userID, courseID string) {
	t.Helper()
	now := time.Now().Unix()
	userID, courseID = uuid.NewString(), uuid.NewString()
	if _, err := dbh.Exec(`INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1,$2,'x','student',$3)`, userID, "u-"+userID[:8], now); err != nil {
		t.Fatal(err)
	}
	if _, err := dbh.Exec(`INSERT INTO courses (id, name, slug, original_price, discounted_price, created_at)
		VALUES ($1,'Swing Trading',$2,9999,4999,$3)`, courseID, "c-"+courseID[:8], now); err != nil {
		t.Fatal(err)
	}
	return
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateOrderUsesDiscountedPrice(t *testing.T) {
	svc, dbh := newTestService(t)
	userID, courseID := seedUserAndCourse(t, dbh)

	o, err := svc.CreateOrder(context.Background(), userID, courseID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Amount != 4999 || o.Currency != "INR" || o.Status != StatusPending {
		t.Fatalf("bad order: %+v", o)
	}
}

func TestVerifySignature(t *testing.T) {
	svc, _ := newTestService(t)
	body := []byte(`{"order_id":"x","status":"paid"}`)

	if !svc.VerifySignature(body, sign("webhook-secret", body)) {
		t.Fatal("valid signature rejected")
	}
	if svc.VerifySignature(body, sign("wrong-secret", body)) {
		t.Fatal("forged signature accepted")
	}
	if svc.VerifySignature(body, "") {
		t.Fatal("empty signature accepted")
	}
}

func TestCallbackGrantsAccessIdempotently(t *testing.T) {
	svc, dbh := newTestService(t)
	userID, courseID := seedUserAndCourse(t, dbh)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, userID, courseID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.HandleCallback(ctx, Callback{OrderID: o.OrderID, Status: "paid", PaymentRef: "pay_123"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got.Status != StatusPaid || got.PaymentRef != "pay_123" {
		t.Fatalf("bad order state: %+v", got)
	}

	cat := catalog.NewSQLStore(dbh)
	if _, err := cat.ActiveAccess(ctx, userID, courseID); err != nil {
		t.Fatalf("paid order must grant access: %v", err)
	}

	// Replay keeps exactly one grant and one paid order.
	if _, err := svc.HandleCallback(ctx, Callback{OrderID: o.OrderID, Status: "paid", PaymentRef: "pay_123"}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	var grants int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM course_access WHERE user_id=$1 AND course_id=$2`,
		userID, courseID).Scan(&grants); err != nil {
		t.Fatal(err)
	}
	if grants != 1 {
		t.Fatalf("want single grant, got %d", grants)
	}
}

func TestCallbackFailureGrantsNothing(t *testing.T) {
	svc, dbh := newTestService(t)
	userID, courseID := seedUserAndCourse(t, dbh)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, userID, courseID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.HandleCallback(ctx, Callback{OrderID: o.OrderID, Status: "failed"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("want failed, got %+v", got)
	}
	cat := catalog.NewSQLStore(dbh)
	if _, err := cat.ActiveAccess(ctx, userID, courseID); err == nil {
		t.Fatal("failed payment must not grant access")
	}

	if _, err := svc.HandleCallback(ctx, Callback{OrderID: uuid.NewString(), Status: "paid"}); err != ErrNotFound {
		t.Fatalf("unknown order: want ErrNotFound, got %v", err)
	}
}
