// Package billing records purchase orders and turns verified payment
// gateway callbacks into course access grants.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/audit"
	"github.com/vts-learning/courseware/internal/catalog"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

var (
	ErrNotFound     = errors.New("billing: order not found")
	ErrBadSignature = errors.New("billing: callback signature mismatch")
)

type Order struct {
	OrderID    string  `json:"order_id"`
	UserID     string  `json:"user_id"`
	CourseID   string  `json:"course_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
	PaymentRef string  `json:"payment_ref,omitempty"`
	CreatedAt  int64   `json:"created_at"`
}

// Callback is the gateway's server-to-server notification body.
type Callback struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	PaymentRef string `json:"payment_ref"`
}

type Service struct {
	db       *sql.DB
	catalog  *catalog.SQLStore
	events   *audit.EventRepo
	secret   []byte
	currency string
}

func NewService(db *sql.DB, cat *catalog.SQLStore, events *audit.EventRepo, webhookSecret, currency string) *Service {
	if currency == "" {
		currency = "INR"
	}
	return &Service{db: db, catalog: cat, events: events, secret: []byte(webhookSecret), currency: currency}
}

// CreateOrder opens a pending payment for a course at its current
// price. The discounted price wins when one is set.
func (s *Service) CreateOrder(ctx context.Context, userID, courseID string) (Order, error) {
	c, err := s.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return Order{}, err
	}
	var amount float64
	if c.OriginalPrice != nil {
		amount = *c.OriginalPrice
	}
	if c.DiscountedPrice != nil && *c.DiscountedPrice > 0 {
		amount = *c.DiscountedPrice
	}

	o := Order{
		OrderID:   uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    StatusPending,
		CreatedAt: time.Now().Unix(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payments
		  (order_id, user_id, course_id, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		o.OrderID, o.UserID, o.CourseID, o.Amount, o.Currency, o.Status, o.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw callback body.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// HandleCallback applies a verified gateway notification. A successful
// payment grants course access; replays of an already-paid order are
// no-ops. The caller must have verified the signature first.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback()
	now := time.Now().Unix()

	var o Order
	err = tx.QueryRowContext(ctx, `
		SELECT order_id, user_id, course_id, amount, currency, status,
		       COALESCE(payment_ref,''), created_at
		  FROM payments WHERE order_id=$1`, cb.OrderID,
	).Scan(&o.OrderID, &o.UserID, &o.CourseID, &o.Amount, &o.Currency,
		&o.Status, &o.PaymentRef, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusPaid {
		return o, tx.Commit()
	}

	status := StatusFailed
	if cb.Status == "paid" || cb.Status == "success" || cb.Status == "captured" {
		status = StatusPaid
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE payments SET status=$1, payment_ref=$2, updated_at=$3
		 WHERE order_id=$4`, status, cb.PaymentRef, now, o.OrderID)
	if err != nil {
		return Order{}, err
	}
	o.Status, o.PaymentRef = status, cb.PaymentRef
	if status != StatusPaid {
		return o, tx.Commit()
	}

	if err := tx.Commit(); err != nil {
		return Order{}, err
	}

	// Grant runs outside the payment transaction; GrantAccess is
	// idempotent so a crash between the two is repaired by replaying
	// the callback.
	access, err := s.catalog.GrantAccess(ctx, o.UserID, o.CourseID)
	if err != nil {
		return Order{}, err
	}
	data, _ := json.Marshal(map[string]any{"order_id": o.OrderID, "course_id": o.CourseID})
	if err := s.events.Append(ctx, audit.Event{
		Type: audit.TypeAccessGranted, Key: access.ID, Data: string(data),
	}); err != nil {
		return Order{}, err
	}
	return o, nil
}

// OrdersForUser lists a user's orders, newest first.
func (s *Service) OrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, user_id, course_id, amount, currency, status,
		       COALESCE(payment_ref,''), created_at
		  FROM payments WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.OrderID, &o.UserID, &o.CourseID, &o.Amount,
			&o.Currency, &o.Status, &o.PaymentRef, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
