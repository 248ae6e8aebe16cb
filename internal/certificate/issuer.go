// Package certificate issues completion certificates. Issuance is
// idempotent per progress record so every finalization path (exam pass,
// full video completion) can call it without double issuing.
package certificate

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

const TypeAchievement = "achievement"

type Certificate struct {
	ID         string `json:"id"`
	ProgressID string `json:"progress_id"`
	Type       string `json:"certificate_type"`
	Number     string `json:"certificate_number"`
	IssuedAt   int64  `json:"issued_at"`
}

// Execer is satisfied by *sql.DB and *sql.Tx so issuance can join the
// caller's transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queryer is the read-side counterpart of Execer.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CourseCertificate pairs a certificate with the course it was earned on.
type CourseCertificate struct {
	Certificate
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
}

type Issuer struct{}

func NewIssuer() *Issuer { return &Issuer{} }

// IssueIfAbsent creates the certificate for a progress record unless one
// already exists. The second return reports whether a new certificate
// was created by this call.
func (i *Issuer) IssueIfAbsent(ctx context.Context, q Execer, progressID string) (Certificate, bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO certificates (id, progress_id, certificate_type, certificate_number, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (progress_id) DO NOTHING`,
		uuid.NewString(), progressID, TypeAchievement, NewNumber(), time.Now().Unix())
	if err != nil {
		return Certificate{}, false, err
	}
	n, _ := res.RowsAffected()

	var c Certificate
	err = q.QueryRowContext(ctx, `
		SELECT id, progress_id, certificate_type, certificate_number, issued_at
		  FROM certificates WHERE progress_id=$1`, progressID,
	).Scan(&c.ID, &c.ProgressID, &c.Type, &c.Number, &c.IssuedAt)
	if err != nil {
		return Certificate{}, false, err
	}
	return c, n > 0, nil
}

// ForProgress fetches the certificate for a progress record, if any.
func (i *Issuer) ForProgress(ctx context.Context, q Execer, progressID string) (Certificate, error) {
	var c Certificate
	err := q.QueryRowContext(ctx, `
		SELECT id, progress_id, certificate_type, certificate_number, issued_at
		  FROM certificates WHERE progress_id=$1`, progressID,
	).Scan(&c.ID, &c.ProgressID, &c.Type, &c.Number, &c.IssuedAt)
	return c, err
}

// ForUser lists all certificates the user has earned, newest first.
func (i *Issuer) ForUser(ctx context.Context, q Queryer, userID string) ([]CourseCertificate, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ct.id, ct.progress_id, ct.certificate_type, ct.certificate_number, ct.issued_at,
		       c.id, c.name
		  FROM certificates ct
		  JOIN course_progress cp ON cp.id = ct.progress_id
		  JOIN course_access ca ON ca.id = cp.access_id
		  JOIN courses c ON c.id = ca.course_id
		 WHERE ca.user_id=$1
		 ORDER BY ct.issued_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CourseCertificate{}
	for rows.Next() {
		var cc CourseCertificate
		if err := rows.Scan(&cc.ID, &cc.ProgressID, &cc.Type, &cc.Number, &cc.IssuedAt,
			&cc.CourseID, &cc.CourseName); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// NewNumber generates a globally-unique certificate number of the form
// CERT-XXXXXXXX.
func NewNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CERT-" + strings.ToUpper(hex[:8])
}
