// Package progress records lesson plays and derives course completion.
//
// A play is idempotent: one row per (user, item), replays never double
// count. ready_for_exam is monotonic; once set it survives later plays
// and only an administrative reset clears it.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/audit"
	"github.com/vts-learning/courseware/internal/certificate"
)

var (
	ErrNotFound = errors.New("course item not found")
	ErrNoAccess = errors.New("no active course access")
)

// Snapshot is the state of one user's consumption of one course.
// CertificateNumber is set once the completion certificate exists.
type Snapshot struct {
	Completed          int     `json:"completed"`
	Total              int     `json:"total"`
	ProgressPercentage float64 `json:"progress_percentage"`
	AllWatched         bool    `json:"all_watched"`
	ReadyForExam       bool    `json:"ready_for_exam"`
	IsCompleted        bool    `json:"is_completed"`
	CertificateNumber  string  `json:"certificate_number,omitempty"`
}

type Tracker struct {
	db     *sql.DB
	issuer *certificate.Issuer
	events *audit.EventRepo
}

func NewTracker(db *sql.DB, issuer *certificate.Issuer, events *audit.EventRepo) *Tracker {
	return &Tracker{db: db, issuer: issuer, events: events}
}

// RecordPlay marks a lesson item played for the user and recomputes the
// owning progress row. The item must be an active item of an active
// course the user holds access to; anything else is rejected, not
// silently dropped.
func (t *Tracker) RecordPlay(ctx context.Context, userID, courseID, itemID string) (Snapshot, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM course_items i
		  JOIN courses c ON c.id = i.course_id
		 WHERE i.id=$1 AND i.course_id=$2 AND i.is_active=TRUE AND c.is_active=TRUE`,
		itemID, courseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}

	accessID, progressID, err := ensureProgress(ctx, tx, userID, courseID)
	if err != nil {
		return Snapshot{}, err
	}

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO video_plays (user_id, item_id, played_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, item_id) DO NOTHING`,
		userID, itemID, now); err != nil {
		return Snapshot{}, err
	}

	snap, err := t.refresh(ctx, tx, userID, courseID, accessID, progressID, now)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, tx.Commit()
}

// Completion reports the current snapshot without recording a play. It
// still persists ready_for_exam when the user has meanwhile watched
// everything, so the flag never lags behind what the client sees.
func (t *Tracker) Completion(ctx context.Context, userID, courseID string) (Snapshot, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()

	accessID, progressID, err := ensureProgress(ctx, tx, userID, courseID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := t.refresh(ctx, tx, userID, courseID, accessID, progressID, time.Now().Unix())
	if err != nil {
		return Snapshot{}, err
	}
	return snap, tx.Commit()
}

// ensureProgress resolves the active access and get-or-creates its
// progress row. Returns ErrNoAccess when the user holds no grant.
func ensureProgress(ctx context.Context, tx *sql.Tx, userID, courseID string) (accessID, progressID string, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM course_access
		 WHERE user_id=$1 AND course_id=$2 AND is_active=TRUE`,
		userID, courseID).Scan(&accessID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNoAccess
	}
	if err != nil {
		return "", "", err
	}

	err = tx.QueryRowContext(ctx,
		`SELECT id FROM course_progress WHERE access_id=$1`, accessID).Scan(&progressID)
	if errors.Is(err, sql.ErrNoRows) {
		progressID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO course_progress (id, access_id, last_accessed)
			VALUES ($1, $2, $3)`, progressID, accessID, time.Now().Unix())
	}
	if err != nil {
		return "", "", err
	}
	return accessID, progressID, nil
}

// refresh recomputes counts from video_plays against the active item
// set and persists the derived fields.
func (t *Tracker) refresh(ctx context.Context, tx *sql.Tx, userID, courseID, accessID, progressID string, now int64) (Snapshot, error) {
	var total, completed int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM course_items WHERE course_id=$1 AND is_active=TRUE`,
		courseID).Scan(&total); err != nil {
		return Snapshot{}, err
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		  FROM video_plays p
		  JOIN course_items i ON i.id = p.item_id
		 WHERE p.user_id=$1 AND i.course_id=$2 AND i.is_active=TRUE`,
		userID, courseID).Scan(&completed); err != nil {
		return Snapshot{}, err
	}

	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	allWatched := total > 0 && completed == total

	var ready, done bool
	if err := tx.QueryRowContext(ctx,
		`SELECT ready_for_exam, is_completed FROM course_progress WHERE id=$1`,
		progressID).Scan(&ready, &done); err != nil {
		return Snapshot{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE course_progress SET progress_percentage=$1, last_accessed=$2 WHERE id=$3`,
		pct, now, progressID); err != nil {
		return Snapshot{}, err
	}

	if allWatched && !ready {
		if _, err := tx.ExecContext(ctx, `
			UPDATE course_progress SET ready_for_exam=TRUE, ready_for_exam_date=$1 WHERE id=$2`,
			now, progressID); err != nil {
			return Snapshot{}, err
		}
		ready = true
	}

	if allWatched && !done {
		if _, err := tx.ExecContext(ctx, `
			UPDATE course_progress SET is_completed=TRUE, completion_date=$1 WHERE id=$2`,
			now, progressID); err != nil {
			return Snapshot{}, err
		}
		done = true
		cert, issued, err := t.issuer.IssueIfAbsent(ctx, tx, progressID)
		if err != nil {
			return Snapshot{}, err
		}
		if issued {
			if err := t.events.AppendTx(ctx, tx, audit.Event{
				Type: audit.TypeCertificateIssued,
				Key:  accessID,
				Data: `{"certificate_number":"` + cert.Number + `","source":"course_completion"}`,
			}); err != nil {
				log.Printf("progress: certificate event append: %v", err)
			}
		}
	}

	certNumber := ""
	if done {
		c, err := t.issuer.ForProgress(ctx, tx, progressID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, err
		}
		certNumber = c.Number
	}

	return Snapshot{
		Completed:          completed,
		Total:              total,
		ProgressPercentage: pct,
		AllWatched:         allWatched,
		ReadyForExam:       ready,
		IsCompleted:        done,
		CertificateNumber:  certNumber,
	}, nil
}

// ResetReadyForExam is the administrative escape hatch; ordinary
// progress updates never clear the flag.
func (t *Tracker) ResetReadyForExam(ctx context.Context, accessID string) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE course_progress
		   SET ready_for_exam=FALSE, ready_for_exam_date=NULL
		 WHERE access_id=$1`, accessID)
	return err
}
