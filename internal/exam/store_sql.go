// Package exam implements the proctored exam subsystem: attempt
// lifecycle, answer capture, timing, violations, grading and results.
// All writes happen inside transactions; timing decisions use the
// server clock only.
package exam

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vts-learning/courseware/internal/audit"
	"github.com/vts-learning/courseware/internal/certificate"
)

type SQLStore struct {
	db     *sql.DB
	issuer *certificate.Issuer
	events *audit.EventRepo

	now func() int64 // overridable in tests
}

func NewSQLStore(db *sql.DB, issuer *certificate.Issuer, events *audit.EventRepo) *SQLStore {
	return &SQLStore{db: db, issuer: issuer, events: events, now: func() int64 { return time.Now().Unix() }}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// examForCourse loads the active exam for a course.
func examForCourse(ctx context.Context, q querier, courseID string) (Exam, error) {
	var e Exam
	err := q.QueryRowContext(ctx, `
		SELECT id, course_id, title, description, duration_minutes,
		       passing_score, max_attempts, is_active, updated_at
		  FROM course_exams
		 WHERE course_id=$1 AND is_active=TRUE`, courseID,
	).Scan(&e.ID, &e.CourseID, &e.Title, &e.Description, &e.DurationMinutes,
		&e.PassingScore, &e.MaxAttempts, &e.IsActive, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrExamNotConfigured
	}
	return e, err
}

// accessFor resolves the caller's active enrollment in a course.
// Missing access reads as not found so course existence never leaks.
func accessFor(ctx context.Context, q querier, userID, courseID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT id FROM course_access
		 WHERE user_id=$1 AND course_id=$2 AND is_active=TRUE`,
		userID, courseID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// attemptCtx is an attempt loaded together with the identifiers the
// lifecycle operations keep needing.
type attemptCtx struct {
	Attempt
	UserID   string
	CourseID string
}

// loadAttempt fetches an attempt scoped to its owner. Any attempt not
// reachable through the caller's own course access is ErrNotFound.
func loadAttempt(ctx context.Context, q querier, attemptID, userID string) (attemptCtx, error) {
	var a attemptCtx
	err := q.QueryRowContext(ctx, `
		SELECT at.id, at.access_id, at.attempt_number, at.status,
		       at.started_at, at.submitted_at, at.time_taken_seconds,
		       at.is_passed, at.score_percentage, at.correct_answers,
		       at.total_questions, at.has_violations, at.violation_count,
		       at.duration_minutes, ca.user_id, ca.course_id
		  FROM exam_attempts at
		  JOIN course_access ca ON ca.id = at.access_id
		 WHERE at.id=$1 AND ca.user_id=$2`,
		attemptID, userID,
	).Scan(&a.ID, &a.AccessID, &a.Number, &a.Status,
		&a.StartedAt, &a.SubmittedAt, &a.TimeTakenSeconds,
		&a.IsPassed, &a.ScorePercentage, &a.CorrectAnswers,
		&a.TotalQuestions, &a.HasViolations, &a.ViolationCount,
		&a.DurationMinutes, &a.UserID, &a.CourseID)
	if errors.Is(err, sql.ErrNoRows) {
		return attemptCtx{}, ErrNotFound
	}
	return a, err
}

func (a Attempt) deadline() int64 { return a.StartedAt + int64(a.DurationMinutes)*60 }

func (a Attempt) expired(now int64) bool { return now >= a.deadline() }

func watchedAll(ctx context.Context, q querier, userID, courseID string) (bool, error) {
	var total, watched int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM course_items
		 WHERE course_id=$1 AND is_active=TRUE`, courseID).Scan(&total)
	if err != nil {
		return false, err
	}
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM video_plays vp
		  JOIN course_items ci ON ci.id = vp.item_id
		 WHERE vp.user_id=$1 AND ci.course_id=$2 AND ci.is_active=TRUE`,
		userID, courseID).Scan(&watched)
	if err != nil {
		return false, err
	}
	return watched == total && total > 0, nil
}

func hasPassed(ctx context.Context, q querier, accessID string) (bool, error) {
	var passed bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exam_attempts
		               WHERE access_id=$1 AND is_passed=TRUE)`, accessID).Scan(&passed)
	return passed, err
}

func submittedCount(ctx context.Context, q querier, accessID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_attempts
		 WHERE access_id=$1 AND status=$2`, accessID, StatusSubmitted).Scan(&n)
	return n, err
}

// Eligibility reports whether the user may start (or resume) the
// course's exam. A missing or inactive exam is not an error: it reads
// as ineligible with exam_active false.
func (s *SQLStore) Eligibility(ctx context.Context, userID, courseID string) (Eligibility, error) {
	accessID, err := accessFor(ctx, s.db, userID, courseID)
	if err != nil {
		return Eligibility{}, err
	}

	all, err := watchedAll(ctx, s.db, userID, courseID)
	if err != nil {
		return Eligibility{}, err
	}
	out := Eligibility{AllWatched: all}

	ex, err := examForCourse(ctx, s.db, courseID)
	if errors.Is(err, ErrExamNotConfigured) {
		return out, nil
	}
	if err != nil {
		return Eligibility{}, err
	}
	out.ExamActive = true
	out.AttemptsAllowed = ex.MaxAttempts

	if out.AlreadyPassed, err = hasPassed(ctx, s.db, accessID); err != nil {
		return Eligibility{}, err
	}
	if out.AttemptsUsed, err = submittedCount(ctx, s.db, accessID); err != nil {
		return Eligibility{}, err
	}
	if out.RemainingAttempts = ex.MaxAttempts - out.AttemptsUsed; out.RemainingAttempts < 0 {
		out.RemainingAttempts = 0
	}
	out.Eligible = out.AllWatched && !out.AlreadyPassed && out.RemainingAttempts > 0
	return out, nil
}

// StartAttempt resumes the newest unsubmitted attempt if one exists and
// still has time on the clock; otherwise it creates the next attempt
// with duration and question-count snapshots. Only submitted attempts
// consume the attempt budget.
func (s *SQLStore) StartAttempt(ctx context.Context, userID, courseID string) (Attempt, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, false, err
	}
	defer tx.Rollback()
	now := s.now()

	accessID, err := accessFor(ctx, tx, userID, courseID)
	if err != nil {
		return Attempt{}, false, err
	}
	ex, err := examForCourse(ctx, tx, courseID)
	if err != nil {
		return Attempt{}, false, err
	}
	passed, err := hasPassed(ctx, tx, accessID)
	if err != nil {
		return Attempt{}, false, err
	}
	if passed {
		return Attempt{}, false, ErrAlreadyPassed
	}

	// Resume path. An open attempt whose clock ran out is finalized
	// here, after which it counts against the budget like any other
	// submission.
	open, err := newestOpenAttempt(ctx, tx, accessID, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, err
	}
	if err == nil {
		if !open.expired(now) {
			return open.Attempt, true, tx.Commit()
		}
		if _, err := s.finalizeTx(ctx, tx, open, now, true); err != nil {
			return Attempt{}, false, err
		}
	}

	used, err := submittedCount(ctx, tx, accessID)
	if err != nil {
		return Attempt{}, false, err
	}
	if used >= ex.MaxAttempts {
		return Attempt{}, false, ErrNoAttemptsRemaining
	}
	all, err := watchedAll(ctx, tx, userID, courseID)
	if err != nil {
		return Attempt{}, false, err
	}
	if !all {
		return Attempt{}, false, ErrNotEligible
	}

	var number, questions int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt_number),0)+1 FROM exam_attempts
		 WHERE access_id=$1`, accessID).Scan(&number); err != nil {
		return Attempt{}, false, err
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_questions
		 WHERE exam_id=$1 AND is_active=TRUE`, ex.ID).Scan(&questions); err != nil {
		return Attempt{}, false, err
	}

	a := Attempt{
		ID:              uuid.NewString(),
		AccessID:        accessID,
		Number:          number,
		Status:          StatusInProgress,
		StartedAt:       now,
		TotalQuestions:  questions,
		DurationMinutes: ex.DurationMinutes,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO exam_attempts
		  (id, access_id, attempt_number, status, started_at,
		   total_questions, duration_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.AccessID, a.Number, a.Status, a.StartedAt,
		a.TotalQuestions, a.DurationMinutes)
	if err != nil {
		return Attempt{}, false, err
	}
	return a, false, tx.Commit()
}

func newestOpenAttempt(ctx context.Context, q querier, accessID, userID string) (attemptCtx, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT id FROM exam_attempts
		 WHERE access_id=$1 AND status=$2
		 ORDER BY attempt_number DESC LIMIT 1`,
		accessID, StatusInProgress).Scan(&id)
	if err != nil {
		return attemptCtx{}, err
	}
	return loadAttempt(ctx, q, id, userID)
}

// Questions returns the active question roster for an open attempt in
// display order, with any previously saved selections merged in.
// Correct answers never leave the store through this path.
func (s *SQLStore) Questions(ctx context.Context, attemptID, userID string) ([]QuestionView, error) {
	a, err := s.openAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.position, q.question_text,
		       q.option_a, q.option_b, q.option_c, q.option_d,
		       COALESCE(ans.selected_answer, '')
		  FROM exam_questions q
		  JOIN course_exams e ON e.id = q.exam_id
		  LEFT JOIN exam_answers ans
		         ON ans.question_id = q.id AND ans.attempt_id = $1
		 WHERE e.course_id = $2 AND q.is_active=TRUE
		 ORDER BY q.position, q.id`, a.ID, a.CourseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []QuestionView{}
	for rows.Next() {
		var v QuestionView
		if err := rows.Scan(&v.ID, &v.Position, &v.Text,
			&v.OptionA, &v.OptionB, &v.OptionC, &v.OptionD, &v.Selected); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// openAttempt loads an attempt and enforces that it is still writable:
// submitted attempts and attempts past their deadline both come back
// ErrAlreadySubmitted, the latter after being finalized on the spot.
func (s *SQLStore) openAttempt(ctx context.Context, attemptID, userID string) (attemptCtx, error) {
	a, err := loadAttempt(ctx, s.db, attemptID, userID)
	if err != nil {
		return attemptCtx{}, err
	}
	if a.Submitted() {
		return attemptCtx{}, ErrAlreadySubmitted
	}
	now := s.now()
	if a.expired(now) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return attemptCtx{}, err
		}
		defer tx.Rollback()
		if _, err := s.finalizeTx(ctx, tx, a, now, true); err != nil {
			return attemptCtx{}, err
		}
		if err := tx.Commit(); err != nil {
			return attemptCtx{}, err
		}
		return attemptCtx{}, ErrAlreadySubmitted
	}
	return a, nil
}

// TimeLeft reports the server-truth countdown for an attempt plus live
// exam configuration so clients can notice roster or schedule changes
// mid-attempt. A countdown that reaches zero finalizes the attempt as a
// side effect.
func (s *SQLStore) TimeLeft(ctx context.Context, attemptID, userID string) (TimeLeft, error) {
	a, err := loadAttempt(ctx, s.db, attemptID, userID)
	if err != nil {
		return TimeLeft{}, err
	}
	now := s.now()

	var out TimeLeft
	err = s.db.QueryRowContext(ctx, `
		SELECT e.is_active, e.duration_minutes,
		       (SELECT COUNT(*) FROM exam_questions q
		         WHERE q.exam_id = e.id AND q.is_active=TRUE),
		       (SELECT MAX(q.updated_at) FROM exam_questions q
		         WHERE q.exam_id = e.id AND q.is_active=TRUE)
		  FROM course_exams e
		 WHERE e.course_id=$1`, a.CourseID,
	).Scan(&out.ExamActive, &out.DurationMinutes, &out.QuestionsCount, &out.QuestionsUpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return TimeLeft{}, err
	}

	if a.Submitted() {
		out.IsSubmitted = true
		return out, nil
	}
	if remaining := a.deadline() - now; remaining > 0 {
		out.RemainingSeconds = int(remaining)
		return out, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TimeLeft{}, err
	}
	defer tx.Rollback()
	if _, err := s.finalizeTx(ctx, tx, a, now, true); err != nil {
		return TimeLeft{}, err
	}
	if err := tx.Commit(); err != nil {
		return TimeLeft{}, err
	}
	out.IsSubmitted = true
	return out, nil
}

// SaveAnswer upserts the selection for one question of an open attempt.
// An empty selection clears the previous answer; saves are not graded,
// grading happens once, at finalization.
func (s *SQLStore) SaveAnswer(ctx context.Context, attemptID, userID, questionID, selected string) error {
	selected = strings.ToLower(strings.TrimSpace(selected))
	switch selected {
	case "", "a", "b", "c", "d":
	default:
		return ErrBadAnswer
	}

	a, err := s.openAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}

	// The question must belong to this course's exam.
	var ok bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM exam_questions q
			  JOIN course_exams e ON e.id = q.exam_id
			 WHERE q.id=$1 AND e.course_id=$2)`,
		questionID, a.CourseID).Scan(&ok)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exam_answers (attempt_id, question_id, selected_answer, saved_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (attempt_id, question_id) DO UPDATE
		   SET selected_answer=EXCLUDED.selected_answer, saved_at=EXCLUDED.saved_at`,
		a.ID, questionID, selected, s.now())
	return err
}

// Submit finalizes and grades an open attempt. Submitting twice is an
// error; the stored result of the first submission stands.
func (s *SQLStore) Submit(ctx context.Context, attemptID, userID string) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	a, err := loadAttempt(ctx, tx, attemptID, userID)
	if err != nil {
		return Result{}, err
	}
	if a.Submitted() {
		return Result{}, ErrAlreadySubmitted
	}
	res, err := s.finalizeTx(ctx, tx, a, s.now(), false)
	if err != nil {
		return Result{}, err
	}
	return res, tx.Commit()
}
