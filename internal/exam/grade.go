package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"

	"github.com/vts-learning/courseware/internal/audit"
)

// finalizeTx grades an open attempt and marks it submitted, all inside
// the caller's transaction. The grade denominator is the exam's current
// active question count, not the creation snapshot, so roster edits
// made mid-attempt are reflected in the score. A first pass issues the
// course certificate in the same transaction.
func (s *SQLStore) finalizeTx(ctx context.Context, tx *sql.Tx, a attemptCtx, now int64, expired bool) (Result, error) {
	// Grade saved answers in place.
	_, err := tx.ExecContext(ctx, `
		UPDATE exam_answers
		   SET is_correct = EXISTS(
			SELECT 1 FROM exam_questions q
			 WHERE q.id = exam_answers.question_id
			   AND q.correct_answer = exam_answers.selected_answer)
		 WHERE attempt_id=$1`, a.ID)
	if err != nil {
		return Result{}, err
	}

	var correct, total int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_answers
		 WHERE attempt_id=$1 AND is_correct=TRUE`, a.ID).Scan(&correct); err != nil {
		return Result{}, err
	}
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_questions q
		  JOIN course_exams e ON e.id = q.exam_id
		 WHERE e.course_id=$1 AND q.is_active=TRUE`, a.CourseID).Scan(&total)
	if err != nil {
		return Result{}, err
	}

	var passingScore int
	err = tx.QueryRowContext(ctx, `
		SELECT passing_score FROM course_exams WHERE course_id=$1`,
		a.CourseID).Scan(&passingScore)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Result{}, err
	}

	res := Result{CorrectAnswers: correct, TotalQuestions: total}
	if total > 0 {
		res.ScorePercentage = math.Round(float64(correct)/float64(total)*100*100) / 100
		res.IsPassed = res.ScorePercentage >= float64(passingScore)
	}

	taken := now - a.StartedAt
	if limit := int64(a.DurationMinutes) * 60; taken > limit {
		taken = limit
	}
	if taken < 0 {
		taken = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE exam_attempts
		   SET status=$1, submitted_at=$2, time_taken_seconds=$3,
		       is_passed=$4, score_percentage=$5, correct_answers=$6,
		       total_questions=$7
		 WHERE id=$8`,
		StatusSubmitted, now, taken,
		res.IsPassed, res.ScorePercentage, res.CorrectAnswers,
		res.TotalQuestions, a.ID)
	if err != nil {
		return Result{}, err
	}

	data, _ := json.Marshal(map[string]any{
		"attempt_number": a.Number,
		"score":          res.ScorePercentage,
		"passed":         res.IsPassed,
		"expired":        expired,
	})
	if err := s.events.AppendTx(ctx, tx, audit.Event{
		Type: audit.TypeAttemptSubmitted, Key: a.ID, Data: string(data),
	}); err != nil {
		return Result{}, err
	}

	if res.IsPassed {
		if err := s.issueCertificateTx(ctx, tx, a); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (s *SQLStore) issueCertificateTx(ctx context.Context, tx *sql.Tx, a attemptCtx) error {
	var progressID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM course_progress WHERE access_id=$1`, a.AccessID).Scan(&progressID)
	if errors.Is(err, sql.ErrNoRows) {
		// No progress row means no play was ever recorded; nothing to
		// hang a certificate on.
		return nil
	}
	if err != nil {
		return err
	}
	cert, issued, err := s.issuer.IssueIfAbsent(ctx, tx, progressID)
	if err != nil {
		return err
	}
	if !issued {
		return nil
	}
	data, _ := json.Marshal(map[string]any{"certificate_number": cert.Number, "attempt_id": a.ID})
	return s.events.AppendTx(ctx, tx, audit.Event{
		Type: audit.TypeCertificateIssued, Key: progressID, Data: string(data),
	})
}
