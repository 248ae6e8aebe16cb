package exam

import (
	"context"
	"database/sql"
	"errors"
)

// Results returns the graded detail for a submitted attempt. When the
// attempt carries violations, the answer breakdown shown is that of the
// user's most recent earlier submitted attempt with a clean record, if
// any; the summary numbers always belong to the requested attempt.
func (s *SQLStore) Results(ctx context.Context, attemptID, userID string) (ResultsView, error) {
	a, err := loadAttempt(ctx, s.db, attemptID, userID)
	if err != nil {
		return ResultsView{}, err
	}
	if !a.Submitted() {
		return ResultsView{}, ErrNotSubmitted
	}

	view := ResultsView{
		Attempt:              a.Attempt,
		DisplayAttemptID:     a.ID,
		DisplayAttemptNumber: a.Number,
	}

	if view.Violations, err = listViolations(ctx, s.db, a.ID); err != nil {
		return ResultsView{}, err
	}

	if a.HasViolations {
		var prevID string
		var prevNumber int
		err := s.db.QueryRowContext(ctx, `
			SELECT id, attempt_number FROM exam_attempts
			 WHERE access_id=$1 AND status=$2
			   AND has_violations=FALSE AND attempt_number < $3
			 ORDER BY attempt_number DESC LIMIT 1`,
			a.AccessID, StatusSubmitted, a.Number).Scan(&prevID, &prevNumber)
		switch {
		case err == nil:
			view.DisplayAttemptID = prevID
			view.DisplayAttemptNumber = prevNumber
			view.ShowingPreviousAttempt = true
		case errors.Is(err, sql.ErrNoRows):
			// No clean earlier attempt; fall back to the attempt itself.
		default:
			return ResultsView{}, err
		}
	}

	if view.Answers, err = answerDetails(ctx, s.db, view.DisplayAttemptID); err != nil {
		return ResultsView{}, err
	}
	return view, nil
}

func answerDetails(ctx context.Context, q querier, attemptID string) ([]AnswerDetail, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT qn.id, qn.position, qn.question_text,
		       qn.option_a, qn.option_b, qn.option_c, qn.option_d,
		       ans.selected_answer, qn.correct_answer,
		       COALESCE(ans.is_correct, FALSE), qn.explanation
		  FROM exam_answers ans
		  JOIN exam_questions qn ON qn.id = ans.question_id
		 WHERE ans.attempt_id=$1
		 ORDER BY qn.position, qn.id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AnswerDetail{}
	for rows.Next() {
		var d AnswerDetail
		if err := rows.Scan(&d.QuestionID, &d.Position, &d.Text,
			&d.OptionA, &d.OptionB, &d.OptionC, &d.OptionD,
			&d.Selected, &d.Correct, &d.IsCorrect, &d.Explanation); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MyResults lists the user's submitted attempts across all courses,
// newest first.
func (s *SQLStore) MyResults(ctx context.Context, userID string) ([]AttemptSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at.id, c.id, c.name, at.attempt_number,
		       at.submitted_at, at.score_percentage, at.is_passed,
		       at.has_violations
		  FROM exam_attempts at
		  JOIN course_access ca ON ca.id = at.access_id
		  JOIN courses c ON c.id = ca.course_id
		 WHERE ca.user_id=$1 AND at.status=$2
		 ORDER BY at.submitted_at DESC`, userID, StatusSubmitted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AttemptSummary{}
	for rows.Next() {
		var r AttemptSummary
		if err := rows.Scan(&r.AttemptID, &r.CourseID, &r.CourseName, &r.Number,
			&r.SubmittedAt, &r.ScorePercentage, &r.IsPassed, &r.HasViolations); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
