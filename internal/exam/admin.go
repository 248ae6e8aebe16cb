package exam

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultDurationMinutes = 180
	defaultPassingScore    = 80
	defaultMaxAttempts     = 3
)

// UpsertExam creates or replaces the exam configuration for a course.
// The provided question list becomes the active roster: existing
// questions not in the payload are deactivated rather than deleted so
// past answers keep their rows.
func (s *SQLStore) UpsertExam(ctx context.Context, courseID string, up ExamUpsert) (Exam, error) {
	if up.DurationMinutes <= 0 {
		up.DurationMinutes = defaultDurationMinutes
	}
	if up.PassingScore <= 0 {
		up.PassingScore = defaultPassingScore
	}
	if up.MaxAttempts <= 0 {
		up.MaxAttempts = defaultMaxAttempts
	}
	for i := range up.Questions {
		up.Questions[i].CorrectAnswer = strings.ToLower(strings.TrimSpace(up.Questions[i].CorrectAnswer))
		switch up.Questions[i].CorrectAnswer {
		case "a", "b", "c", "d":
		default:
			return Exam{}, ErrBadAnswer
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Exam{}, err
	}
	defer tx.Rollback()
	now := time.Now().Unix()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM courses WHERE id=$1)`, courseID).Scan(&exists); err != nil {
		return Exam{}, err
	}
	if !exists {
		return Exam{}, ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO course_exams
		  (id, course_id, title, description, duration_minutes,
		   passing_score, max_attempts, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		ON CONFLICT (course_id) DO UPDATE
		   SET title=EXCLUDED.title,
		       description=EXCLUDED.description,
		       duration_minutes=EXCLUDED.duration_minutes,
		       passing_score=EXCLUDED.passing_score,
		       max_attempts=EXCLUDED.max_attempts,
		       is_active=EXCLUDED.is_active,
		       updated_at=EXCLUDED.updated_at`,
		uuid.NewString(), courseID, up.Title, up.Description, up.DurationMinutes,
		up.PassingScore, up.MaxAttempts, up.IsActive, now)
	if err != nil {
		return Exam{}, err
	}

	var examID string
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM course_exams WHERE course_id=$1`, courseID).Scan(&examID); err != nil {
		return Exam{}, err
	}

	if up.Questions != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE exam_questions SET is_active=FALSE, updated_at=$1
			 WHERE exam_id=$2`, now, examID)
		if err != nil {
			return Exam{}, err
		}
		for _, qi := range up.Questions {
			id := qi.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO exam_questions
				  (id, exam_id, question_text, option_a, option_b, option_c, option_d,
				   correct_answer, explanation, position, is_active, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,$11)
				ON CONFLICT (id) DO UPDATE
				   SET question_text=EXCLUDED.question_text,
				       option_a=EXCLUDED.option_a, option_b=EXCLUDED.option_b,
				       option_c=EXCLUDED.option_c, option_d=EXCLUDED.option_d,
				       correct_answer=EXCLUDED.correct_answer,
				       explanation=EXCLUDED.explanation,
				       position=EXCLUDED.position,
				       is_active=TRUE, updated_at=EXCLUDED.updated_at`,
				id, examID, qi.Text, qi.OptionA, qi.OptionB, qi.OptionC, qi.OptionD,
				qi.CorrectAnswer, qi.Explanation, qi.Position, now)
			if err != nil {
				return Exam{}, err
			}
		}
	}

	var e Exam
	err = tx.QueryRowContext(ctx, `
		SELECT id, course_id, title, description, duration_minutes,
		       passing_score, max_attempts, is_active, updated_at
		  FROM course_exams WHERE course_id=$1`, courseID,
	).Scan(&e.ID, &e.CourseID, &e.Title, &e.Description, &e.DurationMinutes,
		&e.PassingScore, &e.MaxAttempts, &e.IsActive, &e.UpdatedAt)
	if err != nil {
		return Exam{}, err
	}
	return e, tx.Commit()
}

// ExamForCourse exposes the active exam config for admin reads.
func (s *SQLStore) ExamForCourse(ctx context.Context, courseID string) (Exam, error) {
	return examForCourse(ctx, s.db, courseID)
}

// QuestionsForExam lists the full roster, correct answers included.
// Admin use only.
func (s *SQLStore) QuestionsForExam(ctx context.Context, examID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, question_text, option_a, option_b, option_c, option_d,
		       correct_answer, explanation, position, is_active
		  FROM exam_questions
		 WHERE exam_id=$1 AND is_active=TRUE
		 ORDER BY position, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Question{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectAnswer, &q.Explanation, &q.Position, &q.IsActive); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
