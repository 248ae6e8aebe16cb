package exam

import (
	"context"
	"encoding/json"

	"github.com/vts-learning/courseware/internal/audit"
)

// RecordViolation registers one proctoring violation against an open
// attempt. Repeats of the same type increment a single row atomically;
// the attempt-level count is recomputed as the sum over all types in
// the same transaction. With autoSubmit set the attempt is finalized
// immediately after the violation is recorded.
func (s *SQLStore) RecordViolation(ctx context.Context, attemptID, userID, violationType, description string, autoSubmit bool) (ViolationOutcome, error) {
	violationType = NormalizeViolationType(violationType)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ViolationOutcome{}, err
	}
	defer tx.Rollback()
	now := s.now()

	a, err := loadAttempt(ctx, tx, attemptID, userID)
	if err != nil {
		return ViolationOutcome{}, err
	}
	if a.Submitted() {
		return ViolationOutcome{}, ErrAlreadySubmitted
	}
	if a.expired(now) {
		if _, err := s.finalizeTx(ctx, tx, a, now, true); err != nil {
			return ViolationOutcome{}, err
		}
		if err := tx.Commit(); err != nil {
			return ViolationOutcome{}, err
		}
		return ViolationOutcome{}, ErrAlreadySubmitted
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exam_violations
		  (attempt_id, violation_type, violation_count, description, auto_submitted, recorded_at)
		VALUES ($1,$2,1,$3,$4,$5)
		ON CONFLICT (attempt_id, violation_type) DO UPDATE
		   SET violation_count = exam_violations.violation_count + 1,
		       description     = EXCLUDED.description,
		       auto_submitted  = EXCLUDED.auto_submitted,
		       recorded_at     = EXCLUDED.recorded_at`,
		a.ID, violationType, description, autoSubmit, now)
	if err != nil {
		return ViolationOutcome{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE exam_attempts
		   SET has_violations = TRUE,
		       violation_count = (SELECT COALESCE(SUM(violation_count),0)
		                            FROM exam_violations WHERE attempt_id=$1)
		 WHERE id=$1`, a.ID)
	if err != nil {
		return ViolationOutcome{}, err
	}

	data, _ := json.Marshal(map[string]any{
		"violation_type": violationType,
		"auto_submit":    autoSubmit,
	})
	if err := s.events.AppendTx(ctx, tx, audit.Event{
		Type: audit.TypeViolationRecorded, Key: a.ID, Data: string(data),
	}); err != nil {
		return ViolationOutcome{}, err
	}

	if autoSubmit {
		if _, err := s.finalizeTx(ctx, tx, a, now, false); err != nil {
			return ViolationOutcome{}, err
		}
		return ViolationOutcome{
			Success:       true,
			AutoSubmitted: true,
			Message:       "Your exam has been auto-submitted due to a security violation.",
		}, tx.Commit()
	}
	return ViolationOutcome{
		Success:           true,
		ViolationRecorded: true,
		ViolationType:     violationType,
	}, tx.Commit()
}

func listViolations(ctx context.Context, q querier, attemptID string) ([]Violation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT attempt_id, violation_type, violation_count,
		       description, auto_submitted, recorded_at
		  FROM exam_violations
		 WHERE attempt_id=$1
		 ORDER BY recorded_at, violation_type`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Violation{}
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.AttemptID, &v.Type, &v.Count,
			&v.Description, &v.AutoSubmitted, &v.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
