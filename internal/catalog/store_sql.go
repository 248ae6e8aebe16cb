package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoAccess = errors.New("no active course access")
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, original_price, discounted_price, is_active
		  FROM courses
		 WHERE is_active=TRUE
		 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Course{}
	for rows.Next() {
		var c Course
		var op, dp sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &op, &dp, &c.IsActive); err != nil {
			return nil, err
		}
		if op.Valid {
			v := op.Float64
			c.OriginalPrice = &v
		}
		if dp.Valid {
			v := dp.Float64
			c.DiscountedPrice = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	var op, dp sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, original_price, discounted_price, is_active
		  FROM courses WHERE id=$1 AND is_active=TRUE`, id,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &op, &dp, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, err
	}
	if op.Valid {
		v := op.Float64
		c.OriginalPrice = &v
	}
	if dp.Valid {
		v := dp.Float64
		c.DiscountedPrice = &v
	}
	return c, nil
}

// ListItems returns the active lesson items of a course in display order.
func (s *SQLStore) ListItems(ctx context.Context, courseID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, day_label, title, video_url, duration_label, position, is_active
		  FROM course_items
		 WHERE course_id=$1 AND is_active=TRUE
		 ORDER BY day_label, position`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CourseID, &it.DayLabel, &it.Title, &it.VideoURL,
			&it.DurationLabel, &it.Position, &it.IsActive); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ActiveAccess resolves the caller's active grant for a course.
// Returns ErrNoAccess when none exists; callers surface this as not-found.
func (s *SQLStore) ActiveAccess(ctx context.Context, userID, courseID string) (Access, error) {
	var a Access
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, is_active
		  FROM course_access
		 WHERE user_id=$1 AND course_id=$2 AND is_active=TRUE`, userID, courseID,
	).Scan(&a.ID, &a.UserID, &a.CourseID, &a.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Access{}, ErrNoAccess
	}
	if err != nil {
		return Access{}, err
	}
	return a, nil
}

// GrantAccess creates (or reactivates) the unique (user, course) grant
// and makes sure a progress row exists for it. Idempotent.
func (s *SQLStore) GrantAccess(ctx context.Context, userID, courseID string) (Access, error) {
	now := time.Now().Unix()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_access (id, user_id, course_id, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (user_id, course_id) DO UPDATE SET is_active=TRUE`,
		id, userID, courseID, now)
	if err != nil {
		return Access{}, err
	}
	a, err := s.ActiveAccess(ctx, userID, courseID)
	if err != nil {
		return Access{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO course_progress (id, access_id, last_accessed)
		VALUES ($1, $2, $3)
		ON CONFLICT (access_id) DO NOTHING`,
		uuid.NewString(), a.ID, now)
	if err != nil {
		return Access{}, err
	}
	return a, nil
}

// CoursesForUser lists the courses a user holds an active grant for.
func (s *SQLStore) CoursesForUser(ctx context.Context, userID string) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.slug, c.description, c.original_price, c.discounted_price, c.is_active
		  FROM courses c
		  JOIN course_access ca ON ca.course_id = c.id
		 WHERE ca.user_id=$1 AND ca.is_active=TRUE AND c.is_active=TRUE
		 ORDER BY c.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Course{}
	for rows.Next() {
		var c Course
		var op, dp sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &op, &dp, &c.IsActive); err != nil {
			return nil, err
		}
		if op.Valid {
			v := op.Float64
			c.OriginalPrice = &v
		}
		if dp.Valid {
			v := dp.Float64
			c.DiscountedPrice = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetBrochure(ctx context.Context, courseID string) (Brochure, error) {
	var b Brochure
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, title, blob_key
		  FROM course_brochures
		 WHERE course_id=$1 AND is_active=TRUE`, courseID,
	).Scan(&b.ID, &b.CourseID, &b.Title, &b.BlobKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Brochure{}, ErrNotFound
	}
	if err != nil {
		return Brochure{}, err
	}
	return b, nil
}
